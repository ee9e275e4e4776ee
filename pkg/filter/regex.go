package filter

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// RegexConfig configures a RegexFilter.
type RegexConfig struct {
	Enabled  bool
	Silent   bool
	Patterns []string
	Noise    []string // literal substrings removed before matching
	Message  string   // shown on a visible failure
}

// RegexFilter rejects text matching any configured pattern.
type RegexFilter struct {
	enabled  bool
	silent   bool
	noise    []string
	patterns []*regexp.Regexp
	message  string
	perms    chatdb.PermissionOracle
}

// NewRegexFilter compiles the patterns once. Patterns that do not compile
// are logged and skipped.
func NewRegexFilter(cfg RegexConfig, perms chatdb.PermissionOracle, log zerolog.Logger) *RegexFilter {
	f := &RegexFilter{
		enabled: cfg.Enabled,
		silent:  cfg.Silent,
		message: cfg.Message,
		perms:   perms,
	}
	for _, n := range cfg.Noise {
		if n != "" {
			f.noise = append(f.noise, n)
		}
	}
	for i, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn().
				Err(&chatdb.ConfigurationError{Source: "RegexFilter.filter", Err: err}).
				Int("index", i).
				Msg("Skipping invalid filter pattern")
			continue
		}
		f.patterns = append(f.patterns, re)
	}
	return f
}

func (f *RegexFilter) Name() string { return "regex" }

// Patterns returns the number of usable patterns.
func (f *RegexFilter) Patterns() int { return len(f.patterns) }

func (f *RegexFilter) Check(p chatdb.Participant, _ *chatdb.Channel, text string) chatdb.FilterResult {
	if !f.enabled || (f.perms != nil && f.perms.Has(p.ID, chatdb.PermRegexBypass)) {
		return chatdb.Pass
	}
	for _, n := range f.noise {
		text = strings.ReplaceAll(text, n, "")
	}
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return fail(f.silent, f.message)
		}
	}
	return chatdb.Pass
}

func (f *RegexFilter) Forget(uuid.UUID) {}
