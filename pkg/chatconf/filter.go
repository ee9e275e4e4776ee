package chatconf

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FilterRules holds filter.yml.
type FilterRules struct {
	Regex struct {
		Enabled  bool     `yaml:"enabled"`
		Silent   bool     `yaml:"silent"`
		Patterns []string `yaml:"filter"`
	} `yaml:"RegexFilter"`
	Repeat struct {
		Enabled bool  `yaml:"enabled"`
		Silent  *bool `yaml:"silent"` // unset means silent
	} `yaml:"RepeatMessageFilter"`
	Noise struct {
		Characters []string `yaml:"characters"`
	} `yaml:"MiscCharacters"`
	// FilteredPrefix is prepended to the copy staff see of a silently
	// filtered message.
	FilteredPrefix string `yaml:"FilteredPrefix"`
}

// RepeatSilent reports whether repeat-filter failures are hidden from the
// sender.
func (r *FilterRules) RepeatSilent() bool {
	return r.Repeat.Silent == nil || *r.Repeat.Silent
}

// DefaultFilterRules returns the rules used when filter.yml is absent.
func DefaultFilterRules() *FilterRules {
	r := &FilterRules{FilteredPrefix: "<red>[Filtered] </red>"}
	r.Repeat.Enabled = true
	return r
}

// LoadFilterRules reads filter.yml over the defaults.
func LoadFilterRules(path string) (*FilterRules, error) {
	r := DefaultFilterRules()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	return r, nil
}
