package filter

import (
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// FromRules builds the standard chain, regex filter first, from filter.yml
// and messages.yml. A non-nil repeat filter is reconfigured and reused so
// remembered messages survive a reload.
func FromRules(rules *chatconf.FilterRules, msgs chatconf.Messages, perms chatdb.PermissionOracle, repeat *RepeatFilter, log zerolog.Logger) *Chain {
	regex := NewRegexFilter(RegexConfig{
		Enabled:  rules.Regex.Enabled,
		Silent:   rules.Regex.Silent,
		Patterns: rules.Regex.Patterns,
		Noise:    rules.Noise.Characters,
		Message:  msgs.Get(chatdb.MsgFilterRegex),
	}, perms, log)
	cfg := RepeatConfigFrom(rules, msgs)
	if repeat == nil {
		repeat = NewRepeatFilter(cfg, perms)
	} else {
		repeat.Configure(cfg)
	}
	return NewChain(log, regex, repeat)
}

// RepeatConfigFrom reads the repeat filter settings.
func RepeatConfigFrom(rules *chatconf.FilterRules, msgs chatconf.Messages) RepeatConfig {
	return RepeatConfig{
		Enabled: rules.Repeat.Enabled,
		Silent:  rules.RepeatSilent(),
		Message: msgs.Get(chatdb.MsgFilterRepeatMessage),
	}
}
