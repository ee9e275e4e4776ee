// Package filter implements the content checks a channel message must pass
// before it reaches its audience.
//
// Filters keep per-participant state (the repeat filter remembers the last
// message). The host delivers one participant's messages one at a time, so
// state for a single participant is never updated concurrently; the maps
// themselves are still locked because different participants chat in
// parallel.
package filter

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Filter is one content check.
type Filter interface {
	Name() string
	Check(p chatdb.Participant, ch *chatdb.Channel, text string) chatdb.FilterResult
	// Forget drops any state held for a participant.
	Forget(id uuid.UUID)
}

// Chain runs filters in a fixed order.
type Chain struct {
	filters []Filter
	log     zerolog.Logger
}

// NewChain creates a chain. Filters run in the given order.
func NewChain(log zerolog.Logger, filters ...Filter) *Chain {
	return &Chain{
		filters: filters,
		log:     log.With().Str("component", "filter").Logger(),
	}
}

// Evaluate runs the filters in order. A visible failure stops the chain and
// is returned as is; a silent failure lets the remaining filters run so they
// can update their state, and the chain then reports a silent failure.
func (c *Chain) Evaluate(p chatdb.Participant, ch *chatdb.Channel, text string) chatdb.FilterResult {
	result := chatdb.Pass
	for _, f := range c.filters {
		r := f.Check(p, ch, text)
		if r.Passed {
			continue
		}
		c.log.Info().
			Str("filter", f.Name()).
			Str("participant", p.Name).
			Str("channel", channelName(ch)).
			Bool("visible", r.Visible).
			Str("text", text).
			Msg("Message filtered")
		if r.Visible {
			return r
		}
		result = chatdb.FilterResult{Passed: false}
	}
	return result
}

// Forget drops per-participant state in every filter.
func (c *Chain) Forget(id uuid.UUID) {
	for _, f := range c.filters {
		f.Forget(id)
	}
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int { return len(c.filters) }

func channelName(ch *chatdb.Channel) string {
	if ch == nil {
		return ""
	}
	return ch.Name
}

func fail(silent bool, msg string) chatdb.FilterResult {
	if silent {
		return chatdb.FilterResult{}
	}
	return chatdb.FilterResult{Visible: true, Message: msg}
}
