package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// ConsoleWriter prints console deliveries through the process logger.
type ConsoleWriter struct {
	log   zerolog.Logger
	plain func(chatdb.RichMessage) string
}

// NewConsoleWriter creates a console subscriber. plain strips markup for the
// log line.
func NewConsoleWriter(log zerolog.Logger, plain func(chatdb.RichMessage) string) *ConsoleWriter {
	return &ConsoleWriter{log: log.With().Str("component", "console").Logger(), plain: plain}
}

func (c *ConsoleWriter) Receive(ev Event) {
	if ev.Player != Console {
		return
	}
	c.log.Info().
		Str("type", ev.Type.String()).
		Str("channel", ev.Channel).
		Msg(c.plain(ev.Message))
}

func (c *ConsoleWriter) Closed() bool { return false }

// Recorder keeps every event it receives. Subscribed globally it sees the
// whole delivery fan-out of a message, which the admin test endpoint
// reports back.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewRecorder creates a recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Receive(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the recorder; the bus drops it on the next Cleanup.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Events returns a copy of everything received so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Event, len(r.events))
	copy(cp, r.events)
	return cp
}

// For returns the events delivered to one recipient.
func (r *Recorder) For(id uuid.UUID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Player == id {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
