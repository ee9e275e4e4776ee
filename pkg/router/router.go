// Package router moves channel messages from a sender to every participant
// who should see them, on this process and, for cross-server channels, on
// sibling processes.
//
// Routing happens in two phases. Filtering and rendering run in the caller's
// goroutine; resolving viewers, delivering and handing frames to the
// transport run on the Scheduler, which in production is the host's main
// loop. Inbound frames go straight to the Scheduler.
package router

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/audience"
	"github.com/crystal-mush/chanrelay/pkg/channels"
	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/chatlog"
	"github.com/crystal-mush/chanrelay/pkg/direct"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/filter"
	"github.com/crystal-mush/chanrelay/pkg/format"
	"github.com/crystal-mush/chanrelay/pkg/mainloop"
	"github.com/crystal-mush/chanrelay/pkg/metrics"
)

// Reasons an inbound frame is dropped.
var (
	ErrStale          = errors.New("frame is stale")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownFormat  = errors.New("unknown format")
)

// Transport carries outbound envelopes to sibling processes. Send must not
// block for long; delivery is best effort.
type Transport interface {
	Send(payload []byte) error
}

// ExternalSink mirrors channel messages to an external chat bridge.
type ExternalSink interface {
	Publish(ch *chatdb.Channel, sender chatdb.Participant, plain string) error
}

// LogSink records channel messages. chatlog.Store implements it.
type LogSink interface {
	Log(e chatlog.Entry) error
}

// Pipeline is the part of the router rebuilt on every configuration reload.
type Pipeline struct {
	Filters        *filter.Chain
	Selector       *format.Selector
	Renderer       *format.Renderer
	Messages       chatconf.Messages
	FilteredPrefix string
	ExternalSink   bool // global switch; channels opt in individually
}

// Config wires a Router. Optional collaborators may be nil.
type Config struct {
	Registry  *channels.Registry
	Audience  *audience.Resolver
	Perms     chatdb.PermissionOracle
	Bus       *events.Bus
	Scheduler mainloop.Scheduler // defaults to mainloop.Inline
	Transport Transport          // optional
	External  ExternalSink       // optional
	ChatLog   LogSink            // optional
	Direct    *direct.Router
	Metrics   *metrics.Metrics
	Pipeline  Pipeline
	Server    string
	Clock     func() time.Time // defaults to time.Now
	Log       zerolog.Logger
}

// Router routes channel messages.
type Router struct {
	registry  *channels.Registry
	audience  *audience.Resolver
	perms     chatdb.PermissionOracle
	bus       *events.Bus
	sched     mainloop.Scheduler
	transport Transport
	external  ExternalSink
	chatLog   LogSink
	direct    *direct.Router
	metrics   *metrics.Metrics
	server    string
	now       func() time.Time
	log       zerolog.Logger

	pipeline atomic.Pointer[Pipeline]
	hooks    hookTable
}

// New creates a router.
func New(cfg Config) *Router {
	r := &Router{
		registry:  cfg.Registry,
		audience:  cfg.Audience,
		perms:     cfg.Perms,
		bus:       cfg.Bus,
		sched:     cfg.Scheduler,
		transport: cfg.Transport,
		external:  cfg.External,
		chatLog:   cfg.ChatLog,
		direct:    cfg.Direct,
		metrics:   cfg.Metrics,
		server:    cfg.Server,
		now:       cfg.Clock,
		log:       cfg.Log.With().Str("component", "router").Logger(),
	}
	if r.sched == nil {
		r.sched = mainloop.Inline{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.Configure(cfg.Pipeline)
	return r
}

// Configure swaps in a rebuilt pipeline. Messages already past phase one
// finish with the pipeline they started with.
func (r *Router) Configure(p Pipeline) {
	if p.Filters == nil {
		p.Filters = filter.NewChain(r.log)
	}
	r.pipeline.Store(&p)
}

// AddHook registers h to run at stage, after hooks added earlier.
func (r *Router) AddHook(stage Stage, h Hook) {
	r.hooks.add(stage, h)
}

// Disconnect drops everything held for a participant who left: the channel
// assignment, filter state and reply links. Spy preferences stay.
func (r *Router) Disconnect(id uuid.UUID) {
	r.registry.Unassign(id)
	r.pipeline.Load().Filters.Forget(id)
	if r.direct != nil {
		r.direct.Forget(id)
	}
}

func (r *Router) schedule(task func()) error {
	if err := r.sched.Submit(task); err != nil {
		r.log.Error().Err(err).Msg("Failed to schedule delivery")
		return fmt.Errorf("scheduling delivery: %w", err)
	}
	return nil
}

// refuse tells the participant why the request failed and returns the
// matching PreconditionError.
func (r *Router) refuse(id uuid.UUID, key chatdb.MessageKey, vals map[string]chatdb.RichMessage) error {
	ev := r.notice(id, key, vals)
	if err := r.schedule(func() { r.bus.Emit(ev) }); err != nil {
		return err
	}
	return &chatdb.PreconditionError{Key: key}
}

// notice builds the text event for a message key.
func (r *Router) notice(id uuid.UUID, key chatdb.MessageKey, vals map[string]chatdb.RichMessage) events.Event {
	pl := r.pipeline.Load()
	return events.Event{
		Type:    events.EvText,
		Player:  id,
		Message: pl.Renderer.Markup.Template(pl.Messages.Get(key), vals),
	}
}

func text(pl *Pipeline, s string) chatdb.RichMessage {
	return pl.Renderer.Markup.Restrict(s, 0)
}
