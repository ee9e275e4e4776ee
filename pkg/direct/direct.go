// Package direct routes private messages between two participants, with
// reply tracking and social spy copies.
package direct

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/format"
	"github.com/crystal-mush/chanrelay/pkg/mainloop"
	"github.com/crystal-mush/chanrelay/pkg/metrics"
)

// Templates are the three renderings of one private message.
type Templates struct {
	Sender   chatconf.DirectTemplate
	Receiver chatconf.DirectTemplate
	Spy      chatconf.DirectTemplate
}

// TemplatesFrom copies the private message templates out of config.yml.
func TemplatesFrom(s *chatconf.Settings) Templates {
	return Templates{
		Sender:   s.PrivateMessages.Sender,
		Receiver: s.PrivateMessages.Receiver,
		Spy:      s.PrivateMessages.Spy,
	}
}

// view is the reloadable part of the router.
type view struct {
	tmpl     Templates
	msgs     chatconf.Messages
	renderer *format.Renderer
}

// Config wires a Router.
type Config struct {
	Roster    chatdb.Roster
	Perms     chatdb.PermissionOracle
	Bus       *events.Bus
	Renderer  *format.Renderer
	Messages  chatconf.Messages
	Templates Templates
	Scheduler mainloop.Scheduler // defaults to mainloop.Inline
	Spies     *SpySet            // nil keeps spies in memory only
	Metrics   *metrics.Metrics   // optional
	Log       zerolog.Logger
}

// Router delivers private messages. Preconditions are checked in the
// caller's goroutine; deliveries, reply links and spy toggles run on the
// Scheduler.
type Router struct {
	roster  chatdb.Roster
	perms   chatdb.PermissionOracle
	bus     *events.Bus
	sched   mainloop.Scheduler
	links   *ReplyLinks
	spies   *SpySet
	metrics *metrics.Metrics
	log     zerolog.Logger
	view    atomic.Pointer[view]
}

// New creates a router.
func New(cfg Config) *Router {
	r := &Router{
		roster:  cfg.Roster,
		perms:   cfg.Perms,
		bus:     cfg.Bus,
		sched:   cfg.Scheduler,
		links:   NewReplyLinks(),
		spies:   cfg.Spies,
		metrics: cfg.Metrics,
		log:     cfg.Log.With().Str("component", "direct").Logger(),
	}
	if r.sched == nil {
		r.sched = mainloop.Inline{}
	}
	if r.spies == nil {
		r.spies, _ = NewSpySet(nil, cfg.Log)
	}
	r.Configure(cfg.Templates, cfg.Messages, cfg.Renderer)
	return r
}

// Configure swaps templates, messages and renderer after a reload. Reply
// links and spies are kept.
func (r *Router) Configure(t Templates, msgs chatconf.Messages, renderer *format.Renderer) {
	r.view.Store(&view{tmpl: t, msgs: msgs, renderer: renderer})
}

// Message sends raw to the online participant named receiverName.
func (r *Router) Message(sender chatdb.Participant, receiverName, raw string) error {
	if strings.TrimSpace(receiverName) == "" || strings.TrimSpace(raw) == "" {
		return r.refuse(sender.ID, chatdb.MsgMessageUsage)
	}
	receiver, ok := r.roster.LookupName(receiverName)
	if !ok {
		return r.refuse(sender.ID, chatdb.MsgMessageNotOnline)
	}
	if receiver.ID == sender.ID {
		return r.refuse(sender.ID, chatdb.MsgMessageSelf)
	}
	return r.Send(sender, receiver, raw)
}

// Reply sends raw to whoever sender last exchanged a private message with.
func (r *Router) Reply(sender chatdb.Participant, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return r.refuse(sender.ID, chatdb.MsgReplyUsage)
	}
	id, ok := r.links.Target(sender.ID)
	if !ok {
		return r.refuse(sender.ID, chatdb.MsgReplyNotOnline)
	}
	receiver, ok := r.roster.Lookup(id)
	if !ok {
		return r.refuse(sender.ID, chatdb.MsgReplyNotOnline)
	}
	return r.Send(sender, receiver, raw)
}

// Send delivers the sender, receiver and spy copies, plays the configured
// sounds and links the pair for replies. No preconditions are checked. The
// body is rendered in the caller's goroutine and delivered on the
// Scheduler.
func (r *Router) Send(sender, receiver chatdb.Participant, raw string) error {
	v := r.view.Load()
	body := v.renderer.Body(sender, raw, r.allowed(sender.ID))
	toSender := r.render(v, v.tmpl.Sender, sender, receiver, body)
	toReceiver := r.render(v, v.tmpl.Receiver, sender, receiver, body)
	toSpies := r.render(v, v.tmpl.Spy, sender, receiver, body)

	return r.schedule(func() {
		deliveries := r.deliver(events.EvDirect, []uuid.UUID{sender.ID}, sender.ID, toSender, v.tmpl.Sender.Sounds)
		deliveries += r.deliver(events.EvDirect, []uuid.UUID{receiver.ID}, sender.ID, toReceiver, v.tmpl.Receiver.Sounds)
		var spies []uuid.UUID
		for _, p := range r.roster.Online() {
			if r.spies.Contains(p.ID) {
				spies = append(spies, p.ID)
			}
		}
		deliveries += r.deliver(events.EvSpy, spies, sender.ID, toSpies, v.tmpl.Spy.Sounds, sender.ID, receiver.ID)

		r.links.Link(sender.ID, receiver.ID)
		r.metrics.Direct(deliveries)
		r.log.Debug().Str("sender", sender.Name).Str("receiver", receiver.Name).Int("deliveries", deliveries).Msg("Private message sent")
	})
}

// deliver emits msg and sounds to every recipient not in except and returns
// the number of message deliveries.
func (r *Router) deliver(typ events.EventType, to []uuid.UUID, source uuid.UUID, msg chatdb.RichMessage, sounds []string, except ...uuid.UUID) int {
	skip := make(map[uuid.UUID]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}
	n := 0
	if !msg.IsZero() {
		for _, id := range to {
			if !skip[id] {
				n++
			}
		}
		r.bus.EmitToExcept(to, events.Event{Type: typ, Source: source, Message: msg}, except...)
	}
	for _, snd := range sounds {
		r.bus.EmitToExcept(to, events.Event{Type: events.EvSound, Source: source, Sound: snd}, except...)
	}
	return n
}

// SocialSpy toggles spying for p if p holds the social spy permission and
// tells p the new state.
func (r *Router) SocialSpy(p chatdb.Participant) error {
	if r.perms == nil || !r.perms.Has(p.ID, chatdb.PermSocialSpy) {
		return r.refuse(p.ID, chatdb.MsgSocialSpyNoPermision)
	}
	return r.schedule(func() {
		key := chatdb.MsgSocialSpyDisabled
		if r.ToggleSpy(p.ID) {
			key = chatdb.MsgSocialSpyEnabled
		}
		r.bus.Emit(r.notice(p.ID, key))
	})
}

// ToggleSpy flips id's spy state and returns the new one.
func (r *Router) ToggleSpy(id uuid.UUID) bool {
	name := id.String()
	if p, ok := r.roster.Lookup(id); ok {
		name = p.Name
	}
	return r.spies.Toggle(id, name)
}

// IsSpying reports whether id receives spy copies.
func (r *Router) IsSpying(id uuid.UUID) bool { return r.spies.Contains(id) }

// ReplyTarget returns id's current reply target.
func (r *Router) ReplyTarget(id uuid.UUID) (uuid.UUID, bool) { return r.links.Target(id) }

// Forget drops reply links to and from id. The spy preference stays.
func (r *Router) Forget(id uuid.UUID) { r.links.Prune(id) }

// allowed maps the sender's message permissions onto tag families.
func (r *Router) allowed(id uuid.UUID) chatdb.TagSet {
	if r.perms == nil {
		return 0
	}
	var t chatdb.TagSet
	if r.perms.Has(id, chatdb.PermMessageColors) {
		t |= chatdb.TagColor
	}
	if r.perms.Has(id, chatdb.PermMessageDecorations) {
		t |= chatdb.TagDecoration
	}
	if r.perms.Has(id, chatdb.PermMessageEvents) {
		t |= chatdb.TagEvent
	}
	return t
}

func (r *Router) render(v *view, t chatconf.DirectTemplate, sender, receiver chatdb.Participant, body chatdb.RichMessage) chatdb.RichMessage {
	mk := v.renderer.Markup
	vals := map[string]chatdb.RichMessage{
		"sender":   mk.Restrict(sender.Name, 0),
		"receiver": mk.Restrict(receiver.Name, 0),
		"message":  body,
	}
	parts := make([]chatdb.RichMessage, 0, len(t.Segments))
	for _, seg := range t.Segments {
		parts = append(parts, mk.Template(v.renderer.Emotes.Replace(seg.Template), vals))
	}
	return chatdb.Concat(parts...)
}

func (r *Router) refuse(id uuid.UUID, key chatdb.MessageKey) error {
	ev := r.notice(id, key)
	if err := r.schedule(func() { r.bus.Emit(ev) }); err != nil {
		return err
	}
	return &chatdb.PreconditionError{Key: key}
}

func (r *Router) notice(id uuid.UUID, key chatdb.MessageKey) events.Event {
	v := r.view.Load()
	return events.Event{
		Type:    events.EvText,
		Player:  id,
		Message: chatdb.RichMessage{Markup: v.msgs.Get(key)},
	}
}

func (r *Router) schedule(task func()) error {
	if err := r.sched.Submit(task); err != nil {
		r.log.Error().Err(err).Msg("Failed to schedule private message")
		return fmt.Errorf("scheduling private message: %w", err)
	}
	return nil
}
