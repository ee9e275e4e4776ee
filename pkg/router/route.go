package router

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/chanrelay/pkg/broadcast"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/chatlog"
	"github.com/crystal-mush/chanrelay/pkg/events"
)

// Route sends raw to the sender's current channel. Filter rejections are
// reported to the sender and are not errors.
func (r *Router) Route(p chatdb.Participant, raw string) error {
	ch := r.registry.ChannelOf(p.ID)
	if ch == nil {
		return r.refuse(p.ID, chatdb.MsgChannelNotInChannel, nil)
	}
	return r.send(p, ch, raw)
}

// Chat sends raw to the named channel once, without switching. An empty raw
// switches to the channel instead.
func (r *Router) Chat(p chatdb.Participant, name, raw string) error {
	ch, err := r.accessible(p, name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return r.switchTo(p, ch)
	}
	return r.send(p, ch, raw)
}

// SwitchChannel makes the named channel the participant's current one.
func (r *Router) SwitchChannel(p chatdb.Participant, name string) error {
	ch, err := r.accessible(p, name)
	if err != nil {
		return err
	}
	return r.switchTo(p, ch)
}

// RouteWith renders raw with an explicit channel and format and delivers it
// to the channel's local audience. Filters, hooks, sinks and the
// cross-process leg are skipped. An empty formatID selects the format as
// Route would. The rendered message is returned.
func (r *Router) RouteWith(p chatdb.Participant, channel, formatID, raw string) (chatdb.RichMessage, error) {
	ch, ok := r.registry.Resolve(channel)
	if !ok {
		return chatdb.RichMessage{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	pl := r.pipeline.Load()
	f := ch.Format(formatID)
	if formatID == "" {
		var err error
		if f, err = pl.Selector.Select(ch, p); err != nil {
			return chatdb.RichMessage{}, err
		}
	}
	if f == nil {
		return chatdb.RichMessage{}, fmt.Errorf("%w: %q in channel %s", ErrUnknownFormat, formatID, ch.Name)
	}
	msg := pl.Renderer.Render(ch, f, p, raw)
	err := r.schedule(func() {
		viewers := r.audience.Viewers(ch, &p)
		r.deliver(pl, p, ch, viewers, msg)
	})
	return msg, err
}

func (r *Router) accessible(p chatdb.Participant, name string) (*chatdb.Channel, error) {
	ch, ok := r.registry.Resolve(name)
	if !ok {
		return nil, r.refuse(p.ID, chatdb.MsgChannelDoesNotExist, nil)
	}
	if !r.audience.Permitted(ch, p) {
		return nil, r.refuse(p.ID, chatdb.MsgChannelNoPermission, nil)
	}
	return ch, nil
}

// switchTo runs the switch hooks, the assignment and the confirmation on the
// scheduler.
func (r *Router) switchTo(p chatdb.Participant, ch *chatdb.Channel) error {
	return r.schedule(func() {
		hc := &HookContext{Stage: StageSwitch, Sender: &p, Channel: ch, From: r.registry.ChannelOf(p.ID)}
		if r.hooks.run(hc) == Cancel {
			return
		}
		r.registry.Assign(p.ID, ch)
		pl := r.pipeline.Load()
		r.bus.Emit(r.notice(p.ID, chatdb.MsgChannelSwitch, map[string]chatdb.RichMessage{"channel": text(pl, ch.DisplayName)}))
		r.log.Debug().Str("participant", p.Name).Str("channel", ch.Name).Msg("Channel switched")
	})
}

// send is phase one: filter, send hooks and rendering.
func (r *Router) send(p chatdb.Participant, ch *chatdb.Channel, raw string) error {
	pl := r.pipeline.Load()

	res := pl.Filters.Evaluate(p, ch, raw)
	if !res.Passed {
		r.metrics.Filtered(res.Visible)
		if res.Visible {
			ev := events.Event{Type: events.EvText, Player: p.ID, Channel: ch.Name, Message: chatdb.RichMessage{Markup: res.Message}}
			return r.schedule(func() { r.bus.Emit(ev) })
		}
	} else {
		hc := &HookContext{Stage: StageSend, Sender: &p, Channel: ch, Raw: raw}
		if r.hooks.run(hc) == Cancel {
			return nil
		}
	}

	f, err := pl.Selector.Select(ch, p)
	if err != nil {
		r.log.Error().Err(err).Str("channel", ch.Name).Msg("No usable format")
		return err
	}
	msg := pl.Renderer.Render(ch, f, p, raw)

	if !res.Passed {
		return r.schedule(func() { r.deliverFiltered(pl, p, ch, msg) })
	}
	return r.schedule(func() { r.dispatch(pl, p, ch, raw, msg) })
}

// dispatch is phase two for a message that passed the filters.
func (r *Router) dispatch(pl *Pipeline, p chatdb.Participant, ch *chatdb.Channel, raw string, msg chatdb.RichMessage) {
	hc := &HookContext{
		Stage:   StageViewers,
		Sender:  &p,
		Channel: ch,
		Raw:     raw,
		Message: msg,
		Viewers: r.audience.Viewers(ch, &p),
	}
	if r.hooks.run(hc) == Cancel {
		return
	}
	r.deliver(pl, p, ch, hc.Viewers, msg)

	plain := pl.Renderer.Markup.Plain(msg)
	if pl.ExternalSink && ch.ExternalSink && r.external != nil {
		r.publish(ch, p, plain)
	}
	if r.chatLog != nil {
		err := r.chatLog.Log(chatlog.Entry{
			Server:   r.server,
			Channel:  strings.ToLower(ch.Name),
			ID:       p.ID,
			Username: p.Name,
			Message:  plain,
			Time:     r.now(),
		})
		if err != nil {
			r.log.Warn().Err(err).Msg("Chat log rejected entry")
		}
	}
	if ch.CrossServer && r.transport != nil {
		r.forward(p, ch, raw, msg)
	}
}

// deliver sends msg to each viewer and the console.
func (r *Router) deliver(pl *Pipeline, p chatdb.Participant, ch *chatdb.Channel, viewers []chatdb.Participant, msg chatdb.RichMessage) {
	for _, v := range viewers {
		r.bus.Emit(events.Event{Type: events.EvChannel, Player: v.ID, Source: p.ID, Channel: ch.Name, Message: msg})
	}
	r.bus.Emit(events.Event{
		Type:    events.EvChannel,
		Player:  events.Console,
		Source:  p.ID,
		Channel: ch.Name,
		Message: chatdb.Concat(text(pl, "["+ch.Name+"] "), msg),
	})
	r.metrics.Message(ch.Name, len(viewers))
}

// deliverFiltered shows a silently filtered message to its sender, to staff
// with the filtered prefix, and to the console.
func (r *Router) deliverFiltered(pl *Pipeline, p chatdb.Participant, ch *chatdb.Channel, msg chatdb.RichMessage) {
	if r.perms == nil || !r.perms.Has(p.ID, chatdb.PermFilterView) {
		r.bus.Emit(events.Event{Type: events.EvFiltered, Player: p.ID, Source: p.ID, Channel: ch.Name, Message: msg})
	}
	staff := chatdb.Concat(chatdb.RichMessage{Markup: pl.FilteredPrefix}, msg)
	for _, v := range r.audience.WithPermission(chatdb.PermFilterView) {
		r.bus.Emit(events.Event{Type: events.EvFiltered, Player: v.ID, Source: p.ID, Channel: ch.Name, Message: staff})
	}
	r.bus.Emit(events.Event{
		Type:    events.EvFiltered,
		Player:  events.Console,
		Source:  p.ID,
		Channel: ch.Name,
		Message: chatdb.Concat(text(pl, "(filtered) ["+ch.Name+"] "), msg),
	})
}

// forward hands a frame for msg to the transport.
func (r *Router) forward(p chatdb.Participant, ch *chatdb.Channel, raw string, msg chatdb.RichMessage) {
	hc := &HookContext{Stage: StageBroadcast, Sender: &p, Channel: ch, Raw: raw, Message: msg}
	if r.hooks.run(hc) == Cancel {
		return
	}
	if strings.Contains(hc.Data, broadcast.Separator) {
		r.log.Warn().Str("channel", ch.Name).Msg("Broadcast data contains the record separator, dropping it")
		hc.Data = ""
	}
	payload, err := broadcast.Encode(broadcast.NewFrame(ch, hc.Data, msg, r.now()))
	if err != nil {
		r.log.Warn().Err(err).Str("channel", ch.Name).Msg("Failed to encode broadcast")
		return
	}
	if err := r.transport.Send(payload); err != nil {
		r.log.Warn().Err(err).Str("channel", ch.Name).Msg("Broadcast not sent")
		return
	}
	r.metrics.Broadcast(ch.Name)
}

// publish calls the external sink, isolating the router from its failures.
func (r *Router) publish(ch *chatdb.Channel, p chatdb.Participant, plain string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("channel", ch.Name).Str("panic", fmt.Sprint(rec)).Msg("External sink panicked")
		}
	}()
	if err := r.external.Publish(ch, p, plain); err != nil {
		r.log.Warn().Err(err).Str("channel", ch.Name).Msg("External sink failed")
	}
}
