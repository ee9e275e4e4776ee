package router

import (
	"errors"
	"fmt"

	"github.com/crystal-mush/chanrelay/pkg/broadcast"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/metrics"
)

// Receive delivers a frame from a sibling process to the local audience of
// its channel. The message is shown as received: it is not filtered,
// formatted or broadcast again. Dropped frames are only logged at debug;
// the returned error says why for callers that care.
func (r *Router) Receive(payload []byte) error {
	frame, err := broadcast.Decode(payload)
	if err != nil {
		if errors.Is(err, broadcast.ErrForeignSubchannel) {
			return err
		}
		r.log.Debug().Err(err).Msg("Dropping malformed frame")
		r.metrics.Remote(metrics.RemoteMalformed, 0)
		return err
	}
	if frame.Stale(r.now()) {
		r.log.Debug().Str("channel", frame.Channel).Time("sent", frame.Timestamp).Msg("Dropping stale frame")
		r.metrics.Remote(metrics.RemoteStale, 0)
		return ErrStale
	}
	ch, ok := r.registry.Resolve(frame.Channel)
	if !ok {
		r.log.Debug().Str("channel", frame.Channel).Msg("Dropping frame for unknown channel")
		r.metrics.Remote(metrics.RemoteUnknown, 0)
		return fmt.Errorf("%w: %q", ErrUnknownChannel, frame.Channel)
	}

	pl := r.pipeline.Load()
	msg := chatdb.RichMessage{Markup: frame.Message}
	return r.schedule(func() {
		hc := &HookContext{
			Stage:   StageReceive,
			Channel: ch,
			Raw:     frame.Message,
			Message: msg,
			Viewers: r.audience.Viewers(ch, nil),
			Data:    frame.Data,
		}
		if r.hooks.run(hc) == Cancel {
			r.metrics.Remote(metrics.RemoteCancelled, 0)
			return
		}
		for _, v := range hc.Viewers {
			r.bus.Emit(events.Event{Type: events.EvRemote, Player: v.ID, Channel: ch.Name, Message: msg})
		}
		r.bus.Emit(events.Event{
			Type:    events.EvRemote,
			Player:  events.Console,
			Channel: ch.Name,
			Message: chatdb.Concat(text(pl, "(remote) ["+ch.Name+"] "), msg),
		})
		r.metrics.Remote(metrics.RemoteDelivered, len(hc.Viewers))
	})
}
