package events

import (
	"github.com/google/uuid"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Console is the recipient ID used for console deliveries.
var Console = uuid.Nil

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText     EventType = iota // System or error text from messages.yml
	EvChannel                   // Local channel message
	EvRemote                    // Channel message received from a sibling process
	EvFiltered                  // Silently filtered message (sender copy, staff copy, console)
	EvDirect                    // Private message to sender or receiver
	EvSpy                       // Spy copy of a private message
	EvSound                     // Notification sound
	EvJoin                      // Join announcement
	EvQuit                      // Quit announcement
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvChannel:
		return "channel"
	case EvRemote:
		return "remote"
	case EvFiltered:
		return "filtered"
	case EvDirect:
		return "direct"
	case EvSpy:
		return "spy"
	case EvSound:
		return "sound"
	case EvJoin:
		return "join"
	case EvQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Event is one delivery. The host's subscriber for a participant decides how
// to render Message on its transport.
type Event struct {
	Type    EventType
	Player  uuid.UUID          // recipient, Console for the console
	Source  uuid.UUID          // who generated the event, uuid.Nil for the system
	Channel string             // channel name (EvChannel, EvRemote, EvFiltered)
	Message chatdb.RichMessage // rendered markup
	Sound   string             // sound key (EvSound)
}
