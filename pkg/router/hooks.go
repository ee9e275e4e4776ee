package router

import (
	"sync"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Stage names the point in the pipeline a hook runs at.
type Stage int

const (
	// StageSend runs in the sender's goroutine after the filters passed and
	// before rendering.
	StageSend Stage = iota
	// StageViewers runs on the main loop with the rendered message and the
	// resolved viewers, which the hook may replace.
	StageViewers
	// StageBroadcast runs on the main loop before a cross-process frame is
	// handed to the transport. Hooks may set Data.
	StageBroadcast
	// StageReceive runs on the main loop for an accepted inbound frame.
	// Hooks may replace the viewers.
	StageReceive
	// StageSwitch runs on the main loop before a participant's channel
	// changes.
	StageSwitch
)

func (s Stage) String() string {
	switch s {
	case StageSend:
		return "send"
	case StageViewers:
		return "viewers"
	case StageBroadcast:
		return "broadcast"
	case StageReceive:
		return "receive"
	case StageSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Verdict is a hook's decision.
type Verdict int

const (
	Continue Verdict = iota
	Cancel
)

// HookContext is what a hook sees and may change.
type HookContext struct {
	Stage   Stage
	Sender  *chatdb.Participant // nil on StageReceive
	Channel *chatdb.Channel     // target channel
	From    *chatdb.Channel     // StageSwitch: current channel
	Raw     string              // sender's text
	Message chatdb.RichMessage  // rendered message, zero on StageSend and StageSwitch
	Viewers []chatdb.Participant
	Data    string // cross-process extension field
}

// Hook inspects or changes a message at one stage. Returning Cancel stops
// the message; later hooks for that stage do not run.
type Hook func(hc *HookContext) Verdict

type hookTable struct {
	mu    sync.RWMutex
	hooks map[Stage][]Hook
}

func (t *hookTable) add(stage Stage, h Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hooks == nil {
		t.hooks = make(map[Stage][]Hook)
	}
	t.hooks[stage] = append(t.hooks[stage], h)
}

func (t *hookTable) run(hc *HookContext) Verdict {
	t.mu.RLock()
	hooks := t.hooks[hc.Stage]
	t.mu.RUnlock()
	for _, h := range hooks {
		if h(hc) == Cancel {
			return Cancel
		}
	}
	return Continue
}
