package filter

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// shortMessage is the longest message that is never treated as a repeat.
const shortMessage = 5

// RepeatConfig configures a RepeatFilter.
type RepeatConfig struct {
	Enabled bool
	Silent  bool
	Message string
}

// RepeatFilter rejects a message that is a substring or superstring of the
// participant's previous one, unless it is short or the lengths differ by at
// least a factor of two.
type RepeatFilter struct {
	cfg   atomic.Pointer[RepeatConfig]
	perms chatdb.PermissionOracle

	mu   sync.Mutex
	last map[uuid.UUID]string
}

// NewRepeatFilter creates a repeat filter.
func NewRepeatFilter(cfg RepeatConfig, perms chatdb.PermissionOracle) *RepeatFilter {
	f := &RepeatFilter{perms: perms, last: make(map[uuid.UUID]string)}
	f.Configure(cfg)
	return f
}

// Configure swaps the settings after a reload. Remembered messages are kept.
func (f *RepeatFilter) Configure(cfg RepeatConfig) {
	f.cfg.Store(&cfg)
}

func (f *RepeatFilter) Name() string { return "repeat" }

func (f *RepeatFilter) Check(p chatdb.Participant, _ *chatdb.Channel, text string) chatdb.FilterResult {
	cfg := f.cfg.Load()
	if !cfg.Enabled || (f.perms != nil && f.perms.Has(p.ID, chatdb.PermRepeatBypass)) {
		return chatdb.Pass
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, ok := f.last[p.ID]
	if !ok {
		f.last[p.ID] = text
		return chatdb.Pass
	}

	n, m := utf8.RuneCountInString(text), utf8.RuneCountInString(prev)
	if n <= shortMessage || n*2 <= m || m*2 <= n {
		f.last[p.ID] = text
		return chatdb.Pass
	}
	if strings.Contains(text, prev) || strings.Contains(prev, text) {
		// prev stays, so a third copy is caught too.
		return fail(cfg.Silent, cfg.Message)
	}
	f.last[p.ID] = text
	return chatdb.Pass
}

func (f *RepeatFilter) Forget(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.last, id)
}

// Tracked returns the number of participants with a remembered message.
func (f *RepeatFilter) Tracked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.last)
}
