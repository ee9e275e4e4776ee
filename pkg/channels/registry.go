// Package channels holds the loaded channel definitions and each connected
// participant's current channel.
package channels

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// ErrNoDefault and ErrMultipleDefaults reject a definition set that does not
// name exactly one default channel.
var (
	ErrNoDefault        = errors.New("no default channel defined")
	ErrMultipleDefaults = errors.New("more than one default channel defined")
	ErrNoSource         = errors.New("registry has no source to reload from")
)

// Source produces a fresh set of channel definitions, typically by reading
// the channels/ directory.
type Source func() ([]*chatdb.Channel, error)

// snapshot is an immutable view of one load. Readers grab the pointer once
// and never see a half-built table.
type snapshot struct {
	byName  map[string]*chatdb.Channel // name and aliases, uppercase
	ordered []*chatdb.Channel          // sorted by name
	def     *chatdb.Channel
}

// Registry resolves channel names and tracks assignments.
type Registry struct {
	snap   atomic.Pointer[snapshot]
	source Source
	log    zerolog.Logger

	mu       sync.RWMutex
	assigned map[uuid.UUID]string // participant -> channel name
}

// New creates an empty registry. source may be nil if Reload is never used.
func New(source Source, log zerolog.Logger) *Registry {
	r := &Registry{
		source:   source,
		log:      log.With().Str("component", "channels").Logger(),
		assigned: make(map[uuid.UUID]string),
	}
	r.snap.Store(&snapshot{byName: map[string]*chatdb.Channel{}})
	return r
}

// Load builds a new snapshot from defs and swaps it in. Definitions that fail
// validation or reuse a taken name are skipped with a warning. The swap only
// happens if exactly one default channel survives; otherwise the previous
// snapshot stays active and an error is returned.
func (r *Registry) Load(defs []*chatdb.Channel) error {
	next := &snapshot{byName: make(map[string]*chatdb.Channel, len(defs)*2)}
	var defaults []string

	for _, ch := range defs {
		if ch == nil {
			continue
		}
		ch.Normalize()
		if err := ch.Validate(); err != nil {
			r.log.Warn().Err(&chatdb.ConfigurationError{Source: ch.Name, Err: err}).Msg("Skipping channel")
			continue
		}
		if other, ok := next.byName[ch.Name]; ok {
			r.log.Warn().Str("channel", ch.Name).Str("taken_by", other.Name).Msg("Skipping channel with duplicate name")
			continue
		}
		next.byName[ch.Name] = ch
		next.ordered = append(next.ordered, ch)
		if ch.Default {
			defaults = append(defaults, ch.Name)
			next.def = ch
		}
	}

	// Aliases go in after every primary name so a name always wins.
	for _, ch := range next.ordered {
		for _, a := range ch.Aliases {
			if other, ok := next.byName[a]; ok && other != ch {
				r.log.Warn().Str("channel", ch.Name).Str("alias", a).Str("taken_by", other.Name).Msg("Ignoring conflicting alias")
				continue
			}
			next.byName[a] = ch
		}
	}

	switch len(defaults) {
	case 0:
		return ErrNoDefault
	case 1:
	default:
		return fmt.Errorf("%w: %s", ErrMultipleDefaults, strings.Join(defaults, ", "))
	}

	sort.Slice(next.ordered, func(i, j int) bool { return next.ordered[i].Name < next.ordered[j].Name })
	r.snap.Store(next)
	r.log.Info().Int("channels", len(next.ordered)).Str("default", next.def.Name).Msg("Channel registry loaded")
	return nil
}

// Reload re-reads the source and swaps the snapshot. On failure the
// previous snapshot stays active.
func (r *Registry) Reload() error {
	if r.source == nil {
		return ErrNoSource
	}
	defs, err := r.source()
	if err != nil {
		return fmt.Errorf("reading channel definitions: %w", err)
	}
	if err := r.Load(defs); err != nil {
		r.log.Error().Err(err).Msg("Reload rejected, keeping previous channels")
		return err
	}
	return nil
}

// Resolve looks up a channel by name or alias, case-insensitively.
func (r *Registry) Resolve(nameOrAlias string) (*chatdb.Channel, bool) {
	ch, ok := r.snap.Load().byName[strings.ToUpper(strings.TrimSpace(nameOrAlias))]
	return ch, ok
}

// Default returns the default channel, or nil before the first successful
// load.
func (r *Registry) Default() *chatdb.Channel {
	return r.snap.Load().def
}

// Channels returns the loaded channels sorted by name.
func (r *Registry) Channels() []*chatdb.Channel {
	s := r.snap.Load()
	out := make([]*chatdb.Channel, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// ChannelOf returns the participant's assigned channel, or the default
// channel when unassigned or when the assigned channel no longer exists.
func (r *Registry) ChannelOf(id uuid.UUID) *chatdb.Channel {
	s := r.snap.Load()
	r.mu.RLock()
	name, ok := r.assigned[id]
	r.mu.RUnlock()
	if ok {
		if ch, found := s.byName[name]; found {
			return ch
		}
	}
	return s.def
}

// Assign sets the participant's channel.
func (r *Registry) Assign(id uuid.UUID, ch *chatdb.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned[id] = ch.Name
}

// Unassign forgets the participant's channel.
func (r *Registry) Unassign(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assigned, id)
}

// Assigned returns the number of explicit assignments.
func (r *Registry) Assigned() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assigned)
}
