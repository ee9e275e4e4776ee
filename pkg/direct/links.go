package direct

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReplyLinks remembers who each participant last exchanged a private
// message with.
type ReplyLinks struct {
	mu sync.Mutex
	to map[uuid.UUID]uuid.UUID
}

// NewReplyLinks creates an empty link table.
func NewReplyLinks() *ReplyLinks {
	return &ReplyLinks{to: make(map[uuid.UUID]uuid.UUID)}
}

// Link points a and b at each other, replacing earlier targets.
func (l *ReplyLinks) Link(a, b uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.to[a] = b
	l.to[b] = a
}

// Target returns the participant id should reply to.
func (l *ReplyLinks) Target(id uuid.UUID) (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.to[id]
	return t, ok
}

// Prune removes id's own link and every link pointing at id.
func (l *ReplyLinks) Prune(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.to, id)
	for from, to := range l.to {
		if to == id {
			delete(l.to, from)
		}
	}
}

// Len returns the number of directed links.
func (l *ReplyLinks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.to)
}

// SpyStore persists spy preferences. boltstore.Store implements it.
type SpyStore interface {
	PutSpy(id uuid.UUID, name string) error
	DeleteSpy(id uuid.UUID) error
	Spies() ([]uuid.UUID, error)
}

// SpySet is the set of participants reading everyone's private messages.
// Membership outlives the connection; with a store it also outlives the
// process.
type SpySet struct {
	mu    sync.RWMutex
	ids   map[uuid.UUID]bool
	store SpyStore // nil keeps the set in memory only
	log   zerolog.Logger
}

// NewSpySet creates a set, preloaded from store when one is given.
func NewSpySet(store SpyStore, log zerolog.Logger) (*SpySet, error) {
	s := &SpySet{
		ids:   make(map[uuid.UUID]bool),
		store: store,
		log:   log.With().Str("component", "socialspy").Logger(),
	}
	if store == nil {
		return s, nil
	}
	ids, err := store.Spies()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s, nil
}

// Toggle flips id's membership and returns the new state. A store failure
// is logged; the in-memory state still changes.
func (s *SpySet) Toggle(id uuid.UUID, name string) bool {
	s.mu.Lock()
	on := !s.ids[id]
	if on {
		s.ids[id] = true
	} else {
		delete(s.ids, id)
	}
	s.mu.Unlock()

	if s.store != nil {
		var err error
		if on {
			err = s.store.PutSpy(id, name)
		} else {
			err = s.store.DeleteSpy(id)
		}
		if err != nil {
			s.log.Error().Err(err).Str("participant", name).Bool("spying", on).Msg("Failed to persist social spy preference")
		}
	}
	return on
}

// Contains reports whether id is spying.
func (s *SpySet) Contains(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[id]
}

// Len returns the number of spies, online or not.
func (s *SpySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
