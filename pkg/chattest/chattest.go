// Package chattest provides in-memory rosters and permission tables for
// tests.
package chattest

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Roster is an in-memory chatdb.Roster that keeps join order.
type Roster struct {
	mu      sync.RWMutex
	order   []uuid.UUID
	players map[uuid.UUID]chatdb.Participant
}

// NewRoster creates a roster holding ps.
func NewRoster(ps ...chatdb.Participant) *Roster {
	r := &Roster{players: make(map[uuid.UUID]chatdb.Participant)}
	for _, p := range ps {
		r.Join(p)
	}
	return r
}

// Join adds or updates a participant.
func (r *Roster) Join(p chatdb.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.players[p.ID] = p
}

// Leave removes a participant.
func (r *Roster) Leave(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Roster) Online() []chatdb.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chatdb.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

func (r *Roster) Lookup(id uuid.UUID) (chatdb.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

func (r *Roster) LookupName(name string) (chatdb.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if strings.EqualFold(r.players[id].Name, name) {
			return r.players[id], true
		}
	}
	return chatdb.Participant{}, false
}

// Perms is an in-memory chatdb.PermissionOracle.
type Perms struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]map[string]bool
}

// NewPerms creates an empty permission table.
func NewPerms() *Perms {
	return &Perms{nodes: make(map[uuid.UUID]map[string]bool)}
}

// Grant gives id every node.
func (p *Perms) Grant(id uuid.UUID, nodes ...string) *Perms {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nodes[id] == nil {
		p.nodes[id] = make(map[string]bool)
	}
	for _, n := range nodes {
		p.nodes[id][n] = true
	}
	return p
}

func (p *Perms) Has(id uuid.UUID, node string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodes[id][node]
}

// Player returns a participant with a fresh ID at the origin of "world".
func Player(name string) chatdb.Participant {
	return chatdb.Participant{ID: uuid.New(), Name: name, World: "world"}
}

// At returns a copy of p moved to (x, y, z).
func At(p chatdb.Participant, x, y, z float64) chatdb.Participant {
	p.Pos = chatdb.Vec3{X: x, Y: y, Z: z}
	return p
}
