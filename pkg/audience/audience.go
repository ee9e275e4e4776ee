// Package audience works out which connected participants see a channel
// message.
package audience

import (
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Resolver computes viewer sets. It reads live positions and permissions,
// so it must run on the main loop.
type Resolver struct {
	roster chatdb.Roster
	perms  chatdb.PermissionOracle
}

// New creates a resolver.
func New(roster chatdb.Roster, perms chatdb.PermissionOracle) *Resolver {
	return &Resolver{roster: roster, perms: perms}
}

// Viewers returns every online participant allowed to read ch. For ranged
// channels with a sender, only participants in the sender's world within
// the range are kept. A nil sender (an inbound remote message) skips the
// range check.
func (r *Resolver) Viewers(ch *chatdb.Channel, sender *chatdb.Participant) []chatdb.Participant {
	online := r.roster.Online()
	out := make([]chatdb.Participant, 0, len(online))
	for _, p := range online {
		if !r.Permitted(ch, p) {
			continue
		}
		if ch.Ranged() && sender != nil && !inRange(*sender, p, ch.Range) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Permitted reports whether p may read ch.
func (r *Resolver) Permitted(ch *chatdb.Channel, p chatdb.Participant) bool {
	if ch.Permission == "" {
		return true
	}
	return r.perms != nil && r.perms.Has(p.ID, ch.Permission)
}

// WithPermission returns every online participant holding node.
func (r *Resolver) WithPermission(node string) []chatdb.Participant {
	var out []chatdb.Participant
	for _, p := range r.roster.Online() {
		if r.perms != nil && r.perms.Has(p.ID, node) {
			out = append(out, p)
		}
	}
	return out
}

func inRange(sender, p chatdb.Participant, rng int) bool {
	if sender.World != p.World {
		return false
	}
	return sender.Pos.Distance(p.Pos) <= float64(rng)
}
