package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/chattest"
)

func names(ps []chatdb.Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestViewersPermission(t *testing.T) {
	alice, bob, carol := chattest.Player("alice"), chattest.Player("bob"), chattest.Player("carol")
	perms := chattest.NewPerms().Grant(bob.ID, "chat.staff")
	r := New(chattest.NewRoster(alice, bob, carol), perms)

	open := &chatdb.Channel{Name: "GLOBAL"}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names(r.Viewers(open, &alice)))

	staff := &chatdb.Channel{Name: "STAFF", Permission: "chat.staff"}
	assert.Equal(t, []string{"bob"}, names(r.Viewers(staff, &alice)))
	assert.Equal(t, []string{"bob"}, names(r.Viewers(staff, nil)))
}

func TestViewersRange(t *testing.T) {
	sender := chattest.At(chattest.Player("sender"), 0, 0, 0)
	near := chattest.At(chattest.Player("near"), 30, 0, 40)   // distance 50
	far := chattest.At(chattest.Player("far"), 0, 51, 0)      // distance 51
	diag := chattest.At(chattest.Player("diag"), 20, 20, 20)  // ~34.6
	other := chattest.At(chattest.Player("other"), 1, 0, 0)
	other.World = "nether"

	r := New(chattest.NewRoster(sender, near, far, diag, other), chattest.NewPerms())
	local := &chatdb.Channel{Name: "LOCAL", Range: 50}

	assert.Equal(t, []string{"sender", "near", "diag"}, names(r.Viewers(local, &sender)))

	// Remote messages have no position to measure from.
	assert.Equal(t, []string{"sender", "near", "far", "diag", "other"}, names(r.Viewers(local, nil)))

	global := &chatdb.Channel{Name: "GLOBAL", Range: 0}
	assert.Len(t, r.Viewers(global, &sender), 5)
}

func TestViewersRangeAndPermission(t *testing.T) {
	sender := chattest.Player("sender")
	staffNear := chattest.At(chattest.Player("staffNear"), 5, 0, 0)
	staffFar := chattest.At(chattest.Player("staffFar"), 500, 0, 0)
	userNear := chattest.At(chattest.Player("userNear"), 5, 0, 0)
	perms := chattest.NewPerms().
		Grant(sender.ID, "chat.staff").
		Grant(staffNear.ID, "chat.staff").
		Grant(staffFar.ID, "chat.staff")

	r := New(chattest.NewRoster(sender, staffNear, staffFar, userNear), perms)
	ch := &chatdb.Channel{Name: "STAFFLOCAL", Permission: "chat.staff", Range: 10}
	assert.Equal(t, []string{"sender", "staffNear"}, names(r.Viewers(ch, &sender)))
}

func TestWithPermission(t *testing.T) {
	a, b := chattest.Player("a"), chattest.Player("b")
	perms := chattest.NewPerms().Grant(b.ID, chatdb.PermFilterView)
	r := New(chattest.NewRoster(a, b), perms)
	assert.Equal(t, []string{"b"}, names(r.WithPermission(chatdb.PermFilterView)))
}
