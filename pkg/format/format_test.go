package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/emotes"
	"github.com/crystal-mush/chanrelay/pkg/markup"
)

type permSet map[string]bool

func (p permSet) Has(_ uuid.UUID, node string) bool { return p[node] }

type groupFunc func(uuid.UUID) (string, bool)

func (g groupFunc) PrimaryGroup(id uuid.UUID) (string, bool) { return g(id) }

type upper struct{}

func (upper) Apply(_ chatdb.Participant, text string) string {
	return strings.ReplaceAll(text, "%rank%", "VIP")
}

func testChannel() *chatdb.Channel {
	return &chatdb.Channel{
		Name:        "GLOBAL",
		DisplayName: "Global",
		Formats: []*chatdb.Format{
			{ID: "admin", All: true, Segments: []chatdb.Segment{
				{ID: "prefix", Template: "<red>[A] "},
				{ID: "message", Template: "<message>"},
			}},
			{ID: "vip", Color: true, Segments: []chatdb.Segment{
				{ID: "prefix", Template: "<gold>[V] "},
				{ID: "message", Template: "<message>"},
			}},
			{ID: "default", Segments: []chatdb.Segment{
				{ID: "name", Template: "<gray><player>: "},
				{ID: "message", Template: "<white><message>"},
			}},
		},
	}
}

func TestSelectOrder(t *testing.T) {
	ch := testChannel()
	p := chatdb.Participant{ID: uuid.New(), Name: "alice"}

	tests := []struct {
		name   string
		perms  permSet
		groups GroupLookup
		want   string
	}{
		{"no perms falls back", permSet{}, nil, "default"},
		{"declaration order wins", permSet{"format.vip": true, "format.admin": true}, nil, "admin"},
		{"single perm", permSet{"format.vip": true}, nil, "vip"},
		{"group short-circuits", permSet{"format.admin": true}, groupFunc(func(uuid.UUID) (string, bool) { return "VIP", true }), "vip"},
		{"unknown group scans perms", permSet{"format.admin": true}, groupFunc(func(uuid.UUID) (string, bool) { return "builder", true }), "admin"},
		{"no group scans perms", permSet{}, groupFunc(func(uuid.UUID) (string, bool) { return "", false }), "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewSelector(tt.perms, tt.groups).Select(ch, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.ID)
		})
	}
}

func TestSelectMissingDefault(t *testing.T) {
	ch := &chatdb.Channel{Name: "BROKEN", Formats: []*chatdb.Format{{ID: "staff"}}}
	_, err := NewSelector(permSet{}, nil).Select(ch, chatdb.Participant{})
	var cfgErr *chatdb.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "BROKEN", cfgErr.Source)
}

func newRenderer(perms chatdb.PermissionOracle, set *emotes.Set) *Renderer {
	return &Renderer{Markup: markup.New(), Emotes: set, Perms: perms, Server: "lobby"}
}

func TestRenderSegmentsInOrder(t *testing.T) {
	ch := testChannel()
	p := chatdb.Participant{ID: uuid.New(), Name: "alice", DisplayName: "Alice"}
	r := newRenderer(permSet{}, nil)

	got := r.Render(ch, ch.Format("default"), p, "hello <red>world")
	assert.Equal(t, `<gray>alice: <white>hello \<red>world`, got.Markup)
	assert.Equal(t, "alice: hello <red>world", markup.New().Plain(got))
}

func TestRenderAllowsFormatTags(t *testing.T) {
	ch := testChannel()
	p := chatdb.Participant{ID: uuid.New(), Name: "bob"}
	r := newRenderer(permSet{}, nil)

	got := r.Render(ch, ch.Format("vip"), p, "<red>hi <bold>there")
	assert.Equal(t, `<gold>[V] <red>hi \<bold>there`, got.Markup)

	got = r.Render(ch, ch.Format("admin"), p, "<red>hi <bold>there")
	assert.Equal(t, `<red>[A] <red>hi <bold>there`, got.Markup)
}

func TestRenderLegacyCodes(t *testing.T) {
	ch := testChannel()
	p := chatdb.Participant{ID: uuid.New(), Name: "bob"}
	r := newRenderer(permSet{}, nil)

	got := r.Render(ch, ch.Format("default"), p, "&chi")
	assert.Equal(t, "<gray>bob: <white>&chi", got.Markup, "no tags allowed, codes stay literal")

	got = r.Render(ch, ch.Format("admin"), p, "&chi")
	assert.Equal(t, "<red>[A] <reset><red>hi", got.Markup)
}

func TestRenderPlaceholders(t *testing.T) {
	ch := testChannel()
	f := &chatdb.Format{ID: "default", Segments: []chatdb.Segment{
		{ID: "a", Template: "[<server>|<channel>|%rank%] <displayname> (<player>) "},
		{ID: "b", Template: "<message> / <message_raw>"},
	}}
	p := chatdb.Participant{ID: uuid.New(), Name: "carol", DisplayName: "<b>Carol"}
	r := newRenderer(permSet{}, nil)
	r.Placeholders = upper{}

	got := r.Render(ch, f, p, "<i>x")
	assert.Equal(t, `[lobby|Global|VIP] \<b>Carol (carol) \<i>x / \<i>x`, got.Markup)
}

func TestRenderEmotesByPermission(t *testing.T) {
	ch := testChannel()
	set := emotes.NewSet(true, []emotes.Emote{
		{Identifier: ":wave:", Replacement: "<yellow>o/</yellow>"},
		{Identifier: "<3", Replacement: "<red>❤</red>", Permission: "emotes.heart"},
	})
	p := chatdb.Participant{ID: uuid.New(), Name: "dave"}

	plain := newRenderer(permSet{}, set).Render(ch, ch.Format("default"), p, ":wave: <3")
	assert.Equal(t, "<gray>dave: <white><yellow>o/</yellow> <3", plain.Markup)

	vip := newRenderer(permSet{"emotes.heart": true}, set).Render(ch, ch.Format("default"), p, ":wave: <3")
	assert.Equal(t, "<gray>dave: <white><yellow>o/</yellow> <red>❤</red>", vip.Markup)
}

func TestAnnounce(t *testing.T) {
	set := emotes.NewSet(true, []emotes.Emote{{Identifier: ":wave:", Replacement: "<yellow>o/</yellow>"}})
	r := newRenderer(permSet{}, set)
	r.Placeholders = upper{}
	p := chatdb.Participant{ID: uuid.New(), Name: "erin", DisplayName: "<b>Erin"}

	got := r.Announce(p, "&a+ %rank% <displayname> (<player>) :wave: <channel>")
	assert.Equal(t, `<reset><green>+ VIP \<b>Erin (erin) <yellow>o/</yellow> <channel>`, got.Markup)
}
