package channels

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

func channel(name string, def bool, aliases ...string) *chatdb.Channel {
	return &chatdb.Channel{
		Name:    name,
		Aliases: aliases,
		Default: def,
		Range:   -1,
		Formats: []*chatdb.Format{{
			ID:       chatdb.DefaultFormatID,
			Segments: []chatdb.Segment{{ID: "message", Template: chatdb.MessagePlaceholder}},
		}},
	}
}

func loaded(t *testing.T, defs ...*chatdb.Channel) *Registry {
	t.Helper()
	r := New(nil, zerolog.Nop())
	require.NoError(t, r.Load(defs))
	return r
}

func TestResolveAliasAndName(t *testing.T) {
	r := loaded(t,
		channel("global", true, "g", "All"),
		channel("staff", false, "s"),
	)

	for _, ch := range r.Channels() {
		byName, ok := r.Resolve(ch.Name)
		require.True(t, ok)
		for _, a := range ch.Aliases {
			byAlias, ok := r.Resolve(a)
			require.True(t, ok, a)
			assert.Same(t, byName, byAlias)
		}
	}

	ch, ok := r.Resolve("  all ")
	require.True(t, ok)
	assert.Equal(t, "GLOBAL", ch.Name)

	_, ok = r.Resolve("nope")
	assert.False(t, ok)
}

func TestChannelOfDefaultsWhenUnassigned(t *testing.T) {
	r := loaded(t, channel("global", true), channel("staff", false))
	id := uuid.New()

	assert.Equal(t, "GLOBAL", r.ChannelOf(id).Name)

	staff, _ := r.Resolve("staff")
	r.Assign(id, staff)
	r.Assign(id, staff)
	assert.Equal(t, "STAFF", r.ChannelOf(id).Name)
	assert.Equal(t, 1, r.Assigned())

	r.Unassign(id)
	assert.Equal(t, "GLOBAL", r.ChannelOf(id).Name)
	assert.Equal(t, 0, r.Assigned())
}

func TestChannelOfFallsBackWhenChannelRemoved(t *testing.T) {
	r := loaded(t, channel("global", true), channel("staff", false))
	id := uuid.New()
	staff, _ := r.Resolve("staff")
	r.Assign(id, staff)

	require.NoError(t, r.Load([]*chatdb.Channel{channel("global", true)}))
	assert.Equal(t, "GLOBAL", r.ChannelOf(id).Name)
}

func TestLoadRequiresExactlyOneDefault(t *testing.T) {
	r := loaded(t, channel("global", true))

	err := r.Load([]*chatdb.Channel{channel("a", false), channel("b", false)})
	assert.ErrorIs(t, err, ErrNoDefault)

	err = r.Load([]*chatdb.Channel{channel("a", true), channel("b", true)})
	assert.ErrorIs(t, err, ErrMultipleDefaults)

	// Previous snapshot still active.
	assert.Equal(t, "GLOBAL", r.Default().Name)
	_, ok := r.Resolve("a")
	assert.False(t, ok)
}

func TestLoadSkipsInvalidAndDuplicate(t *testing.T) {
	bad := channel("broken", false)
	bad.Formats[0].ID = "staff"
	dup := channel("GLOBAL", false, "x")

	r := loaded(t, channel("global", true), bad, dup)
	assert.Len(t, r.Channels(), 1)
	_, ok := r.Resolve("broken")
	assert.False(t, ok)
	_, ok = r.Resolve("x")
	assert.False(t, ok)
}

func TestAliasCannotShadowName(t *testing.T) {
	r := loaded(t, channel("global", true, "staff"), channel("staff", false))
	ch, ok := r.Resolve("staff")
	require.True(t, ok)
	assert.Equal(t, "STAFF", ch.Name)
}

func TestChannelsSorted(t *testing.T) {
	r := loaded(t, channel("zeta", false), channel("alpha", true), channel("mid", false))
	var names []string
	for _, ch := range r.Channels() {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"ALPHA", "MID", "ZETA"}, names)
}

func TestReloadKeepsSnapshotOnFailure(t *testing.T) {
	fail := false
	src := func() ([]*chatdb.Channel, error) {
		if fail {
			return nil, errors.New("disk on fire")
		}
		return []*chatdb.Channel{channel("global", true), channel("trade", false, "t")}, nil
	}
	r := New(src, zerolog.Nop())
	require.NoError(t, r.Reload())
	before := r.Channels()

	fail = true
	assert.Error(t, r.Reload())
	assert.Equal(t, before, r.Channels())

	_, ok := r.Resolve("t")
	assert.True(t, ok)
}

func TestReloadWithoutSource(t *testing.T) {
	assert.ErrorIs(t, New(nil, zerolog.Nop()).Reload(), ErrNoSource)
}

func TestEmptyRegistry(t *testing.T) {
	r := New(nil, zerolog.Nop())
	assert.Nil(t, r.Default())
	assert.Nil(t, r.ChannelOf(uuid.New()))
	assert.Empty(t, r.Channels())
}
