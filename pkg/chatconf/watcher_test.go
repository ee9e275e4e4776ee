package chatconf

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesReload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ChannelsDir), 0o755))

	var reloads atomic.Int32
	w, err := NewWatcher(dir, 50*time.Millisecond, func() { reloads.Add(1) }, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	path := filepath.Join(dir, ChannelsDir, "global.yml")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(globalYAML), 0o644))
	}

	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load(), "burst should collapse into one reload")
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "/c/config.yml", Op: fsnotify.Write}))
	assert.True(t, relevant(fsnotify.Event{Name: "/c/channels/a.YAML", Op: fsnotify.Remove}))
	assert.False(t, relevant(fsnotify.Event{Name: "/c/config.yml", Op: fsnotify.Chmod}))
	assert.False(t, relevant(fsnotify.Event{Name: "/c/config.yml.swp", Op: fsnotify.Write}))
}
