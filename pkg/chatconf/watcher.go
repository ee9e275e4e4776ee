package chatconf

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor produces when it
// saves a file.
const DefaultDebounce = 500 * time.Millisecond

// Watcher invokes a reload callback whenever a YAML file in the config
// directory or its channels/ subdirectory changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	reload   func()
	log      zerolog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher starts watching dir. The caller must run Run and eventually
// cancel its context.
func NewWatcher(dir string, debounce time.Duration, reload func(), log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		reload:   reload,
		log:      log.With().Str("component", "config-watcher").Logger(),
		fsw:      fsw,
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	// channels/ is optional.
	if err := fsw.Add(filepath.Join(dir, ChannelsDir)); err != nil {
		w.log.Warn().Err(err).Msg("Not watching channel directory")
	}
	w.log.Info().Str("dir", dir).Msg("Watching configuration for changes")
	return w, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Configuration changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.log.Info().Msg("Reloading configuration")
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yml" || ext == ".yaml"
}
