package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/channels"
	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/direct"
	"github.com/crystal-mush/chanrelay/pkg/filter"
	"github.com/crystal-mush/chanrelay/pkg/format"
	"github.com/crystal-mush/chanrelay/pkg/markup"
	"github.com/crystal-mush/chanrelay/pkg/metrics"
	"github.com/crystal-mush/chanrelay/pkg/router"
	"github.com/crystal-mush/chanrelay/pkg/session"
)

// app holds the components a reload rebuilds or reconfigures.
type app struct {
	dir      string
	markup   *markup.Formatter
	sessions *session.Manager
	registry *channels.Registry
	router   *router.Router
	direct   *direct.Router
	metrics  *metrics.Metrics
	repeat   *filter.RepeatFilter // outlives reloads
	log      zerolog.Logger

	mu sync.Mutex // one reload at a time
}

// pipeline builds the reloadable router state from one configuration load.
func (a *app) pipeline(cfg *chatconf.Config) router.Pipeline {
	var groups format.GroupLookup
	if cfg.Settings.Hooks.GroupLookup {
		groups = a.sessions
	}
	return router.Pipeline{
		Filters:        filter.FromRules(cfg.Filter, cfg.Messages, a.sessions, a.repeatFilter(), a.log),
		Selector:       format.NewSelector(a.sessions, groups),
		Renderer:       a.renderer(cfg),
		Messages:       cfg.Messages,
		FilteredPrefix: cfg.Filter.FilteredPrefix,
		ExternalSink:   cfg.Settings.Hooks.ExternalSink,
	}
}

func (a *app) repeatFilter() *filter.RepeatFilter {
	if a.repeat == nil {
		a.repeat = filter.NewRepeatFilter(filter.RepeatConfig{}, a.sessions)
	}
	return a.repeat
}

// greeting builds the join and quit configuration for the session host.
func greeting(cfg *chatconf.Config, renderer *format.Renderer) session.Greeting {
	return session.Greeting{
		Renderer: renderer,
		Join:     cfg.Settings.JoinMessage,
		Quit:     cfg.Settings.QuitMessage,
	}
}

func (a *app) renderer(cfg *chatconf.Config) *format.Renderer {
	return &format.Renderer{
		Markup: a.markup,
		Emotes: cfg.Emotes.Set(),
		Perms:  a.sessions,
		Server: cfg.Settings.Server,
	}
}

// reload re-reads the whole configuration directory and swaps it in. The
// channel registry goes first; if it rejects the new definitions nothing
// else changes. Startup-only settings (listen addresses, relay, storage
// paths) are not reapplied.
func (a *app) reload() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, err := chatconf.Load(a.dir, a.log)
	if err != nil {
		return err
	}
	perms, err := session.LoadPermissions(filepath.Join(a.dir, session.PermissionsFile))
	if err != nil {
		return err
	}
	if err := a.registry.Load(cfg.Channels); err != nil {
		return fmt.Errorf("loading channels: %w", err)
	}
	a.sessions.SetPermissions(perms)
	pl := a.pipeline(cfg)
	a.sessions.SetGreeting(greeting(cfg, pl.Renderer))
	a.router.Configure(pl)
	a.direct.Configure(direct.TemplatesFrom(cfg.Settings), cfg.Messages, pl.Renderer)
	a.metrics.ChannelsLoaded(len(a.registry.Channels()))

	a.log.Info().Int("channels", len(a.registry.Channels())).Msg("Configuration applied")
	return nil
}
