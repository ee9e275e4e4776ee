package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/admin"
	"github.com/crystal-mush/chanrelay/pkg/audience"
	"github.com/crystal-mush/chanrelay/pkg/boltstore"
	"github.com/crystal-mush/chanrelay/pkg/channels"
	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatlog"
	"github.com/crystal-mush/chanrelay/pkg/direct"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/mainloop"
	"github.com/crystal-mush/chanrelay/pkg/markup"
	"github.com/crystal-mush/chanrelay/pkg/metrics"
	"github.com/crystal-mush/chanrelay/pkg/relay"
	"github.com/crystal-mush/chanrelay/pkg/router"
	"github.com/crystal-mush/chanrelay/pkg/session"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real environment variables win.
	envErr := godotenv.Load()

	confDir := flag.String("conf", envDefault("CHANRELAY_CONF", "config"), "Configuration directory (env: CHANRELAY_CONF)")
	serverName := flag.String("server", envDefault("CHANRELAY_SERVER", ""), "Server name, overrides config (env: CHANRELAY_SERVER)")
	listen := flag.String("listen", envDefault("CHANRELAY_LISTEN", ":8080"), "Participant websocket address (env: CHANRELAY_LISTEN)")
	adminAddr := flag.String("admin", envDefault("CHANRELAY_ADMIN", ""), "Admin HTTP address, overrides config (env: CHANRELAY_ADMIN)")
	relayURL := flag.String("relay-url", envDefault("CHANRELAY_RELAY_URL", ""), "Relay hub URL, overrides config (env: CHANRELAY_RELAY_URL)")
	relayListen := flag.String("relay-listen", envDefault("CHANRELAY_RELAY_LISTEN", ""), "Run the relay hub on this address (env: CHANRELAY_RELAY_LISTEN)")
	logLevel := flag.String("log-level", envDefault("CHANRELAY_LOG_LEVEL", ""), "Log level, overrides config (env: CHANRELAY_LOG_LEVEL)")
	pretty := flag.Bool("pretty", os.Getenv("CHANRELAY_LOG_PRETTY") == "true", "Human-readable console logs (env: CHANRELAY_LOG_PRETTY)")
	hashPass := flag.String("hash-password", "", "Print the bcrypt hash of an admin password and exit")
	flag.Parse()

	if *hashPass != "" {
		hash, err := admin.HashPassword(*hashPass)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash-password:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := chatconf.Load(*confDir, boot)
	if err != nil {
		boot.Fatal().Err(err).Str("dir", *confDir).Msg("Error loading configuration")
	}
	s := cfg.Settings

	// Command-line flags and environment override config file values.
	if *serverName != "" {
		s.Server = *serverName
	}
	if *adminAddr != "" {
		s.Admin.Listen = *adminAddr
	}
	if *relayURL != "" {
		s.Relay.URL = *relayURL
		s.Relay.Enabled = true
	}
	if *relayListen != "" {
		s.Relay.Listen = *relayListen
	}
	if v := os.Getenv("CHANRELAY_RELAY_SECRET"); v != "" {
		s.Relay.Secret = v
	}
	if *logLevel != "" {
		s.Log.Level = *logLevel
	}
	if *pretty {
		s.Log.Pretty = true
	}

	log := newLogger(s.Log.Level, s.Log.Pretty)
	log.Info().Str("version", admin.VersionString()).Str("server", s.Server).Msg("Starting")
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg("Ignoring unreadable .env")
	}

	if err := run(*confDir, cfg, *listen, log); err != nil {
		log.Fatal().Err(err).Msg("Exiting")
	}
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

func run(dir string, cfg *chatconf.Config, listen string, log zerolog.Logger) error {
	s := cfg.Settings
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fm := markup.New()
	bus := events.NewBus()
	bus.Subscribe(events.Console, events.NewConsoleWriter(log, fm.Plain))
	loop := mainloop.New(0, log)
	go loop.Run(ctx)
	m := metrics.New(time.Now())

	sessions := session.NewManager(session.Config{Bus: bus, Plain: fm.Plain, Scheduler: loop, Log: log})
	perms, err := session.LoadPermissions(filepath.Join(cfg.Dir, session.PermissionsFile))
	if err != nil {
		return err
	}
	sessions.SetPermissions(perms)

	registry := channels.New(nil, log)
	if err := registry.Load(cfg.Channels); err != nil {
		return fmt.Errorf("loading channels: %w", err)
	}
	m.ChannelsLoaded(len(registry.Channels()))

	// Spy preferences.
	var spyStore direct.SpyStore
	if s.Bolt.Path != "" {
		store, err := boltstore.Open(s.Bolt.Path)
		if err != nil {
			return fmt.Errorf("opening spy store: %w", err)
		}
		defer store.Close()
		spyStore = store
		log.Info().Str("path", store.Path()).Msg("Spy preferences persisted")
	}
	spies, err := direct.NewSpySet(spyStore, log)
	if err != nil {
		return err
	}

	// Chat log.
	var chatLog router.LogSink
	if s.SQL.Enabled {
		store, err := chatlog.Open(s.SQL.Path, s.SQL.Timeout, s.SQL.Buffer, log)
		if err != nil {
			return fmt.Errorf("opening chat log: %w", err)
		}
		defer store.Close()
		chatLog = store
	}

	a := &app{dir: dir, markup: fm, sessions: sessions, registry: registry, metrics: m, log: log}
	pl := a.pipeline(cfg)
	sessions.SetGreeting(greeting(cfg, pl.Renderer))

	a.direct = direct.New(direct.Config{
		Roster:    sessions,
		Perms:     sessions,
		Bus:       bus,
		Renderer:  pl.Renderer,
		Messages:  cfg.Messages,
		Templates: direct.TemplatesFrom(s),
		Scheduler: loop,
		Spies:     spies,
		Metrics:   m,
		Log:       log,
	})

	// Cross-process relay. The client needs the router for inbound frames
	// and the router needs the client as its transport.
	var (
		transport router.Transport
		client    *relay.Client
		hub       *relay.Hub
	)
	auth := relay.NewAuth(s.Relay.Secret, time.Hour)
	if s.Relay.Listen != "" {
		hub = relay.NewHub(auth, log)
	}
	if s.Relay.Enabled && s.Relay.URL != "" {
		client = relay.NewClient(s.Relay.URL, s.Server, auth, func(payload []byte) {
			if err := a.router.Receive(payload); err != nil {
				log.Debug().Err(err).Msg("Inbound frame dropped")
			}
		}, log)
		transport = client
	}

	a.router = router.New(router.Config{
		Registry:  registry,
		Audience:  audience.New(sessions, sessions),
		Perms:     sessions,
		Bus:       bus,
		Scheduler: loop,
		Transport: transport,
		ChatLog:   chatLog,
		Direct:    a.direct,
		Metrics:   m,
		Pipeline:  pl,
		Server:    s.Server,
		Log:       log,
	})
	sessions.Bind(a.router, a.direct)

	if client != nil {
		go client.Run(ctx)
	}

	watcher, err := chatconf.NewWatcher(dir, chatconf.DefaultDebounce, func() {
		if err := a.reload(); err != nil {
			log.Warn().Err(err).Msg("Reload failed, keeping previous configuration")
		}
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("Configuration hot reload disabled")
	} else {
		go watcher.Run(ctx)
	}

	// Closed subscribers are pruned periodically.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bus.Cleanup()
			}
		}
	}()

	var servers []*http.Server
	serve := func(name, addr string, h http.Handler) {
		srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, srv)
		go func() {
			log.Info().Str("addr", addr).Msg(name + " listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", addr).Msg(name + " stopped")
				stop()
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /chat", sessions)
	serve("Participant server", listen, mux)

	if hub != nil {
		relayMux := http.NewServeMux()
		relayMux.Handle("GET /relay", hub)
		serve("Relay hub", s.Relay.Listen, relayMux)
	}

	if s.Admin.Listen != "" {
		adm := admin.New(admin.Config{
			Channels: registry,
			Tester:   a.router,
			Roster:   sessions,
			Bus:      bus,
			Plain:    fm.Plain,
			Barrier: func(ctx context.Context) error {
				return loop.Call(ctx, func() {})
			},
			Reload:  a.reload,
			Metrics: m.Handler(),
			Status: func() map[string]any {
				st := map[string]any{
					"server":       s.Server,
					"participants": sessions.Count(),
					"assigned":     registry.Assigned(),
					"pending":      loop.Pending(),
				}
				if client != nil {
					st["relay_connected"] = client.Connected()
				}
				if hub != nil {
					st["relay_peers"] = hub.Peers()
				}
				return st
			},
			Password:     os.Getenv("CHANRELAY_ADMIN_PASS"),
			PasswordHash: s.Admin.PasswordHash,
			Log:          log,
		})
		serve("Admin", s.Admin.Listen, adm.Handler())
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("Server shutdown")
		}
	}
	if hub != nil {
		hub.Close()
	}
	select {
	case <-loop.Done():
	case <-shutdownCtx.Done():
		log.Warn().Int("pending", loop.Pending()).Msg("Main loop did not drain")
	}
	return nil
}
