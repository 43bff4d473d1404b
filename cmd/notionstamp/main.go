// Package main provides the notionstamp daemon entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notionstamp/internal/config"
	"github.com/thebtf/notionstamp/internal/server"
	"github.com/thebtf/notionstamp/internal/server/sse"
	"github.com/thebtf/notionstamp/internal/session"
	"github.com/thebtf/notionstamp/internal/watcher"
	"github.com/thebtf/notionstamp/pkg/models"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	settings := flag.String("config", "", "Settings file (default: ~/.notionstamp/settings.yml)")
	listen := flag.String("listen", "", "Control surface address (overrides settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	settingsPath := *settings
	if settingsPath == "" {
		if err := config.EnsureAll(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure data directory")
		}
		settingsPath = config.SettingsPath()
	}

	cfg, err := config.LoadFile(settingsPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	setLogLevel(cfg.LogLevel, *debug)
	config.Set(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down notionstamp")
		cancel()
	}()

	events := sse.NewBroadcaster()
	manager := session.NewManager(session.WithObserver(func(snap models.Snapshot) {
		events.Broadcast("snapshot", snap)
	}))

	if err := manager.OnInit(cfg); err != nil {
		log.Warn().Err(err).Str("path", settingsPath).Msg("Relay not configured, commands will be rejected until settings are fixed")
	}

	stopWatcher := watchSettings(settingsPath, manager, *debug, *listen)
	defer stopWatcher()

	srv := server.New(manager, events, Version)
	log.Info().Str("version", Version).Str("listen", cfg.Listen).Msg("Starting notionstamp")
	if err := srv.Run(ctx, cfg.Listen); err != nil {
		log.Error().Err(err).Msg("Control surface error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := manager.OnShutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Final session message failed")
	}
}

// watchSettings reloads the settings file on change and forwards it to the manager.
func watchSettings(path string, lifecycle session.Lifecycle, debug bool, listen string) func() {
	w, err := watcher.New(path, func() {
		cfg, err := config.LoadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to reload settings")
			return
		}
		if listen != "" {
			cfg.Listen = listen
		}
		if cfg.Listen != config.Get().Listen {
			log.Warn().Str("listen", cfg.Listen).Msg("Listen address changes apply after restart")
		}
		setLogLevel(cfg.LogLevel, debug)
		config.Set(cfg)
		if err := lifecycle.OnConfigChanged(cfg); err != nil {
			log.Warn().Err(err).Msg("Reloaded settings are invalid")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return func() {}
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		_ = w.Stop()
		return func() {}
	}
	log.Info().Str("path", path).Msg("Settings file watcher started")
	return func() { _ = w.Stop() }
}

func setLogLevel(level string, debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
