package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/gogins/csound-ac/internal/api"
	"github.com/gogins/csound-ac/internal/auth"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/lock"
	"github.com/gogins/csound-ac/internal/log"
	"github.com/gogins/csound-ac/internal/tui/watch"
)

const (
	defaultAPIURL = "http://127.0.0.1:8765"
	envAPIKey     = "PLAYPEN_API_KEY"
	stopGrace     = 5 * time.Second
)

func runSystemServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Listen address (overrides api.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	logger := log.WithComponent("main")
	logger.Info("playpen starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another bridge may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(256)
	registry := launch.NewRegistry()
	sess, err := newSession(ctx, cfg, sessionOptions{registry: registry, publisher: hub})
	if err != nil {
		logger.Error("failed to set up dispatcher", "error", err)
		return 1
	}
	defer sess.Close()
	if sess.journal == nil {
		logger.Warn("serving without launch history", "path", cfg.State.Path)
	}

	if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
		logger.Warn("no api key or tokens configured; every authenticated route will answer 401")
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	apiConfig := api.Config{
		Listen:    cfg.API.Listen,
		APIKey:    cfg.API.Auth.APIKey,
		Tokens:    tokens,
		StopGrace: stopGrace,
	}
	var history api.History
	if sess.journal != nil {
		history = sess.journal
	}
	server := api.New(apiConfig, sess.dispatcher, registry, history, hub, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopLaunches(registry, sess.journal)
		return nil
	})

	logger.Info("playpen running (press Ctrl+C to stop)", "listen", cfg.API.Listen, "actions", sess.dispatcher.Catalog().Len())

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("playpen stopped")
	return 0
}

// stopLaunches terminates every launch still attached to the bridge and
// records it as stopped.
func stopLaunches(registry *launch.Registry, j *journal.Journal) {
	handles := registry.List()
	if len(handles) == 0 {
		return
	}
	logger := log.WithComponent("main")
	logger.Info("stopping running launches", "count", len(handles))

	g := new(errgroup.Group)
	for _, h := range handles {
		g.Go(func() error {
			if err := h.Terminate(stopGrace); err != nil && !errors.Is(err, launch.ErrNotRunning) {
				log.WithLaunch(h.ID).Warn("failed to stop launch", "pid", h.PID, "error", err)
				return nil
			}
			code, _ := h.Wait(context.Background())
			if j != nil {
				if err := j.MarkExited(context.Background(), h.ID, code, errors.New("stopped on shutdown")); err != nil {
					log.WithLaunch(h.ID).Warn("failed to record exit", "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", defaultAPIURL, "Bridge URL")
	apiKey := fs.String("api-key", os.Getenv(envAPIKey), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API key required. Use --api-key or %s env var.\n", envAPIKey)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
