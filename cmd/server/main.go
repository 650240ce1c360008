package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-hub/backend/internal/agent"
	"github.com/agent-hub/backend/internal/config"
	"github.com/agent-hub/backend/internal/health"
	"github.com/agent-hub/backend/internal/session"
	"github.com/agent-hub/backend/internal/stats"
	"github.com/agent-hub/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use scripted mock agents with simulated steps")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	store := session.New(cfg.Session.MaxSessions, cfg.Session.IdleTimeout(), cfg.Session.SweepInterval)

	redact := &session.RedactFilter{
		MaskIDs:    cfg.Redact.MaskSessionIDs,
		MaskModels: cfg.Redact.MaskModels,
	}
	broadcaster := ws.NewBroadcaster(store, redact, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval)

	var persist *stats.Store
	if cfg.Stats.Path != "" {
		persist = &stats.Store{Path: cfg.Stats.Path}
	}
	tracker, err := stats.NewTracker(persist)
	if err != nil {
		log.Fatalf("Failed to load stats: %v", err)
	}

	store.SetNotifier(func(id, reason string) {
		broadcaster.QueueLifecycle(id, reason)
		switch reason {
		case session.ReasonEvicted:
			tracker.Record(stats.Evicted)
		case session.ReasonExpired:
			tracker.Record(stats.Expired)
		case session.ReasonRemoved:
			tracker.Record(stats.Removed)
		}
	})

	factory := &agent.LocalFactory{
		Resolver: agent.Resolver{
			Aliases: cfg.Agent.Models,
			Default: cfg.Agent.DefaultModel,
		},
		Tools: []agent.Tool{
			&agent.ShellTool{
				Allowed: cfg.Agent.AllowedCommands,
				Timeout: cfg.Agent.CommandTimeout,
			},
		},
	}
	if *mockMode {
		log.Println("Starting in mock mode (scripted agent steps)")
		factory.Script = agent.Script{
			Steps: []agent.Step{
				{Name: "read", Delay: 200 * time.Millisecond},
				{Name: "edit", Delay: 500 * time.Millisecond},
				{Name: "verify", Delay: 300 * time.Millisecond},
			},
			Result: "mock run complete",
		}
	}

	server := ws.NewServer(store, broadcaster, factory, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	server.SetStatsTracker(tracker)
	server.SetHealthProbe(health.NewProbe(store, broadcaster))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trackerDone := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(trackerDone)
	}()

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		store.DrainAll()
		broadcaster.Close()
		cancel()
		<-trackerDone // final stats save happens on the Run goroutine
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
