package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dentaflow/verify-engine/internal/audit"
	"github.com/dentaflow/verify-engine/internal/config"
	"github.com/dentaflow/verify-engine/internal/consumers"
	"github.com/dentaflow/verify-engine/internal/engine"
	"github.com/dentaflow/verify-engine/internal/nats"
	"github.com/dentaflow/verify-engine/internal/store"
	"github.com/dentaflow/verify-engine/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start embedded NATS server
	natsServer, err := nats.NewEmbeddedServer(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to start NATS server", "error", err)
		os.Exit(1)
	}
	defer natsServer.Shutdown()

	js := natsServer.JetStream()

	// Persistence over the JetStream KV buckets
	st, err := store.NewNATS(ctx, js)
	if err != nil {
		slog.Error("Failed to open stores", "error", err)
		os.Exit(1)
	}

	// Audit events go to the log and the durable stream
	sink := audit.MultiSink{audit.LogSink{}, audit.NewStreamSink(js)}

	clock := engine.RealClock()
	checker := engine.NewSimulatedChecker(clock,
		engine.SeededRand(time.Now().UnixNano()),
		cfg.CheckLatency, cfg.FailureRate)

	eng := engine.New(st, checker, sink, engine.Options{
		Clock: clock,
		Policy: engine.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay,
		},
		InsuranceTTL:  cfg.InsuranceTTL,
		IdentityTTL:   cfg.IdentityTTL,
		DocumentTTL:   cfg.DocumentTTL,
		SweepInterval: cfg.CacheSweepInterval,
		Progress:      nats.NewProgressPublisher(natsServer.Connection()),
	})

	// Mirror audit events into the web read view
	mirror := consumers.NewAuditMirror(js)
	if err := mirror.Start(ctx); err != nil {
		slog.Error("Failed to start audit mirror", "error", err)
		os.Exit(1)
	}

	// Start web server
	webServer := web.NewServer(eng, js, cfg)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			slog.Error("Web server error", "error", err)
		}
	}()

	slog.Info("Verification engine started",
		"webPort", cfg.WebPort,
		"maxRetries", cfg.MaxRetries,
		"retryDelay", cfg.RetryDelay.String(),
	)

	printStartupInfo(cfg)

	// Wait for shutdown signal
	<-sigChan
	slog.Info("Shutdown signal received, stopping...")

	cancel()
	wg.Wait()

	slog.Info("Verification engine stopped")
}

func printStartupInfo(cfg *config.Config) {
	info := `
╔═══════════════════════════════════════════════════════════════╗
║                 Verification Engine Started                   ║
╠═══════════════════════════════════════════════════════════════╣
║ Web API              : http://localhost:%-22d ║
║ Data Directory       : %-39s ║
║ Max Retries          : %-39d ║
║ Base Retry Delay     : %-39s ║
╚═══════════════════════════════════════════════════════════════╝
`
	fmt.Printf(info,
		cfg.WebPort,
		cfg.DataDir,
		cfg.MaxRetries,
		cfg.RetryDelay.String(),
	)
}
