// streamtest opens the live status channel for one workspace and prints
// every job status it receives.
// Usage: go run ./cmd/streamtest --config configs/livewatch.example.yaml --workspace ws-demo
//
// The bootstrap gate is skipped; the backend is assumed to be awake.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/datapulse-live/internal/config"
	"github.com/rickgao/datapulse-live/internal/connection"
	"github.com/rickgao/datapulse-live/internal/visibility"
)

func main() {
	configPath := flag.String("config", "configs/livewatch.example.yaml", "path to config file")
	workspace := flag.String("workspace", "", "workspace id to watch (defaults to the first configured workspace)")
	verbose := flag.Bool("verbose", false, "print full status JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	id := *workspace
	if id == "" && len(cfg.Workspaces) > 0 {
		id = cfg.Workspaces[0]
	}
	if id == "" {
		logger.Error("no workspace given and none configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dialer := connection.NewWSDialer(connection.DialerConfig{
		Token:            cfg.Backend.Token,
		HandshakeTimeout: cfg.Channel.HandshakeTimeout,
		WriteTimeout:     cfg.Channel.WriteTimeout,
	}, logger)

	var count atomic.Int64
	sub := connection.NewSubscription(
		connection.Config{
			BaseURL:           cfg.Channel.BaseURL,
			HeartbeatInterval: cfg.Channel.HeartbeatInterval,
			ReconnectDelay:    cfg.Channel.ReconnectDelay,
			DialTimeout:       cfg.Channel.DialTimeout,
		},
		id,
		dialer,
		visibility.NewPage(true, logger),
		func(js connection.JobStatus) {
			n := count.Add(1)
			if *verbose {
				data, _ := json.MarshalIndent(js, "", "  ")
				fmt.Printf("[%d] %s\n", n, data)
				return
			}
			if js.Status == connection.StatusFailed {
				fmt.Printf("[%d] %s FAILED: %s\n", n, js.WorkspaceID, js.Error)
				return
			}
			fmt.Printf("[%d] %s complete\n", n, js.WorkspaceID)
		},
		connection.WithLogger(logger),
	)

	sub.Start()
	logger.Info("watching workspace", "workspace_id", id, "base_url", cfg.Channel.BaseURL)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sub.Stop()
			logger.Info("stopped", "statuses", count.Load())
			return
		case <-ticker.C:
			snap := sub.Snapshot()
			logger.Info("channel status",
				"state", snap.State,
				"retry_count", snap.RetryCount,
				"last_error", snap.LastError,
			)
		}
	}
}
