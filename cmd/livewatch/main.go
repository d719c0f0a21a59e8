package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/datapulse-live/internal/api"
	"github.com/rickgao/datapulse-live/internal/bootstrap"
	"github.com/rickgao/datapulse-live/internal/config"
	"github.com/rickgao/datapulse-live/internal/connection"
	"github.com/rickgao/datapulse-live/internal/database"
	"github.com/rickgao/datapulse-live/internal/history"
	"github.com/rickgao/datapulse-live/internal/statusapi"
	"github.com/rickgao/datapulse-live/internal/version"
	"github.com/rickgao/datapulse-live/internal/visibility"
)

func main() {
	configPath := flag.String("config", "configs/livewatch.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting livewatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"workspaces", len(cfg.Workspaces),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	awake, closeFlag := newFlag(cfg.Session, logger)
	defer closeFlag()

	observers := connection.NewObservers()
	observers.Add(func(js connection.JobStatus) {
		logger.Info("job status",
			"workspace_id", js.WorkspaceID,
			"status", js.Status,
			"error", js.Error,
		)
	})

	var recorder *history.Recorder
	if cfg.History.Enabled {
		var pool *pgxpool.Pool
		recorder, pool, err = startHistory(ctx, cfg.History, logger)
		if err != nil {
			logger.Error("failed to start history recorder", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		observers.Add(recorder.Record)
	}

	// Bootstrap gate
	apiClient := api.NewClient(
		cfg.Backend.BaseURL,
		cfg.Backend.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Backend.Timeout),
		api.WithHealthPath(cfg.Backend.HealthPath),
	)

	ready := make(chan struct{})
	var readyOnce sync.Once
	gate := bootstrap.New(
		bootstrap.Config{
			ProbeInterval:  cfg.Bootstrap.ProbeInterval,
			MaxAttempts:    cfg.Bootstrap.MaxAttempts,
			ProbeTimeout:   cfg.Bootstrap.ProbeTimeout,
			SlowStartAfter: cfg.Bootstrap.SlowStartAfter,
			HardFailAfter:  cfg.Bootstrap.HardFailAfter,
		},
		apiClient,
		awake,
		bootstrap.WithLogger(logger.With("component", "bootstrap")),
		bootstrap.WithObserver(func(ev bootstrap.Event, s bootstrap.Status) {
			switch ev {
			case bootstrap.EventReady:
				readyOnce.Do(func() { close(ready) })
			case bootstrap.EventExhausted:
				logger.Error("backend unreachable, POST /bootstrap/retry to probe again",
					"attempts", s.Attempts,
				)
			}
		}),
	)

	// Status API
	page := visibility.NewPage(true, logger)
	subs := &mounted{}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           statusapi.New(gate, subs, page, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting status server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "error", err)
		}
	}()

	gate.Start(ctx)

	select {
	case <-ready:
		chanCfg := connection.Config{
			BaseURL:           cfg.Channel.BaseURL,
			HeartbeatInterval: cfg.Channel.HeartbeatInterval,
			ReconnectDelay:    cfg.Channel.ReconnectDelay,
			DialTimeout:       cfg.Channel.DialTimeout,
		}
		dialer := connection.NewWSDialer(connection.DialerConfig{
			Token:            cfg.Backend.Token,
			HandshakeTimeout: cfg.Channel.HandshakeTimeout,
			WriteTimeout:     cfg.Channel.WriteTimeout,
		}, logger)

		for _, id := range cfg.Workspaces {
			sub := connection.NewSubscription(chanCfg, id, dialer, page, observers.Notify,
				connection.WithLogger(logger),
			)
			subs.add(sub)
			sub.Start()
		}

		logger.Info("livewatch running", "subscriptions", len(cfg.Workspaces))
		<-ctx.Done()
	case <-ctx.Done():
	}

	logger.Info("shutting down...")

	subs.stopAll()
	gate.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	server.Shutdown(shutdownCtx)
	if recorder != nil {
		recorder.Stop(shutdownCtx)
	}

	logger.Info("livewatch stopped")
}

// newFlag builds the backend-awake flag store.
func newFlag(cfg config.SessionConfig, logger *slog.Logger) (bootstrap.Flag, func()) {
	if cfg.Store != config.StoreRedis {
		return &bootstrap.MemoryFlag{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("using redis session flag", "addr", cfg.Redis.Addr, "key", cfg.Key, "ttl", cfg.TTL)

	return bootstrap.NewRedisFlag(client, cfg.Key, cfg.TTL), func() { client.Close() }
}

func startHistory(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (*history.Recorder, *pgxpool.Pool, error) {
	logger.Info("connecting to history database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	store := history.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	recorder := history.NewRecorder(history.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}, store, logger)
	// The recorder outlives ctx so that Stop can drain it after a signal.
	if err := recorder.Start(context.WithoutCancel(ctx)); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return recorder, pool, nil
}

// mounted tracks the live subscriptions for the status API.
type mounted struct {
	mu   sync.Mutex
	subs []*connection.Subscription
}

func (m *mounted) add(s *connection.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, s)
}

func (m *mounted) Snapshots() []connection.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]connection.Snapshot, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s.Snapshot())
	}
	return out
}

func (m *mounted) stopAll() {
	m.mu.Lock()
	subs := m.subs
	m.mu.Unlock()
	for _, s := range subs {
		s.Stop()
	}
}
