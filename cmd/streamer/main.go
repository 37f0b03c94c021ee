package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockplus/kisfeed/internal/auth"
	"github.com/stockplus/kisfeed/internal/broadcast"
	"github.com/stockplus/kisfeed/internal/config"
	"github.com/stockplus/kisfeed/internal/database"
	"github.com/stockplus/kisfeed/internal/favorites"
	"github.com/stockplus/kisfeed/internal/logging"
	"github.com/stockplus/kisfeed/internal/registry"
	"github.com/stockplus/kisfeed/internal/schedule"
	"github.com/stockplus/kisfeed/internal/server"
	"github.com/stockplus/kisfeed/internal/session"
	"github.com/stockplus/kisfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Credential manager over the KIS OAuth endpoints
	authClient := auth.NewClient(
		cfg.Gateway.RestURL,
		cfg.Gateway.AppKey,
		cfg.Gateway.AppSecret,
		auth.WithLogger(logger),
		auth.WithTimeout(cfg.Gateway.Timeout),
		auth.WithRetries(cfg.Gateway.MaxRetries, time.Second),
	)
	creds := auth.NewManager(authClient, logger,
		auth.WithRotateDelay(cfg.Session.StaleKeyDelay),
	)

	// Subscription registry seeded from the watchlist tables
	store := favorites.NewStore(pool, logger)
	reg := registry.New(registry.Config{
		EventBuffer: cfg.Session.EventBuffer,
	}, store, logger)

	// Quote fan-out hub
	hub := broadcast.NewHub(cfg.Broadcast.Capacity)

	// Session manager owning the gateway connection
	mgr := session.NewManager(session.ManagerConfig{
		WSURL:              cfg.Gateway.WSURL,
		ConnectGrace:       cfg.Session.ConnectGrace,
		CommandSpacing:     cfg.Session.CommandSpacing,
		ReconnectDelay:     cfg.Session.ReconnectDelay,
		StaleKeyDelay:      cfg.Session.StaleKeyDelay,
		MinConnectInterval: cfg.Session.MinConnectInterval,
		KeyRetries:         cfg.Session.KeyRetries,
		KeyRetryDelay:      cfg.Session.KeyRetryDelay,
	}, creds, reg, hub, nil, logger)

	mgr.Start(ctx)
	defer mgr.Stop()

	// Process start is a connect trigger in its own right; the next close
	// minute tears an off-hours session down again.
	mgr.Connect()

	// Trading-day clock drives open/close and the daily token refresh
	sched, err := schedule.New(cfg.Schedule, mgr, creds, logger)
	if err != nil {
		logger.Error("failed to build schedule", "error", err)
		os.Exit(1)
	}
	go sched.Run(ctx)

	// HTTP front (SSE stream + health)
	srv := server.New(cfg.Server, hub, mgr, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"port", cfg.Server.Port,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	hub.Close()

	logger.Info("streamer stopped")
}
