// streamtest connects to the KIS realtime gateway and prints decoded quotes
// to the console. It takes instrument codes on the command line instead of
// reading watchlists from Postgres, so it needs only gateway credentials.
//
// Usage: go run ./cmd/streamtest --config configs/streamer.local.yaml --codes 005930,000660
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stockplus/kisfeed/internal/auth"
	"github.com/stockplus/kisfeed/internal/broadcast"
	"github.com/stockplus/kisfeed/internal/config"
	"github.com/stockplus/kisfeed/internal/model"
	"github.com/stockplus/kisfeed/internal/registry"
	"github.com/stockplus/kisfeed/internal/session"
)

// staticFavorites serves the command-line codes as the watchlist.
type staticFavorites struct {
	codes []string
}

func (s *staticFavorites) Favorites(ctx context.Context) ([]model.Favorite, error) {
	favorites := make([]model.Favorite, 0, len(s.codes))
	for _, code := range s.codes {
		favorites = append(favorites, model.Favorite{Code: code})
	}
	return favorites, nil
}

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	codes := flag.String("codes", "005930", "comma-separated instrument codes")
	verbose := flag.Bool("verbose", false, "print full quote JSON")
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
	if cfg.Gateway.AppKey == "" || cfg.Gateway.AppSecret == "" {
		logger.Error("gateway.app_key and gateway.app_secret are required")
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

	// Credentials
	authClient := auth.NewClient(
		cfg.Gateway.RestURL,
		cfg.Gateway.AppKey,
		cfg.Gateway.AppSecret,
		auth.WithLogger(logger),
	)
	creds := auth.NewManager(authClient, logger)

	// Registry fed from the command line
	source := &staticFavorites{codes: strings.Split(*codes, ",")}
	reg := registry.New(registry.Config{EventBuffer: cfg.Session.EventBuffer}, source, logger)

	// Hub with one console subscriber
	hub := broadcast.NewHub(cfg.Broadcast.Capacity)
	sub := hub.Subscribe()
	go printQuotes(sub, *verbose)

	// Session manager
	mgr := session.NewManager(session.ManagerConfig{
		WSURL:              cfg.Gateway.WSURL,
		ConnectGrace:       cfg.Session.ConnectGrace,
		CommandSpacing:     cfg.Session.CommandSpacing,
		ReconnectDelay:     cfg.Session.ReconnectDelay,
		StaleKeyDelay:      cfg.Session.StaleKeyDelay,
		MinConnectInterval: cfg.Session.MinConnectInterval,
	}, creds, reg, hub, nil, logger)

	mgr.Start(ctx)
	defer mgr.Stop()
	mgr.Connect()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"state", stats.State.String(),
					"connects", stats.ConnectAttempts,
					"rotations", stats.Rotations,
					"frames", stats.FramesReceived,
					"quotes", stats.QuotesPublished,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "codes", *codes)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	hub.Unsubscribe(sub)
	logger.Info("shutdown complete")
}

func printQuotes(sub *broadcast.Subscriber, verbose bool) {
	for {
		q, ok := sub.Receive()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(q, "", "  ")
			fmt.Printf("[QUOTE] %s\n", data)
			continue
		}

		tag := "TRADE"
		if q.IsExpected {
			tag = "INDICATIVE"
		}
		fmt.Printf("[%s] code=%s venue=%s time=%s price=%s change=%s (%s%%) vol=%s\n",
			tag, q.Code, q.Venue, q.Time, q.Price, q.Change, q.ChangeRate, q.Volume)
	}
}
