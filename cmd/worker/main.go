// Command worker is the MatchIQ scan worker. It polls live matches, evaluates
// every active strategy, records triggers and delivers alerts, and serves a
// read-only status API.
//
// Usage:
//
//	matchiq-worker
//	SNAPSHOT_MODE=true matchiq-worker
//	USE_MOCK_DATA=true DRY_RUN=true matchiq-worker

// @title MatchIQ Worker Status API
// @version 1.0.0
// @description Read-only status of the MatchIQ scan worker: last tick counters, live snapshots and recent triggers.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/TanguyDH/matchIQ/internal/api"
	"github.com/TanguyDH/matchIQ/internal/api/handler"
	"github.com/TanguyDH/matchIQ/internal/app"
	"github.com/TanguyDH/matchIQ/internal/config"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/listener"
	"github.com/TanguyDH/matchIQ/internal/maintenance"

	_ "github.com/TanguyDH/matchIQ/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(true); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting MatchIQ worker", "config", cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.SnapshotMode {
		return snapshot(ctx, a, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Scanner.Run(gctx, cfg.PollInterval)
	})

	// Strategy edits trigger an immediate tick.
	g.Go(func() error {
		listener.Start(gctx, cfg.DatabaseURL, func(listener.Event) { a.Scanner.Kick() }, logger)
		return nil
	})

	g.Go(func() error {
		a.Dispatcher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		maint := maintenance.DefaultConfig()
		maint.DeliveryRetention = cfg.DeliveryRetention
		// Nil interfaces disable a task; never pass a typed nil.
		var purger maintenance.Purger
		if !cfg.DryRun {
			purger = a.Store
		}
		maintenance.Start(gctx, purger, a.CacheStats, maint, logger)
		return nil
	})

	srv := newServer(a, cfg, logger)
	g.Go(func() error {
		logger.Info("Starting status API",
			"addr", srv.Addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Worker stopped")
	return err
}

// snapshot runs one tick, delivers its alerts and exits.
func snapshot(ctx context.Context, a *app.App, logger *slog.Logger) error {
	logger.Info("Snapshot mode: running a single scan tick")
	res, err := a.Scanner.RunOnce(ctx)
	if err != nil {
		return err
	}
	sent, failed := a.Dispatcher.Drain(ctx)
	logger.Info("Snapshot complete", "summary", res.Summary(), "alerts_sent", sent, "alerts_failed", failed)
	return nil
}

func newServer(a *app.App, cfg *config.Config, logger *slog.Logger) *http.Server {
	deps := handler.Deps{
		DB:        a.Store,
		Cache:     a.Cache,
		CacheKind: a.CacheKind,
		Scanner:   a.Scanner,
		Triggers:  a.Triggers,
		AlertType: engine.ValueType(cfg.AlertType),
		MockData:  cfg.UseMockData,
		StartedAt: time.Now(),
	}
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:      api.NewRouter(deps, cfg, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
