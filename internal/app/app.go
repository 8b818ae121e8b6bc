// Package app assembles the worker's components from configuration. The
// long-running worker and the matchiq CLI both build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/TanguyDH/matchIQ/internal/cache"
	"github.com/TanguyDH/matchIQ/internal/config"
	"github.com/TanguyDH/matchIQ/internal/db"
	"github.com/TanguyDH/matchIQ/internal/dedup"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/maintenance"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/provider"
	"github.com/TanguyDH/matchIQ/internal/provider/feed"
	"github.com/TanguyDH/matchIQ/internal/provider/sportmonks"
	"github.com/TanguyDH/matchIQ/internal/scanner"
	"github.com/TanguyDH/matchIQ/internal/store"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

const memoryQueueSize = 256

// VolatileCache is the dedup cache plus the health and lifecycle hooks the
// worker needs.
type VolatileCache interface {
	dedup.Cache
	Ping(ctx context.Context) error
	Close() error
}

// TriggerReader lists recorded triggers.
type TriggerReader interface {
	RecentTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error)
}

// App holds every wired component. Build it with Build and release it with
// Close.
type App struct {
	Config *config.Config

	Pool  *db.Pool
	Store *store.Store

	Cache     VolatileCache
	CacheKind string
	// CacheStats is set for the in-process cache only.
	CacheStats maintenance.StatsReporter

	Queue      notifications.Queue
	Sender     notifications.Sender
	Provider   provider.Provider
	Scanner    *scanner.Scanner
	Dispatcher *notifications.Dispatcher

	// Triggers is the store the scanner records into. In dry-run mode it
	// is an in-memory store and nothing reaches Postgres.
	Triggers TriggerReader

	closers []func()
}

// Build connects Postgres and the volatile cache and wires the scan
// pipeline. With cfg.DryRun, strategies still come from Postgres but
// triggers, dedup keys and queued jobs stay in process and alerts are
// printed to stdout.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Store = store.New(pool)

	if err := a.connectCache(ctx, cfg, logger); err != nil {
		return nil, err
	}

	a.Sender, err = NewSender(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Provider = NewProvider(cfg, logger)

	var (
		triggerStore trigger.Store              = a.Store
		counter      scanner.PerformanceCounter = a.Store
		deliveryLog  notifications.DeliveryLog  = a.Store
	)
	a.Triggers = a.Store
	if cfg.DryRun {
		mem := trigger.NewMemoryStore()
		triggerStore, counter, a.Triggers = mem, mem, mem
		deliveryLog = nil
	}

	a.Scanner = scanner.New(scanner.Deps{
		Strategies: a.Store,
		Provider:   a.Provider,
		Evaluator:  engine.NewEvaluator(engine.DefaultCatalog(), logger),
		Gate:       dedup.NewGate(a.Cache, cfg.DedupTTL, logger),
		Recorder:   trigger.NewRecorder(triggerStore, logger),
		Queue:      a.Queue,
		Counter:    counter,
	}, scanner.Config{
		AlertType:    engine.ValueType(cfg.AlertType),
		FixtureLimit: cfg.FixtureLimit,
	}, logger)

	a.Dispatcher = notifications.NewDispatcher(a.Queue, a.Sender, deliveryLog, notifications.DispatchConfig{
		Attempts:    cfg.AlertAttempts,
		BaseDelay:   cfg.AlertBackoff,
		Concurrency: cfg.AlertConcurrency,
	}, logger)

	ok = true
	return a, nil
}

// connectCache picks Redis when configured, the in-process cache otherwise.
// Dry runs never touch Redis: their keys and jobs would leak into the live
// worker's dedup state and queue.
func (a *App) connectCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	addr := cfg.RedisAddr()
	if addr == "" || cfg.DryRun {
		mem := cache.NewMemory()
		a.Cache, a.CacheStats, a.CacheKind = mem, mem, "memory"
		a.Queue = notifications.NewMemoryQueue(memoryQueueSize)
		a.closers = append(a.closers, func() { _ = mem.Close() })
		logger.Info("Using in-process dedup cache and queue", "dry_run", cfg.DryRun)
		return nil
	}

	rc, err := cache.NewRedis(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	a.Cache, a.CacheKind = rc, "redis"
	a.Queue = notifications.NewRedisQueue(rc.Client())
	a.closers = append(a.closers, func() { _ = rc.Close() })
	logger.Info("Redis connected", "addr", addr, "db", cfg.RedisDB)
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewProvider returns the YAML feed when mock data is enabled, the
// SportMonks live provider otherwise.
func NewProvider(cfg *config.Config, logger *slog.Logger) provider.Provider {
	if cfg.UseMockData {
		logger.Info("Using mock match feed", "file", cfg.MockDataFile)
		return feed.New(cfg.MockDataFile, logger)
	}
	client := sportmonks.NewClient(cfg.SportMonksAPIToken, cfg.SportMonksRequestsPerM, logger)
	return sportmonks.NewLiveProvider(client, logger)
}

// NewSender returns the Telegram sender, or a stdout printer for dry runs and
// when no bot token is set.
func NewSender(cfg *config.Config, logger *slog.Logger) (notifications.Sender, error) {
	if cfg.DryRun || cfg.TelegramBotToken == "" {
		logger.Info("Alerts will be printed to stdout", "dry_run", cfg.DryRun)
		return notifications.NewWriterSender(os.Stdout), nil
	}
	tg, err := notifications.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	if tg == nil {
		return nil, errors.New("telegram sender not configured")
	}
	return tg, nil
}
