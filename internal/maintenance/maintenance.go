// Package maintenance runs periodic background tasks as Go tickers inside the
// worker process.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	PurgeInterval     time.Duration // Old delivery log rows
	DeliveryRetention time.Duration
	StatsInterval     time.Duration // Dedup cache stats log line
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PurgeInterval:     6 * time.Hour,
		DeliveryRetention: 30 * 24 * time.Hour,
		StatsInterval:     15 * time.Minute,
	}
}

// Purger deletes delivery rows created before a cutoff.
type Purger interface {
	PurgeDeliveries(ctx context.Context, olderThan time.Time) (int64, error)
}

// StatsReporter exposes cache statistics.
type StatsReporter interface {
	Stats() map[string]interface{}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. A nil purger or stats reporter disables its task.
func Start(ctx context.Context, purger Purger, stats StatsReporter, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"purge", cfg.PurgeInterval,
		"retention", cfg.DeliveryRetention,
		"stats", cfg.StatsInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if purger != nil && cfg.PurgeInterval > 0 && cfg.DeliveryRetention > 0 {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { PurgeDeliveries(ctx, purger, cfg.DeliveryRetention, time.Now(), logger) })
	}

	if stats != nil && cfg.StatsInterval > 0 {
		t := time.NewTicker(cfg.StatsInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { logStats(stats, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// PurgeDeliveries removes delivery rows older than retention, measured from
// now. Failures are logged; the next tick tries again.
func PurgeDeliveries(ctx context.Context, purger Purger, retention time.Duration, now time.Time, logger *slog.Logger) int64 {
	n, err := purger.PurgeDeliveries(ctx, now.Add(-retention))
	if err != nil {
		logger.Warn("Cleanup: failed to purge old deliveries", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("Cleanup: purged old deliveries", "count", n)
	}
	return n
}

func logStats(stats StatsReporter, logger *slog.Logger) {
	attrs := make([]any, 0, 8)
	for k, v := range stats.Stats() {
		attrs = append(attrs, k, v)
	}
	logger.Info("Dedup cache stats", attrs...)
}
