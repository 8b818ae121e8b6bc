package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TanguyDH/matchIQ/internal/metrics"
)

// DispatchConfig controls retries and parallelism.
type DispatchConfig struct {
	Attempts    int           // total send attempts per job
	BaseDelay   time.Duration // backoff before attempt 2; doubles after
	Concurrency int           // jobs processed in parallel
}

// DefaultDispatchConfig returns 3 attempts, 2s base backoff, 5 workers.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Attempts:    DefaultAttempts,
		BaseDelay:   DefaultBaseDelay,
		Concurrency: DefaultConcurrency,
	}
}

// Dispatcher consumes jobs from a Queue and delivers them through a Sender.
type Dispatcher struct {
	queue  Queue
	sender Sender
	log    DeliveryLog // optional
	cfg    DispatchConfig
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewDispatcher creates a Dispatcher. deliveryLog may be nil.
func NewDispatcher(queue Queue, sender Sender, deliveryLog DeliveryLog, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatchConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  queue,
		sender: sender,
		log:    deliveryLog,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight job has finished. Jobs already dequeued are not cancelled by
// shutdown; they complete or exhaust their retries.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Notification dispatch worker started",
		"concurrency", d.cfg.Concurrency,
		"attempts", d.cfg.Attempts,
		"base_delay", d.cfg.BaseDelay)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	d.logger.Info("Notification dispatch worker stopped")
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	inflight := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := d.queue.Dequeue(ctx)
		switch {
		case err == nil:
			_ = d.Process(inflight, job)
		case errors.Is(err, ErrQueueEmpty):
		case ctx.Err() != nil:
			return
		default:
			d.logger.Error("dequeue error", "worker", worker, "error", err)
			_ = d.sleep(ctx, dequeueErrPause)
		}
	}
}

// Drain delivers queued jobs one by one until the queue is empty, then
// returns the sent and failed counts. One-shot scans call it so alerts from
// the single tick go out before the process exits.
func (d *Dispatcher) Drain(ctx context.Context) (sent, failed int) {
	for {
		if n, ok := pending(ctx, d.queue); ok && n == 0 {
			return sent, failed
		}
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				d.logger.Error("dequeue error", "error", err)
			}
			return sent, failed
		}
		if d.Process(ctx, job) == nil {
			sent++
		} else {
			failed++
		}
	}
}

// pending reports how many jobs wait in q. ok is false when q cannot tell.
func pending(ctx context.Context, q Queue) (n int64, ok bool) {
	switch l := q.(type) {
	case interface{ Len() int }:
		return int64(l.Len()), true
	case interface {
		Len(context.Context) (int64, error)
	}:
		depth, err := l.Len(ctx)
		return depth, err == nil
	}
	return 0, false
}

// Process formats and delivers one job with exponential backoff between
// attempts. It returns the final error after all attempts are exhausted.
// Formatting errors fail the job immediately: retrying cannot fix them.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	logger := d.logger.With("job_id", job.ID, "trigger_id", job.TriggerID, "strategy_id", job.StrategyID, "match_id", job.Match.ID)

	text, err := FormatAlert(job.StrategyName, job.Match, job.Result)
	if err != nil {
		logger.Error("Notification job failed to format", "error", err)
		metrics.Notifications.WithLabelValues(string(StatusFailed)).Inc()
		d.record(ctx, job, StatusFailed, 0, err)
		return err
	}

	var (
		sendErr error
		tried   int
	)
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		tried = attempt
		sendErr = d.sender.Send(ctx, text)
		if sendErr == nil {
			logger.Info("Alert sent", "strategy", job.StrategyName, "attempt", attempt)
			metrics.Notifications.WithLabelValues(string(StatusSent)).Inc()
			d.record(ctx, job, StatusSent, attempt, nil)
			return nil
		}
		if attempt == d.cfg.Attempts {
			break
		}
		delay := d.Backoff(attempt)
		logger.Warn("Alert send failed, retrying", "attempt", attempt, "retry_in", delay, "error", sendErr)
		metrics.Notifications.WithLabelValues("retry").Inc()
		if err := d.sleep(ctx, delay); err != nil {
			sendErr = errors.Join(sendErr, err)
			break
		}
	}

	logger.Error("Alert permanently failed", "attempts", tried, "error", sendErr)
	metrics.Notifications.WithLabelValues(string(StatusFailed)).Inc()
	d.record(context.WithoutCancel(ctx), job, StatusFailed, tried, sendErr)
	return fmt.Errorf("deliver job %s: %w", job.ID, sendErr)
}

// Backoff returns the delay after the given failed attempt (1-based):
// BaseDelay, 2×BaseDelay, 4×BaseDelay, ... capped at one minute.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

func (d *Dispatcher) record(ctx context.Context, job Job, status Status, attempts int, cause error) {
	if d.log == nil || job.TriggerID == "" {
		return
	}
	del := Delivery{
		TriggerID:  job.TriggerID,
		StrategyID: job.StrategyID,
		MatchID:    job.Match.ID,
		Status:     status,
		Attempts:   attempts,
	}
	if cause != nil {
		del.LastError = cause.Error()
	}
	if err := d.log.RecordDelivery(ctx, del); err != nil {
		d.logger.Warn("Failed to record delivery", "trigger_id", job.TriggerID, "status", status, "error", err)
	}
}
