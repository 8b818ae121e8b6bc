// Package scanner runs the scan tick: load strategies, plan the upstream
// fetch, fetch live snapshots, then evaluate every strategy against every
// snapshot and hand passes to the dedup gate, the trigger recorder and the
// notification queue.
//
// Ticks are serialized. Failures inside one (strategy, match) pair are logged
// and counted; a failure of the whole tick is returned and the continuous
// loop simply tries again on the next interval.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TanguyDH/matchIQ/internal/dedup"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/metrics"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/provider"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// StrategySource lists active strategies with their rules.
type StrategySource interface {
	ListActiveStrategies(ctx context.Context, alertType engine.ValueType) ([]engine.Strategy, error)
}

// PerformanceCounter bumps a strategy's trigger count.
type PerformanceCounter interface {
	IncrementTriggerCount(ctx context.Context, strategyID string) error
}

// Deps groups the scanner's collaborators.
type Deps struct {
	Strategies StrategySource
	Provider   provider.Provider
	Evaluator  *engine.Evaluator
	Gate       *dedup.Gate
	Recorder   *trigger.Recorder
	Queue      notifications.Queue
	Counter    PerformanceCounter
}

// Config controls one scanner.
type Config struct {
	AlertType    engine.ValueType
	FixtureLimit int // zero means no limit
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{AlertType: engine.ValueInPlay, FixtureLimit: 10}
}

// A full in-process queue with no dispatcher draining it must not wedge the
// tick.
const enqueueTimeout = 5 * time.Second

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("scanner already running")

// --------------------------------------------------------------------------
// Scanner
// --------------------------------------------------------------------------

// Scanner is the scan orchestrator.
type Scanner struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	tickMu sync.Mutex // serializes ticks

	mu        sync.RWMutex
	last      *TickResult
	lastSnaps []engine.MatchSnapshot
	stop      context.CancelFunc
	done      chan struct{}

	kick chan struct{} // cap 1; coalesces early-tick requests
}

// New creates a scanner.
func New(deps Deps, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AlertType == "" {
		cfg.AlertType = engine.ValueInPlay
	}
	return &Scanner{deps: deps, cfg: cfg, logger: logger, kick: make(chan struct{}, 1)}
}

// RunOnce executes a single scan tick. The returned error is a whole-tick
// failure (strategy load or upstream fetch); per-pair failures only show up
// in TickResult.Errors.
func (s *Scanner) RunOnce(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	res := TickResult{StartedAt: time.Now().UTC()}
	snaps, err := s.tick(ctx, &res)
	res.Duration = time.Since(res.StartedAt)
	metrics.TickDuration.Observe(res.Duration.Seconds())

	switch {
	case err != nil:
		res.Err = err.Error()
		metrics.TicksTotal.WithLabelValues("error").Inc()
		s.logger.Error("Scan tick failed", "error", err, "duration", res.Duration.Round(time.Millisecond))
	case res.Strategies == 0:
		metrics.TicksTotal.WithLabelValues("idle").Inc()
	default:
		metrics.TicksTotal.WithLabelValues("ok").Inc()
		s.logger.Info("Scan complete", "summary", res.Summary(), "duration", res.Duration.Round(time.Millisecond))
	}

	s.mu.Lock()
	s.last = &res
	if err == nil {
		s.lastSnaps = snaps
	}
	s.mu.Unlock()

	return res, err
}

func (s *Scanner) tick(ctx context.Context, res *TickResult) ([]engine.MatchSnapshot, error) {
	strategies, err := s.deps.Strategies.ListActiveStrategies(ctx, s.cfg.AlertType)
	if err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	res.Strategies = len(strategies)
	if len(strategies) == 0 {
		s.logger.Info("No active strategies found", "alert_type", s.cfg.AlertType)
		return nil, nil
	}

	req := engine.Plan(strategies)
	s.logger.Debug("Data requirements", "requirements", req)

	batch, err := s.deps.Provider.FetchLiveSnapshots(ctx, provider.FetchRequest{
		Requirements: req,
		Limit:        s.cfg.FixtureLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch live snapshots: %w", err)
	}
	res.Available = batch.Available
	res.Fixtures = len(batch.Snapshots)
	res.Skipped = batch.Skipped()
	res.EstimatedCalls = req.EstimateCalls(res.Fixtures)
	if res.Skipped > 0 {
		metrics.FixturesSkipped.Add(float64(res.Skipped))
		s.logger.Info("Skipped fixtures due to limit",
			"available", res.Available, "processing", res.Fixtures, "limit", s.cfg.FixtureLimit)
	}

	live := make([]engine.MatchSnapshot, 0, len(batch.Snapshots))
	for _, snap := range batch.Snapshots {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		// Both providers may list finished or not-started fixtures.
		if !snap.IsLive {
			res.NotLive++
			s.logger.Debug("Skipping match that is not live", "match_id", snap.ID)
			continue
		}
		if err := provider.ValidateSnapshot(snap); err != nil {
			res.Errors++
			s.logger.Warn("Skipping invalid snapshot", "match_id", snap.ID, "error", err)
			continue
		}
		live = append(live, snap)
		for _, st := range strategies {
			if ctx.Err() != nil {
				res.Interrupted = true
				break
			}
			if len(st.Rules) == 0 {
				continue
			}
			// The pair runs to completion even if shutdown starts mid-pair.
			s.processPair(context.WithoutCancel(ctx), st, snap, res)
		}
	}
	if res.Interrupted {
		s.logger.Info("Scan interrupted by shutdown", "summary", res.Summary())
	}
	return live, nil
}

// processPair runs dedup → evaluate → record → enqueue → count for one pair.
func (s *Scanner) processPair(ctx context.Context, st engine.Strategy, snap engine.MatchSnapshot, res *TickResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Errors++
			metrics.Evaluations.WithLabelValues("error").Inc()
			s.logger.Error("Pair processing panicked",
				"strategy_id", st.ID, "match_id", snap.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if state, _ := s.deps.Gate.Check(ctx, st.ID, snap.ID); state == dedup.StateRecorded {
		res.DedupHits++
		metrics.Evaluations.WithLabelValues("dedup_hit").Inc()
		return
	}

	result := s.deps.Evaluator.Evaluate(st, snap)
	res.Evaluated++
	if !result.Passed {
		metrics.Evaluations.WithLabelValues("failed").Inc()
		s.logger.Debug("Strategy did not match",
			"strategy_id", st.ID, "match_id", snap.ID, "failed_rule_id", result.FailedRuleID)
		return
	}
	res.Passed++
	metrics.Evaluations.WithLabelValues("passed").Inc()

	out, err := s.deps.Gate.Commit(ctx, st.ID, snap.ID, func(ctx context.Context) (string, bool, error) {
		return s.deps.Recorder.Record(ctx, st.ID, snap, result)
	})
	if err != nil {
		res.Errors++
		metrics.Evaluations.WithLabelValues("error").Inc()
		s.logger.Error("Failed to record trigger", "strategy_id", st.ID, "match_id", snap.ID, "error", err)
		return
	}
	metrics.Triggers.WithLabelValues(string(out.Transition)).Inc()
	if !out.Created() {
		res.Healed++
		s.logger.Debug("Trigger already recorded, dedup key restored", "strategy_id", st.ID, "match_id", snap.ID)
		return
	}
	res.Triggers++
	s.logger.Info("Strategy matched",
		"strategy", st.Name, "strategy_id", st.ID, "match_id", snap.ID,
		"match", fmt.Sprintf("%s %d-%d %s", snap.HomeTeam, snap.HomeScore, snap.AwayScore, snap.AwayTeam),
		"trigger_id", out.TriggerID)

	job := notifications.Job{
		ID:           uuid.NewString(),
		TriggerID:    out.TriggerID,
		StrategyID:   st.ID,
		StrategyName: st.Name,
		Match:        snap,
		Result:       result,
		EnqueuedAt:   time.Now().UTC(),
	}
	enqCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	err = s.deps.Queue.Enqueue(enqCtx, job)
	cancel()
	if err != nil {
		res.Errors++
		s.logger.Error("Failed to enqueue alert", "trigger_id", out.TriggerID, "error", err)
	} else {
		res.Enqueued++
	}

	// The trigger is durable either way, so it always counts.
	if err := s.deps.Counter.IncrementTriggerCount(ctx, st.ID); err != nil {
		res.Errors++
		s.logger.Error("Failed to update performance", "strategy_id", st.ID, "error", err)
	}
}

// --------------------------------------------------------------------------
// Continuous mode
// --------------------------------------------------------------------------

// Run ticks immediately, then every interval, until ctx is done. Tick errors
// are logged by RunOnce and never end the loop.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("Scanner started", "interval", interval, "alert_type", s.cfg.AlertType, "fixture_limit", s.cfg.FixtureLimit)

	_, _ = s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scanner stopped")
			return nil
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		case <-s.kick:
			_, _ = s.RunOnce(ctx)
			ticker.Reset(interval)
		}
	}
}

// Kick asks a running loop for an extra tick as soon as the current one
// ends. Requests made while one is already pending are merged. Never blocks.
func (s *Scanner) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (s *Scanner) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stop, s.done = cancel, done

	go func() {
		defer close(done)
		_ = s.Run(loopCtx, interval)
	}()
	return nil
}

// Stop ends the background loop and waits for the current tick's pair to
// finish. Safe to call when not running.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// LastResult returns the most recent tick result, or nil before the first.
func (s *Scanner) LastResult() *TickResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// LastSnapshots returns the snapshots fetched by the last successful tick.
func (s *Scanner) LastSnapshots() []engine.MatchSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.MatchSnapshot, len(s.lastSnaps))
	copy(out, s.lastSnaps)
	return out
}
