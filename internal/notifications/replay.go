package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

const defaultReplayLimit = 20

// TriggerSource loads stored triggers for replay.
type TriggerSource interface {
	RecentTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error)
	StrategyName(ctx context.Context, strategyID string) (string, error)
}

// Replayer re-sends alerts for stored triggers without touching the live
// pipeline. Dry runs print previews instead of sending.
type Replayer struct {
	source TriggerSource
	sender Sender
	out    io.Writer
	logger *slog.Logger
	pause  time.Duration
}

// NewReplayer creates a Replayer. sender may be nil when only dry runs are used.
func NewReplayer(source TriggerSource, sender Sender, out io.Writer, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{source: source, sender: sender, out: out, logger: logger, pause: replayPause}
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Found    int
	Replayed int
	Errors   []error
}

// Summary returns a one-line description.
func (r *ReplayResult) Summary() string {
	return fmt.Sprintf("replayed=%d/%d errors=%d", r.Replayed, r.Found, len(r.Errors))
}

// Replay loads the last limit triggers, newest first, and replays each one.
// A failing trigger is logged and skipped.
func (r *Replayer) Replay(ctx context.Context, limit int, dryRun bool) (*ReplayResult, error) {
	if limit <= 0 {
		limit = defaultReplayLimit
	}
	triggers, err := r.source.RecentTriggers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	res := &ReplayResult{Found: len(triggers)}
	r.logger.Info("Replaying triggers", "count", len(triggers), "dry_run", dryRun)

	for i, t := range triggers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		name, err := r.source.StrategyName(ctx, t.StrategyID)
		if err != nil {
			r.logger.Warn("Strategy name lookup failed", "strategy_id", t.StrategyID, "error", err)
			name = "Unknown Strategy"
		}

		if err := r.ReplayTrigger(ctx, t, name, dryRun); err != nil {
			r.logger.Error("Replay failed", "trigger_id", t.ID, "error", err)
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Replayed++

		if !dryRun && i < len(triggers)-1 {
			select {
			case <-time.After(r.pause):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
	}
	return res, nil
}

// ReplayTrigger rebuilds the snapshot and result from a stored trigger and
// previews (dryRun) or sends the alert.
func (r *Replayer) ReplayTrigger(ctx context.Context, t trigger.Trigger, strategyName string, dryRun bool) error {
	match, result := Reconstruct(t)

	rules := make([]string, 0, len(result.MatchedRules))
	for _, m := range result.MatchedRules {
		rules = append(rules, m.Metric)
	}
	fmt.Fprintf(r.out, "%s | %s\n", t.TriggeredAt.Format(time.RFC3339), strategyName)
	fmt.Fprintf(r.out, "         %s %d-%d %s (%d')\n", match.HomeTeam, match.HomeScore, match.AwayScore, match.AwayTeam, match.Minute)
	fmt.Fprintf(r.out, "         Rules: %s\n", strings.Join(rules, ", "))

	if dryRun {
		preview, err := FormatPreview(strategyName, match, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "\n─────────────────────────────────────\n%s\n─────────────────────────────────────\n\n", preview)
		return nil
	}

	if r.sender == nil {
		return errTelegramDisabled
	}
	text, err := FormatAlert(strategyName, match, result)
	if err != nil {
		return err
	}
	if err := r.sender.Send(ctx, text); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "         ✓ Alert sent")
	return nil
}

// Reconstruct rebuilds a non-live snapshot and a passed result from a
// trigger's stored evidence.
func Reconstruct(t trigger.Trigger) (engine.MatchSnapshot, engine.EvaluationResult) {
	match := engine.MatchSnapshot{
		ID:        t.MatchID,
		HomeTeam:  orDefault(t.HomeTeam, "Unknown Home"),
		AwayTeam:  orDefault(t.AwayTeam, "Unknown Away"),
		HomeScore: t.HomeScore,
		AwayScore: t.AwayScore,
		Minute:    t.Minute,
		IsLive:    false,
		InPlay:    nonNil(t.Evidence.Stats),
		PreMatch:  nonNil(t.Evidence.PreMatch),
		Odds:      nonNil(t.Evidence.Odds),
	}
	matched := t.Evidence.MatchedRules
	if matched == nil {
		matched = []engine.MatchedRule{}
	}
	return match, engine.EvaluationResult{Passed: true, MatchedRules: matched}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
