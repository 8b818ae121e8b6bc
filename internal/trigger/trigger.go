// Package trigger persists strategy matches as durable triggers.
//
// A trigger is unique per (strategy, match). Recording a pair twice is not an
// error: the second insert is rejected by the store and reported as
// not-created.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TanguyDH/matchIQ/internal/engine"
)

// Evidence is the minimal record of why a trigger fired: only the metric
// keys referenced by matched rules, plus the matched rules themselves.
type Evidence struct {
	Stats        map[string]float64   `json:"stats"`
	PreMatch     map[string]float64   `json:"pre_match,omitempty"`
	Odds         map[string]float64   `json:"odds,omitempty"`
	MatchedRules []engine.MatchedRule `json:"matched_rules"`
}

// Trigger is a durable record of a strategy matching a match.
type Trigger struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id"`
	MatchID     string    `json:"match_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Minute      int       `json:"minute"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	Evidence    Evidence  `json:"evidence"`
}

// Store is the durable insert-if-absent backend.
type Store interface {
	// InsertTriggerIfAbsent inserts t unless a trigger for the same
	// (StrategyID, MatchID) exists. created is false in that case.
	InsertTriggerIfAbsent(ctx context.Context, t Trigger) (created bool, err error)
}

// BuildEvidence keeps only the keys m, home_m and away_m for each matched
// metric m, across all three value-type maps.
func BuildEvidence(snap engine.MatchSnapshot, result engine.EvaluationResult) Evidence {
	wanted := make(map[string]bool, len(result.MatchedRules)*3)
	for _, r := range result.MatchedRules {
		wanted[r.Metric] = true
		wanted["home_"+r.Metric] = true
		wanted["away_"+r.Metric] = true
	}

	matched := make([]engine.MatchedRule, len(result.MatchedRules))
	copy(matched, result.MatchedRules)

	return Evidence{
		Stats:        pick(snap.InPlay, wanted),
		PreMatch:     pick(snap.PreMatch, wanted),
		Odds:         pick(snap.Odds, wanted),
		MatchedRules: matched,
	}
}

func pick(values map[string]float64, wanted map[string]bool) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range values {
		if wanted[k] {
			out[k] = v
		}
	}
	return out
}

// Recorder builds and stores triggers.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, now: time.Now, logger: logger}
}

// Build assembles the trigger for a passed evaluation without storing it.
func (r *Recorder) Build(strategyID string, snap engine.MatchSnapshot, result engine.EvaluationResult) Trigger {
	return Trigger{
		ID:          uuid.NewString(),
		StrategyID:  strategyID,
		MatchID:     snap.ID,
		TriggeredAt: r.now().UTC(),
		Minute:      snap.Minute,
		HomeTeam:    snap.HomeTeam,
		AwayTeam:    snap.AwayTeam,
		HomeScore:   snap.HomeScore,
		AwayScore:   snap.AwayScore,
		Evidence:    BuildEvidence(snap, result),
	}
}

// Record stores a trigger for the pair. It returns the new trigger ID and
// created=true, or created=false when the pair was already recorded.
// Duplicates are never retried.
func (r *Recorder) Record(ctx context.Context, strategyID string, snap engine.MatchSnapshot, result engine.EvaluationResult) (string, bool, error) {
	t := r.Build(strategyID, snap, result)

	created, err := r.store.InsertTriggerIfAbsent(ctx, t)
	if err != nil {
		return "", false, fmt.Errorf("record trigger %s/%s: %w", strategyID, snap.ID, err)
	}
	if !created {
		r.logger.Debug("Trigger already recorded", "strategy_id", strategyID, "match_id", snap.ID)
		return "", false, nil
	}
	return t.ID, true, nil
}
