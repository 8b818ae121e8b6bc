package trigger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func passedSnapshot() (engine.MatchSnapshot, engine.EvaluationResult) {
	snap := engine.MatchSnapshot{
		ID: "19134", HomeTeam: "Lyon", AwayTeam: "Nice",
		HomeScore: 0, AwayScore: 0, Minute: 67, IsLive: true,
		InPlay: map[string]float64{
			"home_corners": 5, "away_corners": 4,
			"home_fouls": 9, "away_fouls": 11,
			"match_timer": 67,
		},
		PreMatch: map[string]float64{"home_win_probability": 48},
		Odds:     map[string]float64{"draw": 3.1, "home_win": 2.2},
	}
	result := engine.EvaluationResult{
		Passed: true,
		MatchedRules: []engine.MatchedRule{
			{RuleID: "r1", Metric: "corners", Comparator: engine.CmpGTE, Target: 8, Actual: 9},
			{RuleID: "r2", Metric: "draw", Comparator: engine.CmpGT, Target: 3, Actual: 3.1},
		},
	}
	return snap, result
}

func TestBuildEvidence_Minimal(t *testing.T) {
	snap, result := passedSnapshot()
	ev := trigger.BuildEvidence(snap, result)

	assert.Equal(t, map[string]float64{"home_corners": 5, "away_corners": 4}, ev.Stats)
	assert.Empty(t, ev.PreMatch)
	assert.Equal(t, map[string]float64{"draw": 3.1}, ev.Odds)
	assert.Equal(t, result.MatchedRules, ev.MatchedRules)

	// Evidence does not alias the result.
	ev.MatchedRules[0].Actual = 100
	assert.Equal(t, 9.0, result.MatchedRules[0].Actual)
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	store := trigger.NewMemoryStore()
	rec := trigger.NewRecorder(store, quiet)
	snap, result := passedSnapshot()

	id, created, err := rec.Record(ctx, "s1", snap, result)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	id, created, err = rec.Record(ctx, "s1", snap, result)
	require.NoError(t, err, "a duplicate is not an error")
	assert.False(t, created)
	assert.Empty(t, id)
	assert.Equal(t, 1, store.Len())

	_, created, err = rec.Record(ctx, "s2", snap, result)
	require.NoError(t, err)
	assert.True(t, created)

	recent, err := store.RecentTriggers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 67, recent[0].Minute)
	assert.Equal(t, "Lyon", recent[0].HomeTeam)
}

type failingStore struct{}

func (failingStore) InsertTriggerIfAbsent(context.Context, trigger.Trigger) (bool, error) {
	return false, errors.New("connection reset")
}

func TestRecorder_StoreError(t *testing.T) {
	rec := trigger.NewRecorder(failingStore{}, quiet)
	snap, result := passedSnapshot()

	_, created, err := rec.Record(context.Background(), "s1", snap, result)
	require.Error(t, err)
	assert.False(t, created)
	assert.Contains(t, err.Error(), "s1/19134")
}
