package scanner_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanguyDH/matchIQ/internal/cache"
	"github.com/TanguyDH/matchIQ/internal/dedup"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/provider"
	"github.com/TanguyDH/matchIQ/internal/scanner"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type staticStrategies struct {
	list []engine.Strategy
	err  error
}

func (s *staticStrategies) ListActiveStrategies(context.Context, engine.ValueType) ([]engine.Strategy, error) {
	return s.list, s.err
}

type fakeProvider struct {
	mu    sync.Mutex
	snaps []engine.MatchSnapshot
	err   error
	reqs  []provider.FetchRequest
	// onFetch runs after the request is recorded, e.g. to cancel a context.
	onFetch func()
}

func (p *fakeProvider) FetchLiveSnapshots(_ context.Context, req provider.FetchRequest) (provider.Batch, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if p.onFetch != nil {
		p.onFetch()
	}
	if p.err != nil {
		return provider.Batch{}, p.err
	}
	return provider.Batch{Available: len(p.snaps), Snapshots: provider.Truncate(p.snaps, req.Limit)}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

// failingStore fails inserts for one match ID.
type failingStore struct {
	*trigger.MemoryStore
	failMatch string
}

func (f *failingStore) InsertTriggerIfAbsent(ctx context.Context, t trigger.Trigger) (bool, error) {
	if t.MatchID == f.failMatch {
		return false, errors.New("connection reset")
	}
	return f.MemoryStore.InsertTriggerIfAbsent(ctx, t)
}

type harness struct {
	strategies *staticStrategies
	provider   *fakeProvider
	cache      *cache.Memory
	store      *trigger.MemoryStore
	queue      *notifications.MemoryQueue
	scanner    *scanner.Scanner
}

func newHarness(t *testing.T, strategies []engine.Strategy, snaps []engine.MatchSnapshot, opts ...func(*scanner.Deps)) *harness {
	t.Helper()
	h := &harness{
		strategies: &staticStrategies{list: strategies},
		provider:   &fakeProvider{snaps: snaps},
		cache:      cache.NewMemory(),
		store:      trigger.NewMemoryStore(),
		queue:      notifications.NewMemoryQueue(100),
	}
	t.Cleanup(func() { _ = h.cache.Close() })

	deps := scanner.Deps{
		Strategies: h.strategies,
		Provider:   h.provider,
		Evaluator:  engine.NewEvaluator(engine.DefaultCatalog(), quiet),
		Gate:       dedup.NewGate(h.cache, time.Hour, quiet),
		Recorder:   trigger.NewRecorder(h.store, quiet),
		Queue:      h.queue,
		Counter:    h.store,
	}
	for _, o := range opts {
		o(&deps)
	}
	h.scanner = scanner.New(deps, scanner.Config{AlertType: engine.ValueInPlay, FixtureLimit: 10}, quiet)
	return h
}

func goalsAndCorners() engine.Strategy {
	return engine.Strategy{
		ID:   "s1",
		Name: "Home pressing",
		Rules: []engine.Rule{
			{ID: "r1", ValueType: engine.ValueInPlay, Metric: "goals", Comparator: engine.CmpGTE, Value: 2, TeamScope: engine.ScopeHome},
			{ID: "r2", ValueType: engine.ValueInPlay, Metric: "corners", Comparator: engine.CmpEQ, Value: 3, TeamScope: engine.ScopeAway},
		},
	}
}

func match(id string, homeGoals float64) engine.MatchSnapshot {
	return engine.MatchSnapshot{
		ID:        id,
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: int(homeGoals),
		AwayScore: 1,
		Minute:    60,
		IsLive:    true,
		InPlay: map[string]float64{
			"home_goals": homeGoals, "away_goals": 1,
			"home_corners": 5, "away_corners": 3,
			"home_fouls": 9,
		},
		PreMatch: map[string]float64{},
		Odds:     map[string]float64{},
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRunOnce_TriggersAndEnqueues(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2), match("m2", 1)})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Strategies)
	assert.Equal(t, 2, res.Fixtures)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Triggers)
	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, 0, res.Errors)

	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.store.TriggerCount("s1"))
	require.Equal(t, 1, h.queue.Len())

	job, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Home pressing", job.StrategyName)
	assert.Equal(t, "m1", job.Match.ID)
	assert.NotEmpty(t, job.TriggerID)
	require.Len(t, job.Result.MatchedRules, 2)
	assert.Equal(t, 2.0, job.Result.MatchedRules[0].Actual)
	assert.Equal(t, 3.0, job.Result.MatchedRules[1].Actual)

	stored, err := h.store.RecentTriggers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, job.TriggerID, stored[0].ID)
	assert.NotContains(t, stored[0].Evidence.Stats, "home_fouls", "evidence keeps only matched metrics")
	assert.Contains(t, stored[0].Evidence.Stats, "away_corners")
}

func TestRunOnce_Idempotent(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2)})
	ctx := context.Background()

	_, err := h.scanner.RunOnce(ctx)
	require.NoError(t, err)

	res, err := h.scanner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DedupHits)
	assert.Equal(t, 0, res.Evaluated)

	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.queue.Len())
	assert.Equal(t, 1, h.store.TriggerCount("s1"))
}

func TestRunOnce_IdempotentAfterCacheLoss(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2)})
	ctx := context.Background()

	_, err := h.scanner.RunOnce(ctx)
	require.NoError(t, err)
	h.cache.Flush()

	res, err := h.scanner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 0, res.Triggers)
	assert.Equal(t, 1, res.Healed)

	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.queue.Len(), "healed pair enqueues nothing")
	assert.Equal(t, 1, h.store.TriggerCount("s1"))

	ok, err := h.cache.Exists(ctx, dedup.Key("s1", "m1"))
	require.NoError(t, err)
	assert.True(t, ok, "dedup key restored")
}

func TestRunOnce_NoStrategies(t *testing.T) {
	h := newHarness(t, nil, []engine.MatchSnapshot{match("m1", 2)})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Strategies)
	assert.Equal(t, 0, h.provider.calls(), "no fetch without strategies")
	assert.Equal(t, "no active strategies", res.Summary())
}

func TestRunOnce_StrategyWithoutRulesSkipped(t *testing.T) {
	h := newHarness(t, []engine.Strategy{{ID: "empty", Name: "Empty"}}, []engine.MatchSnapshot{match("m1", 2)})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, 0, h.store.Len())
}

func TestRunOnce_FixtureLimitAndPlan(t *testing.T) {
	odds := engine.Strategy{ID: "s2", Name: "Odds", Rules: []engine.Rule{
		{ID: "o1", ValueType: engine.ValueOdds, Metric: "draw", Comparator: engine.CmpGT, Value: 100},
	}}
	var snaps []engine.MatchSnapshot
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		snaps = append(snaps, match(id, 0))
	}
	h := newHarness(t, []engine.Strategy{goalsAndCorners(), odds}, snaps)

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Available)
	assert.Equal(t, 10, res.Fixtures)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 20, res.Evaluated)
	assert.Equal(t, 1+10+10, res.EstimatedCalls)

	require.Equal(t, 1, h.provider.calls())
	req := h.provider.reqs[0]
	assert.Equal(t, 10, req.Limit)
	assert.True(t, req.Requirements.NeedsStats)
	assert.True(t, req.Requirements.NeedsOdds)
	assert.False(t, req.Requirements.NeedsPreMatch)
}

func TestRunOnce_FetchFailureFailsTick(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, nil)
	h.provider.err = errors.New("upstream 503")

	res, err := h.scanner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")
	assert.Contains(t, res.Summary(), "failed")

	last := h.scanner.LastResult()
	require.NotNil(t, last)
	assert.NotEmpty(t, last.Err)
}

func TestRunOnce_StrategyLoadFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.strategies.err = errors.New("db down")

	_, err := h.scanner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load strategies")
}

func TestRunOnce_PairFailureDoesNotAbortTick(t *testing.T) {
	var fs *failingStore
	h := newHarness(t, []engine.Strategy{goalsAndCorners()},
		[]engine.MatchSnapshot{match("bad", 2), match("good", 2)},
		func(d *scanner.Deps) {
			fs = &failingStore{MemoryStore: trigger.NewMemoryStore(), failMatch: "bad"}
			d.Recorder = trigger.NewRecorder(fs, quiet)
			d.Counter = fs
		})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Triggers)
	assert.Equal(t, 1, fs.Len())
	assert.Equal(t, 1, h.queue.Len())

	ok, err := h.cache.Exists(context.Background(), dedup.Key("s1", "bad"))
	require.NoError(t, err)
	assert.False(t, ok, "failed insert leaves the pair unseen")
}

func TestRunOnce_InvalidSnapshotSkipped(t *testing.T) {
	bad := match("", 2)
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{bad, match("m1", 2)})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Triggers)
}

func TestRunOnce_NotLiveSkipped(t *testing.T) {
	finished := match("m-ft", 3)
	finished.IsLive = false
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{finished, match("m1", 2)})

	res, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fixtures)
	assert.Equal(t, 1, res.NotLive)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Triggers)
	assert.Zero(t, res.Errors)
	assert.Contains(t, res.Summary(), "not_live=1")

	snaps := h.scanner.LastSnapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "m1", snaps[0].ID)

	ok, err := h.cache.Exists(context.Background(), dedup.Key("s1", "m-ft"))
	require.NoError(t, err)
	assert.False(t, ok, "a match that is not live is never recorded")
}

func TestRunOnce_ShutdownStopsAcceptingPairs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2), match("m2", 2)})
	h.provider.onFetch = cancel

	res, err := h.scanner.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, 0, h.store.Len())
}

func TestLastSnapshots(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 1)})
	assert.Nil(t, h.scanner.LastResult())
	assert.Empty(t, h.scanner.LastSnapshots())

	_, err := h.scanner.RunOnce(context.Background())
	require.NoError(t, err)

	snaps := h.scanner.LastSnapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "m1", snaps[0].ID)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2)})

	require.NoError(t, h.scanner.Start(context.Background(), time.Hour))
	assert.ErrorIs(t, h.scanner.Start(context.Background(), time.Hour), scanner.ErrRunning)

	require.Eventually(t, func() bool { return h.scanner.LastResult() != nil }, 2*time.Second, 10*time.Millisecond,
		"first tick runs immediately")
	h.scanner.Stop()
	h.scanner.Stop()

	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.provider.calls())

	require.NoError(t, h.scanner.Start(context.Background(), time.Hour), "restart after stop")
	h.scanner.Stop()
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.scanner.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		r := h.scanner.LastResult()
		return r != nil
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestKick_RunsEarlyTick(t *testing.T) {
	h := newHarness(t, []engine.Strategy{goalsAndCorners()}, []engine.MatchSnapshot{match("m1", 2)})

	h.scanner.Kick()
	h.scanner.Kick() // merged with the pending request, never blocks

	require.NoError(t, h.scanner.Start(context.Background(), time.Hour))
	defer h.scanner.Stop()

	// Immediate tick plus the pending kick.
	require.Eventually(t, func() bool { return h.provider.calls() == 2 }, 2*time.Second, 10*time.Millisecond)

	h.scanner.Kick()
	require.Eventually(t, func() bool { return h.provider.calls() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.store.Len(), "extra ticks never duplicate triggers")
}
