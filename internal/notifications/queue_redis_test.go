package notifications_test

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if reason := testutil.ContainersDisabled(ctx); reason != "" {
		fmt.Fprintf(os.Stderr, "redis queue tests skipped: %s\n", reason)
		os.Exit(m.Run())
	}

	container, err := testutil.StartContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis container unavailable, queue integration tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "6379")
	testRedis = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})

	code := m.Run()
	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func redisQueue(t *testing.T) *notifications.RedisQueue {
	t.Helper()
	if testRedis == nil {
		t.Skip("redis not available")
	}
	require.NoError(t, testRedis.FlushDB(context.Background()).Err())
	q := notifications.NewRedisQueue(testRedis)
	q.SetTimeout(200 * time.Millisecond)
	return q
}

func job(id string) notifications.Job {
	return notifications.Job{
		ID:           id,
		TriggerID:    "t-" + id,
		StrategyID:   "s1",
		StrategyName: "Late Corners",
		Match: engine.MatchSnapshot{
			ID: "19134", HomeTeam: "Arsenal", AwayTeam: "Chelsea",
			HomeScore: 1, AwayScore: 0, Minute: 67, IsLive: true,
		},
		Result: engine.EvaluationResult{
			Passed: true,
			MatchedRules: []engine.MatchedRule{
				{RuleID: "r1", Metric: "corners", Comparator: engine.CmpGTE, Target: 8, Actual: 9},
			},
		},
	}
}

type recordingSender struct{ sent []string }

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return nil
}

func TestRedisQueue_FIFO(t *testing.T) {
	q := redisQueue(t)
	ctx := context.Background()

	first, second := job("j1"), job("j2")
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
	assert.Equal(t, first.Match, got.Match)
	assert.Equal(t, first.Result, got.Result)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j2", got.ID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, notifications.ErrQueueEmpty)
}

func TestRedisQueue_DrainStopsWhenEmpty(t *testing.T) {
	q := redisQueue(t)
	// A long BRPOP wait would show up in the drain time.
	q.SetTimeout(5 * time.Second)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job("j1")))
	require.NoError(t, q.Enqueue(ctx, job("j2")))

	sender := &recordingSender{}
	d := notifications.NewDispatcher(q, sender, nil, notifications.DispatchConfig{Attempts: 1},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Now()
	sent, failed := d.Drain(ctx)
	assert.Equal(t, 2, sent)
	assert.Zero(t, failed)
	assert.Len(t, sender.sent, 2)
	assert.Less(t, time.Since(start), 2*time.Second)
}
