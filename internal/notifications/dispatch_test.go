package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedSender fails the first failures calls, then succeeds.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
	block    chan struct{} // when set, Send waits on it
}

func (s *scriptedSender) Send(_ context.Context, text string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("telegram: 502 bad gateway")
	}
	s.sent = append(s.sent, text)
	return nil
}

type memoryDeliveryLog struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (l *memoryDeliveryLog) RecordDelivery(_ context.Context, d Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, d)
	return nil
}

func (l *memoryDeliveryLog) all() []Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Delivery(nil), l.deliveries...)
}

func newTestDispatcher(sender Sender, log DeliveryLog) (*Dispatcher, *[]time.Duration) {
	var delays []time.Duration
	d := NewDispatcher(NewMemoryQueue(16), sender, log, DefaultDispatchConfig(), quiet)
	d.sleep = func(_ context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}
	return d, &delays
}

func sampleJob() Job {
	match, result := sampleAlert()
	return Job{ID: "j1", TriggerID: "t1", StrategyID: "s1", StrategyName: "Late Corners", Match: match, Result: result}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	sender := &scriptedSender{failures: 2}
	log := &memoryDeliveryLog{}
	d, delays := newTestDispatcher(sender, log)

	err := d.Process(context.Background(), sampleJob())
	require.NoError(t, err)

	assert.Equal(t, 3, sender.calls)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)

	require.Len(t, log.all(), 1)
	assert.Equal(t, StatusSent, log.all()[0].Status)
	assert.Equal(t, 3, log.all()[0].Attempts)
}

func TestDispatcher_PermanentFailure(t *testing.T) {
	sender := &scriptedSender{failures: 10}
	log := &memoryDeliveryLog{}
	d, delays := newTestDispatcher(sender, log)

	err := d.Process(context.Background(), sampleJob())
	require.Error(t, err)

	assert.Equal(t, DefaultAttempts, sender.calls)
	assert.Len(t, *delays, DefaultAttempts-1)

	got := log.all()
	require.Len(t, got, 1)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, "t1", got[0].TriggerID)
	assert.Equal(t, "19134", got[0].MatchID)
	assert.Contains(t, got[0].LastError, "502")
}

func TestDispatcher_FormatErrorFailsOnlyThatJob(t *testing.T) {
	sender := &scriptedSender{}
	log := &memoryDeliveryLog{}
	d, delays := newTestDispatcher(sender, log)

	bad := sampleJob()
	bad.StrategyName = ""
	require.ErrorIs(t, d.Process(context.Background(), bad), ErrMalformedAlert)
	assert.Zero(t, sender.calls, "malformed jobs are never sent")
	assert.Empty(t, *delays, "malformed jobs are never retried")

	require.NoError(t, d.Process(context.Background(), sampleJob()))
	assert.Equal(t, 1, sender.calls)

	got := log.all()
	require.Len(t, got, 2)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, StatusSent, got[1].Status)
}

func TestDispatcher_Backoff(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), &scriptedSender{}, nil, DispatchConfig{Attempts: 5, BaseDelay: time.Second}, quiet)
	assert.Equal(t, time.Second, d.Backoff(1))
	assert.Equal(t, 2*time.Second, d.Backoff(2))
	assert.Equal(t, 8*time.Second, d.Backoff(4))
}

func TestDispatcher_BackoffCapped(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), &scriptedSender{}, nil, DispatchConfig{Attempts: 40, BaseDelay: 2 * time.Second}, quiet)

	assert.Equal(t, 32*time.Second, d.Backoff(5))
	assert.Equal(t, maxBackoff, d.Backoff(6))
	for _, attempt := range []int{12, 30, 34, 39, 64, 1000} {
		assert.Equal(t, maxBackoff, d.Backoff(attempt), "attempt %d", attempt)
	}

	huge := NewDispatcher(NewMemoryQueue(1), &scriptedSender{}, nil, DispatchConfig{BaseDelay: time.Hour}, quiet)
	assert.Equal(t, maxBackoff, huge.Backoff(1))
}

func TestDispatcher_CancelledBackoffStopsRetries(t *testing.T) {
	sender := &scriptedSender{failures: 10}
	log := &memoryDeliveryLog{}
	d := NewDispatcher(NewMemoryQueue(1), sender, log, DispatchConfig{Attempts: 5, BaseDelay: time.Hour}, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Process(ctx, sampleJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, sender.calls)

	got := log.all()
	require.Len(t, got, 1)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, 1, got[0].Attempts)
}

func TestDispatcher_RunConcurrentAndDrains(t *testing.T) {
	release := make(chan struct{})
	sender := &scriptedSender{block: release}
	queue := NewMemoryQueue(16)
	d := NewDispatcher(queue, sender, nil, DispatchConfig{Concurrency: 3}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(ctx, sampleJob()))
	}

	var done atomic.Bool
	go func() {
		d.Run(ctx)
		done.Store(true)
	}()

	// All three jobs are picked up concurrently while the sender blocks.
	require.Eventually(t, func() bool { return queue.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Shutdown does not abort in-flight jobs.
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, done.Load())

	close(release)
	require.Eventually(t, done.Load, 2*time.Second, 10*time.Millisecond)
	sender.mu.Lock()
	assert.Len(t, sender.sent, 3)
	sender.mu.Unlock()
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Job{ID: "b"}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, q.Enqueue(ctx, Job{ID: "c"}))
	assert.ErrorIs(t, q.Enqueue(cancelled, Job{ID: "d"}), context.Canceled)
}

func TestDispatcher_Drain(t *testing.T) {
	sender := &scriptedSender{}
	queue := NewMemoryQueue(4)
	d := NewDispatcher(queue, sender, nil, DispatchConfig{Attempts: 1}, quiet)

	ctx := context.Background()
	good := sampleJob()
	bad := sampleJob()
	bad.StrategyName = ""
	require.NoError(t, queue.Enqueue(ctx, good))
	require.NoError(t, queue.Enqueue(ctx, bad))
	require.NoError(t, queue.Enqueue(ctx, good))

	start := time.Now()
	sent, failed := d.Drain(ctx)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.Zero(t, queue.Len())
	assert.Less(t, time.Since(start), dequeueTimeout, "an empty memory queue ends the drain at once")
}

// countedQueue reports its depth through Len(ctx), like RedisQueue.
type countedQueue struct {
	*MemoryQueue
	dequeues atomic.Int32
}

func (q *countedQueue) Len(context.Context) (int64, error) {
	return int64(q.MemoryQueue.Len()), nil
}

func (q *countedQueue) Dequeue(ctx context.Context) (Job, error) {
	q.dequeues.Add(1)
	return q.MemoryQueue.Dequeue(ctx)
}

func TestDispatcher_DrainChecksContextLen(t *testing.T) {
	queue := &countedQueue{MemoryQueue: NewMemoryQueue(4)}
	sender := &scriptedSender{}
	d := NewDispatcher(queue, sender, nil, DispatchConfig{Attempts: 1}, quiet)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, sampleJob()))

	start := time.Now()
	sent, failed := d.Drain(ctx)
	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	assert.Equal(t, int32(1), queue.dequeues.Load(), "no blocking dequeue once the queue reports empty")
	assert.Less(t, time.Since(start), dequeueTimeout)
}
