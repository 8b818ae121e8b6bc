// Package dedup guarantees at most one durable trigger per (strategy, match).
//
// The durable insert-if-absent is the source of truth. A volatile TTL key in
// front of it lets a tick skip evaluation for pairs already recorded. The key
// is only ever set after the durable record is known to exist, so a lost or
// evicted key costs one extra evaluation, never a duplicate trigger.
//
//	unseen --Check: miss--> unseen
//	unseen --Check: hit--> recorded           (pair skipped)
//	unseen --Commit: inserted--> recorded     (volatile key set)
//	unseen --Commit: duplicate--> recorded    (volatile key set, self-heal)
//	unseen --Commit: insert error--> unseen   (nothing set, retried next tick)
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a volatile dedup key lives.
const DefaultTTL = 2 * time.Hour

// Cache is the volatile key store behind the gate.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetTTL(ctx context.Context, key string, ttl time.Duration) error
}

// State is the dedup state of a pair as far as the gate can tell.
type State int

const (
	StateUnseen State = iota
	StateRecorded
)

func (s State) String() string {
	if s == StateRecorded {
		return "recorded"
	}
	return "unseen"
}

// Transition names the edge a Check or Commit took.
type Transition string

const (
	TransitionMiss     Transition = "miss"
	TransitionHit      Transition = "hit"
	TransitionRecorded Transition = "recorded"
	TransitionHealed   Transition = "healed"
)

// InsertFunc performs the durable insert-if-absent. It returns the new
// record's ID and created=true, or created=false when the record already
// existed.
type InsertFunc func(ctx context.Context) (id string, created bool, err error)

// Outcome is the result of a Commit.
type Outcome struct {
	Transition Transition
	TriggerID  string // set when Transition is TransitionRecorded
	// MarkErr is set when the durable record exists but the volatile key
	// could not be written. The pair will be re-evaluated next tick and
	// the durable layer will reject it again.
	MarkErr error
}

// Created reports whether Commit produced a new durable record.
func (o Outcome) Created() bool { return o.Transition == TransitionRecorded }

// Gate runs the dedup state machine.
type Gate struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewGate creates a Gate. A non-positive ttl uses DefaultTTL.
func NewGate(cache Cache, ttl time.Duration, logger *slog.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{cache: cache, ttl: ttl, logger: logger}
}

// Key returns the volatile key for a pair.
func Key(strategyID, matchID string) string {
	return fmt.Sprintf("dedup:%s:%s", strategyID, matchID)
}

// TTL returns the configured key lifetime.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Check is the fast path. Cache failures are logged and treated as a miss:
// the durable layer still prevents duplicates.
func (g *Gate) Check(ctx context.Context, strategyID, matchID string) (State, Transition) {
	key := Key(strategyID, matchID)
	hit, err := g.cache.Exists(ctx, key)
	if err != nil {
		g.logger.Warn("Dedup cache check failed, evaluating anyway", "key", key, "error", err)
		return StateUnseen, TransitionMiss
	}
	if hit {
		return StateRecorded, TransitionHit
	}
	return StateUnseen, TransitionMiss
}

// Commit runs the durable insert and marks the volatile key when the pair is
// durably recorded, whether by this insert or an earlier one. An insert error
// is returned as-is and leaves the pair unseen.
func (g *Gate) Commit(ctx context.Context, strategyID, matchID string, insert InsertFunc) (Outcome, error) {
	id, created, err := insert(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("durable insert: %w", err)
	}

	out := Outcome{Transition: TransitionHealed}
	if created {
		out = Outcome{Transition: TransitionRecorded, TriggerID: id}
	}

	key := Key(strategyID, matchID)
	if err := g.cache.SetTTL(ctx, key, g.ttl); err != nil {
		g.logger.Warn("Dedup cache mark failed", "key", key, "transition", out.Transition, "error", err)
		out.MarkErr = err
	}
	return out, nil
}
