// Package store is the Postgres-backed strategy source and durable trigger
// store. All queries go through the statements prepared by package db.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TanguyDH/matchIQ/internal/db"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// pairKey is the unique (strategy_id, match_id) constraint on triggers.
const pairKey = "triggers_strategy_match_key"

// Store reads strategies and writes triggers, performance and deliveries.
type Store struct {
	pool *db.Pool
}

// New wraps a connected pool.
func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// --------------------------------------------------------------------------
// Strategies
// --------------------------------------------------------------------------

// ListActiveStrategies returns active strategies of the given alert type,
// each with its rules in stored order.
func (s *Store) ListActiveStrategies(ctx context.Context, alertType engine.ValueType) ([]engine.Strategy, error) {
	rows, err := s.pool.Query(ctx, "active_strategies", string(alertType))
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	strategies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (engine.Strategy, error) {
		var st engine.Strategy
		err := row.Scan(&st.ID, &st.OwnerID, &st.Name, &st.Mode, &st.AlertType, &st.IsActive)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan strategies: %w", err)
	}
	if len(strategies) == 0 {
		return nil, nil
	}

	ids := make([]string, len(strategies))
	index := make(map[string]int, len(strategies))
	for i, st := range strategies {
		ids[i] = st.ID
		index[st.ID] = i
	}

	rows, err = s.pool.Query(ctx, "strategy_rules", ids)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("scan rules: %w", err)
	}
	for _, r := range rules {
		if i, ok := index[r.StrategyID]; ok {
			strategies[i].Rules = append(strategies[i].Rules, r)
		}
	}
	return strategies, nil
}

func scanRule(row pgx.CollectableRow) (engine.Rule, error) {
	var (
		r          engine.Rule
		valueType  string
		comparator string
		scope      *string
		timeFilter *string
	)
	if err := row.Scan(&r.ID, &r.StrategyID, &valueType, &r.Metric, &comparator, &r.Value, &scope, &timeFilter); err != nil {
		return r, err
	}
	r.ValueType = engine.ValueType(valueType)
	r.Comparator = engine.Comparator(comparator)
	if scope != nil {
		r.TeamScope = engine.TeamScope(*scope)
	}
	if timeFilter != nil {
		r.TimeFilter = *timeFilter
	}
	return r, nil
}

// StrategyName returns a strategy's name, or ErrNotFound.
func (s *Store) StrategyName(ctx context.Context, strategyID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, "strategy_name", strategyID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("strategy name %s: %w", strategyID, err)
	}
	return name, nil
}

// --------------------------------------------------------------------------
// Triggers
// --------------------------------------------------------------------------

// InsertTriggerIfAbsent implements trigger.Store. The unique
// (strategy_id, match_id) constraint arbitrates concurrent writers.
func (s *Store) InsertTriggerIfAbsent(ctx context.Context, t trigger.Trigger) (bool, error) {
	evidence, err := json.Marshal(t.Evidence)
	if err != nil {
		return false, fmt.Errorf("encode evidence: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx, "insert_trigger",
		t.ID, t.StrategyID, t.MatchID, t.TriggeredAt, t.Minute,
		t.HomeTeam, t.AwayTeam, t.HomeScore, t.AwayScore, evidence,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case isPairConflict(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("insert trigger: %w", err)
	}
	return true, nil
}

// RecentTriggers returns up to limit triggers, newest first.
func (s *Store) RecentTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error) {
	rows, err := s.pool.Query(ctx, "recent_triggers", limit)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (trigger.Trigger, error) {
		var (
			t        trigger.Trigger
			evidence []byte
		)
		if err := row.Scan(&t.ID, &t.StrategyID, &t.MatchID, &t.TriggeredAt, &t.Minute,
			&t.HomeTeam, &t.AwayTeam, &t.HomeScore, &t.AwayScore, &evidence); err != nil {
			return t, err
		}
		if err := json.Unmarshal(evidence, &t.Evidence); err != nil {
			return t, fmt.Errorf("decode evidence for %s: %w", t.ID, err)
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan triggers: %w", err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Performance
// --------------------------------------------------------------------------

// IncrementTriggerCount atomically bumps the strategy's trigger counter,
// creating the performance row on first use.
func (s *Store) IncrementTriggerCount(ctx context.Context, strategyID string) error {
	var total int
	if err := s.pool.QueryRow(ctx, "increment_performance", strategyID).Scan(&total); err != nil {
		return fmt.Errorf("increment performance %s: %w", strategyID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Deliveries
// --------------------------------------------------------------------------

// RecordDelivery implements notifications.DeliveryLog.
func (s *Store) RecordDelivery(ctx context.Context, d notifications.Delivery) error {
	var lastErr *string
	if d.LastError != "" {
		lastErr = &d.LastError
	}
	if _, err := s.pool.Exec(ctx, "record_delivery",
		d.TriggerID, d.StrategyID, d.MatchID, string(d.Status), d.Attempts, lastErr,
	); err != nil {
		return fmt.Errorf("record delivery %s: %w", d.TriggerID, err)
	}
	return nil
}

// PurgeDeliveries deletes delivery rows older than the cutoff and returns
// how many were removed.
func (s *Store) PurgeDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "purge_deliveries", olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isPairConflict reports a unique violation on the pair key only. Any other
// violation, such as a trigger ID clash, means the pair was not recorded.
func isPairConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == pairKey
}
