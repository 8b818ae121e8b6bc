// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and the embedded schema.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TanguyDH/matchIQ/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Migrate applies the embedded schema over a single connection. The schema
// is idempotent, so running it against an up-to-date database is a no-op.
// It runs before New so the prepared statements find their tables.
func Migrate(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// registerPreparedStatements registers all statements the scanner, the
// delivery workers and the status API use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Strategies
		"active_strategies": `SELECT id, user_id, name, mode, alert_type, is_active
			FROM strategies WHERE is_active = true AND alert_type = $1 ORDER BY created_at, id`,
		"strategy_rules": `SELECT id, strategy_id, value_type, metric, comparator, value, team_scope, time_filter
			FROM rules WHERE strategy_id = ANY($1) ORDER BY strategy_id, position, id`,
		"strategy_name": "SELECT name FROM strategies WHERE id = $1",

		// Triggers
		"insert_trigger": `INSERT INTO triggers (id, strategy_id, match_id, triggered_at, minute,
				home_team, away_team, home_score, away_score, evidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (strategy_id, match_id) DO NOTHING
			RETURNING id`,
		"recent_triggers": `SELECT id, strategy_id, match_id, triggered_at, minute,
				home_team, away_team, home_score, away_score, evidence
			FROM triggers ORDER BY triggered_at DESC, id LIMIT $1`,

		// Performance
		"increment_performance": `INSERT INTO performance (strategy_id, total_triggers, updated_at)
			VALUES ($1, 1, now())
			ON CONFLICT (strategy_id) DO UPDATE SET
				total_triggers = performance.total_triggers + 1,
				hit_rate = round(performance.total_hits * 100.0 / (performance.total_triggers + 1), 2),
				updated_at = now()
			RETURNING total_triggers`,

		// Deliveries
		"record_delivery": `INSERT INTO alert_deliveries (trigger_id, strategy_id, match_id, status, attempts, last_error)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		"purge_deliveries": "DELETE FROM alert_deliveries WHERE created_at < $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
