// Package listener provides a Postgres LISTEN/NOTIFY consumer for strategy
// changes. It holds a dedicated pgx connection (not from the pool) listening
// on the `strategies_changed` channel.
//
// Triggers on the strategies and rules tables fire pg_notify when a strategy
// or one of its rules is written. The worker reacts by scanning right away
// instead of waiting for the next poll interval.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	Channel          = "strategies_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Event is the JSON payload from pg_notify('strategies_changed', ...).
type Event struct {
	Table      string `json:"table"`
	Op         string `json:"op"`
	StrategyID string `json:"strategy_id"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("parse %s payload: %w", Channel, err)
	}
	if ev.StrategyID == "" {
		return Event{}, fmt.Errorf("parse %s payload: missing strategy_id", Channel)
	}
	return ev, nil
}

// Start opens a dedicated connection and listens on the strategies_changed
// channel, calling onChange for every valid event. onChange runs on the
// listener goroutine and must not block. It reconnects automatically on
// connection loss. Blocks until ctx is cancelled.
func Start(ctx context.Context, dbURL string, onChange func(Event), logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, onChange, logger)
		if ctx.Err() != nil {
			logger.Info("Strategy listener stopped")
			return
		}

		logger.Error("Strategy listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, onChange func(Event), logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Strategy listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		ev, err := ParseEvent(notification.Payload)
		if err != nil {
			logger.Warn("Ignoring strategy event", "payload", notification.Payload, "error", err)
			continue
		}

		logger.Debug("Strategy change received",
			"table", ev.Table, "op", ev.Op, "strategy_id", ev.StrategyID)
		onChange(ev)
	}
}
