// Package notifications delivers trigger alerts.
//
// Pipeline: scanner enqueues a Job → dispatcher workers dequeue → format →
// send with retries → record the delivery outcome. Jobs are independent of
// the scan tick that produced them; a slow or failing channel never blocks
// scanning.
package notifications

import (
	"context"
	"time"

	"github.com/TanguyDH/matchIQ/internal/engine"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultAttempts    = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultConcurrency = 5

	// Longest wait between two send attempts.
	maxBackoff = time.Minute

	// Redis list holding queued jobs.
	queueKey = "matchiq:queue:send-alert"

	dequeueTimeout  = 5 * time.Second
	dequeueErrPause = time.Second
	replayPause     = time.Second
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Job is one alert to deliver.
type Job struct {
	ID           string                  `json:"id"`
	TriggerID    string                  `json:"trigger_id"`
	StrategyID   string                  `json:"strategy_id"`
	StrategyName string                  `json:"strategy_name"`
	Match        engine.MatchSnapshot    `json:"match"`
	Result       engine.EvaluationResult `json:"result"`
	EnqueuedAt   time.Time               `json:"enqueued_at"`
}

// Status of a finished delivery.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Delivery is the final outcome of a job.
type Delivery struct {
	TriggerID  string
	StrategyID string
	MatchID    string
	Status     Status
	Attempts   int
	LastError  string
}

// DeliveryLog persists delivery outcomes.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d Delivery) error
}
