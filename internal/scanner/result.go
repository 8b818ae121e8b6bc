package scanner

import (
	"fmt"
	"time"
)

// TickResult holds the counters of one scan tick.
type TickResult struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	Strategies     int           `json:"strategies"`
	Available      int           `json:"available_fixtures"`
	Fixtures       int           `json:"fixtures"`
	Skipped        int           `json:"skipped_fixtures"`
	NotLive        int           `json:"not_live"`
	EstimatedCalls int           `json:"estimated_calls"`
	DedupHits      int           `json:"dedup_hits"`
	Evaluated      int           `json:"evaluated"`
	Passed         int           `json:"passed"`
	Triggers       int           `json:"triggers"`
	Healed         int           `json:"healed"`
	Enqueued       int           `json:"enqueued"`
	Errors         int           `json:"errors"`
	Interrupted    bool          `json:"interrupted,omitempty"`
	Err            string        `json:"error,omitempty"`
}

// Summary returns a one-line description for logs and the CLI.
func (r TickResult) Summary() string {
	if r.Err != "" {
		return "failed: " + r.Err
	}
	if r.Strategies == 0 {
		return "no active strategies"
	}
	return fmt.Sprintf("strategies=%d fixtures=%d/%d not_live=%d evaluated=%d passed=%d triggers=%d healed=%d dedup_hits=%d errors=%d",
		r.Strategies, r.Fixtures, r.Available, r.NotLive, r.Evaluated, r.Passed, r.Triggers, r.Healed, r.DedupHits, r.Errors)
}
