// Package provider defines how live match data enters the worker and holds
// helpers shared by the concrete providers (SportMonks, YAML feed).
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/TanguyDH/matchIQ/internal/engine"
)

// FetchRequest tells a provider what the active strategies need.
type FetchRequest struct {
	Requirements engine.Requirements
	// Limit caps the fixtures enriched and returned. Zero means no limit.
	Limit int
}

// Batch is the result of one fetch.
type Batch struct {
	Snapshots []engine.MatchSnapshot
	// Available is the number of live fixtures before Limit was applied.
	Available int
}

// Skipped returns how many live fixtures the limit dropped.
func (b Batch) Skipped() int {
	return b.Available - len(b.Snapshots)
}

// Provider returns normalized snapshots of currently live matches.
type Provider interface {
	FetchLiveSnapshots(ctx context.Context, req FetchRequest) (Batch, error)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator for upstream payloads.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateSnapshot checks a normalized snapshot before it reaches the engine.
func ValidateSnapshot(s engine.MatchSnapshot) error {
	if err := Validator().Struct(s); err != nil {
		return fmt.Errorf("invalid snapshot %q: %w", s.ID, err)
	}
	return nil
}

// Truncate applies a fixture limit. limit <= 0 keeps everything.
func Truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
