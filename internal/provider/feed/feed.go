// Package feed serves live snapshots from a YAML file for offline runs.
package feed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/provider"
)

//go:embed default.yaml
var defaultFeed []byte

type document struct {
	Matches []match `yaml:"matches" validate:"dive"`
}

type match struct {
	ID        string             `yaml:"id" validate:"required"`
	HomeTeam  string             `yaml:"home_team" validate:"required"`
	AwayTeam  string             `yaml:"away_team" validate:"required"`
	HomeScore int                `yaml:"home_score" validate:"gte=0"`
	AwayScore int                `yaml:"away_score" validate:"gte=0"`
	Minute    int                `yaml:"minute" validate:"gte=0,lte=130"`
	IsLive    *bool              `yaml:"is_live"`
	InPlay    map[string]float64 `yaml:"in_play"`
	PreMatch  map[string]float64 `yaml:"pre_match"`
	Odds      map[string]float64 `yaml:"odds"`
}

// Provider reads the feed file on every fetch. An empty path serves the
// built-in feed.
type Provider struct {
	path   string
	logger *slog.Logger
}

// New creates a feed provider.
func New(path string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, logger: logger}
}

// FetchLiveSnapshots returns the matches in the feed, capped at req.Limit.
// Matches marked is_live: false are returned with IsLive unset, like
// finished fixtures still listed by SportMonks; the scanner skips them.
func (p *Provider) FetchLiveSnapshots(ctx context.Context, req provider.FetchRequest) (provider.Batch, error) {
	if err := ctx.Err(); err != nil {
		return provider.Batch{}, err
	}

	data := defaultFeed
	if p.path != "" {
		b, err := os.ReadFile(p.path)
		if err != nil {
			return provider.Batch{}, fmt.Errorf("read feed: %w", err)
		}
		data = b
	}

	snaps, err := Parse(data)
	if err != nil {
		return provider.Batch{}, err
	}

	batch := provider.Batch{Available: len(snaps), Snapshots: provider.Truncate(snaps, req.Limit)}
	p.logger.Debug("Feed loaded", "path", p.path, "matches", batch.Available, "returned", len(batch.Snapshots))
	return batch, nil
}

// Parse decodes and validates a feed document.
func Parse(data []byte) ([]engine.MatchSnapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if err := provider.Validator().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid feed: %w", err)
	}

	seen := make(map[string]bool, len(doc.Matches))
	out := make([]engine.MatchSnapshot, 0, len(doc.Matches))
	for _, m := range doc.Matches {
		if seen[m.ID] {
			return nil, fmt.Errorf("invalid feed: duplicate match id %q", m.ID)
		}
		seen[m.ID] = true
		out = append(out, m.snapshot())
	}
	return out, nil
}

func (m match) snapshot() engine.MatchSnapshot {
	live := true
	if m.IsLive != nil {
		live = *m.IsLive
	}

	inPlay := copyValues(m.InPlay)
	setDefault(inPlay, "home_goals", float64(m.HomeScore))
	setDefault(inPlay, "away_goals", float64(m.AwayScore))
	setDefault(inPlay, "match_timer", float64(m.Minute))

	return engine.MatchSnapshot{
		ID:        m.ID,
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		HomeScore: m.HomeScore,
		AwayScore: m.AwayScore,
		Minute:    m.Minute,
		IsLive:    live,
		InPlay:    inPlay,
		PreMatch:  copyValues(m.PreMatch),
		Odds:      copyValues(m.Odds),
	}
}

func copyValues(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func setDefault(m map[string]float64, key string, v float64) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}
