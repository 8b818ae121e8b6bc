package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/provider"
)

// Parallel per-fixture detail requests. The rate limiter still bounds the
// overall request rate.
const detailConcurrency = 4

// LiveProvider implements provider.Provider over the SportMonks API.
type LiveProvider struct {
	client *Client
	logger *slog.Logger
}

// NewLiveProvider creates a provider on top of client.
func NewLiveProvider(client *Client, logger *slog.Logger) *LiveProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveProvider{client: client, logger: logger}
}

// FetchLiveSnapshots lists in-play fixtures, applies the fixture limit, then
// fetches odds and predictions only for the kept fixtures and only when
// the requirements ask for them. Any upstream or validation failure fails
// the whole fetch.
func (p *LiveProvider) FetchLiveSnapshots(ctx context.Context, req provider.FetchRequest) (provider.Batch, error) {
	fixtures, err := p.fetchInPlay(ctx, req.Requirements.NeedsStats)
	if err != nil {
		return provider.Batch{}, err
	}

	batch := provider.Batch{Available: len(fixtures)}
	kept := provider.Truncate(fixtures, req.Limit)

	batch.Snapshots = make([]engine.MatchSnapshot, len(kept))
	for i, raw := range kept {
		snap, err := normalizeFixture(raw)
		if err != nil {
			return provider.Batch{}, err
		}
		batch.Snapshots[i] = snap
	}

	if !req.Requirements.NeedsOdds && !req.Requirements.NeedsPreMatch {
		return batch, nil
	}

	includes := make([]string, 0, 2)
	if req.Requirements.NeedsOdds {
		includes = append(includes, "odds")
	}
	if req.Requirements.NeedsPreMatch {
		includes = append(includes, "predictions")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i := range batch.Snapshots {
		snap := &batch.Snapshots[i]
		g.Go(func() error {
			detail, err := p.fetchDetail(gctx, snap.ID, includes)
			if err != nil {
				return err
			}
			if req.Requirements.NeedsOdds {
				snap.Odds = normalizeOdds(detail.Odds)
			}
			if req.Requirements.NeedsPreMatch {
				snap.PreMatch = normalizePredictions(detail.Predictions)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return provider.Batch{}, err
	}
	return batch, nil
}

func (p *LiveProvider) fetchInPlay(ctx context.Context, withStats bool) ([]smFixtureRaw, error) {
	include := "participants;scores;state"
	if withStats {
		include += ";statistics"
	}
	resp, err := p.client.get(ctx, "livescores_inplay", "/livescores/inplay", url.Values{"include": {include}})
	if err != nil {
		return nil, fmt.Errorf("fetch live fixtures: %w", err)
	}

	// An empty livescore list comes back without data and with a message.
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		if resp.Message != "" {
			p.logger.Debug("No live fixtures", "message", resp.Message)
		}
		return nil, nil
	}

	var fixtures []smFixtureRaw
	if err := json.Unmarshal(resp.Data, &fixtures); err != nil {
		return nil, fmt.Errorf("decode live fixtures: %w", err)
	}
	for _, f := range fixtures {
		if err := provider.Validator().Struct(f); err != nil {
			return nil, fmt.Errorf("invalid live fixture %d: %w", f.ID, err)
		}
	}
	return fixtures, nil
}

func (p *LiveProvider) fetchDetail(ctx context.Context, fixtureID string, includes []string) (*smFixtureDetailRaw, error) {
	if _, err := strconv.ParseInt(fixtureID, 10, 64); err != nil {
		return nil, fmt.Errorf("fixture id %q: %w", fixtureID, err)
	}
	resp, err := p.client.get(ctx, "fixture_detail", "/fixtures/"+fixtureID, url.Values{"include": {strings.Join(includes, ";")}})
	if err != nil {
		return nil, fmt.Errorf("fetch fixture %s detail: %w", fixtureID, err)
	}

	var detail smFixtureDetailRaw
	if err := json.Unmarshal(resp.Data, &detail); err != nil {
		return nil, fmt.Errorf("decode fixture %s detail: %w", fixtureID, err)
	}
	if err := provider.Validator().Struct(detail); err != nil {
		return nil, fmt.Errorf("invalid fixture %s detail: %w", fixtureID, err)
	}
	return &detail, nil
}
