package engine

import (
	"log/slog"
	"sort"
)

// Requirements summarizes which data categories a set of strategies reads,
// so a provider can skip upstream calls nobody needs.
type Requirements struct {
	NeedsStats     bool
	NeedsOdds      bool
	NeedsPreMatch  bool
	RuleValueTypes []ValueType
}

// Plan aggregates the value types used across all rules of all strategies.
func Plan(strategies []Strategy) Requirements {
	seen := make(map[ValueType]bool)
	for _, s := range strategies {
		for _, r := range s.Rules {
			seen[r.ValueType] = true
		}
	}

	req := Requirements{
		NeedsStats:     seen[ValueInPlay],
		NeedsOdds:      seen[ValueOdds],
		NeedsPreMatch:  seen[ValuePreMatch],
		RuleValueTypes: make([]ValueType, 0, len(seen)),
	}
	for vt := range seen {
		req.RuleValueTypes = append(req.RuleValueTypes, vt)
	}
	sort.Slice(req.RuleValueTypes, func(i, j int) bool {
		return req.RuleValueTypes[i] < req.RuleValueTypes[j]
	})
	return req
}

// OnlyBasicFixture reports whether nothing beyond the fixture list is needed.
func (r Requirements) OnlyBasicFixture() bool {
	return !r.NeedsStats && !r.NeedsOdds && !r.NeedsPreMatch
}

// EstimateCalls returns the advisory upstream call count for n fixtures:
// one list call plus one call per fixture for each needed category.
func (r Requirements) EstimateCalls(fixtures int) int {
	calls := 1
	if r.NeedsStats {
		calls += fixtures
	}
	if r.NeedsOdds {
		calls += fixtures
	}
	if r.NeedsPreMatch {
		calls += fixtures
	}
	return calls
}

// LogValue implements slog.LogValuer.
func (r Requirements) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("stats", r.NeedsStats),
		slog.Bool("odds", r.NeedsOdds),
		slog.Bool("pre_match", r.NeedsPreMatch),
	)
}
