package engine

import "sort"

// MetricDef describes one metric the engine knows how to read.
type MetricDef struct {
	Name        string
	Family      ValueType
	Category    string
	Description string
	// MatchLevel metrics have a single bare key shared by both sides.
	MatchLevel bool
}

// Catalog is an immutable registry of metric definitions. Build it once at
// startup and share the pointer; nothing mutates it after construction.
type Catalog struct {
	defs map[string]MetricDef
}

// NewCatalog builds a catalog from the given definitions. Later definitions
// with the same name replace earlier ones.
func NewCatalog(defs ...MetricDef) *Catalog {
	m := make(map[string]MetricDef, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &Catalog{defs: m}
}

// DefaultCatalog returns the catalog of every metric the providers emit.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultMetrics...)
}

// Lookup returns the definition for a metric name.
func (c *Catalog) Lookup(metric string) (MetricDef, bool) {
	d, ok := c.defs[metric]
	return d, ok
}

// Metrics returns every definition in a family (all families when family is
// empty), sorted by category then name.
func (c *Catalog) Metrics(family ValueType) []MetricDef {
	out := make([]MetricDef, 0, len(c.defs))
	for _, d := range c.defs {
		if family == "" || d.Family == family {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Resolve reads the home/away pair of a metric from values. Split metrics
// read home_<metric> and away_<metric>; match-level metrics return the bare
// value for both sides. A nil side means the key is absent. ok is false when
// the metric is not in the catalog.
func (c *Catalog) Resolve(metric string, values map[string]float64) (home, away *float64, ok bool) {
	d, known := c.defs[metric]
	if !known {
		return nil, nil, false
	}
	if d.MatchLevel {
		v := lookup(values, metric)
		return v, v, true
	}
	return lookup(values, "home_"+metric), lookup(values, "away_"+metric), true
}

func lookup(values map[string]float64, key string) *float64 {
	v, ok := values[key]
	if !ok {
		return nil
	}
	return &v
}

// --------------------------------------------------------------------------
// Definitions
// --------------------------------------------------------------------------

var defaultMetrics = []MetricDef{
	// In-play: match context
	{Name: "match_timer", Family: ValueInPlay, Category: "context", Description: "Current match minute", MatchLevel: true},

	// In-play: scoring
	{Name: "goals", Family: ValueInPlay, Category: "scoring", Description: "Goals scored"},
	{Name: "expected_goals", Family: ValueInPlay, Category: "scoring", Description: "Expected goals (xG)"},

	// In-play: shots
	{Name: "shots_total", Family: ValueInPlay, Category: "shots", Description: "Total shots"},
	{Name: "shots_on_target", Family: ValueInPlay, Category: "shots", Description: "Shots on target"},
	{Name: "shots_off_target", Family: ValueInPlay, Category: "shots", Description: "Shots off target"},
	{Name: "shots_blocked", Family: ValueInPlay, Category: "shots", Description: "Shots blocked by defenders"},
	{Name: "shots_inside_box", Family: ValueInPlay, Category: "shots", Description: "Shots from inside the penalty box"},
	{Name: "shots_outside_box", Family: ValueInPlay, Category: "shots", Description: "Shots from outside the penalty box"},

	// In-play: pressure
	{Name: "attacks", Family: ValueInPlay, Category: "pressure", Description: "Attacks"},
	{Name: "dangerous_attacks", Family: ValueInPlay, Category: "pressure", Description: "Dangerous attacks"},
	{Name: "counter_attacks", Family: ValueInPlay, Category: "pressure", Description: "Counter attacks"},
	{Name: "key_passes", Family: ValueInPlay, Category: "pressure", Description: "Key passes"},

	// In-play: set pieces
	{Name: "corners", Family: ValueInPlay, Category: "set_pieces", Description: "Corner kicks"},
	{Name: "offsides", Family: ValueInPlay, Category: "set_pieces", Description: "Offside calls"},

	// In-play: possession and passing
	{Name: "possession", Family: ValueInPlay, Category: "possession", Description: "Ball possession percentage"},
	{Name: "passes_total", Family: ValueInPlay, Category: "possession", Description: "Total passes attempted"},
	{Name: "passes_accurate", Family: ValueInPlay, Category: "possession", Description: "Accurate passes completed"},
	{Name: "passes_percentage", Family: ValueInPlay, Category: "possession", Description: "Pass accuracy percentage"},

	// In-play: discipline
	{Name: "yellow_cards", Family: ValueInPlay, Category: "discipline", Description: "Yellow cards"},
	{Name: "red_cards", Family: ValueInPlay, Category: "discipline", Description: "Red cards"},
	{Name: "fouls", Family: ValueInPlay, Category: "discipline", Description: "Fouls committed"},

	// In-play: goalkeeping
	{Name: "saves", Family: ValueInPlay, Category: "goalkeeping", Description: "Goalkeeper saves"},

	// Pre-match predictions
	{Name: "win_probability", Family: ValuePreMatch, Category: "predictions", Description: "Predicted win probability (%)"},
	{Name: "draw_probability", Family: ValuePreMatch, Category: "predictions", Description: "Predicted draw probability (%)", MatchLevel: true},
	{Name: "btts_probability", Family: ValuePreMatch, Category: "predictions", Description: "Predicted both-teams-to-score probability (%)", MatchLevel: true},
	{Name: "over_2_5_probability", Family: ValuePreMatch, Category: "predictions", Description: "Predicted over 2.5 goals probability (%)", MatchLevel: true},

	// Odds
	{Name: "win", Family: ValueOdds, Category: "fulltime_result", Description: "Decimal odds for the side to win"},
	{Name: "draw", Family: ValueOdds, Category: "fulltime_result", Description: "Decimal odds for a draw", MatchLevel: true},
	{Name: "over_2_5", Family: ValueOdds, Category: "goals", Description: "Decimal odds for over 2.5 goals", MatchLevel: true},
	{Name: "under_2_5", Family: ValueOdds, Category: "goals", Description: "Decimal odds for under 2.5 goals", MatchLevel: true},
	{Name: "btts_yes", Family: ValueOdds, Category: "goals", Description: "Decimal odds for both teams to score", MatchLevel: true},
	{Name: "btts_no", Family: ValueOdds, Category: "goals", Description: "Decimal odds against both teams scoring", MatchLevel: true},
}
