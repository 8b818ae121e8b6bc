// Package engine evaluates user strategies against live match snapshots.
//
// Everything in this package is pure: no I/O, no clocks, no shared mutable
// state. A strategy is an ordered AND of rules; each rule reads one metric
// from one value-type map of the snapshot, optionally projects the home/away
// pair through a team scope, and compares the result with a target.
package engine

// --------------------------------------------------------------------------
// Enums
// --------------------------------------------------------------------------

// ValueType selects which snapshot map a rule reads from.
type ValueType string

const (
	ValueInPlay   ValueType = "IN_PLAY"
	ValuePreMatch ValueType = "PRE_MATCH"
	ValueOdds     ValueType = "ODDS"
)

// Comparator is the relation between the extracted value and the rule target.
type Comparator string

const (
	CmpGTE Comparator = "GTE"
	CmpLTE Comparator = "LTE"
	CmpEQ  Comparator = "EQ"
	CmpGT  Comparator = "GT"
	CmpLT  Comparator = "LT"
	CmpNEQ Comparator = "NEQ"
)

// Symbol returns the mathematical form of the comparator, e.g. ">=".
func (c Comparator) Symbol() string {
	switch c {
	case CmpGTE:
		return ">="
	case CmpLTE:
		return "<="
	case CmpEQ:
		return "="
	case CmpGT:
		return ">"
	case CmpLT:
		return "<"
	case CmpNEQ:
		return "!="
	}
	return string(c)
}

// TeamScope projects a home/away metric pair to a single number.
// The empty scope means the rule reads the bare metric key.
type TeamScope string

const (
	ScopeNone           TeamScope = ""
	ScopeHome           TeamScope = "HOME"
	ScopeAway           TeamScope = "AWAY"
	ScopeTotal          TeamScope = "TOTAL"
	ScopeEitherTeam     TeamScope = "EITHER_TEAM"
	ScopeEitherOpponent TeamScope = "EITHER_OPPONENT"
	ScopeDifference     TeamScope = "DIFFERENCE"
	ScopeWinningTeam    TeamScope = "WINNING_TEAM"
	ScopeLosingTeam     TeamScope = "LOSING_TEAM"
	ScopeFavourite      TeamScope = "FAVOURITE"
	ScopeUnderdog       TeamScope = "UNDERDOG"
	ScopeFavouriteHome  TeamScope = "FAVOURITE_HOME"
	ScopeFavouriteAway  TeamScope = "FAVOURITE_AWAY"
	ScopeUnderdogHome   TeamScope = "UNDERDOG_HOME"
	ScopeUnderdogAway   TeamScope = "UNDERDOG_AWAY"
)

// AllScopes lists every non-empty team scope.
var AllScopes = []TeamScope{
	ScopeHome, ScopeAway, ScopeTotal, ScopeEitherTeam, ScopeEitherOpponent,
	ScopeDifference, ScopeWinningTeam, ScopeLosingTeam, ScopeFavourite,
	ScopeUnderdog, ScopeFavouriteHome, ScopeFavouriteAway, ScopeUnderdogHome,
	ScopeUnderdogAway,
}

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Rule is one boolean condition of a strategy.
type Rule struct {
	ID         string     `json:"id"`
	StrategyID string     `json:"strategy_id"`
	ValueType  ValueType  `json:"value_type"`
	Metric     string     `json:"metric"`
	Comparator Comparator `json:"comparator"`
	Value      float64    `json:"value"`
	TeamScope  TeamScope  `json:"team_scope,omitempty"`
	TimeFilter string     `json:"time_filter,omitempty"` // stored for the UI, not evaluated
}

// Strategy is an ordered AND of rules.
type Strategy struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Mode      string `json:"mode"`
	AlertType string `json:"alert_type"`
	IsActive  bool   `json:"is_active"`
	Rules     []Rule `json:"rules"`
}

// MatchSnapshot is the normalized state of one match at one instant.
// Map keys are "home_<metric>", "away_<metric>" or a bare match-level metric.
type MatchSnapshot struct {
	ID        string             `json:"id" validate:"required"`
	HomeTeam  string             `json:"home_team" validate:"required"`
	AwayTeam  string             `json:"away_team" validate:"required"`
	HomeScore int                `json:"home_score" validate:"gte=0"`
	AwayScore int                `json:"away_score" validate:"gte=0"`
	Minute    int                `json:"minute" validate:"gte=0"`
	IsLive    bool               `json:"is_live"`
	InPlay    map[string]float64 `json:"in_play"`
	PreMatch  map[string]float64 `json:"pre_match"`
	Odds      map[string]float64 `json:"odds"`
}

// Values returns the map for the given value type, or nil for an unknown one.
func (s *MatchSnapshot) Values(vt ValueType) map[string]float64 {
	switch vt {
	case ValueInPlay:
		return s.InPlay
	case ValuePreMatch:
		return s.PreMatch
	case ValueOdds:
		return s.Odds
	}
	return nil
}

// MatchedRule records a rule that passed and the value it passed with.
type MatchedRule struct {
	RuleID     string     `json:"rule_id"`
	Metric     string     `json:"metric"`
	Comparator Comparator `json:"comparator"`
	Target     float64    `json:"target"`
	Actual     float64    `json:"actual"`
}

// EvaluationResult is the outcome of evaluating a strategy against a snapshot.
// When Passed is false, MatchedRules holds the rules that passed before
// FailedRuleID, in strategy order.
type EvaluationResult struct {
	Passed       bool          `json:"passed"`
	FailedRuleID string        `json:"failed_rule_id,omitempty"`
	MatchedRules []MatchedRule `json:"matched_rules"`
}
