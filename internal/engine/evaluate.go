package engine

import (
	"log/slog"
	"sync"
)

// Evaluator evaluates strategies against snapshots. Results depend only on
// the inputs; the logger only reports misconfigured rules, once per rule.
type Evaluator struct {
	catalog *Catalog
	logger  *slog.Logger
	warned  sync.Map // rule ID -> struct{}
}

// NewEvaluator creates an Evaluator over the given catalog.
func NewEvaluator(catalog *Catalog, logger *slog.Logger) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{catalog: catalog, logger: logger}
}

// Catalog returns the catalog the evaluator reads metrics through.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// Evaluate runs the strategy's rules in order and stops at the first rule
// that cannot be evaluated or does not hold. A strategy with no rules passes.
func (e *Evaluator) Evaluate(strategy Strategy, snap MatchSnapshot) EvaluationResult {
	matched := make([]MatchedRule, 0, len(strategy.Rules))

	for _, rule := range strategy.Rules {
		actual, ok := e.Extract(rule, snap)
		if ok && !ValidComparator(rule.Comparator) {
			e.warnOnce(rule, "Rule has unknown comparator", "comparator", rule.Comparator)
		}
		if !ok || !Compare(rule.Comparator, actual, rule.Value) {
			return EvaluationResult{
				Passed:       false,
				FailedRuleID: rule.ID,
				MatchedRules: matched,
			}
		}
		matched = append(matched, MatchedRule{
			RuleID:     rule.ID,
			Metric:     rule.Metric,
			Comparator: rule.Comparator,
			Target:     rule.Value,
			Actual:     actual,
		})
	}

	return EvaluationResult{Passed: true, MatchedRules: matched}
}

// Extract reads the number a rule compares. ok is false when the value
// cannot be produced: unknown value type, missing key, unknown metric or
// scope, or a scope that needs a side the snapshot lacks.
//
// A rule without a team scope reads only the bare metric key. Metrics that
// exist only in split form need an explicit scope.
func (e *Evaluator) Extract(rule Rule, snap MatchSnapshot) (float64, bool) {
	values := snap.Values(rule.ValueType)
	if values == nil && !validValueType(rule.ValueType) {
		e.warnOnce(rule, "Rule has unknown value type", "value_type", rule.ValueType)
		return 0, false
	}

	if rule.TeamScope == ScopeNone {
		if v, ok := values[rule.Metric]; ok {
			return v, true
		}
		if def, ok := e.catalog.Lookup(rule.Metric); ok && !def.MatchLevel {
			e.warnOnce(rule, "Rule reads a split metric without a team scope", "metric", rule.Metric)
		}
		return 0, false
	}

	if !knownScope(rule.TeamScope) {
		e.warnOnce(rule, "Rule has unknown team scope", "team_scope", rule.TeamScope)
		return 0, false
	}

	home, away, known := e.catalog.Resolve(rule.Metric, values)
	if !known {
		e.warnOnce(rule, "Rule references unknown metric", "metric", rule.Metric)
		return 0, false
	}
	return ApplyScope(rule.TeamScope, home, away, snap.HomeScore, snap.AwayScore)
}

// Compare applies a comparator. EQ and NEQ use exact float equality.
// Unknown comparators never hold.
func Compare(cmp Comparator, actual, target float64) bool {
	switch cmp {
	case CmpGTE:
		return actual >= target
	case CmpLTE:
		return actual <= target
	case CmpEQ:
		return actual == target
	case CmpGT:
		return actual > target
	case CmpLT:
		return actual < target
	case CmpNEQ:
		return actual != target
	}
	return false
}

// ValidComparator reports whether c is one of the six comparators.
func ValidComparator(c Comparator) bool {
	switch c {
	case CmpGTE, CmpLTE, CmpEQ, CmpGT, CmpLT, CmpNEQ:
		return true
	}
	return false
}

func validValueType(vt ValueType) bool {
	return vt == ValueInPlay || vt == ValuePreMatch || vt == ValueOdds
}

func (e *Evaluator) warnOnce(rule Rule, msg string, args ...any) {
	if _, loaded := e.warned.LoadOrStore(rule.ID, struct{}{}); loaded {
		return
	}
	args = append([]any{"rule_id", rule.ID, "strategy_id", rule.StrategyID}, args...)
	e.logger.Warn(msg, args...)
}
