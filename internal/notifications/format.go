package notifications

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/TanguyDH/matchIQ/internal/engine"
)

// ErrMalformedAlert is wrapped by FormatAlert errors.
var ErrMalformedAlert = errors.New("malformed alert")

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// FormatAlert renders the Telegram Markdown message for a triggered strategy.
// It fails when the evidence cannot produce a truthful message.
func FormatAlert(strategyName string, match engine.MatchSnapshot, result engine.EvaluationResult) (string, error) {
	if err := validateAlert(strategyName, match, result); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Strategy Triggered: %s*\n\n", markdownEscaper.Replace(strategyName))
	fmt.Fprintf(&b, "⚽ *Match:* %s vs %s\n", markdownEscaper.Replace(match.HomeTeam), markdownEscaper.Replace(match.AwayTeam))
	fmt.Fprintf(&b, "📊 *Score:* %d - %d\n", match.HomeScore, match.AwayScore)
	fmt.Fprintf(&b, "⏱ *Minute:* %d'\n\n", match.Minute)
	b.WriteString("✅ *Matched Rules:*")
	for _, r := range result.MatchedRules {
		fmt.Fprintf(&b, "\n  • %s %s %s (actual: %s)",
			markdownEscaper.Replace(r.Metric), r.Comparator, formatNumber(r.Target), formatNumber(r.Actual))
	}
	return b.String(), nil
}

// FormatPreview renders the same content as plain text for dry runs.
func FormatPreview(strategyName string, match engine.MatchSnapshot, result engine.EvaluationResult) (string, error) {
	if err := validateAlert(strategyName, match, result); err != nil {
		return "", err
	}

	lines := []string{
		"🚨 Strategy Triggered: " + strategyName,
		"",
		fmt.Sprintf("⚽ Match: %s vs %s", match.HomeTeam, match.AwayTeam),
		fmt.Sprintf("📊 Score: %d - %d", match.HomeScore, match.AwayScore),
		fmt.Sprintf("⏱ Minute: %d'", match.Minute),
		"",
		"✅ Matched Rules:",
	}
	for _, r := range result.MatchedRules {
		lines = append(lines, fmt.Sprintf("  • %s %s %s (actual: %s)",
			r.Metric, r.Comparator, formatNumber(r.Target), formatNumber(r.Actual)))
	}
	return strings.Join(lines, "\n"), nil
}

func validateAlert(strategyName string, match engine.MatchSnapshot, result engine.EvaluationResult) error {
	if strings.TrimSpace(strategyName) == "" {
		return fmt.Errorf("%w: empty strategy name", ErrMalformedAlert)
	}
	if !result.Passed {
		return fmt.Errorf("%w: evaluation did not pass", ErrMalformedAlert)
	}
	if match.HomeTeam == "" || match.AwayTeam == "" {
		return fmt.Errorf("%w: match %s has no team names", ErrMalformedAlert, match.ID)
	}
	for _, r := range result.MatchedRules {
		if r.Metric == "" {
			return fmt.Errorf("%w: matched rule %s has no metric", ErrMalformedAlert, r.RuleID)
		}
		if !finite(r.Actual) || !finite(r.Target) {
			return fmt.Errorf("%w: rule %s has non-finite values", ErrMalformedAlert, r.RuleID)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// formatNumber prints 8 as "8" and 1.85 as "1.85".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
