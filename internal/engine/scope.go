package engine

import "math"

// ApplyScope projects a home/away pair to a single value according to scope.
// homeScore and awayScore drive the score-relative scopes. ok is false when a
// side the scope needs is missing or the scope is unknown.
//
// HOME, AWAY and the four FAVOURITE_/UNDERDOG_ side scopes need only their own
// side; every other scope needs both.
func ApplyScope(scope TeamScope, home, away *float64, homeScore, awayScore int) (float64, bool) {
	switch scope {
	case ScopeHome:
		return side(home)
	case ScopeAway:
		return side(away)
	case ScopeFavouriteHome:
		if home == nil {
			return 0, false
		}
		if homeScore >= awayScore {
			return *home, true
		}
		return 0, true
	case ScopeFavouriteAway:
		if away == nil {
			return 0, false
		}
		if awayScore > homeScore {
			return *away, true
		}
		return 0, true
	case ScopeUnderdogHome:
		if home == nil {
			return 0, false
		}
		if homeScore < awayScore {
			return *home, true
		}
		return 0, true
	case ScopeUnderdogAway:
		if away == nil {
			return 0, false
		}
		if awayScore >= homeScore {
			return *away, true
		}
		return 0, true
	}

	if !knownScope(scope) {
		return 0, false
	}
	if home == nil || away == nil {
		return 0, false
	}
	h, a := *home, *away

	switch scope {
	case ScopeTotal:
		return h + a, true
	case ScopeEitherTeam:
		return math.Max(h, a), true
	case ScopeEitherOpponent:
		return math.Min(h, a), true
	case ScopeDifference:
		return math.Abs(h - a), true
	case ScopeWinningTeam:
		switch {
		case homeScore > awayScore:
			return h, true
		case awayScore > homeScore:
			return a, true
		}
		return 0, true
	case ScopeLosingTeam:
		switch {
		case homeScore < awayScore:
			return h, true
		case awayScore < homeScore:
			return a, true
		}
		return 0, true
	case ScopeFavourite:
		// Score is the proxy for favourite until pre-match odds drive it.
		if homeScore >= awayScore {
			return h, true
		}
		return a, true
	case ScopeUnderdog:
		if homeScore < awayScore {
			return h, true
		}
		return a, true
	}
	return 0, false
}

func knownScope(scope TeamScope) bool {
	for _, s := range AllScopes {
		if s == scope {
			return true
		}
	}
	return false
}

func side(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
