package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TanguyDH/matchIQ/internal/engine"
)

func ptr(v float64) *float64 { return &v }

func TestApplyScope_Table(t *testing.T) {
	h, a := ptr(5), ptr(3)

	tests := []struct {
		scope  engine.TeamScope
		hs, as int
		want   float64
		wantOK bool
	}{
		{engine.ScopeHome, 0, 0, 5, true},
		{engine.ScopeAway, 0, 0, 3, true},
		{engine.ScopeTotal, 0, 0, 8, true},
		{engine.ScopeEitherTeam, 0, 0, 5, true},
		{engine.ScopeEitherOpponent, 0, 0, 3, true},
		{engine.ScopeDifference, 0, 0, 2, true},
		{engine.ScopeWinningTeam, 2, 1, 5, true},
		{engine.ScopeWinningTeam, 0, 1, 3, true},
		{engine.ScopeWinningTeam, 1, 1, 0, true},
		{engine.ScopeLosingTeam, 2, 1, 3, true},
		{engine.ScopeLosingTeam, 0, 1, 5, true},
		{engine.ScopeLosingTeam, 1, 1, 0, true},
		{engine.ScopeFavourite, 1, 1, 5, true},
		{engine.ScopeFavourite, 0, 1, 3, true},
		{engine.ScopeUnderdog, 0, 1, 5, true},
		{engine.ScopeUnderdog, 1, 1, 3, true},
		{engine.ScopeFavouriteHome, 1, 1, 5, true},
		{engine.ScopeFavouriteHome, 0, 1, 0, true},
		{engine.ScopeFavouriteAway, 0, 1, 3, true},
		{engine.ScopeFavouriteAway, 1, 1, 0, true},
		{engine.ScopeUnderdogHome, 0, 1, 5, true},
		{engine.ScopeUnderdogHome, 1, 1, 0, true},
		{engine.ScopeUnderdogAway, 1, 1, 3, true},
		{engine.ScopeUnderdogAway, 2, 1, 0, true},
		{"SIDEWAYS", 0, 0, 0, false},
	}

	for _, tt := range tests {
		got, ok := engine.ApplyScope(tt.scope, h, a, tt.hs, tt.as)
		assert.Equal(t, tt.wantOK, ok, "%s %d-%d", tt.scope, tt.hs, tt.as)
		assert.Equal(t, tt.want, got, "%s %d-%d", tt.scope, tt.hs, tt.as)
	}
}

func TestApplyScope_Laws(t *testing.T) {
	pairs := [][2]float64{{0, 0}, {1, 4}, {7, 2}, {3.5, 3.5}, {-1, 2}}
	scores := [][2]int{{0, 0}, {1, 0}, {0, 2}, {3, 3}}

	for _, p := range pairs {
		h, a := ptr(p[0]), ptr(p[1])
		for _, sc := range scores {
			total, _ := engine.ApplyScope(engine.ScopeTotal, h, a, sc[0], sc[1])
			either, _ := engine.ApplyScope(engine.ScopeEitherTeam, h, a, sc[0], sc[1])
			opp, _ := engine.ApplyScope(engine.ScopeEitherOpponent, h, a, sc[0], sc[1])
			diff, _ := engine.ApplyScope(engine.ScopeDifference, h, a, sc[0], sc[1])
			fav, _ := engine.ApplyScope(engine.ScopeFavourite, h, a, sc[0], sc[1])
			dog, _ := engine.ApplyScope(engine.ScopeUnderdog, h, a, sc[0], sc[1])

			assert.Equal(t, p[0]+p[1], total)
			assert.Equal(t, total, either+opp)
			assert.GreaterOrEqual(t, diff, 0.0)
			assert.Equal(t, either-opp, diff)
			assert.Equal(t, total, fav+dog, "favourite and underdog partition the pair")

			if sc[0] == sc[1] {
				win, _ := engine.ApplyScope(engine.ScopeWinningTeam, h, a, sc[0], sc[1])
				lose, _ := engine.ApplyScope(engine.ScopeLosingTeam, h, a, sc[0], sc[1])
				assert.Zero(t, win)
				assert.Zero(t, lose)
			}
		}
	}
}

func TestApplyScope_MissingSides(t *testing.T) {
	onlyHome := ptr(4)

	for _, scope := range []engine.TeamScope{engine.ScopeHome, engine.ScopeFavouriteHome, engine.ScopeUnderdogHome} {
		_, ok := engine.ApplyScope(scope, onlyHome, nil, 0, 0)
		assert.True(t, ok, scope)
	}
	for _, scope := range []engine.TeamScope{
		engine.ScopeAway, engine.ScopeTotal, engine.ScopeEitherTeam, engine.ScopeEitherOpponent,
		engine.ScopeDifference, engine.ScopeWinningTeam, engine.ScopeLosingTeam,
		engine.ScopeFavourite, engine.ScopeUnderdog, engine.ScopeFavouriteAway, engine.ScopeUnderdogAway,
	} {
		_, ok := engine.ApplyScope(scope, onlyHome, nil, 0, 0)
		assert.False(t, ok, scope)
	}
}
