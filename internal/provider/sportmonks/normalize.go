package sportmonks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/provider"
)

// SportMonks statistic type IDs mapped to catalog metric names.
var statTypes = map[int]string{
	52:   "goals",
	42:   "shots_total",
	86:   "shots_on_target",
	41:   "shots_off_target",
	49:   "shots_inside_box",
	50:   "shots_outside_box",
	58:   "shots_blocked",
	43:   "attacks",
	44:   "dangerous_attacks",
	34:   "corners",
	51:   "offsides",
	45:   "possession",
	80:   "passes_total",
	81:   "passes_accurate",
	82:   "passes_percentage",
	84:   "yellow_cards",
	83:   "red_cards",
	56:   "fouls",
	57:   "saves",
	117:  "key_passes",
	1527: "counter_attacks",
	5304: "expected_goals",
}

// Odds market IDs.
const (
	marketFulltimeResult = 1
	marketBothTeamsScore = 14
	marketGoalsOverUnder = 80
)

// Prediction type IDs.
const (
	predictionBTTS           = 231
	predictionOverUnder25    = 235
	predictionFulltimeResult = 237
)

// liveStates are the fixture states evaluated as live.
var liveStates = map[string]bool{
	"INPLAY": true, "LIVE": true, "HT": true, "BREAK": true,
	"INPLAY_1ST_HALF": true, "INPLAY_2ND_HALF": true, "INPLAY_ET": true,
	"INPLAY_ET_2ND_HALF": true, "EXTRA_TIME_BREAK": true, "INPLAY_PENALTIES": true,
	"PEN_BREAK": true,
}

// normalizeFixture converts a validated fixture into a snapshot.
func normalizeFixture(raw smFixtureRaw) (engine.MatchSnapshot, error) {
	var home, away *smParticipant
	for i := range raw.Participants {
		switch raw.Participants[i].Meta.Location {
		case "home":
			home = &raw.Participants[i]
		case "away":
			away = &raw.Participants[i]
		}
	}
	if home == nil || away == nil {
		return engine.MatchSnapshot{}, fmt.Errorf("fixture %d: missing home or away participant", raw.ID)
	}

	homeScore, awayScore := currentScore(raw.Scores)
	minute := 0
	if raw.State.Minute != nil {
		minute = *raw.State.Minute
	}

	inPlay := map[string]float64{
		"home_goals":  float64(homeScore),
		"away_goals":  float64(awayScore),
		"match_timer": float64(minute),
	}
	for _, st := range raw.Statistics {
		metric, ok := statTypes[st.TypeID]
		if !ok {
			continue
		}
		if st.Location != "" && st.Data != nil {
			if v, ok := provider.ExtractValue(st.Data.Value); ok {
				inPlay[st.Location+"_"+metric] = v
			}
			continue
		}
		if v, ok := provider.ExtractValue(st.Value["home"]); ok {
			inPlay["home_"+metric] = v
		}
		if v, ok := provider.ExtractValue(st.Value["away"]); ok {
			inPlay["away_"+metric] = v
		}
	}

	state := raw.State.State
	if state == "" {
		state = raw.State.DeveloperName
	}

	return engine.MatchSnapshot{
		ID:        strconv.FormatInt(raw.ID, 10),
		HomeTeam:  home.Name,
		AwayTeam:  away.Name,
		HomeScore: homeScore,
		AwayScore: awayScore,
		Minute:    minute,
		IsLive:    liveStates[strings.ToUpper(state)],
		InPlay:    inPlay,
		PreMatch:  map[string]float64{},
		Odds:      map[string]float64{},
	}, nil
}

// currentScore prefers entries described as CURRENT; undescribed entries
// are accepted as current too.
func currentScore(scores []smScoreRaw) (home, away int) {
	for _, s := range scores {
		if s.Description != "" && s.Description != "CURRENT" {
			continue
		}
		goals, side := 0, s.Participant
		switch {
		case s.Score != nil:
			goals, side = s.Score.Goals, s.Score.Participant
		case s.Goals != nil:
			goals = *s.Goals
		}
		switch side {
		case "home":
			home = goals
		case "away":
			away = goals
		}
	}
	return home, away
}

// normalizeOdds maps the first bookmaker price seen per selection into
// odds keys: home_win, away_win, draw, over_2_5, under_2_5, btts_yes, btts_no.
func normalizeOdds(odds []smOddRaw) map[string]float64 {
	out := make(map[string]float64)
	set := func(key, raw string) {
		if _, exists := out[key]; exists {
			return
		}
		if v, ok := provider.ExtractValue(raw); ok {
			out[key] = v
		}
	}

	for _, o := range odds {
		label := strings.ToLower(strings.TrimSpace(o.Label))
		market := o.MarketID
		desc := strings.ToLower(o.MarketDescription)

		switch {
		case market == marketFulltimeResult || desc == "fulltime result" || desc == "match winner":
			switch label {
			case "home", "1":
				set("home_win", o.Value)
			case "away", "2":
				set("away_win", o.Value)
			case "draw", "x":
				set("draw", o.Value)
			}
		case market == marketGoalsOverUnder || desc == "goals over/under":
			if o.Total != "2.5" {
				continue
			}
			switch label {
			case "over":
				set("over_2_5", o.Value)
			case "under":
				set("under_2_5", o.Value)
			}
		case market == marketBothTeamsScore || desc == "both teams to score":
			switch label {
			case "yes":
				set("btts_yes", o.Value)
			case "no":
				set("btts_no", o.Value)
			}
		}
	}
	return out
}

// normalizePredictions maps prediction probabilities into pre-match keys.
func normalizePredictions(preds []smPredictionRaw) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range preds {
		switch p.TypeID {
		case predictionFulltimeResult:
			putValue(out, "home_win_probability", p.Predictions["home"])
			putValue(out, "away_win_probability", p.Predictions["away"])
			putValue(out, "draw_probability", p.Predictions["draw"])
		case predictionBTTS:
			putValue(out, "btts_probability", p.Predictions["yes"])
		case predictionOverUnder25:
			putValue(out, "over_2_5_probability", p.Predictions["yes"])
		}
	}
	return out
}

func putValue(m map[string]float64, key string, raw interface{}) {
	if v, ok := provider.ExtractValue(raw); ok {
		m[key] = v
	}
}
