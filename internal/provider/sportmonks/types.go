package sportmonks

// Raw payload shapes. Only fields the worker reads are declared; everything
// is validated before normalization.

type smFixtureRaw struct {
	ID           int64            `json:"id" validate:"required"`
	Name         string           `json:"name"`
	State        smStateRaw       `json:"state"`
	Participants []smParticipant  `json:"participants" validate:"min=2,dive"`
	Scores       []smScoreRaw     `json:"scores" validate:"dive"`
	Statistics   []smStatisticRaw `json:"statistics" validate:"dive"`
}

type smStateRaw struct {
	ID            int    `json:"id"`
	State         string `json:"state"`
	DeveloperName string `json:"developer_name"`
	Minute        *int   `json:"minute" validate:"omitempty,gte=0"`
}

type smParticipant struct {
	ID   int64  `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Meta struct {
		Location string `json:"location" validate:"oneof=home away"`
	} `json:"meta"`
}

// smScoreRaw accepts both the flat form {"goals", "participant"} and the v3
// form {"description", "score": {"goals", "participant"}}.
type smScoreRaw struct {
	Description string `json:"description"`
	Goals       *int   `json:"goals"`
	Participant string `json:"participant" validate:"omitempty,oneof=home away"`
	Score       *struct {
		Goals       int    `json:"goals"`
		Participant string `json:"participant" validate:"omitempty,oneof=home away"`
	} `json:"score"`
}

// smStatisticRaw accepts both the split form {"value": {"home", "away"}} and
// the per-participant form {"location", "data": {"value"}}.
type smStatisticRaw struct {
	TypeID   int                    `json:"type_id" validate:"required"`
	Location string                 `json:"location" validate:"omitempty,oneof=home away"`
	Value    map[string]interface{} `json:"value"`
	Data     *struct {
		Value interface{} `json:"value"`
	} `json:"data"`
}

type smFixtureDetailRaw struct {
	ID          int64             `json:"id" validate:"required"`
	Odds        []smOddRaw        `json:"odds" validate:"dive"`
	Predictions []smPredictionRaw `json:"predictions" validate:"dive"`
}

type smOddRaw struct {
	MarketID          int    `json:"market_id"`
	BookmakerID       int    `json:"bookmaker_id"`
	Label             string `json:"label" validate:"required"`
	Value             string `json:"value" validate:"required"`
	Total             string `json:"total"`
	MarketDescription string `json:"market_description"`
}

type smPredictionRaw struct {
	TypeID      int                    `json:"type_id" validate:"required"`
	Predictions map[string]interface{} `json:"predictions"`
}
