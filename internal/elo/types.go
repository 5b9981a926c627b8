package elo

import (
	"encoding/json"
	"fmt"
)

// Player is a roster entry with the rating held immediately before the game.
type Player struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// RatingChange is the audit record produced once per player per game.
type RatingChange struct {
	PlayerID     string  `json:"playerId"`
	PlayerName   string  `json:"playerName"`
	OldRating    float64 `json:"oldRating"`
	NewRating    float64 `json:"newRating"`
	RatingChange float64 `json:"ratingChange"`
}

// TeamUpdateResult holds every rating change of one game together with the
// team-level numbers they were derived from.
type TeamUpdateResult struct {
	Team1Changes       []RatingChange `json:"team1Changes"`
	Team2Changes       []RatingChange `json:"team2Changes"`
	Team1AverageRating float64        `json:"team1AverageRating"`
	Team2AverageRating float64        `json:"team2AverageRating"`
	ExpectedScoreTeam1 float64        `json:"expectedScoreTeam1"`
	ExpectedScoreTeam2 float64        `json:"expectedScoreTeam2"`
}

// NetChange sums the rating changes of each team. With uneven rosters the
// totals do not cancel out.
func (r *TeamUpdateResult) NetChange() (team1Total, team2Total float64) {
	for _, c := range r.Team1Changes {
		team1Total += c.RatingChange
	}
	for _, c := range r.Team2Changes {
		team2Total += c.RatingChange
	}
	return roundTo(team1Total, 2), roundTo(team2Total, 2)
}

// Options tunes a calculation. A nil field falls back to the package
// default; an explicit value, zero included, is used as given.
type Options struct {
	KFactor         *float64 `json:"kFactor,omitempty"`
	MinRating       *float64 `json:"minRating,omitempty"`
	MaxRating       *float64 `json:"maxRating,omitempty"`
	MaxRatingChange *float64 `json:"maxRatingChange,omitempty"`
}

// Float64 returns a pointer to v, for filling in Options.
func Float64(v float64) *float64 {
	return &v
}

// DefaultOptions returns the fully populated default configuration.
func DefaultOptions() Options {
	return Options{
		KFactor:         Float64(DefaultKFactor),
		MinRating:       Float64(MinRating),
		MaxRating:       Float64(MaxRating),
		MaxRatingChange: Float64(MaxRatingChange),
	}
}

// Override returns o with every field that is set in with replaced.
func (o Options) Override(with Options) Options {
	if with.KFactor != nil {
		o.KFactor = Float64(*with.KFactor)
	}
	if with.MinRating != nil {
		o.MinRating = Float64(*with.MinRating)
	}
	if with.MaxRating != nil {
		o.MaxRating = Float64(*with.MaxRating)
	}
	if with.MaxRatingChange != nil {
		o.MaxRatingChange = Float64(*with.MaxRatingChange)
	}
	return o
}

// Limits is an Options value with every default applied.
type Limits struct {
	KFactor         float64
	MinRating       float64
	MaxRating       float64
	MaxRatingChange float64
}

// Resolve applies the defaults and checks the bounds against each other.
// The K-factor is validated where it is used.
func (o Options) Resolve() (Limits, error) {
	l := Limits{
		KFactor:         valueOr(o.KFactor, DefaultKFactor),
		MinRating:       valueOr(o.MinRating, MinRating),
		MaxRating:       valueOr(o.MaxRating, MaxRating),
		MaxRatingChange: valueOr(o.MaxRatingChange, MaxRatingChange),
	}

	if !isFinite(l.MinRating) {
		return Limits{}, invalid("options.minRating", l.MinRating, "must be a finite number")
	}
	if !isFinite(l.MaxRating) {
		return Limits{}, invalid("options.maxRating", l.MaxRating, "must be a finite number")
	}
	if l.MinRating > l.MaxRating {
		return Limits{}, invalid("options.minRating", l.MinRating,
			fmt.Sprintf("must not exceed maxRating (%g)", l.MaxRating))
	}
	if !isFinite(l.MaxRatingChange) || l.MaxRatingChange < 0 {
		return Limits{}, invalid("options.maxRatingChange", l.MaxRatingChange, "must be a non-negative number")
	}
	return l, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Outcome is a game result from team 1's point of view.
type Outcome float64

const (
	Loss Outcome = 0
	Draw Outcome = 0.5
	Win  Outcome = 1
)

// Opposite returns the same result seen from the other team.
func (o Outcome) Opposite() Outcome {
	return 1 - o
}

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Draw:
		return "draw"
	case Loss:
		return "loss"
	}
	return fmt.Sprintf("Outcome(%g)", float64(o))
}

// Side identifies one of the two teams.
type Side int

const (
	NoFavorite Side = 0
	Team1      Side = 1
	Team2      Side = 2
)

// MarshalJSON encodes NoFavorite as null.
func (s Side) MarshalJSON() ([]byte, error) {
	if s == NoFavorite {
		return []byte("null"), nil
	}
	return json.Marshal(int(s))
}

// UnmarshalJSON accepts null, 1 or 2.
func (s *Side) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NoFavorite
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v != 1 && v != 2 {
		return fmt.Errorf("side must be 1, 2 or null, got %d", v)
	}
	*s = Side(v)
	return nil
}

// GapAnalysis is the pre-game view of a matchup.
type GapAnalysis struct {
	RatingGap          float64 `json:"ratingGap"`
	FavoredTeam        Side    `json:"favoredTeam"`
	ExpectedScoreTeam1 float64 `json:"expectedScoreTeam1"`
	ExpectedScoreTeam2 float64 `json:"expectedScoreTeam2"`
	Team1MaxGain       float64 `json:"team1MaxGain"`
	Team1MaxLoss       float64 `json:"team1MaxLoss"`
	Team2MaxGain       float64 `json:"team2MaxGain"`
	Team2MaxLoss       float64 `json:"team2MaxLoss"`
}

// Simulation holds the result of both possible winners.
type Simulation struct {
	Team1Wins *TeamUpdateResult `json:"team1Wins"`
	Team2Wins *TeamUpdateResult `json:"team2Wins"`
}
