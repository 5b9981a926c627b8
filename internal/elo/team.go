package elo

import (
	"fmt"
	"math"
)

// UpdateTeamRatings rates every player of a finished game.
//
// Each team is represented by the average rating of its roster, so uneven
// teams (3v5) need no special handling: all players of a team share the
// team's expected and actual score and therefore receive the same change.
// Team totals only cancel out when both rosters have the same size.
//
// The input slices are never modified.
func UpdateTeamRatings(team1, team2 []Player, team1Won bool, opts Options) (*TeamUpdateResult, error) {
	outcome := Loss
	if team1Won {
		outcome = Win
	}
	return ApplyOutcome(team1, team2, outcome, opts)
}

// ApplyOutcome is UpdateTeamRatings for an arbitrary outcome, including a
// draw, given from team 1's point of view.
func ApplyOutcome(team1, team2 []Player, outcome Outcome, opts Options) (*TeamUpdateResult, error) {
	if err := validateRoster("team1", team1); err != nil {
		return nil, err
	}
	if err := validateRoster("team2", team2); err != nil {
		return nil, err
	}
	if !validScore(float64(outcome)) {
		return nil, invalid("outcome", float64(outcome), "must be 0 (loss), 0.5 (draw) or 1 (win)")
	}

	limits, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	team1Avg, err := TeamRating(ratingsOf(team1))
	if err != nil {
		return nil, err
	}
	team2Avg, err := TeamRating(ratingsOf(team2))
	if err != nil {
		return nil, err
	}

	expected1, err := ExpectedScore(team1Avg, team2Avg)
	if err != nil {
		return nil, err
	}
	expected2 := 1 - expected1

	changes1, err := rateTeam(team1, expected1, float64(outcome), limits.KFactor, opts)
	if err != nil {
		return nil, err
	}
	changes2, err := rateTeam(team2, expected2, float64(outcome.Opposite()), limits.KFactor, opts)
	if err != nil {
		return nil, err
	}

	return &TeamUpdateResult{
		Team1Changes:       changes1,
		Team2Changes:       changes2,
		Team1AverageRating: team1Avg,
		Team2AverageRating: team2Avg,
		ExpectedScoreTeam1: expected1,
		ExpectedScoreTeam2: expected2,
	}, nil
}

func rateTeam(players []Player, expected, actual, kFactor float64, opts Options) ([]RatingChange, error) {
	changes := make([]RatingChange, 0, len(players))
	for _, p := range players {
		newRating, err := NewRating(p.Rating, expected, actual, kFactor, opts)
		if err != nil {
			return nil, err
		}
		changes = append(changes, RatingChange{
			PlayerID:     p.ID,
			PlayerName:   p.Name,
			OldRating:    p.Rating,
			NewRating:    newRating,
			RatingChange: roundTo(newRating-p.Rating, 2),
		})
	}
	return changes, nil
}

func validateRoster(team string, players []Player) error {
	if len(players) == 0 {
		return invalid(team, nil, "must have at least one player")
	}
	for i, p := range players {
		field := fmt.Sprintf("%s[%d]", team, i)
		if p.ID == "" {
			return invalid(field+".id", nil, "must be a non-empty string")
		}
		if p.Name == "" {
			return invalid(field+".name", nil, "must be a non-empty string")
		}
		if err := checkRating(field+".rating", p.Rating); err != nil {
			return err
		}
	}
	return nil
}

func ratingsOf(players []Player) []float64 {
	ratings := make([]float64, len(players))
	for i, p := range players {
		ratings[i] = p.Rating
	}
	return ratings
}

// NewPlayer returns a player starting at InitialRating.
func NewPlayer(id, name string) (Player, error) {
	if id == "" {
		return Player{}, invalid("id", nil, "must be a non-empty string")
	}
	if name == "" {
		return Player{}, invalid("name", nil, "must be a non-empty string")
	}
	return Player{ID: id, Name: name, Rating: InitialRatingValue()}, nil
}

// AnalyzeRatingGap describes a matchup between two team averages before it
// is played. A team is only reported as favored when the gap is at least
// FavoriteThreshold points. kFactor is used as given; only a non-finite
// value is rejected.
func AnalyzeRatingGap(team1Avg, team2Avg, kFactor float64) (*GapAnalysis, error) {
	if !isFinite(kFactor) {
		return nil, invalid("kFactor", kFactor, "must be a finite number")
	}

	expected1, err := ExpectedScore(team1Avg, team2Avg)
	if err != nil {
		return nil, err
	}
	expected2 := 1 - expected1

	gap := team1Avg - team2Avg
	favored := NoFavorite
	if math.Abs(gap) >= FavoriteThreshold {
		favored = Team2
		if gap > 0 {
			favored = Team1
		}
	}

	return &GapAnalysis{
		RatingGap:          roundTo(gap, 2),
		FavoredTeam:        favored,
		ExpectedScoreTeam1: roundTo(expected1, 3),
		ExpectedScoreTeam2: roundTo(expected2, 3),
		Team1MaxGain:       roundTo(kFactor*(1-expected1), 2),
		Team1MaxLoss:       roundTo(kFactor*(0-expected1), 2),
		Team2MaxGain:       roundTo(kFactor*(1-expected2), 2),
		Team2MaxLoss:       roundTo(kFactor*(0-expected2), 2),
	}, nil
}

// SimulateGameOutcomes previews the rating changes for both possible
// winners without touching the rosters.
func SimulateGameOutcomes(team1, team2 []Player, opts Options) (*Simulation, error) {
	team1Wins, err := UpdateTeamRatings(team1, team2, true, opts)
	if err != nil {
		return nil, err
	}
	team2Wins, err := UpdateTeamRatings(team1, team2, false, opts)
	if err != nil {
		return nil, err
	}
	return &Simulation{Team1Wins: team1Wins, Team2Wins: team2Wins}, nil
}
