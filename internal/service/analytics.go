package service

import (
	"context"
	"fmt"

	"github.com/fortuna/hoopelo/internal/elo"
)

// AnalyticsService answers pre-game and what-if questions without touching
// stored ratings
type AnalyticsService struct {
	games GameStore
	opts  elo.Options
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(games GameStore, opts elo.Options) *AnalyticsService {
	return &AnalyticsService{
		games: games,
		opts:  opts,
	}
}

// PreviewGame analyzes the current rosters of a game and simulates both
// possible winners. Fields set in overrides replace the configured options.
func (s *AnalyticsService) PreviewGame(ctx context.Context, gameID string, overrides elo.Options) (*GamePreview, error) {
	opts := s.opts.Override(overrides)
	limits, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	if limits.KFactor <= 0 {
		return nil, invalidArgument("k-factor must be positive, got %g", limits.KFactor)
	}

	if _, err := s.games.GetByID(ctx, gameID); err != nil {
		return nil, fmt.Errorf("fetching game: %w", translate(err))
	}

	participants, err := s.games.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching participants: %w", err)
	}

	teamA, teamB := rosters(participants)
	if len(teamA) == 0 || len(teamB) == 0 {
		return nil, fmt.Errorf("%w: both teams need at least one player", ErrInvalidState)
	}

	simulation, err := elo.SimulateGameOutcomes(teamA, teamB, opts)
	if err != nil {
		return nil, err
	}

	analysis, err := elo.AnalyzeRatingGap(
		simulation.Team1Wins.Team1AverageRating,
		simulation.Team1Wins.Team2AverageRating,
		limits.KFactor,
	)
	if err != nil {
		return nil, err
	}

	return &GamePreview{
		GameID:     gameID,
		TeamA:      teamA,
		TeamB:      teamB,
		Analysis:   analysis,
		Simulation: simulation,
	}, nil
}

// WhatIf rates an ad-hoc matchup. Fields set in overrides replace the
// configured options for this call only.
func (s *AnalyticsService) WhatIf(team1, team2 []elo.Player, team1Won bool, overrides elo.Options) (*elo.TeamUpdateResult, error) {
	return elo.UpdateTeamRatings(team1, team2, team1Won, s.opts.Override(overrides))
}

// Analyze returns the gap analysis for two team averages. A nil kFactor
// selects the configured one; any other value is used as given.
func (s *AnalyticsService) Analyze(team1Avg, team2Avg float64, kFactor *float64) (*elo.GapAnalysis, error) {
	limits, err := s.opts.Override(elo.Options{KFactor: kFactor}).Resolve()
	if err != nil {
		return nil, err
	}
	return elo.AnalyzeRatingGap(team1Avg, team2Avg, limits.KFactor)
}

// Simulate rates an ad-hoc matchup for both possible winners
func (s *AnalyticsService) Simulate(team1, team2 []elo.Player, overrides elo.Options) (*elo.Simulation, error) {
	return elo.SimulateGameOutcomes(team1, team2, s.opts.Override(overrides))
}
