package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/fortuna/hoopelo/internal/store/repository"
)

const (
	defaultTeamSize     = 5
	maxTeamSize         = 5
	defaultGameListSize = 20
	maxGameListSize     = 100
)

// GameService handles the game lifecycle from lobby to committed result
type GameService struct {
	profiles  ProfileStore
	games     GameStore
	ratings   RatingStore
	cache     LeaderboardCache
	publisher EventPublisher
	opts      elo.Options
	logger    *log.Logger
}

// NewGameService creates a new game service. cache and publisher may be nil.
func NewGameService(profiles ProfileStore, games GameStore, ratings RatingStore, cache LeaderboardCache,
	pub EventPublisher, opts elo.Options, logger *log.Logger) *GameService {
	if logger == nil {
		logger = log.Default()
	}
	return &GameService{
		profiles:  profiles,
		games:     games,
		ratings:   ratings,
		cache:     cache,
		publisher: pub,
		opts:      opts,
		logger:    logger,
	}
}

// CreateGame opens a pending game hosted by the caller. A zero team size
// means five a side.
func (s *GameService) CreateGame(ctx context.Context, hostID string, teamSize int) (*GameView, error) {
	if teamSize == 0 {
		teamSize = defaultTeamSize
	}
	if teamSize < 1 || teamSize > maxTeamSize {
		return nil, invalidArgument("team size must be between 1 and %d, got %d", maxTeamSize, teamSize)
	}

	if _, err := s.profiles.Ensure(ctx, hostID, ""); err != nil {
		return nil, fmt.Errorf("ensuring host profile: %w", translate(err))
	}

	game, err := s.games.Create(ctx, hostID, teamSize)
	if err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}

	s.publishGameEvent(ctx, publisher.GameEvent{
		Type:     publisher.GameCreated,
		GameID:   game.ID,
		PlayerID: hostID,
		Status:   string(game.Status),
	})

	return newGameView(game, nil), nil
}

// GetGame retrieves a game with both rosters
func (s *GameService) GetGame(ctx context.Context, gameID string) (*GameView, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching game: %w", translate(err))
	}

	participants, err := s.games.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching participants: %w", err)
	}

	return newGameView(game, participants), nil
}

// ListGames returns recent games, newest first. An empty status lists all.
func (s *GameService) ListGames(ctx context.Context, status store.GameStatus, limit int) ([]*GameView, error) {
	switch status {
	case "", store.GameStatusPending, store.GameStatusInProgress, store.GameStatusCompleted, store.GameStatusCancelled:
	default:
		return nil, invalidArgument("unknown game status %q", status)
	}

	games, err := s.games.ListRecent(ctx, status, clampLimit(limit, defaultGameListSize, maxGameListSize))
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}

	views := make([]*GameView, 0, len(games))
	for _, game := range games {
		participants, err := s.games.ListParticipants(ctx, game.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching participants for %s: %w", game.ID, err)
		}
		views = append(views, newGameView(game, participants))
	}

	return views, nil
}

// JoinGame seats the caller on a team of a pending game
func (s *GameService) JoinGame(ctx context.Context, playerID, displayName, gameID string, team store.Team) (*GameView, error) {
	if !team.Valid() {
		return nil, invalidArgument("team must be %s or %s, got %q", store.TeamA, store.TeamB, team)
	}

	if _, err := s.profiles.Ensure(ctx, playerID, displayName); err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", translate(err))
	}

	if err := s.games.AddParticipant(ctx, gameID, playerID, team); err != nil {
		return nil, fmt.Errorf("joining game: %w", translate(err))
	}

	s.publishGameEvent(ctx, publisher.GameEvent{
		Type:     publisher.PlayerJoined,
		GameID:   gameID,
		PlayerID: playerID,
		Team:     string(team),
	})

	return s.GetGame(ctx, gameID)
}

// LeaveGame removes the caller from a pending game
func (s *GameService) LeaveGame(ctx context.Context, playerID, gameID string) (*GameView, error) {
	if err := s.games.RemoveParticipant(ctx, gameID, playerID); err != nil {
		return nil, fmt.Errorf("leaving game: %w", translate(err))
	}

	s.publishGameEvent(ctx, publisher.GameEvent{
		Type:     publisher.PlayerLeft,
		GameID:   gameID,
		PlayerID: playerID,
	})

	return s.GetGame(ctx, gameID)
}

// StartGame moves a pending game to in progress. Only the host may start it
// and both teams need at least one player.
func (s *GameService) StartGame(ctx context.Context, callerID, gameID string) (*GameView, error) {
	view, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if view.HostID != callerID {
		return nil, fmt.Errorf("%w: only the host can start the game", ErrForbidden)
	}
	if len(view.TeamA) == 0 || len(view.TeamB) == 0 {
		return nil, fmt.Errorf("%w: both teams need at least one player", ErrInvalidState)
	}

	if err := s.games.UpdateStatus(ctx, gameID, store.GameStatusInProgress, store.GameStatusPending); err != nil {
		return nil, fmt.Errorf("starting game: %w", translate(err))
	}

	s.publishGameEvent(ctx, publisher.GameEvent{
		Type:   publisher.GameStarted,
		GameID: gameID,
		Status: string(store.GameStatusInProgress),
	})

	view.Status = store.GameStatusInProgress
	return view, nil
}

// DeleteGame removes a game that has not been completed. Host only.
func (s *GameService) DeleteGame(ctx context.Context, callerID, gameID string) error {
	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("fetching game: %w", translate(err))
	}
	if game.HostID != callerID {
		return fmt.Errorf("%w: only the host can delete the game", ErrForbidden)
	}
	if game.Status == store.GameStatusCompleted {
		return fmt.Errorf("%w: completed games are part of the rating history", ErrConflict)
	}

	if err := s.games.Delete(ctx, gameID); err != nil {
		return fmt.Errorf("deleting game: %w", translate(err))
	}

	s.publishGameEvent(ctx, publisher.GameEvent{Type: publisher.GameDeleted, GameID: gameID})
	return nil
}

// SubmitResult records the winner of a game and commits every participant's
// rating change. Only the host may submit, and a game is rated at most once.
// Cache invalidation and event publishing happen after the commit and never
// fail the call.
func (s *GameService) SubmitResult(ctx context.Context, callerID, gameID string, winningTeam store.Team, teamAScore, teamBScore *int) (*GameResult, error) {
	if !winningTeam.Valid() {
		return nil, invalidArgument("winning team must be %s or %s, got %q", store.TeamA, store.TeamB, winningTeam)
	}
	if err := validateScores(winningTeam, teamAScore, teamBScore); err != nil {
		return nil, err
	}

	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching game: %w", translate(err))
	}
	if game.HostID != callerID {
		return nil, fmt.Errorf("%w: only the host can submit results", ErrForbidden)
	}

	opts := s.opts
	teamAWon := winningTeam == store.TeamA
	compute := func(teamA, teamB []elo.Player) (*elo.TeamUpdateResult, error) {
		return elo.UpdateTeamRatings(teamA, teamB, teamAWon, opts)
	}

	committed, err := s.ratings.ApplyGameResult(ctx, repository.GameResultInput{
		GameID:      gameID,
		WinningTeam: winningTeam,
		TeamAScore:  teamAScore,
		TeamBScore:  teamBScore,
	}, compute)
	if err != nil {
		return nil, fmt.Errorf("committing result: %w", translate(err))
	}

	update := committed.Update
	s.logger.Printf("✓ Rated game %s: %s won (team_a avg %.2f, team_b avg %.2f, %d players)",
		gameID, winningTeam, update.Team1AverageRating, update.Team2AverageRating,
		len(update.Team1Changes)+len(update.Team2Changes))

	s.afterCommit(ctx, committed)

	return &GameResult{
		GameID:             gameID,
		WinningTeam:        winningTeam,
		TeamAChanges:       update.Team1Changes,
		TeamBChanges:       update.Team2Changes,
		TeamAAverageRating: update.Team1AverageRating,
		TeamBAverageRating: update.Team2AverageRating,
		ExpectedScoreTeamA: update.ExpectedScoreTeam1,
		ExpectedScoreTeamB: update.ExpectedScoreTeam2,
	}, nil
}

func (s *GameService) afterCommit(ctx context.Context, committed *repository.CommittedResult) {
	if s.cache != nil {
		if _, err := s.cache.InvalidateLeaderboards(ctx); err != nil {
			s.logger.Printf("leaderboard cache invalidation failed for game %s: %v", committed.GameID, err)
		}
	}

	if s.publisher == nil {
		return
	}

	update := committed.Update
	changes := make([]elo.RatingChange, 0, len(update.Team1Changes)+len(update.Team2Changes))
	changes = append(changes, update.Team1Changes...)
	changes = append(changes, update.Team2Changes...)

	err := s.publisher.PublishRatingUpdate(ctx, publisher.RatingUpdateEvent{
		GameID:             committed.GameID,
		WinningTeam:        string(committed.WinningTeam),
		Team1AverageRating: update.Team1AverageRating,
		Team2AverageRating: update.Team2AverageRating,
		ExpectedScoreTeam1: update.ExpectedScoreTeam1,
		Changes:            changes,
		CommittedAt:        time.Now().UTC(),
	})
	if err != nil {
		s.logger.Printf("publishing rating update for game %s failed: %v", committed.GameID, err)
	}
}

func (s *GameService) publishGameEvent(ctx context.Context, event publisher.GameEvent) {
	if s.publisher == nil {
		return
	}
	event.At = time.Now().UTC()
	if err := s.publisher.PublishGameEvent(ctx, event); err != nil {
		s.logger.Printf("publishing %s for game %s failed: %v", event.Type, event.GameID, err)
	}
}

func validateScores(winningTeam store.Team, teamAScore, teamBScore *int) error {
	if teamAScore != nil && *teamAScore < 0 {
		return invalidArgument("team_a score cannot be negative")
	}
	if teamBScore != nil && *teamBScore < 0 {
		return invalidArgument("team_b score cannot be negative")
	}
	if teamAScore == nil || teamBScore == nil {
		return nil
	}

	winner, loser := *teamAScore, *teamBScore
	if winningTeam == store.TeamB {
		winner, loser = loser, winner
	}
	if winner <= loser {
		return invalidArgument("%s is reported as winner but scored %d to %d", winningTeam, winner, loser)
	}
	return nil
}
