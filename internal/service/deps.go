package service

import (
	"context"
	"time"

	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/fortuna/hoopelo/internal/store/repository"
)

// ProfileStore is the profile persistence used by the services
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*store.Profile, error)
	Ensure(ctx context.Context, id, displayName string) (*store.Profile, error)
	Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error)
}

// GameStore is the game and roster persistence used by the services
type GameStore interface {
	Create(ctx context.Context, hostID string, teamSize int) (*store.Game, error)
	GetByID(ctx context.Context, gameID string) (*store.Game, error)
	ListRecent(ctx context.Context, status store.GameStatus, limit int) ([]*store.Game, error)
	AddParticipant(ctx context.Context, gameID, playerID string, team store.Team) error
	RemoveParticipant(ctx context.Context, gameID, playerID string) error
	ListParticipants(ctx context.Context, gameID string) ([]*store.Participant, error)
	UpdateStatus(ctx context.Context, gameID string, to store.GameStatus, from ...store.GameStatus) error
	Delete(ctx context.Context, gameID string) error
}

// RatingStore commits results and serves rating history
type RatingStore interface {
	ApplyGameResult(ctx context.Context, result repository.GameResultInput, compute repository.ComputeFunc) (*repository.CommittedResult, error)
	GetPlayerHistory(ctx context.Context, playerID string, limit int) ([]store.RatingHistoryEntry, error)
}

// LeaderboardCache is the read-through cache in front of the leaderboard.
// Pages are written back only if no invalidation happened since the
// generation they were loaded at.
type LeaderboardCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	LeaderboardGeneration(ctx context.Context) (int64, error)
	SetLeaderboardJSON(ctx context.Context, key string, value interface{}, ttl time.Duration, generation int64) (bool, error)
	InvalidateLeaderboards(ctx context.Context) (int, error)
}

// EventPublisher fans out game and rating events
type EventPublisher interface {
	PublishRatingUpdate(ctx context.Context, event publisher.RatingUpdateEvent) error
	PublishGameEvent(ctx context.Context, event publisher.GameEvent) error
}
