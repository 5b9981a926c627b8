package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fortuna/hoopelo/internal/cache"
	"github.com/fortuna/hoopelo/internal/store"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
	defaultHistoryLimit     = 50
	maxHistoryLimit         = 500
	maxDisplayNameLength    = 50
)

// PlayerService handles profile, history and leaderboard reads
type PlayerService struct {
	profiles ProfileStore
	ratings  RatingStore
	cache    LeaderboardCache
	cacheTTL time.Duration
	logger   *log.Logger
}

// NewPlayerService creates a new player service. cache may be nil, in which
// case the leaderboard is always read from the database.
func NewPlayerService(profiles ProfileStore, ratings RatingStore, cache LeaderboardCache, cacheTTL time.Duration, logger *log.Logger) *PlayerService {
	if logger == nil {
		logger = log.Default()
	}
	return &PlayerService{
		profiles: profiles,
		ratings:  ratings,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// EnsureProfile returns the caller's profile, creating it at the initial
// rating on first use.
func (s *PlayerService) EnsureProfile(ctx context.Context, playerID, displayName string) (*store.Profile, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, invalidArgument("player id is required")
	}

	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, invalidArgument("display name longer than %d characters", maxDisplayNameLength)
	}

	profile, err := s.profiles.Ensure(ctx, playerID, displayName)
	if err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", translate(err))
	}
	return profile, nil
}

// GetProfile retrieves a profile by player ID
func (s *PlayerService) GetProfile(ctx context.Context, playerID string) (*store.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", translate(err))
	}
	return profile, nil
}

// GetRatingHistory returns the newest rating changes of a player
func (s *PlayerService) GetRatingHistory(ctx context.Context, playerID string, limit int) ([]store.RatingHistoryEntry, error) {
	if _, err := s.GetProfile(ctx, playerID); err != nil {
		return nil, err
	}

	history, err := s.ratings.GetPlayerHistory(ctx, playerID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("fetching rating history: %w", err)
	}
	return history, nil
}

// GetLeaderboard returns the ranked profiles, served from cache when possible
func (s *PlayerService) GetLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	limit = clampLimit(limit, defaultLeaderboardLimit, maxLeaderboardLimit)
	key := cache.LeaderboardKey(limit)

	cacheable := false
	var generation int64
	if s.cache != nil {
		var cached []store.LeaderboardEntry
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Printf("leaderboard cache read failed: %v", err)
		}

		generation, err = s.cache.LeaderboardGeneration(ctx)
		if err != nil {
			s.logger.Printf("leaderboard cache generation read failed: %v", err)
		} else {
			cacheable = true
		}
	}

	entries, err := s.profiles.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching leaderboard: %w", err)
	}

	if cacheable {
		if _, err := s.cache.SetLeaderboardJSON(ctx, key, entries, s.cacheTTL, generation); err != nil {
			s.logger.Printf("leaderboard cache write failed: %v", err)
		}
	}

	return entries, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
