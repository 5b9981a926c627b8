package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/lib/pq"
)

// ProfileRepository handles player profile data access
type ProfileRepository struct {
	db *store.Database
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *store.Database) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, display_name, avatar_url, current_elo, peak_elo,
	games_played, wins, losses, created_at, updated_at`

// GetByID finds a profile by player ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.db.DB().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	return profile, nil
}

// GetByIDs returns the profiles for the given player IDs. Unknown IDs are skipped.
func (r *ProfileRepository) GetByIDs(ctx context.Context, ids []string) ([]*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1) ORDER BY display_name`

	rows, err := r.db.DB().QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*store.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, profile)
	}

	return profiles, rows.Err()
}

// Create inserts a profile at the initial rating. An existing profile is
// left untouched and returned as is.
func (r *ProfileRepository) Create(ctx context.Context, id, displayName string) (*store.Profile, error) {
	query := `
		INSERT INTO profiles (id, display_name, current_elo, peak_elo)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.DB().ExecContext(ctx, query, id, displayName, elo.InitialRatingValue()); err != nil {
		return nil, fmt.Errorf("inserting profile: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Ensure returns the profile for id, creating it when missing.
func (r *ProfileRepository) Ensure(ctx context.Context, id, displayName string) (*store.Profile, error) {
	profile, err := r.GetByID(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if displayName == "" {
		displayName = "Player"
	}
	return r.Create(ctx, id, displayName)
}

// Leaderboard returns the top profiles ranked by rating, wins, then name.
func (r *ProfileRepository) Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	query := `
		SELECT
			ROW_NUMBER() OVER (ORDER BY current_elo DESC, wins DESC, display_name ASC) AS rank,
			id, display_name, current_elo, peak_elo, games_played, wins, losses
		FROM profiles
		ORDER BY current_elo DESC, wins DESC, display_name ASC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]store.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e store.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.PlayerID, &e.DisplayName, &e.CurrentElo, &e.PeakElo,
			&e.GamesPlayed, &e.Wins, &e.Losses); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		if e.GamesPlayed > 0 {
			e.WinRate = int(float64(e.Wins)/float64(e.GamesPlayed)*100 + 0.5)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanProfile(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Profile, error) {
	p := &store.Profile{}
	err := scanner.Scan(
		&p.ID, &p.DisplayName, &p.AvatarURL, &p.CurrentElo, &p.PeakElo,
		&p.GamesPlayed, &p.Wins, &p.Losses, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
