package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
)

// ComputeFunc produces the rating update for the locked rosters. It runs
// inside the commit transaction and must not perform I/O.
type ComputeFunc func(teamA, teamB []elo.Player) (*elo.TeamUpdateResult, error)

// GameResultInput is the final outcome reported for a game.
type GameResultInput struct {
	GameID      string
	WinningTeam store.Team
	TeamAScore  *int
	TeamBScore  *int
}

// CommittedResult is what ApplyGameResult wrote.
type CommittedResult struct {
	GameID      string
	WinningTeam store.Team
	Update      *elo.TeamUpdateResult
}

// RatingRepository commits game results and serves rating history
type RatingRepository struct {
	db *store.Database
}

// NewRatingRepository creates a new rating repository
func NewRatingRepository(db *store.Database) *RatingRepository {
	return &RatingRepository{db: db}
}

// ApplyGameResult commits a game result exactly once. The game row and every
// participant profile are locked, compute runs against the locked ratings,
// and participants, profiles, history and the game status are written in one
// transaction. Any error rolls everything back.
func (r *RatingRepository) ApplyGameResult(ctx context.Context, result GameResultInput, compute ComputeFunc) (*CommittedResult, error) {
	if !result.WinningTeam.Valid() {
		return nil, fmt.Errorf("winning team %q: %w", result.WinningTeam, elo.ErrInvalidInput)
	}

	var committed *CommittedResult
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var status store.GameStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM games WHERE id = $1 FOR UPDATE`, result.GameID,
		).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("game %s: %w", result.GameID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("locking game: %w", err)
		}

		switch status {
		case store.GameStatusCompleted:
			return fmt.Errorf("game %s: %w", result.GameID, ErrGameAlreadyCompleted)
		case store.GameStatusCancelled:
			return fmt.Errorf("game %s is cancelled: %w", result.GameID, ErrGameNotOpen)
		}

		teamA, teamB, err := lockRosters(ctx, tx, result.GameID)
		if err != nil {
			return err
		}

		update, err := compute(teamA, teamB)
		if err != nil {
			return err
		}

		if err := writeTeam(ctx, tx, result.GameID, update.Team1Changes, result.WinningTeam == store.TeamA); err != nil {
			return err
		}
		if err := writeTeam(ctx, tx, result.GameID, update.Team2Changes, result.WinningTeam == store.TeamB); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE games
			SET status = 'completed', winning_team = $2, team_a_score = $3, team_b_score = $4,
				completed_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`, result.GameID, result.WinningTeam, result.TeamAScore, result.TeamBScore)
		if err != nil {
			return fmt.Errorf("completing game: %w", err)
		}

		committed = &CommittedResult{
			GameID:      result.GameID,
			WinningTeam: result.WinningTeam,
			Update:      update,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return committed, nil
}

func lockRosters(ctx context.Context, tx *sql.Tx, gameID string) (teamA, teamB []elo.Player, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT gp.player_id, p.display_name, p.current_elo, gp.team
		FROM game_participants gp
		JOIN profiles p ON p.id = gp.player_id
		WHERE gp.game_id = $1
		ORDER BY gp.joined_at, gp.player_id
		FOR UPDATE OF p
	`, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("locking participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p elo.Player
		var team store.Team
		if err := rows.Scan(&p.ID, &p.Name, &p.Rating, &team); err != nil {
			return nil, nil, fmt.Errorf("scanning participant: %w", err)
		}
		if team == store.TeamA {
			teamA = append(teamA, p)
		} else {
			teamB = append(teamB, p)
		}
	}

	return teamA, teamB, rows.Err()
}

func writeTeam(ctx context.Context, tx *sql.Tx, gameID string, changes []elo.RatingChange, won bool) error {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}

	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE game_participants
			SET elo_before = $3, elo_after = $4, elo_change = $5
			WHERE game_id = $1 AND player_id = $2
		`, gameID, c.PlayerID, c.OldRating, c.NewRating, c.RatingChange); err != nil {
			return fmt.Errorf("updating participant %s: %w", c.PlayerID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET current_elo = $2, peak_elo = GREATEST(peak_elo, $2),
				games_played = games_played + 1, wins = wins + $3, losses = losses + $4,
				updated_at = NOW()
			WHERE id = $1
		`, c.PlayerID, c.NewRating, wins, losses); err != nil {
			return fmt.Errorf("updating profile %s: %w", c.PlayerID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO elo_history (player_id, game_id, elo_before, elo_after, elo_change)
			VALUES ($1, $2, $3, $4, $5)
		`, c.PlayerID, gameID, c.OldRating, c.NewRating, c.RatingChange); err != nil {
			return fmt.Errorf("recording history for %s: %w", c.PlayerID, err)
		}
	}

	return nil
}

// GetPlayerHistory returns the newest rating changes for a player
func (r *RatingRepository) GetPlayerHistory(ctx context.Context, playerID string, limit int) ([]store.RatingHistoryEntry, error) {
	query := `
		SELECT id, player_id, game_id, elo_before, elo_after, elo_change, created_at
		FROM elo_history
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.DB().QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying rating history: %w", err)
	}
	defer rows.Close()

	history := make([]store.RatingHistoryEntry, 0, limit)
	for rows.Next() {
		var h store.RatingHistoryEntry
		if err := rows.Scan(&h.ID, &h.PlayerID, &h.GameID, &h.EloBefore, &h.EloAfter,
			&h.EloChange, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning rating history: %w", err)
		}
		history = append(history, h)
	}

	return history, rows.Err()
}
