package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/hoopelo/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GameRepository handles game and roster data access
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `id, host_id, status, team_size, winning_team, team_a_score,
	team_b_score, created_at, updated_at, completed_at`

// Create inserts a pending game hosted by hostID
func (r *GameRepository) Create(ctx context.Context, hostID string, teamSize int) (*store.Game, error) {
	query := `
		INSERT INTO games (id, host_id, status, team_size)
		VALUES ($1, $2, 'pending', $3)
		RETURNING ` + gameColumns

	game, err := scanGame(r.db.DB().QueryRowContext(ctx, query, uuid.New().String(), hostID, teamSize))
	if err != nil {
		return nil, fmt.Errorf("inserting game: %w", err)
	}

	return game, nil
}

// GetByID finds a game by ID
func (r *GameRepository) GetByID(ctx context.Context, gameID string) (*store.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(r.db.DB().QueryRowContext(ctx, query, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}

	return game, nil
}

// ListRecent returns the most recent games, optionally filtered by status
func (r *GameRepository) ListRecent(ctx context.Context, status store.GameStatus, limit int) ([]*store.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.DB().QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, game)
	}

	return games, rows.Err()
}

// AddParticipant seats a player on a team of a pending game. The game row is
// locked so concurrent joins cannot overfill a team.
func (r *GameRepository) AddParticipant(ctx context.Context, gameID, playerID string, team store.Team) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var status store.GameStatus
		var teamSize int
		err := tx.QueryRowContext(ctx,
			`SELECT status, team_size FROM games WHERE id = $1 FOR UPDATE`, gameID,
		).Scan(&status, &teamSize)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("locking game: %w", err)
		}
		if status != store.GameStatusPending {
			return fmt.Errorf("game %s is %s: %w", gameID, status, ErrGameNotOpen)
		}

		var seated int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM game_participants WHERE game_id = $1 AND team = $2`, gameID, team,
		).Scan(&seated)
		if err != nil {
			return fmt.Errorf("counting team: %w", err)
		}
		if seated >= teamSize {
			return fmt.Errorf("%s has %d of %d players: %w", team, seated, teamSize, ErrTeamFull)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_participants (game_id, player_id, team) VALUES ($1, $2, $3)`,
			gameID, playerID, team,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("player %s: %w", playerID, ErrAlreadyJoined)
		}
		if err != nil {
			return fmt.Errorf("inserting participant: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE games SET updated_at = NOW() WHERE id = $1`, gameID)
		return err
	})
}

// RemoveParticipant removes a player from a pending game
func (r *GameRepository) RemoveParticipant(ctx context.Context, gameID, playerID string) error {
	query := `
		DELETE FROM game_participants gp
		USING games g
		WHERE gp.game_id = g.id
			AND gp.game_id = $1
			AND gp.player_id = $2
			AND g.status = 'pending'
	`

	result, err := r.db.DB().ExecContext(ctx, query, gameID, playerID)
	if err != nil {
		return fmt.Errorf("deleting participant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("player %s not seated in open game %s: %w", playerID, gameID, ErrNotFound)
	}

	return nil
}

// ListParticipants returns the roster with each player's current profile rating
func (r *GameRepository) ListParticipants(ctx context.Context, gameID string) ([]*store.Participant, error) {
	query := `
		SELECT gp.game_id, gp.player_id, p.display_name, p.current_elo, gp.team,
			gp.elo_before, gp.elo_after, gp.elo_change, gp.joined_at
		FROM game_participants gp
		JOIN profiles p ON p.id = gp.player_id
		WHERE gp.game_id = $1
		ORDER BY gp.team, gp.joined_at, gp.player_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []*store.Participant
	for rows.Next() {
		p := &store.Participant{}
		if err := rows.Scan(&p.GameID, &p.PlayerID, &p.DisplayName, &p.CurrentElo, &p.Team,
			&p.EloBefore, &p.EloAfter, &p.EloChange, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// UpdateStatus moves a game to a new status only if it is currently in one of
// the allowed states.
func (r *GameRepository) UpdateStatus(ctx context.Context, gameID string, to store.GameStatus, from ...store.GameStatus) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE games
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	result, err := r.db.DB().ExecContext(ctx, query, gameID, to, pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("updating game status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("game %s cannot move to %s: %w", gameID, to, ErrGameNotOpen)
	}

	return nil
}

// Delete removes a game that has not been completed
func (r *GameRepository) Delete(ctx context.Context, gameID string) error {
	result, err := r.db.DB().ExecContext(ctx,
		`DELETE FROM games WHERE id = $1 AND status <> 'completed'`, gameID)
	if err != nil {
		return fmt.Errorf("deleting game: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("game %s: %w", gameID, ErrGameNotOpen)
	}

	return nil
}

// CancelStalePending cancels pending games created before now-olderThan and
// returns their IDs.
func (r *GameRepository) CancelStalePending(ctx context.Context, olderThan time.Duration) ([]string, error) {
	query := `
		UPDATE games
		SET status = 'cancelled', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("cancelling stale games: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanGame(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Game, error) {
	g := &store.Game{}
	err := scanner.Scan(
		&g.ID, &g.HostID, &g.Status, &g.TeamSize, &g.WinningTeam, &g.TeamAScore,
		&g.TeamBScore, &g.CreatedAt, &g.UpdatedAt, &g.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}
