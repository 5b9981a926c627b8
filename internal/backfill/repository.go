package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrReplayStale is returned when games were completed while a replay was
// being computed.
var ErrReplayStale = errors.New("completed games changed during replay")

const jobColumns = `job_id, job_type, since_date, k_factor, dry_run, player_ids,
	status, status_message, progress_current, progress_total,
	last_error, created_at, updated_at, started_at, completed_at`

// Repository handles persistence for rebuild jobs and the rating replay.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a new job row and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	query := `
		INSERT INTO rating_backfill_jobs (
			job_id, job_type, since_date, k_factor, dry_run,
			status, status_message, progress_current, progress_total
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + jobColumns

	row := r.db.DB().QueryRowContext(ctx, query,
		uuid.New().String(), job.JobType, job.SinceDate, job.KFactor, job.DryRun,
		job.Status, job.StatusMessage, job.ProgressCurrent, job.ProgressTotal,
	)

	return scanJob(row)
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, jobID string, status JobStatus, message string, lastErr error) error {
	query := `
		UPDATE rating_backfill_jobs
		SET status = $2::varchar,
			status_message = $3,
			last_error = $4,
			updated_at = NOW(),
			completed_at = CASE WHEN $2::varchar IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END
		WHERE job_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, string(status), message, errText); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	return nil
}

// UpdateProgress updates the progress counters and optional message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	query := `
		UPDATE rating_backfill_jobs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = NOW()
		WHERE job_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, current, total, message); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}

	return nil
}

// SetPlayerIDs records which players a finished job replayed.
func (r *Repository) SetPlayerIDs(ctx context.Context, jobID string, playerIDs []string) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE rating_backfill_jobs SET player_ids = $2, updated_at = NOW() WHERE job_id = $1`,
		jobID, pq.StringArray(playerIDs))
	if err != nil {
		return fmt.Errorf("set job players: %w", err)
	}
	return nil
}

// AppendEvent stores a log entry for a job.
func (r *Repository) AppendEvent(ctx context.Context, jobID string, eventType, message string) error {
	query := `
		INSERT INTO rating_backfill_job_events (job_id, event_type, message)
		VALUES ($1,$2,$3)
	`

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, eventType, message); err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// ResetStuckJobs moves running jobs back to queued (used during service restarts).
func (r *Repository) ResetStuckJobs(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE rating_backfill_jobs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return fmt.Errorf("reset stuck jobs: %w", err)
	}
	return nil
}

// MarkNextJobRunning atomically claims the next queued job.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	query := `
		WITH next_job AS (
			SELECT job_id
			FROM rating_backfill_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE rating_backfill_jobs j
		SET status = 'running',
			status_message = 'Starting job...',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_job
		WHERE j.job_id = next_job.job_id
		RETURNING j.job_id, j.job_type, j.since_date, j.k_factor, j.dry_run, j.player_ids,
			j.status, j.status_message, j.progress_current, j.progress_total,
			j.last_error, j.created_at, j.updated_at, j.started_at, j.completed_at
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM rating_backfill_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return job, nil
}

// ListRecentJobs returns the most recent jobs.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM rating_backfill_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// LoadCompletedGames returns completed games in the order they were rated.
// A nil since loads the whole history.
func (r *Repository) LoadCompletedGames(ctx context.Context, since *time.Time) ([]ReplayGame, error) {
	query := `
		SELECT g.id, g.completed_at, g.winning_team, gp.player_id, p.display_name, gp.team
		FROM games g
		JOIN game_participants gp ON gp.game_id = g.id
		JOIN profiles p ON p.id = gp.player_id
		WHERE g.status = 'completed'
			AND ($1::timestamptz IS NULL OR g.completed_at >= $1)
		ORDER BY g.completed_at, g.id, gp.joined_at, gp.player_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query completed games: %w", err)
	}
	defer rows.Close()

	var games []ReplayGame
	for rows.Next() {
		var (
			gameID      string
			completedAt sql.NullTime
			winningTeam sql.NullString
			p           ReplayParticipant
		)
		if err := rows.Scan(&gameID, &completedAt, &winningTeam, &p.PlayerID, &p.Name, &p.Team); err != nil {
			return nil, fmt.Errorf("scan completed game: %w", err)
		}

		if len(games) == 0 || games[len(games)-1].GameID != gameID {
			games = append(games, ReplayGame{
				GameID:      gameID,
				CompletedAt: completedAt.Time,
				WinningTeam: store.Team(winningTeam.String),
			})
		}
		last := &games[len(games)-1]
		last.Participants = append(last.Participants, p)
	}

	return games, rows.Err()
}

// LoadSeedRatings returns, per player, the rating recorded before their first
// completed game at or after since.
func (r *Repository) LoadSeedRatings(ctx context.Context, since time.Time) (map[string]float64, error) {
	query := `
		SELECT DISTINCT ON (gp.player_id) gp.player_id, gp.elo_before
		FROM game_participants gp
		JOIN games g ON g.id = gp.game_id
		WHERE g.status = 'completed'
			AND g.completed_at >= $1
			AND gp.elo_before IS NOT NULL
		ORDER BY gp.player_id, g.completed_at, g.id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query seed ratings: %w", err)
	}
	defer rows.Close()

	seeds := map[string]float64{}
	for rows.Next() {
		var playerID string
		var rating float64
		if err := rows.Scan(&playerID, &rating); err != nil {
			return nil, fmt.Errorf("scan seed rating: %w", err)
		}
		seeds[playerID] = rating
	}

	return seeds, rows.Err()
}

// ApplyReplay writes a replay in one transaction: participant deltas, rating
// history, and profile ratings and aggregates. Affected profiles are locked
// first so live result commits wait for the rebuild.
func (r *Repository) ApplyReplay(ctx context.Context, replay *Replay) error {
	playerIDs := replay.PlayerIDs()

	var since *time.Time
	if replay.Spec.Type == JobTypeSince {
		since = &replay.Spec.Since
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM profiles WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(playerIDs))
		if err != nil {
			return fmt.Errorf("lock profiles: %w", err)
		}
		// Drain so every row lock is taken before reading anything else.
		for rows.Next() {
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("lock profiles: %w", err)
		}

		var completed int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM games
			WHERE status = 'completed' AND ($1::timestamptz IS NULL OR completed_at >= $1)
		`, since).Scan(&completed)
		if err != nil {
			return fmt.Errorf("count completed games: %w", err)
		}
		if completed != len(replay.Games)+len(replay.Skipped) {
			return fmt.Errorf("%w: replayed %d, found %d", ErrReplayStale,
				len(replay.Games)+len(replay.Skipped), completed)
		}

		for _, game := range replay.Games {
			for _, c := range game.Changes {
				if _, err := tx.ExecContext(ctx, `
					UPDATE game_participants
					SET elo_before = $3, elo_after = $4, elo_change = $5
					WHERE game_id = $1 AND player_id = $2
				`, game.GameID, c.PlayerID, c.EloBefore, c.EloAfter, c.EloChange); err != nil {
					return fmt.Errorf("update participant %s in %s: %w", c.PlayerID, game.GameID, err)
				}

				if _, err := tx.ExecContext(ctx, `
					INSERT INTO elo_history (player_id, game_id, elo_before, elo_after, elo_change)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (player_id, game_id) DO UPDATE
					SET elo_before = EXCLUDED.elo_before,
						elo_after = EXCLUDED.elo_after,
						elo_change = EXCLUDED.elo_change
				`, c.PlayerID, game.GameID, c.EloBefore, c.EloAfter, c.EloChange); err != nil {
					return fmt.Errorf("upsert history %s in %s: %w", c.PlayerID, game.GameID, err)
				}
			}
		}

		for _, playerID := range playerIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles
				SET current_elo = $2,
					peak_elo = GREATEST($3, COALESCE((SELECT MAX(elo_after) FROM elo_history WHERE player_id = $1), $3)),
					updated_at = NOW()
				WHERE id = $1
			`, playerID, replay.FinalRatings[playerID], elo.InitialRatingValue()); err != nil {
				return fmt.Errorf("update profile %s: %w", playerID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles p
			SET games_played = s.games, wins = s.wins, losses = s.losses
			FROM (
				SELECT gp.player_id,
					COUNT(*) AS games,
					COUNT(*) FILTER (WHERE gp.team = g.winning_team) AS wins,
					COUNT(*) FILTER (WHERE gp.team <> g.winning_team) AS losses
				FROM game_participants gp
				JOIN games g ON g.id = gp.game_id
				WHERE g.status = 'completed' AND gp.player_id = ANY($1)
				GROUP BY gp.player_id
			) s
			WHERE p.id = s.player_id
		`, pq.Array(playerIDs)); err != nil {
			return fmt.Errorf("recount profile aggregates: %w", err)
		}

		return nil
	})
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	err := scanner.Scan(
		&job.JobID,
		&job.JobType,
		&job.SinceDate,
		&job.KFactor,
		&job.DryRun,
		&job.PlayerIDs,
		&job.Status,
		&job.StatusMessage,
		&job.ProgressCurrent,
		&job.ProgressTotal,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
