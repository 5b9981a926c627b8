package backfill

import (
	"database/sql"
	"sort"
	"time"

	"github.com/fortuna/hoopelo/internal/store"
	"github.com/lib/pq"
)

// JobType enumerates the supported rebuild variants.
type JobType string

const (
	// JobTypeFull replays every completed game with everyone starting at the
	// initial rating.
	JobTypeFull JobType = "full"
	// JobTypeSince replays games completed at or after a date, seeding each
	// player with the rating they held before their first game in the window.
	JobTypeSince JobType = "since"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a rebuild job.
type Job struct {
	JobID           string
	JobType         JobType
	SinceDate       sql.NullTime
	KFactor         sql.NullFloat64
	DryRun          bool
	PlayerIDs       pq.StringArray
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	LastError       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	return &cpy
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type    JobType
	Since   time.Time
	KFactor float64
	DryRun  bool
}

// ReplayParticipant is a player seat in a replayed game.
type ReplayParticipant struct {
	PlayerID string
	Name     string
	Team     store.Team
}

// ReplayGame is a completed game in replay order.
type ReplayGame struct {
	GameID       string
	CompletedAt  time.Time
	WinningTeam  store.Team
	Participants []ReplayParticipant
}

// ReplayedGame holds the recomputed changes of one game.
type ReplayedGame struct {
	GameID      string
	WinningTeam store.Team
	Changes     []ChangeRecord
}

// ChangeRecord is one player's recomputed rating change.
type ChangeRecord struct {
	PlayerID  string
	EloBefore float64
	EloAfter  float64
	EloChange float64
}

// Replay is the outcome of replaying a window of games.
type Replay struct {
	Spec         JobSpec
	Games        []ReplayedGame
	Skipped      []string
	FinalRatings map[string]float64
}

// PlayerIDs returns the players whose ratings were replayed, sorted.
func (r *Replay) PlayerIDs() []string {
	ids := make([]string, 0, len(r.FinalRatings))
	for id := range r.FinalRatings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnGameReplayed(gameID string, index int, total int)
	OnProgress(message string, current int, total int)
	OnJobComplete(replay *Replay)
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
