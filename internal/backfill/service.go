package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
)

// ErrInvalidRequest is returned for requests that cannot become a job.
var ErrInvalidRequest = errors.New("invalid backfill request")

const progressEvery = 25

// Request represents a rebuild invocation request.
type Request struct {
	Since   *time.Time
	KFactor float64
	DryRun  bool
}

// DeriveType infers the job type based on populated fields.
func (r Request) DeriveType() JobType {
	if r.Since != nil {
		return JobTypeSince
	}
	return JobTypeFull
}

// Validate checks the request against the clock.
func (r Request) Validate(now time.Time) error {
	if r.KFactor < 0 {
		return fmt.Errorf("%w: k_factor cannot be negative", ErrInvalidRequest)
	}
	if r.Since != nil && r.Since.After(now) {
		return fmt.Errorf("%w: since date %s is in the future", ErrInvalidRequest, r.Since.Format("2006-01-02"))
	}
	return nil
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo   *Repository
	runner *Runner

	historyLimit int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewService constructs a Service. Call Start to launch workers.
func NewService(db *store.Database, opts elo.Options, logger *log.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = log.New(log.Writer(), "[backfill] ", log.LstdFlags)
	}

	repo := NewRepository(db)

	return &Service{
		repo:         repo,
		runner:       NewRunner(repo, opts),
		historyLimit: 10,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Printf("failed to reset jobs: %v", err)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(time.Now()); err != nil {
		return nil, err
	}

	job := &Job{
		JobType:       req.DeriveType(),
		DryRun:        req.DryRun,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}
	if req.Since != nil {
		job.SinceDate = sql.NullTime{Time: truncateDate(*req.Since), Valid: true}
	}
	if req.KFactor > 0 {
		job.KFactor = sql.NullFloat64{Float64: req.KFactor, Valid: true}
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	_ = s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued")

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			job, err := s.repo.MarkNextJobRunning(s.ctx)
			if err != nil {
				s.logger.Printf("claim job error: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}

			s.executeJob(job)
		}
	}
}

func (s *Service) executeJob(job *Job) {
	spec, err := buildSpec(job)
	if err != nil {
		s.logger.Printf("invalid job spec %s: %v", job.JobID, err)
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Invalid job specification", err)
		return
	}

	s.logger.Printf("Running %s job %s (dry_run=%v)", spec.Type, job.JobID, spec.DryRun)

	reporter := &jobReporter{
		ctx:   s.ctx,
		repo:  s.repo,
		jobID: job.JobID,
	}

	replay, err := s.runner.Run(s.ctx, spec, reporter)
	if err != nil {
		s.logger.Printf("job %s failed: %v", job.JobID, err)
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Job failed", err)
		return
	}

	if err := s.repo.SetPlayerIDs(s.ctx, job.JobID, replay.PlayerIDs()); err != nil {
		s.logger.Printf("job %s: %v", job.JobID, err)
	}

	message := completionMessage(replay)
	s.logger.Printf("✓ Job %s: %s", job.JobID, message)
	_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusCompleted, message, nil)
}

func buildSpec(job *Job) (JobSpec, error) {
	spec := JobSpec{
		Type:   job.JobType,
		DryRun: job.DryRun,
	}
	if job.KFactor.Valid {
		spec.KFactor = job.KFactor.Float64
	}

	switch job.JobType {
	case JobTypeFull:
	case JobTypeSince:
		if !job.SinceDate.Valid {
			return spec, fmt.Errorf("since job missing since_date")
		}
		spec.Since = job.SinceDate.Time
	default:
		return spec, fmt.Errorf("unknown job type %s", job.JobType)
	}

	return spec, nil
}

func completionMessage(replay *Replay) string {
	msg := fmt.Sprintf("Replayed %d games for %d players", len(replay.Games), len(replay.FinalRatings))
	if len(replay.Skipped) > 0 {
		msg += fmt.Sprintf(" (%d skipped)", len(replay.Skipped))
	}
	if replay.Spec.DryRun {
		msg += ", dry run"
	}
	return msg
}

type jobReporter struct {
	ctx   context.Context
	repo  *Repository
	jobID string
	total int
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, 0, 0, fmt.Sprintf("Starting %s replay", spec.Type))
}

func (r *jobReporter) OnGameReplayed(gameID string, index int, total int) {
	r.total = total
	done := index + 1
	if done%progressEvery != 0 && done != total {
		return
	}
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, done, total, fmt.Sprintf("Replayed %d/%d games", done, total))
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	if total > 0 {
		r.total = total
	}
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, current, r.total, message)
}

func (r *jobReporter) OnJobComplete(replay *Replay) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, r.total, r.total, "Job complete")
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "complete", completionMessage(replay))
}

func (r *jobReporter) OnJobError(err error) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "error", err.Error())
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
