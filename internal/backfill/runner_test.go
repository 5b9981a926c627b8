package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReplayStore struct {
	games     []ReplayGame
	seeds     map[string]float64
	since     *time.Time
	seedsAt   time.Time
	applied   *Replay
	applyErr  error
	seedCalls int
}

func (f *fakeReplayStore) LoadCompletedGames(_ context.Context, since *time.Time) ([]ReplayGame, error) {
	f.since = since
	return f.games, nil
}

func (f *fakeReplayStore) LoadSeedRatings(_ context.Context, since time.Time) (map[string]float64, error) {
	f.seedCalls++
	f.seedsAt = since
	return f.seeds, nil
}

func (f *fakeReplayStore) ApplyReplay(_ context.Context, replay *Replay) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = replay
	return nil
}

type recordingReporter struct {
	started  bool
	replayed []string
	messages []string
	complete *Replay
	err      error
}

func (r *recordingReporter) OnJobStart(JobSpec) { r.started = true }

func (r *recordingReporter) OnGameReplayed(gameID string, _ int, _ int) {
	r.replayed = append(r.replayed, gameID)
}

func (r *recordingReporter) OnProgress(message string, _ int, _ int) {
	r.messages = append(r.messages, message)
}

func (r *recordingReporter) OnJobComplete(replay *Replay) { r.complete = replay }

func (r *recordingReporter) OnJobError(err error) { r.err = err }

func oneOnOne(id, a, b string, winner store.Team) ReplayGame {
	return ReplayGame{
		GameID:      id,
		WinningTeam: winner,
		Participants: []ReplayParticipant{
			{PlayerID: a, Name: a, Team: store.TeamA},
			{PlayerID: b, Name: b, Team: store.TeamB},
		},
	}
}

func TestRunFullReplay(t *testing.T) {
	fs := &fakeReplayStore{games: []ReplayGame{
		oneOnOne("g1", "alice", "bob", store.TeamA),
		oneOnOne("g2", "alice", "bob", store.TeamB),
	}}
	reporter := &recordingReporter{}
	runner := NewRunner(fs, elo.DefaultOptions())

	replay, err := runner.Run(context.Background(), JobSpec{Type: JobTypeFull}, reporter)
	require.NoError(t, err)

	assert.Nil(t, fs.since)
	assert.Zero(t, fs.seedCalls, "full replays start everyone from the initial rating")
	require.Len(t, replay.Games, 2)

	first := replay.Games[0].Changes
	assert.Equal(t, 1500.0, first[0].EloBefore)
	assert.Equal(t, 1510.0, first[0].EloAfter)

	second := replay.Games[1].Changes
	assert.Equal(t, 1510.0, second[0].EloBefore, "ratings carry over between games")

	assert.Equal(t, []string{"alice", "bob"}, replay.PlayerIDs())
	assert.Same(t, replay, fs.applied)
	assert.True(t, reporter.started)
	assert.Equal(t, []string{"g1", "g2"}, reporter.replayed)
	assert.Same(t, replay, reporter.complete)
}

func TestRunSinceUsesSeedRatings(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fs := &fakeReplayStore{
		games: []ReplayGame{oneOnOne("g1", "alice", "carol", store.TeamA)},
		seeds: map[string]float64{"alice": 1600},
	}
	runner := NewRunner(fs, elo.DefaultOptions())

	replay, err := runner.Run(context.Background(), JobSpec{Type: JobTypeSince, Since: since}, nil)
	require.NoError(t, err)

	require.NotNil(t, fs.since)
	assert.Equal(t, since, *fs.since)
	assert.Equal(t, since, fs.seedsAt)

	changes := replay.Games[0].Changes
	assert.Equal(t, 1600.0, changes[0].EloBefore)
	assert.Equal(t, 1500.0, changes[1].EloBefore, "players without a seed start from the initial rating")
}

func TestRunSinceRequiresDate(t *testing.T) {
	runner := NewRunner(&fakeReplayStore{}, elo.DefaultOptions())

	_, err := runner.Run(context.Background(), JobSpec{Type: JobTypeSince}, nil)

	assert.Error(t, err)
}

func TestRunKFactorOverride(t *testing.T) {
	fs := &fakeReplayStore{games: []ReplayGame{oneOnOne("g1", "alice", "bob", store.TeamA)}}
	runner := NewRunner(fs, elo.DefaultOptions())

	replay, err := runner.Run(context.Background(), JobSpec{Type: JobTypeFull, KFactor: 40}, nil)
	require.NoError(t, err)

	assert.Equal(t, 20.0, replay.Games[0].Changes[0].EloChange)
}

func TestRunDryRunSkipsApply(t *testing.T) {
	fs := &fakeReplayStore{games: []ReplayGame{oneOnOne("g1", "alice", "bob", store.TeamA)}}
	runner := NewRunner(fs, elo.DefaultOptions())

	replay, err := runner.Run(context.Background(), JobSpec{Type: JobTypeFull, DryRun: true}, nil)
	require.NoError(t, err)

	assert.Nil(t, fs.applied)
	assert.Len(t, replay.Games, 1)
}

func TestRunSkipsUnrateableGames(t *testing.T) {
	lopsided := ReplayGame{
		GameID:       "g2",
		WinningTeam:  store.TeamA,
		Participants: []ReplayParticipant{{PlayerID: "alice", Name: "alice", Team: store.TeamA}},
	}
	noWinner := oneOnOne("g3", "alice", "bob", "")
	fs := &fakeReplayStore{games: []ReplayGame{
		oneOnOne("g1", "alice", "bob", store.TeamA),
		lopsided,
		noWinner,
	}}
	reporter := &recordingReporter{}
	runner := NewRunner(fs, elo.DefaultOptions())

	replay, err := runner.Run(context.Background(), JobSpec{Type: JobTypeFull}, reporter)
	require.NoError(t, err)

	assert.Len(t, replay.Games, 1)
	assert.Equal(t, []string{"g2", "g3"}, replay.Skipped)
	assert.Equal(t, []string{"g1"}, reporter.replayed)
}

func TestRunApplyFailureReported(t *testing.T) {
	boom := errors.New("boom")
	fs := &fakeReplayStore{
		games:    []ReplayGame{oneOnOne("g1", "alice", "bob", store.TeamA)},
		applyErr: boom,
	}
	reporter := &recordingReporter{}
	runner := NewRunner(fs, elo.DefaultOptions())

	_, err := runner.Run(context.Background(), JobSpec{Type: JobTypeFull}, reporter)

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reporter.err, boom)
	assert.Nil(t, reporter.complete)
}

func TestRequestValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 0, 1)

	assert.Equal(t, JobTypeFull, Request{}.DeriveType())
	assert.Equal(t, JobTypeSince, Request{Since: &past}.DeriveType())

	assert.NoError(t, Request{Since: &past, KFactor: 24}.Validate(now))
	assert.ErrorIs(t, Request{KFactor: -1}.Validate(now), ErrInvalidRequest)
	assert.ErrorIs(t, Request{Since: &future}.Validate(now), ErrInvalidRequest)
}

func TestBuildSpec(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	job := &Job{JobType: JobTypeSince, DryRun: true}
	job.SinceDate.Time, job.SinceDate.Valid = since, true
	job.KFactor.Float64, job.KFactor.Valid = 24, true

	spec, err := buildSpec(job)
	require.NoError(t, err)
	assert.Equal(t, JobSpec{Type: JobTypeSince, Since: since, KFactor: 24, DryRun: true}, spec)

	_, err = buildSpec(&Job{JobType: JobTypeSince})
	assert.Error(t, err)

	_, err = buildSpec(&Job{JobType: "weekly"})
	assert.Error(t, err)
}
