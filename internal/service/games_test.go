package service

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	mu          sync.Mutex
	invalidated int
}

func (c *countingCache) GetJSON(context.Context, string, interface{}) error {
	return errUnavailable
}

func (c *countingCache) LeaderboardGeneration(context.Context) (int64, error) {
	return 0, nil
}

func (c *countingCache) SetLeaderboardJSON(context.Context, string, interface{}, time.Duration, int64) (bool, error) {
	return true, nil
}

func (c *countingCache) InvalidateLeaderboards(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	return 1, nil
}

type gameFixture struct {
	svc       *GameService
	profiles  *fakeProfiles
	games     *fakeGames
	ratings   *fakeRatings
	cache     *countingCache
	publisher *fakePublisher
}

func newGameFixture(profiles ...*store.Profile) *gameFixture {
	fp := newFakeProfiles(profiles...)
	fg := newFakeGames(fp)
	fr := newFakeRatings(fg, fp)
	fc := &countingCache{}
	pub := &fakePublisher{}
	return &gameFixture{
		svc:       NewGameService(fp, fg, fr, fc, pub, elo.DefaultOptions(), log.New(io.Discard, "", 0)),
		profiles:  fp,
		games:     fg,
		ratings:   fr,
		cache:     fc,
		publisher: pub,
	}
}

func profile(id string, rating float64) *store.Profile {
	return &store.Profile{ID: id, DisplayName: id, CurrentElo: rating, PeakElo: rating}
}

func (f *gameFixture) lobby(t *testing.T, teamA, teamB []string) string {
	t.Helper()
	ctx := context.Background()
	game, err := f.svc.CreateGame(ctx, "host", 5)
	require.NoError(t, err)
	for _, id := range teamA {
		_, err := f.svc.JoinGame(ctx, id, "", game.ID, store.TeamA)
		require.NoError(t, err)
	}
	for _, id := range teamB {
		_, err := f.svc.JoinGame(ctx, id, "", game.ID, store.TeamB)
		require.NoError(t, err)
	}
	return game.ID
}

func TestCreateGame(t *testing.T) {
	f := newGameFixture()
	ctx := context.Background()

	game, err := f.svc.CreateGame(ctx, "host", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, game.TeamSize)
	assert.Equal(t, store.GameStatusPending, game.Status)
	assert.Empty(t, game.TeamA)

	_, err = f.profiles.GetByID(ctx, "host")
	assert.NoError(t, err, "host profile is created on first use")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, publisher.GameCreated, f.publisher.events[0].Type)

	for _, size := range []int{-1, 6} {
		_, err := f.svc.CreateGame(ctx, "host", size)
		assert.ErrorIs(t, err, ErrInvalidArgument, "size %d", size)
	}
}

func TestJoinGame(t *testing.T) {
	f := newGameFixture()
	ctx := context.Background()
	game, err := f.svc.CreateGame(ctx, "host", 1)
	require.NoError(t, err)

	view, err := f.svc.JoinGame(ctx, "alice", "Alice", game.ID, store.TeamA)
	require.NoError(t, err)
	require.Len(t, view.TeamA, 1)
	assert.Equal(t, "Alice", view.TeamA[0].DisplayName)
	assert.Equal(t, elo.InitialRating, view.TeamA[0].CurrentElo)

	t.Run("unknown team", func(t *testing.T) {
		_, err := f.svc.JoinGame(ctx, "bob", "", game.ID, "bench")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("already joined", func(t *testing.T) {
		_, err := f.svc.JoinGame(ctx, "alice", "", game.ID, store.TeamB)
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("team full", func(t *testing.T) {
		_, err := f.svc.JoinGame(ctx, "bob", "", game.ID, store.TeamA)
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("missing game", func(t *testing.T) {
		_, err := f.svc.JoinGame(ctx, "bob", "", "nope", store.TeamA)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLeaveGame(t *testing.T) {
	f := newGameFixture()
	gameID := f.lobby(t, []string{"alice"}, []string{"bob"})

	view, err := f.svc.LeaveGame(context.Background(), "alice", gameID)

	require.NoError(t, err)
	assert.Empty(t, view.TeamA)
	assert.Len(t, view.TeamB, 1)
}

func TestStartGame(t *testing.T) {
	f := newGameFixture()
	ctx := context.Background()

	gameID := f.lobby(t, []string{"alice"}, nil)
	_, err := f.svc.StartGame(ctx, "host", gameID)
	assert.ErrorIs(t, err, ErrInvalidState, "an empty team cannot start")

	_, err = f.svc.JoinGame(ctx, "bob", "", gameID, store.TeamB)
	require.NoError(t, err)

	_, err = f.svc.StartGame(ctx, "alice", gameID)
	assert.ErrorIs(t, err, ErrForbidden)

	view, err := f.svc.StartGame(ctx, "host", gameID)
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusInProgress, view.Status)

	_, err = f.svc.JoinGame(ctx, "carol", "", gameID, store.TeamB)
	assert.ErrorIs(t, err, ErrInvalidState, "no joins after tip-off")
}

func TestSubmitResultCommitsRatings(t *testing.T) {
	f := newGameFixture(profile("alice", 1500), profile("bob", 1500))
	ctx := context.Background()
	gameID := f.lobby(t, []string{"alice"}, []string{"bob"})

	a, b := 21, 15
	result, err := f.svc.SubmitResult(ctx, "host", gameID, store.TeamA, &a, &b)
	require.NoError(t, err)

	require.Len(t, result.TeamAChanges, 1)
	assert.Equal(t, 1510.0, result.TeamAChanges[0].NewRating)
	assert.Equal(t, 1490.0, result.TeamBChanges[0].NewRating)
	assert.Equal(t, 0.5, result.ExpectedScoreTeamA)

	alice, _ := f.profiles.GetByID(ctx, "alice")
	assert.Equal(t, 1510.0, alice.CurrentElo)

	assert.Equal(t, 1, f.cache.invalidated)
	require.Len(t, f.publisher.ratings, 1)
	assert.Len(t, f.publisher.ratings[0].Changes, 2)
	assert.Equal(t, "team_a", f.publisher.ratings[0].WinningTeam)
}

func TestSubmitResultIsAtMostOnce(t *testing.T) {
	f := newGameFixture(profile("alice", 1500), profile("bob", 1500))
	ctx := context.Background()
	gameID := f.lobby(t, []string{"alice"}, []string{"bob"})

	_, err := f.svc.SubmitResult(ctx, "host", gameID, store.TeamB, nil, nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitResult(ctx, "host", gameID, store.TeamB, nil, nil)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 1, f.ratings.commits)
	bob, _ := f.profiles.GetByID(ctx, "bob")
	assert.Equal(t, 1510.0, bob.CurrentElo)
}

func TestSubmitResultRejections(t *testing.T) {
	f := newGameFixture(profile("alice", 1500), profile("bob", 1500))
	ctx := context.Background()
	gameID := f.lobby(t, []string{"alice"}, []string{"bob"})

	t.Run("not host", func(t *testing.T) {
		_, err := f.svc.SubmitResult(ctx, "alice", gameID, store.TeamA, nil, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})
	t.Run("unknown team", func(t *testing.T) {
		_, err := f.svc.SubmitResult(ctx, "host", gameID, "team_c", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("score contradicts winner", func(t *testing.T) {
		a, b := 10, 21
		_, err := f.svc.SubmitResult(ctx, "host", gameID, store.TeamA, &a, &b)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("negative score", func(t *testing.T) {
		a := -1
		_, err := f.svc.SubmitResult(ctx, "host", gameID, store.TeamB, &a, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	assert.Zero(t, f.ratings.commits)
}

func TestSubmitResultWithEmptyTeamLeavesGameOpen(t *testing.T) {
	f := newGameFixture(profile("alice", 1500))
	ctx := context.Background()
	gameID := f.lobby(t, []string{"alice"}, nil)

	_, err := f.svc.SubmitResult(ctx, "host", gameID, store.TeamA, nil, nil)

	assert.ErrorIs(t, err, elo.ErrInvalidInput)
	game, _ := f.games.GetByID(ctx, gameID)
	assert.Equal(t, store.GameStatusPending, game.Status)
	assert.Zero(t, f.ratings.commits)
}

func TestSubmitResultSurvivesPublishFailure(t *testing.T) {
	f := newGameFixture(profile("alice", 1500), profile("bob", 1500))
	gameID := f.lobby(t, []string{"alice"}, []string{"bob"})
	f.publisher.err = errUnavailable

	_, err := f.svc.SubmitResult(context.Background(), "host", gameID, store.TeamA, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, f.ratings.commits)
}

func TestDeleteGame(t *testing.T) {
	f := newGameFixture(profile("alice", 1500), profile("bob", 1500))
	ctx := context.Background()

	open := f.lobby(t, []string{"alice"}, nil)
	assert.ErrorIs(t, f.svc.DeleteGame(ctx, "alice", open), ErrForbidden)
	require.NoError(t, f.svc.DeleteGame(ctx, "host", open))
	_, err := f.svc.GetGame(ctx, open)
	assert.ErrorIs(t, err, ErrNotFound)

	played := f.lobby(t, []string{"alice"}, []string{"bob"})
	_, err = f.svc.SubmitResult(ctx, "host", played, store.TeamA, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteGame(ctx, "host", played), ErrConflict)
}

func TestListGamesRejectsUnknownStatus(t *testing.T) {
	f := newGameFixture()

	_, err := f.svc.ListGames(context.Background(), "finished", 10)

	assert.ErrorIs(t, err, ErrInvalidArgument)
}
