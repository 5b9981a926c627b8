package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/fortuna/hoopelo/internal/store/repository"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*store.Profile
	board    []store.LeaderboardEntry
	boardHit int

	// onLeaderboard runs after the leaderboard rows are read.
	onLeaderboard func()
}

func newFakeProfiles(profiles ...*store.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: map[string]*store.Profile{}}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

func (f *fakeProfiles) Ensure(_ context.Context, id, displayName string) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	if displayName == "" {
		displayName = "Player"
	}
	p := &store.Profile{ID: id, DisplayName: displayName, CurrentElo: elo.InitialRating, PeakElo: elo.InitialRating}
	f.profiles[id] = p
	return p, nil
}

func (f *fakeProfiles) Leaderboard(_ context.Context, limit int) ([]store.LeaderboardEntry, error) {
	f.mu.Lock()
	f.boardHit++
	board := f.board
	if len(board) > limit {
		board = board[:limit]
	}
	hook := f.onLeaderboard
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return board, nil
}

type fakeGames struct {
	mu           sync.Mutex
	games        map[string]*store.Game
	participants map[string][]*store.Participant
	profiles     *fakeProfiles
	nextID       int
}

func newFakeGames(profiles *fakeProfiles) *fakeGames {
	return &fakeGames{
		games:        map[string]*store.Game{},
		participants: map[string][]*store.Participant{},
		profiles:     profiles,
	}
}

func (f *fakeGames) Create(_ context.Context, hostID string, teamSize int) (*store.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	g := &store.Game{
		ID:        fmt.Sprintf("game-%d", f.nextID),
		HostID:    hostID,
		Status:    store.GameStatusPending,
		TeamSize:  teamSize,
		CreatedAt: time.Now(),
	}
	f.games[g.ID] = g
	return g, nil
}

func (f *fakeGames) GetByID(_ context.Context, gameID string) (*store.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, repository.ErrNotFound)
	}
	copied := *g
	return &copied, nil
}

func (f *fakeGames) ListRecent(_ context.Context, status store.GameStatus, limit int) ([]*store.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Game
	for _, g := range f.games {
		if status == "" || g.Status == status {
			out = append(out, g)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGames) AddParticipant(_ context.Context, gameID, playerID string, team store.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return repository.ErrNotFound
	}
	if g.Status != store.GameStatusPending {
		return repository.ErrGameNotOpen
	}
	seated := 0
	for _, p := range f.participants[gameID] {
		if p.PlayerID == playerID {
			return repository.ErrAlreadyJoined
		}
		if p.Team == team {
			seated++
		}
	}
	if seated >= g.TeamSize {
		return repository.ErrTeamFull
	}
	f.participants[gameID] = append(f.participants[gameID], &store.Participant{
		GameID: gameID, PlayerID: playerID, Team: team, JoinedAt: time.Now(),
	})
	return nil
}

func (f *fakeGames) RemoveParticipant(_ context.Context, gameID, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.Status != store.GameStatusPending {
		return repository.ErrNotFound
	}
	list := f.participants[gameID]
	for i, p := range list {
		if p.PlayerID == playerID {
			f.participants[gameID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeGames) ListParticipants(ctx context.Context, gameID string) ([]*store.Participant, error) {
	f.mu.Lock()
	list := append([]*store.Participant(nil), f.participants[gameID]...)
	f.mu.Unlock()

	out := make([]*store.Participant, 0, len(list))
	for _, p := range list {
		copied := *p
		if profile, err := f.profiles.GetByID(ctx, p.PlayerID); err == nil {
			copied.DisplayName = profile.DisplayName
			copied.CurrentElo = profile.CurrentElo
		}
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeGames) UpdateStatus(_ context.Context, gameID string, to store.GameStatus, from ...store.GameStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return repository.ErrGameNotOpen
	}
	for _, s := range from {
		if g.Status == s {
			g.Status = to
			return nil
		}
	}
	return repository.ErrGameNotOpen
}

func (f *fakeGames) Delete(_ context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.Status == store.GameStatusCompleted {
		return repository.ErrGameNotOpen
	}
	delete(f.games, gameID)
	delete(f.participants, gameID)
	return nil
}

// fakeRatings mimics the transactional commit: the game and profiles are
// updated only when compute succeeds.
type fakeRatings struct {
	mu       sync.Mutex
	games    *fakeGames
	profiles *fakeProfiles
	history  map[string][]store.RatingHistoryEntry
	commits  int
}

func newFakeRatings(games *fakeGames, profiles *fakeProfiles) *fakeRatings {
	return &fakeRatings{games: games, profiles: profiles, history: map[string][]store.RatingHistoryEntry{}}
}

func (f *fakeRatings) ApplyGameResult(ctx context.Context, result repository.GameResultInput, compute repository.ComputeFunc) (*repository.CommittedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	game, err := f.games.GetByID(ctx, result.GameID)
	if err != nil {
		return nil, err
	}
	if game.Status == store.GameStatusCompleted {
		return nil, repository.ErrGameAlreadyCompleted
	}

	participants, _ := f.games.ListParticipants(ctx, result.GameID)
	var teamA, teamB []elo.Player
	for _, p := range participants {
		player := elo.Player{ID: p.PlayerID, Name: p.DisplayName, Rating: p.CurrentElo}
		if p.Team == store.TeamA {
			teamA = append(teamA, player)
		} else {
			teamB = append(teamB, player)
		}
	}

	update, err := compute(teamA, teamB)
	if err != nil {
		return nil, err
	}

	for _, c := range append(append([]elo.RatingChange{}, update.Team1Changes...), update.Team2Changes...) {
		f.profiles.mu.Lock()
		f.profiles.profiles[c.PlayerID].CurrentElo = c.NewRating
		f.profiles.mu.Unlock()
		f.history[c.PlayerID] = append(f.history[c.PlayerID], store.RatingHistoryEntry{
			PlayerID: c.PlayerID, GameID: result.GameID,
			EloBefore: c.OldRating, EloAfter: c.NewRating, EloChange: c.RatingChange,
		})
	}

	f.games.mu.Lock()
	f.games.games[result.GameID].Status = store.GameStatusCompleted
	f.games.mu.Unlock()
	f.commits++

	return &repository.CommittedResult{GameID: result.GameID, WinningTeam: result.WinningTeam, Update: update}, nil
}

func (f *fakeRatings) GetPlayerHistory(_ context.Context, playerID string, limit int) ([]store.RatingHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[playerID]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	ratings []publisher.RatingUpdateEvent
	events  []publisher.GameEvent
	err     error
}

func (f *fakePublisher) PublishRatingUpdate(_ context.Context, event publisher.RatingUpdateEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ratings = append(f.ratings, event)
	return nil
}

func (f *fakePublisher) PublishGameEvent(_ context.Context, event publisher.GameEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

var errUnavailable = errors.New("unavailable")
