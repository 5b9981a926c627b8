package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
)

// ReplayStore loads rated games and writes replayed ratings back.
type ReplayStore interface {
	LoadCompletedGames(ctx context.Context, since *time.Time) ([]ReplayGame, error)
	LoadSeedRatings(ctx context.Context, since time.Time) (map[string]float64, error)
	ApplyReplay(ctx context.Context, replay *Replay) error
}

// Runner replays completed games through the rating engine.
type Runner struct {
	store ReplayStore
	opts  elo.Options
}

// NewRunner constructs a runner. opts are the engine options used when a
// spec carries no K-factor override.
func NewRunner(store ReplayStore, opts elo.Options) *Runner {
	return &Runner{store: store, opts: opts}
}

// Run executes the job spec, reporting progress via the Reporter if provided.
// Dry runs compute and report the replay without writing it.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Replay, error) {
	if reporter != nil {
		reporter.OnJobStart(spec)
	}

	replay, err := r.run(ctx, spec, reporter)
	if err != nil {
		if reporter != nil {
			reporter.OnJobError(err)
		}
		return nil, err
	}

	if reporter != nil {
		reporter.OnJobComplete(replay)
	}
	return replay, nil
}

func (r *Runner) run(ctx context.Context, spec JobSpec, reporter Reporter) (*Replay, error) {
	var since *time.Time
	seeds := map[string]float64{}

	switch spec.Type {
	case JobTypeFull:
	case JobTypeSince:
		if spec.Since.IsZero() {
			return nil, fmt.Errorf("since job requires a start date")
		}
		since = &spec.Since
		loaded, err := r.store.LoadSeedRatings(ctx, spec.Since)
		if err != nil {
			return nil, fmt.Errorf("load seed ratings: %w", err)
		}
		seeds = loaded
	default:
		return nil, fmt.Errorf("unsupported job type %s", spec.Type)
	}

	games, err := r.store.LoadCompletedGames(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load completed games: %w", err)
	}

	if reporter != nil {
		reporter.OnProgress(fmt.Sprintf("Replaying %d games", len(games)), 0, len(games))
	}

	opts := r.opts
	if spec.KFactor > 0 {
		opts = opts.Override(elo.Options{KFactor: elo.Float64(spec.KFactor)})
	}

	replay := &Replay{Spec: spec, FinalRatings: map[string]float64{}}
	for idx, game := range games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		replayed, err := replayGame(game, seeds, replay.FinalRatings, opts)
		if err != nil {
			replay.Skipped = append(replay.Skipped, game.GameID)
			if reporter != nil {
				reporter.OnProgress(fmt.Sprintf("Skipped game %s: %v", game.GameID, err), idx+1, len(games))
			}
			continue
		}
		replay.Games = append(replay.Games, *replayed)

		if reporter != nil {
			reporter.OnGameReplayed(game.GameID, idx, len(games))
		}
	}

	if spec.DryRun {
		if reporter != nil {
			reporter.OnProgress("Dry-run mode: no ratings were written", len(games), len(games))
		}
		return replay, nil
	}

	if err := r.store.ApplyReplay(ctx, replay); err != nil {
		return nil, fmt.Errorf("apply replay: %w", err)
	}

	return replay, nil
}

// replayGame rates one game from the running ratings and records the new
// values in ratings.
func replayGame(game ReplayGame, seeds, ratings map[string]float64, opts elo.Options) (*ReplayedGame, error) {
	if !game.WinningTeam.Valid() {
		return nil, fmt.Errorf("no valid winning team recorded")
	}

	var teamA, teamB []elo.Player
	for _, p := range game.Participants {
		rating, ok := ratings[p.PlayerID]
		if !ok {
			rating, ok = seeds[p.PlayerID]
			if !ok {
				rating = elo.InitialRatingValue()
			}
		}

		player := elo.Player{ID: p.PlayerID, Name: p.Name, Rating: rating}
		if p.Team == store.TeamA {
			teamA = append(teamA, player)
		} else {
			teamB = append(teamB, player)
		}
	}

	update, err := elo.UpdateTeamRatings(teamA, teamB, game.WinningTeam == store.TeamA, opts)
	if err != nil {
		return nil, err
	}

	replayed := &ReplayedGame{GameID: game.GameID, WinningTeam: game.WinningTeam}
	for _, changes := range [][]elo.RatingChange{update.Team1Changes, update.Team2Changes} {
		for _, c := range changes {
			ratings[c.PlayerID] = c.NewRating
			replayed.Changes = append(replayed.Changes, ChangeRecord{
				PlayerID:  c.PlayerID,
				EloBefore: c.OldRating,
				EloAfter:  c.NewRating,
				EloChange: c.RatingChange,
			})
		}
	}

	return replayed, nil
}
