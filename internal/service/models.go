package service

import (
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/store"
)

// ParticipantView is a roster entry as returned by the API
type ParticipantView struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	CurrentElo  float64   `json:"current_elo"`
	EloBefore   *float64  `json:"elo_before,omitempty"`
	EloAfter    *float64  `json:"elo_after,omitempty"`
	EloChange   *float64  `json:"elo_change,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// GameView is a game with both rosters
type GameView struct {
	ID          string            `json:"id"`
	HostID      string            `json:"host_id"`
	Status      store.GameStatus  `json:"status"`
	TeamSize    int               `json:"team_size"`
	WinningTeam *string           `json:"winning_team,omitempty"`
	TeamAScore  *int              `json:"team_a_score,omitempty"`
	TeamBScore  *int              `json:"team_b_score,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	TeamA       []ParticipantView `json:"team_a"`
	TeamB       []ParticipantView `json:"team_b"`
}

// GameResult is the outcome of a committed game
type GameResult struct {
	GameID             string             `json:"game_id"`
	WinningTeam        store.Team         `json:"winning_team"`
	TeamAChanges       []elo.RatingChange `json:"team_a_changes"`
	TeamBChanges       []elo.RatingChange `json:"team_b_changes"`
	TeamAAverageRating float64            `json:"team_a_average_rating"`
	TeamBAverageRating float64            `json:"team_b_average_rating"`
	ExpectedScoreTeamA float64            `json:"expected_score_team_a"`
	ExpectedScoreTeamB float64            `json:"expected_score_team_b"`
}

// GamePreview is the lobby view of a matchup before it is played
type GamePreview struct {
	GameID     string           `json:"game_id"`
	TeamA      []elo.Player     `json:"team_a"`
	TeamB      []elo.Player     `json:"team_b"`
	Analysis   *elo.GapAnalysis `json:"analysis"`
	Simulation *elo.Simulation  `json:"simulation"`
}

func newGameView(game *store.Game, participants []*store.Participant) *GameView {
	view := &GameView{
		ID:        game.ID,
		HostID:    game.HostID,
		Status:    game.Status,
		TeamSize:  game.TeamSize,
		CreatedAt: game.CreatedAt,
		TeamA:     []ParticipantView{},
		TeamB:     []ParticipantView{},
	}
	if game.WinningTeam.Valid {
		view.WinningTeam = &game.WinningTeam.String
	}
	if game.TeamAScore.Valid {
		score := int(game.TeamAScore.Int32)
		view.TeamAScore = &score
	}
	if game.TeamBScore.Valid {
		score := int(game.TeamBScore.Int32)
		view.TeamBScore = &score
	}
	if game.CompletedAt.Valid {
		view.CompletedAt = &game.CompletedAt.Time
	}

	for _, p := range participants {
		pv := ParticipantView{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			CurrentElo:  p.CurrentElo,
			JoinedAt:    p.JoinedAt,
		}
		if p.EloBefore.Valid {
			pv.EloBefore = &p.EloBefore.Float64
		}
		if p.EloAfter.Valid {
			pv.EloAfter = &p.EloAfter.Float64
		}
		if p.EloChange.Valid {
			pv.EloChange = &p.EloChange.Float64
		}

		if p.Team == store.TeamA {
			view.TeamA = append(view.TeamA, pv)
		} else {
			view.TeamB = append(view.TeamB, pv)
		}
	}

	return view
}

func rosters(participants []*store.Participant) (teamA, teamB []elo.Player) {
	for _, p := range participants {
		player := elo.Player{ID: p.PlayerID, Name: p.DisplayName, Rating: p.CurrentElo}
		if p.Team == store.TeamA {
			teamA = append(teamA, player)
		} else {
			teamB = append(teamB, player)
		}
	}
	return teamA, teamB
}
