package store

import (
	"database/sql"
	"time"
)

// GameStatus is the lifecycle state of a pickup game.
type GameStatus string

const (
	GameStatusPending    GameStatus = "pending"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
	GameStatusCancelled  GameStatus = "cancelled"
)

// Team is one side of a game.
type Team string

const (
	TeamA Team = "team_a"
	TeamB Team = "team_b"
)

// Valid reports whether t is team_a or team_b.
func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// Profile is a player's persistent rating record.
type Profile struct {
	ID          string         `json:"id" db:"id"`
	DisplayName string         `json:"display_name" db:"display_name"`
	AvatarURL   sql.NullString `json:"-" db:"avatar_url"`
	CurrentElo  float64        `json:"current_elo" db:"current_elo"`
	PeakElo     float64        `json:"peak_elo" db:"peak_elo"`
	GamesPlayed int            `json:"games_played" db:"games_played"`
	Wins        int            `json:"wins" db:"wins"`
	Losses      int            `json:"losses" db:"losses"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// WinRate returns the rounded win percentage.
func (p *Profile) WinRate() int {
	if p.GamesPlayed == 0 {
		return 0
	}
	return int(float64(p.Wins)/float64(p.GamesPlayed)*100 + 0.5)
}

// Game is a pickup game from lobby to final result.
type Game struct {
	ID          string         `json:"id" db:"id"`
	HostID      string         `json:"host_id" db:"host_id"`
	Status      GameStatus     `json:"status" db:"status"`
	TeamSize    int            `json:"team_size" db:"team_size"`
	WinningTeam sql.NullString `json:"-" db:"winning_team"`
	TeamAScore  sql.NullInt32  `json:"-" db:"team_a_score"`
	TeamBScore  sql.NullInt32  `json:"-" db:"team_b_score"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
	CompletedAt sql.NullTime   `json:"-" db:"completed_at"`
}

// Participant is a player's seat in a game. Rating columns are filled when
// the result is committed.
type Participant struct {
	GameID      string          `json:"game_id" db:"game_id"`
	PlayerID    string          `json:"player_id" db:"player_id"`
	DisplayName string          `json:"display_name" db:"-"`
	CurrentElo  float64         `json:"current_elo" db:"-"`
	Team        Team            `json:"team" db:"team"`
	EloBefore   sql.NullFloat64 `json:"-" db:"elo_before"`
	EloAfter    sql.NullFloat64 `json:"-" db:"elo_after"`
	EloChange   sql.NullFloat64 `json:"-" db:"elo_change"`
	JoinedAt    time.Time       `json:"joined_at" db:"joined_at"`
}

// RatingHistoryEntry is one point on a player's rating chart.
type RatingHistoryEntry struct {
	ID        int64     `json:"id" db:"id"`
	PlayerID  string    `json:"player_id" db:"player_id"`
	GameID    string    `json:"game_id" db:"game_id"`
	EloBefore float64   `json:"elo_before" db:"elo_before"`
	EloAfter  float64   `json:"elo_after" db:"elo_after"`
	EloChange float64   `json:"elo_change" db:"elo_change"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LeaderboardEntry is a ranked profile.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	CurrentElo  float64 `json:"elo_rating"`
	PeakElo     float64 `json:"peak_elo"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     int     `json:"win_rate"`
}
