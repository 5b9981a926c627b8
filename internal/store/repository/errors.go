package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrGameAlreadyCompleted is returned when a result was already committed for a game.
	ErrGameAlreadyCompleted = errors.New("game already completed")

	// ErrGameNotOpen is returned when a game is not in a state that allows the change.
	ErrGameNotOpen = errors.New("game not open")

	// ErrTeamFull is returned when a team already has team_size players.
	ErrTeamFull = errors.New("team is full")

	// ErrAlreadyJoined is returned when a player is already in the game.
	ErrAlreadyJoined = errors.New("player already joined")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
