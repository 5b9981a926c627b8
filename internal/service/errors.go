package service

import (
	"errors"
	"fmt"

	"github.com/fortuna/hoopelo/internal/store/repository"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
)

// translate maps repository errors onto service sentinels, keeping the
// original error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrGameAlreadyCompleted),
		errors.Is(err, repository.ErrAlreadyJoined),
		errors.Is(err, repository.ErrTeamFull):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, repository.ErrGameNotOpen):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return err
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
