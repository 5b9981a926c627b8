package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddParticipantRejectsFullTeam(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, team_size FROM games`).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "team_size"}).AddRow("pending", 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM game_participants`).
		WithArgs("g1", "team_b").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.AddParticipant(context.Background(), "g1", "carol", store.TeamB)

	assert.ErrorIs(t, err, ErrTeamFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddParticipantRejectsStartedGame(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, team_size FROM games`).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "team_size"}).AddRow("in_progress", 5))
	mock.ExpectRollback()

	err := repo.AddParticipant(context.Background(), "g1", "carol", store.TeamA)

	assert.ErrorIs(t, err, ErrGameNotOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelStalePending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)

	mock.ExpectQuery(`UPDATE games\s+SET status = 'cancelled'`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("g1").AddRow("g2"))

	ids, err := repo.CancelStalePending(context.Background(), 12*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
