package main

import (
	"testing"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoster(t *testing.T) {
	players, err := parseRoster("team1", "Alice:1600, Bob:1650,Carol")
	require.NoError(t, err)

	require.Len(t, players, 3)
	assert.Equal(t, elo.Player{ID: "team1-1", Name: "Alice", Rating: 1600}, players[0])
	assert.Equal(t, 1650.0, players[1].Rating)
	assert.Equal(t, elo.InitialRating, players[2].Rating, "a missing rating starts at the initial rating")
}

func TestParseRosterErrors(t *testing.T) {
	for _, raw := range []string{"", "Alice:fast", ":1500"} {
		_, err := parseRoster("team2", raw)
		assert.Error(t, err, raw)
	}
}
