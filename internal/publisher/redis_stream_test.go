package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishAndReadBack(t *testing.T) {
	client := newTestClient(t)
	pub := NewRedisStreamPublisher(client)
	consumer := NewStreamConsumer(client)
	ctx := context.Background()

	require.NoError(t, pub.PublishRatingUpdate(ctx, RatingUpdateEvent{
		GameID:      "g1",
		WinningTeam: "team_a",
		Changes: []elo.RatingChange{
			{PlayerID: "alice", PlayerName: "Alice", OldRating: 1500, NewRating: 1510, RatingChange: 10},
		},
	}))
	require.NoError(t, pub.PublishGameEvent(ctx, GameEvent{Type: GameStarted, GameID: "g1", Status: "in_progress"}))

	envelopes, err := consumer.Read(ctx, map[string]string{
		RatingUpdatesStream: "0",
		GameEventsStream:    "0",
	}, 0)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)

	byStream := map[string]Envelope{}
	for _, env := range envelopes {
		byStream[env.Stream] = env
		assert.NotEmpty(t, env.ID)
		assert.Positive(t, env.Timestamp)
	}

	var update RatingUpdateEvent
	require.NoError(t, json.Unmarshal(byStream[RatingUpdatesStream].Data, &update))
	assert.Equal(t, "g1", update.GameID)
	require.Len(t, update.Changes, 1)
	assert.Equal(t, 10.0, update.Changes[0].RatingChange)

	var event GameEvent
	require.NoError(t, json.Unmarshal(byStream[GameEventsStream].Data, &event))
	assert.Equal(t, GameStarted, event.Type)
}

func TestReadWithoutNewEntriesReturnsNothing(t *testing.T) {
	client := newTestClient(t)
	pub := NewRedisStreamPublisher(client)
	consumer := NewStreamConsumer(client)
	ctx := context.Background()

	require.NoError(t, pub.PublishGameEvent(ctx, GameEvent{Type: GameCreated, GameID: "g1", At: time.Now()}))

	first, err := consumer.Read(ctx, map[string]string{GameEventsStream: "0"}, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := consumer.Read(ctx, map[string]string{GameEventsStream: first[0].ID}, 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReadWithNoStreams(t *testing.T) {
	consumer := NewStreamConsumer(newTestClient(t))

	envelopes, err := consumer.Read(context.Background(), nil, time.Second)

	require.NoError(t, err)
	assert.Nil(t, envelopes)
}
