package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/redis/go-redis/v9"
)

const (
	// RatingUpdatesStream carries one event per committed game result.
	RatingUpdatesStream = "ratings.updates.basketball"
	// GameEventsStream carries lobby lifecycle events.
	GameEventsStream = "games.events.basketball"

	streamMaxLen = 10000
)

// GameEventType names a lobby lifecycle change
type GameEventType string

const (
	GameCreated   GameEventType = "game_created"
	PlayerJoined  GameEventType = "player_joined"
	PlayerLeft    GameEventType = "player_left"
	GameStarted   GameEventType = "game_started"
	GameCancelled GameEventType = "game_cancelled"
	GameDeleted   GameEventType = "game_deleted"
)

// RatingUpdateEvent is published after a game result is committed
type RatingUpdateEvent struct {
	GameID             string             `json:"game_id"`
	WinningTeam        string             `json:"winning_team"`
	Team1AverageRating float64            `json:"team1_average_rating"`
	Team2AverageRating float64            `json:"team2_average_rating"`
	ExpectedScoreTeam1 float64            `json:"expected_score_team1"`
	Changes            []elo.RatingChange `json:"changes"`
	CommittedAt        time.Time          `json:"committed_at"`
}

// GameEvent describes a change to a game lobby
type GameEvent struct {
	Type     GameEventType `json:"type"`
	GameID   string        `json:"game_id"`
	PlayerID string        `json:"player_id,omitempty"`
	Team     string        `json:"team,omitempty"`
	Status   string        `json:"status,omitempty"`
	At       time.Time     `json:"at"`
}

// Envelope is a decoded stream entry
type Envelope struct {
	Stream    string          `json:"stream"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
	}
}

// PublishRatingUpdate publishes a committed rating update
func (rsp *RedisStreamPublisher) PublishRatingUpdate(ctx context.Context, event RatingUpdateEvent) error {
	return rsp.publish(ctx, RatingUpdatesStream, event)
}

// PublishGameEvent publishes a lobby lifecycle event
func (rsp *RedisStreamPublisher) PublishGameEvent(ctx context.Context, event GameEvent) error {
	return rsp.publish(ctx, GameEventsStream, event)
}

func (rsp *RedisStreamPublisher) publish(ctx context.Context, streamName string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", streamName, err)
	}

	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
}

// StreamConsumer reads published events back for the realtime relay
type StreamConsumer struct {
	client *redis.Client
}

// NewStreamConsumer creates a consumer on an existing client
func NewStreamConsumer(client *redis.Client) *StreamConsumer {
	return &StreamConsumer{client: client}
}

// Read returns entries newer than the given IDs (stream name to last seen ID,
// "$" for only new entries). A positive block waits up to that long for data;
// otherwise Read returns immediately. No data is not an error.
func (sc *StreamConsumer) Read(ctx context.Context, lastIDs map[string]string, block time.Duration) ([]Envelope, error) {
	if len(lastIDs) == 0 {
		return nil, nil
	}

	streams := make([]string, 0, 2*len(lastIDs))
	ids := make([]string, 0, len(lastIDs))
	for stream, id := range lastIDs {
		streams = append(streams, stream)
		ids = append(ids, id)
	}
	streams = append(streams, ids...)

	if block <= 0 {
		block = -1
	}

	results, err := sc.client.XRead(ctx, &redis.XReadArgs{
		Streams: streams,
		Count:   100,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading streams: %w", err)
	}

	var envelopes []Envelope
	for _, stream := range results {
		for _, msg := range stream.Messages {
			env := Envelope{Stream: stream.Stream, ID: msg.ID}
			if data, ok := msg.Values["data"].(string); ok {
				env.Data = json.RawMessage(data)
			}
			if ts, ok := msg.Values["timestamp"].(string); ok {
				env.Timestamp, _ = strconv.ParseInt(ts, 10, 64)
			}
			envelopes = append(envelopes, env)
		}
	}

	return envelopes, nil
}
