package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fortuna/hoopelo/internal/api/websocket"
	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/store"
)

// StaleGameCanceller cancels pending games nobody started
type StaleGameCanceller interface {
	CancelStalePending(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// GameEventPublisher announces cancelled games
type GameEventPublisher interface {
	PublishGameEvent(ctx context.Context, event publisher.GameEvent) error
}

// StreamReader reads published events back from the streams
type StreamReader interface {
	Read(ctx context.Context, lastIDs map[string]string, block time.Duration) ([]publisher.Envelope, error)
}

// Broadcaster delivers relayed events to realtime clients
type Broadcaster interface {
	Broadcast(msg websocket.Message) bool
}

// Orchestrator runs the background tasks of the service
type Orchestrator struct {
	games       StaleGameCanceller
	publisher   GameEventPublisher
	reader      StreamReader
	broadcaster Broadcaster
	config      *Config
	logger      *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds scheduler configuration
type Config struct {
	StaleGameAfter  time.Duration // Default: 12h
	CleanupInterval time.Duration // Default: 15m
	EnableCleanup   bool          // Default: true
	EnableRelay     bool          // Default: true
	RelayBlock      time.Duration // Default: 2s
	Streams         []string      // Default: rating updates and game events
	MaxBackoff      time.Duration // Default: 30s
	RetryDelay      time.Duration // Default: 1s
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		StaleGameAfter:  12 * time.Hour,
		CleanupInterval: 15 * time.Minute,
		EnableCleanup:   true,
		EnableRelay:     true,
		RelayBlock:      2 * time.Second,
		Streams:         []string{publisher.RatingUpdatesStream, publisher.GameEventsStream},
		MaxBackoff:      30 * time.Second,
		RetryDelay:      time.Second,
	}
}

// NewOrchestrator creates a new scheduler orchestrator. pub, reader and
// broadcaster may be nil when Redis is unavailable; the relay is then skipped.
func NewOrchestrator(games StaleGameCanceller, pub GameEventPublisher, reader StreamReader, broadcaster Broadcaster, config *Config, logger *log.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags)
	}

	return &Orchestrator{
		games:       games,
		publisher:   pub,
		reader:      reader,
		broadcaster: broadcaster,
		config:      config,
		logger:      logger,
	}
}

// Start launches the enabled tasks and returns immediately
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Printf("Stale game cleanup: %v (after %v, every %v)", o.config.EnableCleanup, o.config.StaleGameAfter, o.config.CleanupInterval)
	o.logger.Printf("Realtime relay: %v", o.relayEnabled())

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if o.config.EnableCleanup && o.games != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runCleanup(ctx)
		}()
	}

	if o.relayEnabled() {
		start := fmt.Sprintf("%d-0", time.Now().UnixMilli())
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runRelay(ctx, start)
		}()
	}
}

// Stop cancels all tasks and waits for them to return
func (o *Orchestrator) Stop() {
	o.logger.Println("Stopping scheduler orchestrator...")
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	o.logger.Println("✓ Scheduler orchestrator stopped")
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"cleanup_enabled":  o.config.EnableCleanup,
		"cleanup_interval": o.config.CleanupInterval.String(),
		"stale_game_after": o.config.StaleGameAfter.String(),
		"relay_enabled":    o.relayEnabled(),
	}
}

func (o *Orchestrator) relayEnabled() bool {
	return o.config.EnableRelay && o.reader != nil && o.broadcaster != nil
}

// runCleanup cancels stale pending games on every tick
func (o *Orchestrator) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(o.config.CleanupInterval)
	defer ticker.Stop()

	// Run immediately on start
	o.CleanupStaleGames(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Println("→ Stale game cleanup stopped")
			return
		case <-ticker.C:
			o.CleanupStaleGames(ctx)
		}
	}
}

// CleanupStaleGames cancels pending games older than StaleGameAfter and
// announces each one. It returns the cancelled game IDs.
func (o *Orchestrator) CleanupStaleGames(ctx context.Context) []string {
	ids, err := o.games.CancelStalePending(ctx, o.config.StaleGameAfter)
	if err != nil {
		o.logger.Printf("⚠️  Stale game cleanup failed: %v", err)
		return nil
	}

	for _, id := range ids {
		if o.publisher == nil {
			break
		}
		event := publisher.GameEvent{
			Type:   publisher.GameCancelled,
			GameID: id,
			Status: string(store.GameStatusCancelled),
			At:     time.Now().UTC(),
		}
		if err := o.publisher.PublishGameEvent(ctx, event); err != nil {
			o.logger.Printf("⚠️  Failed to publish cancellation of %s: %v", id, err)
		}
	}

	if len(ids) > 0 {
		o.logger.Printf("✓ Cancelled %d stale games", len(ids))
	}
	return ids
}

// runRelay forwards stream entries newer than start to the websocket hub
func (o *Orchestrator) runRelay(ctx context.Context, start string) {
	lastIDs := make(map[string]string, len(o.config.Streams))
	for _, stream := range o.config.Streams {
		lastIDs[stream] = start
	}

	o.logger.Printf("→ Realtime relay started on %v", o.config.Streams)

	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			o.logger.Println("→ Realtime relay stopped")
			return
		}

		envelopes, err := o.reader.Read(ctx, lastIDs, o.config.RelayBlock)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			consecutiveErrors++
			delay := backoff(o.config.RetryDelay, o.config.MaxBackoff, consecutiveErrors)
			o.logger.Printf("⚠️  Relay read failed (%d in a row), retrying in %v: %v", consecutiveErrors, delay, err)
			sleep(ctx, delay)
			continue
		}
		consecutiveErrors = 0

		if len(envelopes) == 0 && o.config.RelayBlock <= 0 {
			sleep(ctx, o.config.RetryDelay)
			continue
		}

		for _, env := range envelopes {
			lastIDs[env.Stream] = env.ID
			o.relay(env)
		}
	}
}

func (o *Orchestrator) relay(env publisher.Envelope) {
	var ref struct {
		GameID string `json:"game_id"`
	}
	_ = json.Unmarshal(env.Data, &ref)

	frame, err := json.Marshal(env)
	if err != nil {
		o.logger.Printf("⚠️  Failed to encode %s entry %s: %v", env.Stream, env.ID, err)
		return
	}

	o.broadcaster.Broadcast(websocket.Message{GameID: ref.GameID, Data: frame})
}

// backoff doubles base per consecutive failure, capped at max
func backoff(base, max time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < failures && delay < max; i++ {
		delay *= 2
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
