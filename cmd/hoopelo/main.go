package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/hoopelo/internal/api/rest"
	"github.com/fortuna/hoopelo/internal/api/websocket"
	"github.com/fortuna/hoopelo/internal/backfill"
	"github.com/fortuna/hoopelo/internal/cache"
	"github.com/fortuna/hoopelo/internal/config"
	"github.com/fortuna/hoopelo/internal/publisher"
	"github.com/fortuna/hoopelo/internal/scheduler"
	"github.com/fortuna/hoopelo/internal/service"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/fortuna/hoopelo/internal/store/repository"
)

const (
	serviceName    = "hoopelo"
	serviceVersion = "1.0.0"

	redisMaxRetries = 10
	redisRetryDelay = 2 * time.Second
)

func main() {
	log.Printf("Starting %s v%s - Pickup Basketball Ratings", serviceName, serviceVersion)

	config.LoadDotEnv()
	cfg := config.Load()
	eloOpts := cfg.EloOptions()

	// Initialize database connection
	db, err := store.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("✓ Connected to database")

	// Run migrations
	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// Redis backs the leaderboard cache and the event streams. The service
	// keeps rating games without it.
	redisCache := connectRedis(cfg.RedisURL)

	var (
		leaderboardCache service.LeaderboardCache
		eventPublisher   service.EventPublisher
		streamPublisher  *publisher.RedisStreamPublisher
		streamConsumer   *publisher.StreamConsumer
		healthChecks     = map[string]rest.HealthChecker{"database": db}
	)
	if redisCache != nil {
		defer redisCache.Close()
		streamPublisher = publisher.NewRedisStreamPublisher(redisCache.Client())
		streamConsumer = publisher.NewStreamConsumer(redisCache.Client())
		leaderboardCache = redisCache
		eventPublisher = streamPublisher
		healthChecks["redis"] = redisCache
	}

	profiles := repository.NewProfileRepository(db)
	games := repository.NewGameRepository(db)
	ratings := repository.NewRatingRepository(db)

	playerService := service.NewPlayerService(profiles, ratings, leaderboardCache, cfg.LeaderboardCacheTTL, log.Default())
	gameService := service.NewGameService(profiles, games, ratings, leaderboardCache, eventPublisher, eloOpts, log.Default())
	analyticsService := service.NewAnalyticsService(games, eloOpts)

	// Initialize WebSocket server
	wsServer := websocket.NewServer(cfg.AllowedOrigins, nil)

	// Initialize scheduler/orchestrator with configuration
	schedulerConfig := scheduler.DefaultConfig()
	schedulerConfig.StaleGameAfter = cfg.StaleGameAfter
	schedulerConfig.EnableCleanup = cfg.EnableStaleGameCleanup
	schedulerConfig.EnableRelay = cfg.EnableRealtimeRelay

	var sched *scheduler.Orchestrator
	if redisCache != nil {
		sched = scheduler.NewOrchestrator(games, streamPublisher, streamConsumer, wsServer.Hub(), schedulerConfig, nil)
	} else {
		sched = scheduler.NewOrchestrator(games, nil, nil, nil, schedulerConfig, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	log.Println("✓ Scheduler started")

	// Initialize backfill service
	backfillService := backfill.NewService(db, eloOpts, nil)
	backfillService.Start()

	log.Println("✓ Backfill service started")

	// Initialize REST API server
	handler := rest.NewHandler(playerService, gameService, analyticsService, healthChecks)
	restServer := rest.NewServer(cfg.RESTPort, handler, rest.NewBackfillHandler(backfillService), cfg.AllowedOrigins)
	go func() {
		log.Printf("Starting REST API server on port %s", cfg.RESTPort)
		if err := restServer.Start(); err != nil {
			log.Printf("REST server error: %v", err)
		}
	}()

	log.Printf("✓ REST API server listening on :%s", cfg.RESTPort)

	go func() {
		log.Printf("Starting WebSocket server on port %s", cfg.WSPort)
		if err := wsServer.Start(cfg.WSPort); err != nil {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	log.Printf("✓ WebSocket server listening on :%s", cfg.WSPort)
	log.Printf("✓ %s v%s started successfully", serviceName, serviceVersion)
	log.Printf("  REST API: http://0.0.0.0:%s", cfg.RESTPort)
	log.Printf("  WebSocket: ws://0.0.0.0:%s/ws/ratings", cfg.WSPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("Shutting down %s gracefully...", serviceName)

	// Graceful shutdown
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("REST API server shutdown error: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("WebSocket server shutdown error: %v", err)
	}
	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		log.Printf("Backfill service shutdown error: %v", err)
	}

	log.Printf("%s stopped", serviceName)
}

// connectRedis retries the connection and returns nil when Redis stays
// unreachable.
func connectRedis(url string) *cache.RedisCache {
	log.Println("Connecting to Redis...")
	for i := 0; i < redisMaxRetries; i++ {
		redisCache, err := cache.NewRedisCache(url)
		if err == nil {
			log.Println("✓ Connected to Redis")
			return redisCache
		}

		if i < redisMaxRetries-1 {
			log.Printf("Redis connection attempt %d/%d failed: %v (retrying in %v)", i+1, redisMaxRetries, err, redisRetryDelay)
			time.Sleep(redisRetryDelay)
			continue
		}
		log.Printf("⚠️  Redis unavailable after %d attempts: %v (continuing without cache and realtime events)", redisMaxRetries, err)
	}
	return nil
}
