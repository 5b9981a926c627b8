package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/hoopelo/internal/backfill"
	"github.com/fortuna/hoopelo/internal/config"
	"github.com/fortuna/hoopelo/internal/store"
)

const (
	appName    = "hoopelo-backfill"
	appVersion = "1.0.0"
)

func main() {
	log.Printf("=== %s v%s ===", appName, appVersion)

	config.LoadDotEnv()
	cfg := config.Load()

	var (
		dsn     = flag.String("dsn", cfg.DatabaseURL, "Postgres DSN")
		since   = flag.String("since", "", "Replay games completed on or after this date (YYYY-MM-DD); empty replays everything")
		kFactor = flag.Float64("k", 0, "K-factor override (0 uses ELO_K_FACTOR)")
		dryRun  = flag.Bool("dry-run", false, "Compute and report without writing ratings")
	)

	flag.Parse()

	spec, err := buildSpec(*since, *kFactor, *dryRun)
	if err != nil {
		log.Fatalf("build spec: %v", err)
	}

	db, err := store.NewDatabase(*dsn)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := backfill.NewRunner(backfill.NewRepository(db), cfg.EloOptions())
	reporter := &consoleReporter{}

	replay, err := runner.Run(ctx, spec, reporter)
	if err != nil {
		log.Fatalf("backfill failed: %v", err)
	}

	if spec.DryRun {
		printRatings(replay)
	}

	log.Println("✓ Backfill completed successfully")
}

func buildSpec(since string, kFactor float64, dryRun bool) (backfill.JobSpec, error) {
	req := backfill.Request{KFactor: kFactor, DryRun: dryRun}
	if since != "" {
		start, err := time.Parse("2006-01-02", since)
		if err != nil {
			return backfill.JobSpec{}, fmt.Errorf("invalid since date: %w", err)
		}
		req.Since = &start
	}
	if err := req.Validate(time.Now()); err != nil {
		return backfill.JobSpec{}, err
	}

	spec := backfill.JobSpec{
		Type:    req.DeriveType(),
		KFactor: req.KFactor,
		DryRun:  req.DryRun,
	}
	if req.Since != nil {
		spec.Since = *req.Since
	}
	return spec, nil
}

func printRatings(replay *backfill.Replay) {
	for _, id := range replay.PlayerIDs() {
		fmt.Printf("%-40s %8.2f\n", id, replay.FinalRatings[id])
	}
}

type consoleReporter struct{}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	if spec.Type == backfill.JobTypeSince {
		log.Printf("Starting %s job from %s (dry_run=%v)", spec.Type, spec.Since.Format("2006-01-02"), spec.DryRun)
		return
	}
	log.Printf("Starting %s job (dry_run=%v)", spec.Type, spec.DryRun)
}

func (c *consoleReporter) OnGameReplayed(gameID string, index int, total int) {
	log.Printf("[%d/%d] Replayed game %s", index+1, total, gameID)
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	log.Printf("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete(replay *backfill.Replay) {
	log.Printf("Job complete: %d games replayed, %d skipped, %d players", len(replay.Games), len(replay.Skipped), len(replay.FinalRatings))
}

func (c *consoleReporter) OnJobError(err error) {
	log.Printf("Job error: %v", err)
}
