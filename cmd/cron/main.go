package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/tenmatch/core/internal/config"
	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/database/pool"
	"github.com/tenmatch/core/pkg/jobs"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
	"github.com/tenmatch/core/pkg/services"
)

func main() {
	// Parse command line flags
	var (
		jobName = flag.String("job", "", "Run specific job once (fetch_results, process_finished_fixtures, resolve_cycles, ledger_prune)")
		once    = flag.Bool("once", false, "Run job once and exit")
		cycleID = flag.Int64("cycle", 0, "Resolve one cycle by id (requires -job resolve_cycles -once)")
	)
	flag.Parse()

	logger.SetupLogger()
	cfg := config.Load()

	// Connect to database
	db, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	queries := database.New(db)

	// Coordination plumbing: lock backend, execution ledger, coordinator
	lockStore, err := jobs.NewLockStoreFromConfig(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize lock store: %v", err)
	}

	ledger := jobs.NewExecutionLedger(queries)
	coordinator := jobs.NewCoordinator(lockStore, ledger, jobs.CoordinatorConfig{
		DefaultLockTTL:   cfg.Jobs.LockTTL,
		DefaultFreshness: cfg.Jobs.DependencyFreshness,
		BackoffBase:      cfg.Jobs.RetryBackoffBase,
		BackoffCap:       cfg.Jobs.RetryBackoffCap,
	})

	// Initialize services
	providerClient := services.NewProviderClient(cfg)
	chainClient := services.NewChainClient(cfg)
	resultsService := services.NewResultsService(queries, providerClient)
	fixturesService := services.NewFixturesService(queries)
	resolutionDriver := services.NewResolutionDriver(queries, chainClient, cfg)

	// Create the schedule orchestrator
	orchestrator := jobs.NewOrchestrator(coordinator)

	// Register jobs
	resultsJob := jobs.NewFetchResultsJob(resultsService)
	if err := orchestrator.RegisterJob(resultsJob, jobs.Config{
		LockTTL:      cfg.Jobs.LockTTL,
		MaxRetries:   cfg.Jobs.MaxRetries,
		RunAtStartup: true,
		Priority:     1,
	}); err != nil {
		log.Fatalf("Failed to register fetch results job: %v", err)
	}

	fixturesJob := jobs.NewProcessFixturesJob(fixturesService)
	if err := orchestrator.RegisterJob(fixturesJob, jobs.Config{
		LockTTL:      cfg.Jobs.LockTTL,
		MaxRetries:   cfg.Jobs.MaxRetries,
		RunAtStartup: true,
		Priority:     2,
	}); err != nil {
		log.Fatalf("Failed to register fixture processing job: %v", err)
	}

	// Cycle resolution only runs against fresh results, so it declares the
	// results job as a dependency.
	resolveJob := jobs.NewResolveCyclesJob(resolutionDriver)
	if err := orchestrator.RegisterJob(resolveJob, jobs.Config{
		Dependencies:    []string{jobs.JobFetchResults},
		FreshnessWindow: cfg.Jobs.DependencyFreshness,
		LockTTL:         cfg.Jobs.LockTTL,
		MaxRetries:      cfg.Jobs.MaxRetries,
	}); err != nil {
		log.Fatalf("Failed to register cycle resolution job: %v", err)
	}

	pruneJob := jobs.NewLedgerPruneJob(ledger, cfg.Jobs.LedgerRetentionDays)
	if err := orchestrator.RegisterJob(pruneJob, jobs.Config{
		LockTTL: cfg.Jobs.LockTTL,
	}); err != nil {
		log.Fatalf("Failed to register ledger prune job: %v", err)
	}

	// Handle single job execution
	if *once && *jobName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		var outcome jobs.Outcome
		if *cycleID != 0 {
			if *jobName != jobs.JobResolveCycles {
				log.Fatalf("-cycle requires -job %s", jobs.JobResolveCycles)
			}
			// Single-cycle resolution runs under the scheduled job's lock so
			// the two can never settle the same cycle concurrently.
			log.Printf("Resolving cycle %d once...", *cycleID)
			outcome, err = orchestrator.TriggerFunc(ctx, jobs.JobResolveCycles, func(ctx context.Context) error {
				_, resolveErr := resolutionDriver.ResolveCycle(ctx, *cycleID)
				return resolveErr
			})
		} else {
			log.Printf("Running %s once...", *jobName)
			outcome, err = orchestrator.Trigger(ctx, *jobName)
		}
		if err != nil {
			log.Fatalf("Failed to run job %s: %v", *jobName, err)
		}

		switch outcome.Status {
		case models.RunCompleted:
			log.Printf("%s completed in %s (%d attempts)", *jobName, outcome.Duration, outcome.Attempts)
		case models.RunSkipped:
			log.Printf("%s skipped: %s", *jobName, outcome.Reason)
		case models.RunFailed:
			log.Fatalf("%s failed: %v", *jobName, outcome.Err)
		}
		return
	}

	// Start the orchestrator
	orchestrator.Start()
	log.Printf("Job coordination service started with %d jobs", len(orchestrator.GetJobs()))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down job coordination service...")
	orchestrator.Stop()
	log.Println("Job coordination service stopped")
}
