package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/weather-rollup/internal/archive"
	"github.com/saviobatista/weather-rollup/internal/collector"
	"github.com/saviobatista/weather-rollup/internal/config"
	"github.com/saviobatista/weather-rollup/internal/db"
	"github.com/saviobatista/weather-rollup/internal/events"
	"github.com/saviobatista/weather-rollup/internal/joblock"
	"github.com/saviobatista/weather-rollup/internal/logger"
	"github.com/saviobatista/weather-rollup/internal/openweather"
	"github.com/saviobatista/weather-rollup/internal/schedule"
)

// setupDatabase opens the shared connection pool, verifies reachability and
// bootstraps the schema.
func setupDatabase(cfg *config.Config) (*db.Client, error) {
	dbClient, err := db.New(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := dbClient.Ping(ctx); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := dbClient.EnsureSchema(ctx); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return dbClient, nil
}

// buildCollector wires the collection job from configuration. The advisory
// lock, event publisher and journal are optional; a missing address disables
// the feature rather than failing startup.
func buildCollector(cfg *config.Config, dbClient *db.Client, log logger.Logger) (*collector.Collector, []func(), error) {
	fetcher := openweather.New(cfg.APIKey, cfg.CollectTimeout)
	c := collector.New(collector.Config{
		Cities:       cfg.Cities,
		FetchTimeout: cfg.CollectTimeout,
		MaxParallel:  cfg.CollectConcurrency,
	}, fetcher, dbClient, log)

	var closers []func()

	if cfg.RedisAddr != "" {
		lock, err := joblock.New(cfg.RedisAddr)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create job lock: %w", err)
		}
		c.SetLocker(lock)
		closers = append(closers, func() {
			if err := lock.Close(); err != nil {
				log.Warnf("failed to close job lock: %v", err)
			}
		})
	}

	if cfg.NATSURL != "" {
		publisher, err := events.New(cfg.NATSURL)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create event publisher: %w", err)
		}
		c.SetPublisher(publisher)
		closers = append(closers, publisher.Close)
	}

	if cfg.ArchiveDir != "" {
		journal, err := archive.New(cfg.ArchiveDir)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create journal: %w", err)
		}
		c.SetArchiver(journal)
		closers = append(closers, func() {
			if err := journal.Close(); err != nil {
				log.Warnf("failed to close journal: %v", err)
			}
		})
	}

	return c, closers, nil
}

// logStats periodically logs the run counters
func logStats(ctx context.Context, c *collector.Collector, log logger.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Infof("Statistics:\n%s", c.Stats())
		}
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops the scheduler
func waitForShutdown(sched *schedule.Scheduler, log logger.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	sched.Stop()
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.Env)

	if cfg.APIKey == "" {
		return collector.ErrNoAPIKey
	}

	dbClient, err := setupDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Warnf("failed to close database client: %v", err)
		}
	}()

	c, closers, err := buildCollector(cfg, dbClient, log)
	for i := len(closers) - 1; i >= 0; i-- {
		defer closers[i]()
	}
	if err != nil {
		return err
	}

	if once {
		return c.Run(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := schedule.New()
	if err := sched.Every(cfg.CollectInterval, func() {
		if err := c.Run(ctx); err != nil {
			log.Errorf("collection run failed: %v", err)
		}
	}); err != nil {
		return err
	}

	go logStats(ctx, c, log)

	log.Infof("collector started: %d cities every %s", len(cfg.Cities), cfg.CollectInterval)
	sched.Start()
	waitForShutdown(sched, log)
	return nil
}

func main() {
	once := flag.Bool("once", false, "run a single collection pass and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}
}
