package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/weather-rollup/internal/aggregator"
	"github.com/saviobatista/weather-rollup/internal/config"
	"github.com/saviobatista/weather-rollup/internal/db"
	"github.com/saviobatista/weather-rollup/internal/events"
	"github.com/saviobatista/weather-rollup/internal/joblock"
	"github.com/saviobatista/weather-rollup/internal/logger"
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

// buildAggregator wires the rollup job from configuration. The advisory lock
// and event publisher are optional.
func buildAggregator(cfg *config.Config, dbClient *db.Client, log logger.Logger) (*aggregator.Aggregator, []func(), error) {
	a := aggregator.New(dbClient, log)

	var closers []func()

	if cfg.RedisAddr != "" {
		lock, err := joblock.New(cfg.RedisAddr)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create job lock: %w", err)
		}
		a.SetLocker(lock)
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
		a.SetPublisher(publisher)
		closers = append(closers, publisher.Close)
	}

	return a, closers, nil
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

	dbClient, err := setupDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Warnf("failed to close database client: %v", err)
		}
	}()

	a, closers, err := buildAggregator(cfg, dbClient, log)
	for i := len(closers) - 1; i >= 0; i-- {
		defer closers[i]()
	}
	if err != nil {
		return err
	}

	if once {
		return a.Run(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := schedule.New()
	if err := sched.DailyAt(cfg.AggregateAt, func() {
		if err := a.Run(ctx); err != nil {
			log.Errorf("aggregation run failed: %v", err)
		}
		log.Infof("Statistics:\n%s", a.Stats())
	}); err != nil {
		return err
	}

	log.Infof("aggregator started: daily at %s local", cfg.AggregateAt)
	sched.Start()
	waitForShutdown(sched, log)
	return nil
}

func main() {
	once := flag.Bool("once", false, "run a single rollup pass and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "aggregator: %v\n", err)
		os.Exit(1)
	}
}
