package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/weather-rollup/internal/logger"
	"github.com/saviobatista/weather-rollup/internal/stats"
	"github.com/saviobatista/weather-rollup/internal/types"
)

// ErrNoAPIKey is returned when a run is triggered without an API credential.
// The run fails before any fetch is launched.
var ErrNoAPIKey = errors.New("no API key configured")

// Fetcher retrieves the current weather for one city.
type Fetcher interface {
	Available() bool
	Current(ctx context.Context, city types.City) (*types.Observation, error)
}

// Store persists observations.
type Store interface {
	InsertObservation(ctx context.Context, obs *types.Observation) error
}

// Locker guards a job's target date against concurrent runs.
type Locker interface {
	Acquire(ctx context.Context, job string, date time.Time) (string, bool, error)
	Release(ctx context.Context, job string, date time.Time, token string) error
}

// Publisher emits stored-observation events.
type Publisher interface {
	PublishObservation(obs *types.Observation) error
}

// Archiver journals stored observations locally.
type Archiver interface {
	Append(obs *types.Observation) error
}

// Config holds the per-run collection parameters.
type Config struct {
	Cities       []types.City
	FetchTimeout time.Duration
	MaxParallel  int
}

// Collector fetches current weather for the configured cities and stores one
// observation row per successful fetch. A city that fails to fetch is dropped
// from the run; a row that fails to insert aborts the run.
type Collector struct {
	fetcher Fetcher
	store   Store

	cities       []types.City
	fetchTimeout time.Duration
	maxParallel  int

	locker    Locker
	publisher Publisher
	archiver  Archiver

	stats *stats.Collector
	log   logger.Logger
	now   func() time.Time
}

type fetchResult struct {
	city types.City
	obs  *types.Observation
	err  error
}

// New creates a collector
func New(cfg Config, fetcher Fetcher, store Store, log logger.Logger) *Collector {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &Collector{
		fetcher:      fetcher,
		store:        store,
		cities:       cfg.Cities,
		fetchTimeout: cfg.FetchTimeout,
		maxParallel:  cfg.MaxParallel,
		stats:        stats.NewCollector(),
		log:          log,
		now:          time.Now,
	}
}

// SetLocker enables the per-date advisory lock
func (c *Collector) SetLocker(l Locker) {
	c.locker = l
}

// SetPublisher enables stored-observation events
func (c *Collector) SetPublisher(p Publisher) {
	c.publisher = p
}

// SetArchiver enables the local observation journal
func (c *Collector) SetArchiver(a Archiver) {
	c.archiver = a
}

// Stats exposes the run counters
func (c *Collector) Stats() *stats.Collector {
	return c.stats
}

// Run executes one collection pass: fan out one fetch task per city, wait for
// all of them, then store whatever succeeded. Zero successes is not an error.
func (c *Collector) Run(ctx context.Context) error {
	runID := uuid.New().String()
	log := c.log.WithField("run_id", runID)

	c.stats.IncrementRuns()
	c.stats.UpdateLastRunTime()

	if !c.fetcher.Available() {
		log.Error("no API key configured, refusing to fetch")
		return ErrNoAPIKey
	}

	if c.locker != nil {
		date := types.LocalDay(c.now())
		token, acquired, err := c.locker.Acquire(ctx, "collect", date)
		if err != nil {
			return fmt.Errorf("failed to acquire collect lock: %w", err)
		}
		if !acquired {
			log.Warn("another collection run holds the lock, skipping")
			return nil
		}
		defer func() {
			if err := c.locker.Release(ctx, "collect", date, token); err != nil {
				log.Warnf("failed to release collect lock: %v", err)
			}
		}()
	}

	successes := c.fetchAll(ctx, log)
	if len(successes) == 0 {
		log.Info("no observations collected")
		return nil
	}

	for _, obs := range successes {
		if err := c.store.InsertObservation(ctx, obs); err != nil {
			c.stats.IncrementInsertFailures()
			log.Errorf("failed to store %s observation: %v", obs.City, err)
			return fmt.Errorf("failed to store %s observation: %w", obs.City, err)
		}
		c.stats.IncrementInserted()

		if c.publisher != nil {
			if err := c.publisher.PublishObservation(obs); err != nil {
				log.Warnf("failed to publish %s observation: %v", obs.City, err)
			}
		}
		if c.archiver != nil {
			if err := c.archiver.Append(obs); err != nil {
				log.Warnf("failed to archive %s observation: %v", obs.City, err)
			}
		}
	}

	log.Infof("collection complete: stored %d of %d cities", len(successes), len(c.cities))
	return nil
}

// fetchAll launches one task per city, at most maxParallel in flight, and
// joins them all before returning the successful observations.
func (c *Collector) fetchAll(ctx context.Context, log logger.Logger) []*types.Observation {
	results := make(chan fetchResult, len(c.cities))
	sem := make(chan struct{}, c.maxParallel)

	var wg sync.WaitGroup
	for _, city := range c.cities {
		wg.Add(1)
		go func(city types.City) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
			defer cancel()

			obs, err := c.fetcher.Current(fetchCtx, city)
			results <- fetchResult{city: city, obs: obs, err: err}
		}(city)
	}

	wg.Wait()
	close(results)

	var successes []*types.Observation
	for res := range results {
		if res.err != nil {
			c.stats.IncrementFetchFailures()
			log.Warnf("dropping %s observation: %v", res.city.Name, res.err)
			continue
		}
		c.stats.IncrementFetchSuccesses()
		successes = append(successes, res.obs)
	}
	return successes
}
