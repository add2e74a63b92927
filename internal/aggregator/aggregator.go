package aggregator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/weather-rollup/internal/db"
	"github.com/saviobatista/weather-rollup/internal/logger"
	"github.com/saviobatista/weather-rollup/internal/stats"
	"github.com/saviobatista/weather-rollup/internal/types"
)

// Store is the database surface the rollup depends on.
type Store interface {
	DistinctCities(ctx context.Context, start, end time.Time) ([]string, error)
	ObservationsForCity(ctx context.Context, city string, start, end time.Time) ([]*types.Observation, error)
	InsertDailySummary(ctx context.Context, summary *types.DailySummary) error
	PurgeObservations(ctx context.Context, start, end time.Time) (db.PurgeResult, error)
}

// Locker guards a job's target date against concurrent runs.
type Locker interface {
	Acquire(ctx context.Context, job string, date time.Time) (string, bool, error)
	Release(ctx context.Context, job string, date time.Time, token string) error
}

// Publisher emits written-summary events.
type Publisher interface {
	PublishSummary(summary *types.DailySummary) error
}

// Aggregator rolls yesterday's observations up into one summary row per city,
// then purges the rolled-up rows and reseeds the identity sequence.
type Aggregator struct {
	store Store

	locker    Locker
	publisher Publisher

	stats *stats.Aggregator
	log   logger.Logger
	now   func() time.Time
}

// New creates an aggregator
func New(store Store, log logger.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		stats: stats.NewAggregator(),
		log:   log,
		now:   time.Now,
	}
}

// SetLocker enables the per-date advisory lock
func (a *Aggregator) SetLocker(l Locker) {
	a.locker = l
}

// SetPublisher enables written-summary events
func (a *Aggregator) SetPublisher(p Publisher) {
	a.publisher = p
}

// Stats exposes the run counters
func (a *Aggregator) Stats() *stats.Aggregator {
	return a.stats
}

// Run executes one rollup pass for yesterday's local date: one summary row per
// city with observations on that date, then a transactional purge of the
// consumed rows. A date with no observations is a no-op, which makes an
// immediate re-run safe.
func (a *Aggregator) Run(ctx context.Context) error {
	runID := uuid.New().String()
	target := types.Yesterday(a.now())
	start, end := types.DayRange(target)
	log := a.log.WithField("run_id", runID).WithField("date", target.Format("2006-01-02"))

	a.stats.IncrementRuns()
	a.stats.UpdateLastRunTime()

	if a.locker != nil {
		token, acquired, err := a.locker.Acquire(ctx, "aggregate", target)
		if err != nil {
			a.stats.IncrementFailures()
			return fmt.Errorf("failed to acquire aggregate lock: %w", err)
		}
		if !acquired {
			log.Warn("another aggregation run holds the lock, skipping")
			return nil
		}
		defer func() {
			if err := a.locker.Release(ctx, "aggregate", target, token); err != nil {
				log.Warnf("failed to release aggregate lock: %v", err)
			}
		}()
	}

	cities, err := a.store.DistinctCities(ctx, start, end)
	if err != nil {
		a.stats.IncrementFailures()
		return fmt.Errorf("failed to list cities: %w", err)
	}
	if len(cities) == 0 {
		log.Info("nothing to aggregate")
		return nil
	}

	for _, city := range cities {
		observations, err := a.store.ObservationsForCity(ctx, city, start, end)
		if err != nil {
			a.stats.IncrementFailures()
			return fmt.Errorf("failed to load %s observations: %w", city, err)
		}
		if len(observations) == 0 {
			log.Warnf("no %s observations left, skipping", city)
			continue
		}

		summary := Summarize(city, target, observations)
		if err := a.store.InsertDailySummary(ctx, summary); err != nil {
			a.stats.IncrementFailures()
			log.Errorf("failed to write %s summary: %v", city, err)
			return fmt.Errorf("failed to write %s summary: %w", city, err)
		}
		a.stats.AddCitiesSummarized(1)
		log.Infof("summarized %s: %d observations, dominant weather %s",
			city, summary.RecordCount, summary.DominantWeather)

		if a.publisher != nil {
			if err := a.publisher.PublishSummary(summary); err != nil {
				log.Warnf("failed to publish %s summary: %v", city, err)
			}
		}
	}

	res, err := a.store.PurgeObservations(ctx, start, end)
	if err != nil {
		a.stats.IncrementFailures()
		log.Errorf("failed to purge observations: %v", err)
		return fmt.Errorf("failed to purge observations: %w", err)
	}
	a.stats.AddRowsPurged(uint64(res.Purged))

	log.Infof("aggregation complete: %d cities, purged %d of %d rows, %d remaining, next id %d",
		len(cities), res.Purged, res.Counted, res.Remaining, res.NextID)
	return nil
}

// Summarize computes one city's rollup over its observations for a date:
// averages rounded to 2 decimal places, temperature extremes, the dominant
// weather label, and the contributing row count.
func Summarize(city string, date time.Time, observations []*types.Observation) *types.DailySummary {
	var sumTemp, sumFeels, sumPressure, sumHumidity float64
	minTemp := observations[0].Temperature
	maxTemp := observations[0].Temperature
	labelCounts := make(map[string]int)

	for _, obs := range observations {
		sumTemp += obs.Temperature
		sumFeels += obs.FeelsLike
		sumPressure += obs.Pressure
		sumHumidity += obs.Humidity
		if obs.Temperature < minTemp {
			minTemp = obs.Temperature
		}
		if obs.Temperature > maxTemp {
			maxTemp = obs.Temperature
		}
		labelCounts[obs.Weather]++
	}

	n := float64(len(observations))
	return &types.DailySummary{
		City:            city,
		Date:            types.LocalDay(date),
		AvgTemperature:  round2(sumTemp / n),
		MinTemperature:  minTemp,
		MaxTemperature:  maxTemp,
		DominantWeather: dominantWeather(labelCounts),
		AvgFeelsLike:    round2(sumFeels / n),
		AvgPressure:     round2(sumPressure / n),
		AvgHumidity:     round2(sumHumidity / n),
		RecordCount:     int64(len(observations)),
	}
}

// dominantWeather returns the label with the highest count. Ties go to the
// lexicographically smallest tied label so the result is deterministic.
func dominantWeather(counts map[string]int) string {
	var best string
	bestCount := -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
