package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks a collector process's run statistics
type Collector struct {
	Runs           uint64
	FetchSuccesses uint64
	FetchFailures  uint64
	Inserted       uint64
	InsertFailures uint64

	LastRunTime time.Time
	mu          sync.RWMutex
}

// NewCollector creates a new collector stats instance
func NewCollector() *Collector {
	return &Collector{LastRunTime: time.Now()}
}

// IncrementRuns increments the run counter
func (s *Collector) IncrementRuns() {
	atomic.AddUint64(&s.Runs, 1)
}

// IncrementFetchSuccesses increments the successful fetch counter
func (s *Collector) IncrementFetchSuccesses() {
	atomic.AddUint64(&s.FetchSuccesses, 1)
}

// IncrementFetchFailures increments the failed fetch counter
func (s *Collector) IncrementFetchFailures() {
	atomic.AddUint64(&s.FetchFailures, 1)
}

// IncrementInserted increments the stored observation counter
func (s *Collector) IncrementInserted() {
	atomic.AddUint64(&s.Inserted, 1)
}

// IncrementInsertFailures increments the failed insert counter
func (s *Collector) IncrementInsertFailures() {
	atomic.AddUint64(&s.InsertFailures, 1)
}

// UpdateLastRunTime records the time of the latest run
func (s *Collector) UpdateLastRunTime() {
	s.mu.Lock()
	s.LastRunTime = time.Now()
	s.mu.Unlock()
}

// String returns a string representation of the statistics
func (s *Collector) String() string {
	s.mu.RLock()
	lastRun := s.LastRunTime
	s.mu.RUnlock()

	return fmt.Sprintf(
		"Runs: %d\n"+
			"Fetch Successes: %d\n"+
			"Fetch Failures: %d\n"+
			"Observations Inserted: %d\n"+
			"Insert Failures: %d\n"+
			"Last Run: %s",
		atomic.LoadUint64(&s.Runs),
		atomic.LoadUint64(&s.FetchSuccesses),
		atomic.LoadUint64(&s.FetchFailures),
		atomic.LoadUint64(&s.Inserted),
		atomic.LoadUint64(&s.InsertFailures),
		lastRun.Format(time.RFC3339),
	)
}

// Aggregator tracks an aggregator process's run statistics
type Aggregator struct {
	Runs             uint64
	CitiesSummarized uint64
	RowsPurged       uint64
	Failures         uint64

	LastRunTime time.Time
	mu          sync.RWMutex
}

// NewAggregator creates a new aggregator stats instance
func NewAggregator() *Aggregator {
	return &Aggregator{LastRunTime: time.Now()}
}

// IncrementRuns increments the run counter
func (s *Aggregator) IncrementRuns() {
	atomic.AddUint64(&s.Runs, 1)
}

// AddCitiesSummarized adds to the summarized city counter
func (s *Aggregator) AddCitiesSummarized(n uint64) {
	atomic.AddUint64(&s.CitiesSummarized, n)
}

// AddRowsPurged adds to the purged row counter
func (s *Aggregator) AddRowsPurged(n uint64) {
	atomic.AddUint64(&s.RowsPurged, n)
}

// IncrementFailures increments the failed run counter
func (s *Aggregator) IncrementFailures() {
	atomic.AddUint64(&s.Failures, 1)
}

// UpdateLastRunTime records the time of the latest run
func (s *Aggregator) UpdateLastRunTime() {
	s.mu.Lock()
	s.LastRunTime = time.Now()
	s.mu.Unlock()
}

// String returns a string representation of the statistics
func (s *Aggregator) String() string {
	s.mu.RLock()
	lastRun := s.LastRunTime
	s.mu.RUnlock()

	return fmt.Sprintf(
		"Runs: %d\n"+
			"Cities Summarized: %d\n"+
			"Rows Purged: %d\n"+
			"Failures: %d\n"+
			"Last Run: %s",
		atomic.LoadUint64(&s.Runs),
		atomic.LoadUint64(&s.CitiesSummarized),
		atomic.LoadUint64(&s.RowsPurged),
		atomic.LoadUint64(&s.Failures),
		lastRun.Format(time.RFC3339),
	)
}
