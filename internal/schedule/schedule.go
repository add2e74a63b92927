package schedule

import (
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saviobatista/weather-rollup/internal/types"
)

var timeHHMM = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

// Scheduler hosts a job binary's time triggers, pinned to the reporting zone
// so daily times mean local wall time.
type Scheduler struct {
	cron *cron.Cron
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithLocation(types.ReportingZone))}
}

// Every registers fn to run once per interval
func (s *Scheduler) Every(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), fn); err != nil {
		return fmt.Errorf("failed to register interval trigger: %w", err)
	}
	return nil
}

// DailyAt registers fn to run once per day at the given local HH:MM time
func (s *Scheduler) DailyAt(at string, fn func()) error {
	hour, minute, err := ParseHHMM(at)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("failed to register daily trigger: %w", err)
	}
	return nil
}

// Start begins trigger execution
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the triggers and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ParseHHMM parses a local wall time like "00:30"
func ParseHHMM(value string) (hour, minute int, err error) {
	if !timeHHMM.MatchString(value) {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", value)
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
