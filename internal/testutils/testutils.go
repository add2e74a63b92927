package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/weather-rollup/internal/types"
)

// MockObservation creates an observation fixture for testing
func MockObservation(city string, temperature float64, weather string, at time.Time) *types.Observation {
	return &types.Observation{
		City:        city,
		Temperature: temperature,
		FeelsLike:   temperature + 3.5,
		Pressure:    1004,
		Humidity:    74,
		Weather:     weather,
		Timestamp:   at.In(types.ReportingZone),
	}
}

// MockObservationSeries creates one observation per temperature, spaced an
// hour apart starting at day's midnight, cycling through the weather labels.
func MockObservationSeries(city string, day time.Time, temperatures []float64, labels []string) []*types.Observation {
	start := types.LocalDay(day)
	observations := make([]*types.Observation, 0, len(temperatures))
	for i, temp := range temperatures {
		obs := MockObservation(city, temp, labels[i%len(labels)], start.Add(time.Duration(i)*time.Hour))
		observations = append(observations, obs)
	}
	return observations
}

// MockDailySummary creates a single-observation summary fixture for testing
func MockDailySummary(city string, day time.Time) *types.DailySummary {
	return &types.DailySummary{
		City:            city,
		Date:            types.LocalDay(day),
		AvgTemperature:  29.4,
		MinTemperature:  29.4,
		MaxTemperature:  29.4,
		DominantWeather: "Clouds",
		AvgFeelsLike:    34.1,
		AvgPressure:     1004,
		AvgHumidity:     74,
		RecordCount:     1,
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
