package types

import (
	"time"
)

// ReportingZone is the fixed UTC+05:30 offset used for all local dates.
var ReportingZone = time.FixedZone("UTC+05:30", 5*60*60+30*60)

// City is a collection target: display name plus coordinates.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Observation represents a single weather reading for a city.
type Observation struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Pressure    float64   `json:"pressure"`
	Humidity    float64   `json:"humidity"`
	Weather     string    `json:"weather"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailySummary represents one city's rollup for one local date.
type DailySummary struct {
	City            string    `json:"city"`
	Date            time.Time `json:"date"`
	AvgTemperature  float64   `json:"avg_temperature"`
	MinTemperature  float64   `json:"min_temperature"`
	MaxTemperature  float64   `json:"max_temperature"`
	DominantWeather string    `json:"dominant_weather"`
	AvgFeelsLike    float64   `json:"avg_feels_like"`
	AvgPressure     float64   `json:"avg_pressure"`
	AvgHumidity     float64   `json:"avg_humidity"`
	RecordCount     int64     `json:"record_count"`
}

// LocalDay returns midnight of t's date in ReportingZone.
func LocalDay(t time.Time) time.Time {
	t = t.In(ReportingZone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, ReportingZone)
}

// Yesterday returns midnight of the day before t in ReportingZone.
func Yesterday(t time.Time) time.Time {
	return LocalDay(t).AddDate(0, 0, -1)
}

// DayRange returns the half-open [start, end) window covering day's date.
func DayRange(day time.Time) (time.Time, time.Time) {
	start := LocalDay(day)
	return start, start.AddDate(0, 0, 1)
}
