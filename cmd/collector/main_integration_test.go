package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/weather-rollup/internal/collector"
	"github.com/saviobatista/weather-rollup/internal/db"
	"github.com/saviobatista/weather-rollup/internal/logger"
	"github.com/saviobatista/weather-rollup/internal/openweather"
	"github.com/saviobatista/weather-rollup/internal/types"
)

func setupPostgres(t *testing.T) *db.Client {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("weather"),
		postgres.WithUsername("weather"),
		postgres.WithPassword("weather"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	dbClient, err := db.New(connStr)
	if err != nil {
		t.Fatalf("Failed to create database client: %v", err)
	}
	t.Cleanup(func() { dbClient.Close() })

	if err := dbClient.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to bootstrap schema: %v", err)
	}
	return dbClient
}

// fakeOpenWeather serves current-weather payloads keyed by latitude, failing
// the cities listed in failLats.
func fakeOpenWeather(t *testing.T, dt int64, failLats map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lat := r.URL.Query().Get("lat")
		if failLats[lat] {
			http.Error(w, `{"cod":500}`, http.StatusInternalServerError)
			return
		}
		payload := fmt.Sprintf(`{
			"weather": [{"main": "Clouds", "description": "scattered clouds"}],
			"main": {"temp": 29.4, "feels_like": 34.1, "pressure": 1004, "humidity": 74},
			"dt": %d
		}`, dt)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(payload)); err != nil {
			t.Logf("Failed to write payload: %v", err)
		}
	}))
}

func TestCollectorPipeline_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient := setupPostgres(t)

	instant := time.Date(2026, 8, 22, 14, 0, 0, 0, types.ReportingZone)
	server := fakeOpenWeather(t, instant.Unix(), map[string]bool{"28.7041": true})
	defer server.Close()

	cities := []types.City{
		{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777},
		{Name: "Delhi", Lat: 28.7041, Lon: 77.1025}, // provider fails this one
		{Name: "Chennai", Lat: 13.0827, Lon: 80.2707},
	}
	fetcher := openweather.NewWithBaseURL(server.URL, "test-key", 5*time.Second)
	c := collector.New(collector.Config{
		Cities:       cities,
		FetchTimeout: 5 * time.Second,
		MaxParallel:  2,
	}, fetcher, dbClient, logger.Discard())

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	start, end := types.DayRange(instant)
	count, err := dbClient.CountObservations(context.Background(), start, end)
	if err != nil {
		t.Fatalf("CountObservations() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 observations (Delhi dropped), got %d", count)
	}

	observations, err := dbClient.ObservationsForCity(context.Background(), "Mumbai", start, end)
	if err != nil {
		t.Fatalf("ObservationsForCity() failed: %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("Expected 1 Mumbai observation, got %d", len(observations))
	}
	obs := observations[0]
	if obs.Temperature != 29.4 || obs.Weather != "Clouds" {
		t.Errorf("Unexpected observation values: %+v", obs)
	}
	if !obs.Timestamp.Equal(instant) {
		t.Errorf("Expected timestamp %v, got %v", instant, obs.Timestamp)
	}

	cityList, err := dbClient.DistinctCities(context.Background(), start, end)
	if err != nil {
		t.Fatalf("DistinctCities() failed: %v", err)
	}
	if strings.Join(cityList, ",") != "Chennai,Mumbai" {
		t.Errorf("Expected cities [Chennai Mumbai], got %v", cityList)
	}
}

func TestCollectorPipeline_Integration_SecondRunAppends(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient := setupPostgres(t)

	instant := time.Date(2026, 8, 22, 14, 0, 0, 0, types.ReportingZone)
	server := fakeOpenWeather(t, instant.Unix(), nil)
	defer server.Close()

	fetcher := openweather.NewWithBaseURL(server.URL, "test-key", 5*time.Second)
	c := collector.New(collector.Config{
		Cities:      []types.City{{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777}},
		MaxParallel: 1,
	}, fetcher, dbClient, logger.Discard())

	for i := 0; i < 3; i++ {
		if err := c.Run(context.Background()); err != nil {
			t.Fatalf("Run() %d failed: %v", i, err)
		}
	}

	start, end := types.DayRange(instant)
	count, err := dbClient.CountObservations(context.Background(), start, end)
	if err != nil {
		t.Fatalf("CountObservations() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 observations after 3 runs, got %d", count)
	}
}
