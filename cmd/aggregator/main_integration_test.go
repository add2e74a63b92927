package main

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/weather-rollup/internal/aggregator"
	"github.com/saviobatista/weather-rollup/internal/db"
	"github.com/saviobatista/weather-rollup/internal/joblock"
	"github.com/saviobatista/weather-rollup/internal/logger"
	"github.com/saviobatista/weather-rollup/internal/types"
)

func setupPostgres(t *testing.T) (*db.Client, string) {
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
	return dbClient, connStr
}

func seedObservations(t *testing.T, dbClient *db.Client, city string, day time.Time, temps []float64, weather []string) {
	t.Helper()
	for i, temp := range temps {
		obs := &types.Observation{
			City:        city,
			Temperature: temp,
			FeelsLike:   temp + 3,
			Pressure:    1000 + float64(i),
			Humidity:    70,
			Weather:     weather[i%len(weather)],
			Timestamp:   day.Add(time.Duration(i) * time.Hour),
		}
		if err := dbClient.InsertObservation(context.Background(), obs); err != nil {
			t.Fatalf("Failed to seed observation: %v", err)
		}
	}
}

func TestAggregatorPipeline_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient, connStr := setupPostgres(t)
	ctx := context.Background()

	target := types.Yesterday(time.Now())
	seedObservations(t, dbClient, "Mumbai", target,
		[]float64{28, 30, 29}, []string{"Rain", "Clouds", "Rain"})
	seedObservations(t, dbClient, "Delhi", target,
		[]float64{38}, []string{"Clear"})

	// One same-day row that must survive the purge.
	today := types.LocalDay(time.Now())
	seedObservations(t, dbClient, "Mumbai", today, []float64{31}, []string{"Clouds"})

	a := aggregator.New(dbClient, logger.Discard())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	raw, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open verification connection: %v", err)
	}
	defer raw.Close()

	var (
		avgTemp, minTemp, maxTemp, avgFeels float64
		dominant                            string
		recordCount                         int64
	)
	err = raw.QueryRowContext(ctx, `
		SELECT avg_temperature, min_temperature, max_temperature,
		       dominant_weather, avg_feels_like, record_count
		FROM daily_weather_summary
		WHERE city = $1 AND date = $2
	`, "Mumbai", target.Format("2006-01-02")).Scan(
		&avgTemp, &minTemp, &maxTemp, &dominant, &avgFeels, &recordCount,
	)
	if err != nil {
		t.Fatalf("Failed to read Mumbai summary: %v", err)
	}
	if avgTemp != 29 || minTemp != 28 || maxTemp != 30 {
		t.Errorf("Unexpected temperatures: avg=%v min=%v max=%v", avgTemp, minTemp, maxTemp)
	}
	if dominant != "Rain" {
		t.Errorf("Expected dominant weather Rain, got %s", dominant)
	}
	if avgFeels != 32 {
		t.Errorf("Expected avg feels_like 32, got %v", avgFeels)
	}
	if recordCount != 3 {
		t.Errorf("Expected record count 3, got %d", recordCount)
	}

	var summaryCount int64
	if err := raw.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_weather_summary`).Scan(&summaryCount); err != nil {
		t.Fatalf("Failed to count summaries: %v", err)
	}
	if summaryCount != 2 {
		t.Errorf("Expected 2 summary rows, got %d", summaryCount)
	}

	// The target date is fully purged; the same-day row survives.
	start, end := types.DayRange(target)
	remaining, err := dbClient.CountObservations(ctx, start, end)
	if err != nil {
		t.Fatalf("CountObservations() failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected 0 observations in the purged range, got %d", remaining)
	}

	var total int64
	if err := raw.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&total); err != nil {
		t.Fatalf("Failed to count remaining rows: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 surviving same-day row, got %d", total)
	}

	// Identity reseed: the next generated id continues from the surviving max.
	var maxID int64
	if err := raw.QueryRowContext(ctx, `SELECT MAX(id) FROM weather_data`).Scan(&maxID); err != nil {
		t.Fatalf("Failed to read max id: %v", err)
	}
	if err := dbClient.InsertObservation(ctx, &types.Observation{
		City: "Chennai", Temperature: 33, FeelsLike: 37, Pressure: 1002,
		Humidity: 65, Weather: "Clear", Timestamp: today.Add(2 * time.Hour),
	}); err != nil {
		t.Fatalf("Failed to insert post-purge observation: %v", err)
	}
	var newID int64
	if err := raw.QueryRowContext(ctx,
		`SELECT id FROM weather_data WHERE city = 'Chennai'`).Scan(&newID); err != nil {
		t.Fatalf("Failed to read new id: %v", err)
	}
	if newID != maxID+1 {
		t.Errorf("Expected reseeded id %d, got %d", maxID+1, newID)
	}

	// Re-run: the target range is empty now, so nothing changes.
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Second Run() failed: %v", err)
	}
	if err := raw.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_weather_summary`).Scan(&summaryCount); err != nil {
		t.Fatalf("Failed to count summaries: %v", err)
	}
	if summaryCount != 2 {
		t.Errorf("Expected summaries unchanged after re-run, got %d", summaryCount)
	}
}

func TestAggregatorPipeline_Integration_EmptyTableReseedsToOne(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient, connStr := setupPostgres(t)
	ctx := context.Background()

	target := types.Yesterday(time.Now())
	seedObservations(t, dbClient, "Mumbai", target, []float64{28, 30}, []string{"Clouds"})

	a := aggregator.New(dbClient, logger.Discard())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	// The table emptied, so the next id restarts at 1.
	if err := dbClient.InsertObservation(ctx, &types.Observation{
		City: "Mumbai", Temperature: 30, FeelsLike: 34, Pressure: 1004,
		Humidity: 70, Weather: "Clouds", Timestamp: time.Now().In(types.ReportingZone),
	}); err != nil {
		t.Fatalf("Failed to insert post-purge observation: %v", err)
	}

	raw, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open verification connection: %v", err)
	}
	defer raw.Close()

	var id int64
	if err := raw.QueryRowContext(ctx, `SELECT id FROM weather_data`).Scan(&id); err != nil {
		t.Fatalf("Failed to read id: %v", err)
	}
	if id != 1 {
		t.Errorf("Expected first post-purge id 1, got %d", id)
	}
}

func TestAggregatorLock_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	lock, err := joblock.New(endpoint)
	if err != nil {
		t.Fatalf("Failed to create job lock: %v", err)
	}
	defer lock.Close()

	target := types.Yesterday(time.Now())

	token, acquired, err := lock.Acquire(ctx, "aggregate", target)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if !acquired {
		t.Fatal("Expected first acquire to succeed")
	}

	_, acquired, err = lock.Acquire(ctx, "aggregate", target)
	if err != nil {
		t.Fatalf("Second Acquire() failed: %v", err)
	}
	if acquired {
		t.Error("Expected second acquire to be refused while held")
	}

	if err := lock.Release(ctx, "aggregate", target, token); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	_, acquired, err = lock.Acquire(ctx, "aggregate", target)
	if err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	if !acquired {
		t.Error("Expected acquire to succeed after release")
	}
}
