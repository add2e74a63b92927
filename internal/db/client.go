package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/saviobatista/weather-rollup/internal/types"
)

type Client struct {
	db *sql.DB
}

// schema is the full relational model: raw observations plus one rollup row
// per city per local date. Bootstrap is idempotent.
const schema = `
	CREATE TABLE IF NOT EXISTS weather_data (
		id BIGSERIAL PRIMARY KEY,
		city TEXT NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		feels_like DOUBLE PRECISION NOT NULL,
		pressure DOUBLE PRECISION NOT NULL,
		humidity DOUBLE PRECISION NOT NULL,
		weather TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_weather_data_timestamp
		ON weather_data (timestamp);
	CREATE INDEX IF NOT EXISTS idx_weather_data_city_timestamp
		ON weather_data (city, timestamp);

	CREATE TABLE IF NOT EXISTS daily_weather_summary (
		city TEXT NOT NULL,
		date DATE NOT NULL,
		avg_temperature DOUBLE PRECISION NOT NULL,
		min_temperature DOUBLE PRECISION NOT NULL,
		max_temperature DOUBLE PRECISION NOT NULL,
		dominant_weather TEXT NOT NULL,
		avg_feels_like DOUBLE PRECISION NOT NULL,
		avg_pressure DOUBLE PRECISION NOT NULL,
		avg_humidity DOUBLE PRECISION NOT NULL,
		record_count BIGINT NOT NULL,
		PRIMARY KEY (city, date)
	);
`

// PurgeResult reports what an observation purge did.
type PurgeResult struct {
	Counted   int64 // rows found in the range before deleting
	Purged    int64 // rows actually deleted
	Remaining int64 // rows left in weather_data afterwards
	NextID    int64 // next value the identity sequence will produce
}

// New creates a new database client. The underlying pool connects lazily;
// call Ping to verify reachability.
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping verifies the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema creates the tables and indexes if they do not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// InsertObservation stores a single weather observation
func (c *Client) InsertObservation(ctx context.Context, obs *types.Observation) error {
	query := `
		INSERT INTO weather_data (
			city, temperature, feels_like, pressure, humidity, weather, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, query,
		obs.City, obs.Temperature, obs.FeelsLike, obs.Pressure,
		obs.Humidity, obs.Weather, obs.Timestamp,
	)
	return err
}

// DistinctCities returns the cities with observations in [start, end)
func (c *Client) DistinctCities(ctx context.Context, start, end time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT city
		FROM weather_data
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY city
	`
	rows, err := c.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

// ObservationsForCity returns one city's observations in [start, end)
func (c *Client) ObservationsForCity(ctx context.Context, city string, start, end time.Time) ([]*types.Observation, error) {
	query := `
		SELECT city, temperature, feels_like, pressure, humidity, weather, timestamp
		FROM weather_data
		WHERE city = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp
	`
	rows, err := c.db.QueryContext(ctx, query, city, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []*types.Observation
	for rows.Next() {
		var o types.Observation
		if err := rows.Scan(
			&o.City, &o.Temperature, &o.FeelsLike, &o.Pressure,
			&o.Humidity, &o.Weather, &o.Timestamp,
		); err != nil {
			return nil, err
		}
		observations = append(observations, &o)
	}
	return observations, rows.Err()
}

// CountObservations counts the observations in [start, end)
func (c *Client) CountObservations(ctx context.Context, start, end time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM weather_data WHERE timestamp >= $1 AND timestamp < $2`
	var count int64
	err := c.db.QueryRowContext(ctx, query, start, end).Scan(&count)
	return count, err
}

// InsertDailySummary writes one city's rollup row. Re-running a day replaces
// the existing row rather than appending a duplicate.
func (c *Client) InsertDailySummary(ctx context.Context, s *types.DailySummary) error {
	query := `
		INSERT INTO daily_weather_summary (
			city, date, avg_temperature, min_temperature, max_temperature,
			dominant_weather, avg_feels_like, avg_pressure, avg_humidity, record_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (city, date) DO UPDATE SET
			avg_temperature = EXCLUDED.avg_temperature,
			min_temperature = EXCLUDED.min_temperature,
			max_temperature = EXCLUDED.max_temperature,
			dominant_weather = EXCLUDED.dominant_weather,
			avg_feels_like = EXCLUDED.avg_feels_like,
			avg_pressure = EXCLUDED.avg_pressure,
			avg_humidity = EXCLUDED.avg_humidity,
			record_count = EXCLUDED.record_count
	`
	_, err := c.db.ExecContext(ctx, query,
		s.City, s.Date.Format("2006-01-02"), s.AvgTemperature, s.MinTemperature,
		s.MaxTemperature, s.DominantWeather, s.AvgFeelsLike, s.AvgPressure,
		s.AvgHumidity, s.RecordCount,
	)
	return err
}

// PurgeObservations deletes the observations in [start, end) and reseeds the
// identity sequence, all in one transaction. After a purge the next generated
// id is one greater than the maximum id still present, or 1 on an empty table.
func (c *Client) PurgeObservations(ctx context.Context, start, end time.Time) (PurgeResult, error) {
	var res PurgeResult

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	countQuery := `SELECT COUNT(*) FROM weather_data WHERE timestamp >= $1 AND timestamp < $2`
	if err := tx.QueryRowContext(ctx, countQuery, start, end).Scan(&res.Counted); err != nil {
		return res, fmt.Errorf("failed to count observations: %w", err)
	}

	deleteQuery := `DELETE FROM weather_data WHERE timestamp >= $1 AND timestamp < $2`
	del, err := tx.ExecContext(ctx, deleteQuery, start, end)
	if err != nil {
		return res, fmt.Errorf("failed to delete observations: %w", err)
	}
	if res.Purged, err = del.RowsAffected(); err != nil {
		return res, fmt.Errorf("failed to read deleted row count: %w", err)
	}

	remainingQuery := `SELECT COUNT(*) FROM weather_data`
	if err := tx.QueryRowContext(ctx, remainingQuery).Scan(&res.Remaining); err != nil {
		return res, fmt.Errorf("failed to count remaining rows: %w", err)
	}

	reseedQuery := `
		SELECT setval(
			pg_get_serial_sequence('weather_data', 'id'),
			COALESCE((SELECT MAX(id) FROM weather_data), 0) + 1,
			false
		)
	`
	if err := tx.QueryRowContext(ctx, reseedQuery).Scan(&res.NextID); err != nil {
		return res, fmt.Errorf("failed to reseed identity sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit purge transaction: %w", err)
	}
	return res, nil
}
