package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saviobatista/weather-rollup/internal/types"
)

// defaultCities is the collection set used when CITIES is not configured.
const defaultCities = "Mumbai:19.0760:72.8777,Delhi:28.7041:77.1025,Bengaluru:12.9716:77.5946,Chennai:13.0827:80.2707,Kolkata:22.5726:88.3639,Hyderabad:17.3850:78.4867"

// Config holds the application configuration shared by both jobs.
type Config struct {
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBSSLRootCert string

	APIKey string
	Cities []types.City

	CollectInterval    time.Duration
	CollectTimeout     time.Duration
	CollectConcurrency int
	AggregateAt        string

	RedisAddr  string
	NATSURL    string
	ArchiveDir string

	LogLevel string
	Env      string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBSSLRootCert: os.Getenv("DB_SSLROOTCERT"),
		APIKey:        os.Getenv("OPENWEATHER_API_KEY"),
		AggregateAt:   getEnv("AGGREGATE_AT", "00:30"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NATSURL:       os.Getenv("NATS_URL"),
		ArchiveDir:    os.Getenv("ARCHIVE_DIR"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Env:           getEnv("APP_ENV", "development"),
	}

	var err error
	if cfg.DBUser, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	if cfg.Cities, err = ParseCities(getEnv("CITIES", defaultCities)); err != nil {
		return nil, err
	}

	if cfg.CollectInterval, err = parseDuration("COLLECT_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.CollectTimeout, err = parseDuration("COLLECT_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	concurrency := getEnv("COLLECT_CONCURRENCY", "4")
	cfg.CollectConcurrency, err = strconv.Atoi(concurrency)
	if err != nil || cfg.CollectConcurrency < 1 {
		return nil, fmt.Errorf("COLLECT_CONCURRENCY must be a positive integer, got %q", concurrency)
	}

	return cfg, nil
}

// DSN assembles the Postgres connection string.
func (c *Config) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
	if c.DBSSLRootCert != "" {
		dsn += "&sslrootcert=" + c.DBSSLRootCert
	}
	return dsn
}

// ParseCities parses a comma-separated list of Name:lat:lon triples.
func ParseCities(s string) ([]types.City, error) {
	var cities []types.City
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid city entry %q, want Name:lat:lon", entry)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("invalid city entry %q, empty name", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in city entry %q: %w", entry, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in city entry %q: %w", entry, err)
		}
		cities = append(cities, types.City{Name: name, Lat: lat, Lon: lon})
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("CITIES resolved to an empty list")
	}
	return cities, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return d, nil
}
