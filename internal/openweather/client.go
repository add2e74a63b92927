package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saviobatista/weather-rollup/internal/types"
)

// DefaultBaseURL is the OpenWeather current-weather API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Client fetches current weather from the OpenWeather API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	validate   *validator.Validate
}

// currentResponse is the subset of the current-weather payload this system
// reads. Leaf values are pointers so a missing field is distinguishable from
// a legitimate zero and rejected by validation.
type currentResponse struct {
	Weather []struct {
		Main        string `json:"main" validate:"required"`
		Description string `json:"description"`
	} `json:"weather" validate:"required,min=1,dive"`
	Main struct {
		Temp      *float64 `json:"temp" validate:"required"`
		FeelsLike *float64 `json:"feels_like" validate:"required"`
		Pressure  *float64 `json:"pressure" validate:"required"`
		Humidity  *float64 `json:"humidity" validate:"required"`
	} `json:"main"`
	Dt   *int64 `json:"dt" validate:"required"`
	Name string `json:"name"`
}

// New creates a client for the public API with the given per-request timeout.
func New(apiKey string, timeout time.Duration) *Client {
	return NewWithBaseURL(DefaultBaseURL, apiKey, timeout)
}

// NewWithBaseURL creates a client against a custom API root. Used by tests.
func NewWithBaseURL(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		validate:   validator.New(),
	}
}

// Available reports whether the client has an API credential configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Current fetches the current weather at the city's coordinates. The returned
// observation carries the provider's instant converted to the reporting zone.
func (c *Client) Current(ctx context.Context, city types.City) (*types.Observation, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(city.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(city.Lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	endpoint := fmt.Sprintf("%s/weather?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := c.validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("payload missing required fields: %w", err)
	}

	return &types.Observation{
		City:        city.Name,
		Temperature: *payload.Main.Temp,
		FeelsLike:   *payload.Main.FeelsLike,
		Pressure:    *payload.Main.Pressure,
		Humidity:    *payload.Main.Humidity,
		Weather:     payload.Weather[0].Main,
		Timestamp:   time.Unix(*payload.Dt, 0).In(types.ReportingZone),
	}, nil
}
