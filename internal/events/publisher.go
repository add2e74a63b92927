package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/weather-rollup/internal/types"
)

const (
	// SubjectObservationStored carries every observation the collector persists.
	SubjectObservationStored = "weather.observations.stored"
	// SubjectSummaryWritten carries every rollup row the aggregator writes.
	SubjectSummaryWritten = "weather.summaries.written"

	streamName = "WEATHER"
)

// Publisher emits pipeline events to JetStream for downstream consumers.
// Publishing is best-effort from the jobs' point of view; callers treat
// failures as warnings.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a publisher connected to the NATS server at url
func New(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{SubjectObservationStored, SubjectSummaryWritten},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Publisher{
		conn: nc,
		js:   js,
	}, nil
}

// PublishObservation publishes a stored observation event
func (p *Publisher) PublishObservation(obs *types.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	if _, err := p.js.Publish(SubjectObservationStored, data); err != nil {
		return fmt.Errorf("failed to publish observation: %w", err)
	}
	return nil
}

// PublishSummary publishes a written summary event
func (p *Publisher) PublishSummary(summary *types.DailySummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if _, err := p.js.Publish(SubjectSummaryWritten, data); err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
