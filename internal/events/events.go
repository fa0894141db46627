// Package events publishes pipeline run notifications to NATS JetStream.
// The publisher is optional: a nil *Publisher is a valid no-op, so callers
// never need to branch on whether eventing is configured.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	streamName           = "TRACK_RUNS"
	SubjectFetchComplete = "track.fetch.completed"
	SubjectLoadComplete  = "track.load.completed"
)

// FetchCompleted is published after a fetch run finishes.
type FetchCompleted struct {
	RunID        string `json:"run_id"`
	Partition    string `json:"partition"`
	FilesWritten int    `json:"files_written"`
	DurationMS   int64  `json:"duration_ms"`
}

// LoadCompleted is published after a load run finishes.
type LoadCompleted struct {
	RunID        string `json:"run_id"`
	Partition    string `json:"partition"`
	Files        int    `json:"files"`
	Observations int    `json:"observations"`
	Aircraft     int    `json:"aircraft"`
	Positions    int    `json:"positions"`
	DurationMS   int64  `json:"duration_ms"`
}

// Publisher publishes run events to JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to NATS and ensures the run event stream exists.
func New(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"track.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &Publisher{conn: nc, js: js}, nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}

// PublishFetchCompleted publishes a fetch run summary.
func (p *Publisher) PublishFetchCompleted(e FetchCompleted) error {
	return p.publish(SubjectFetchComplete, e)
}

// PublishLoadCompleted publishes a load run summary.
func (p *Publisher) PublishLoadCompleted(e LoadCompleted) error {
	return p.publish(SubjectLoadComplete, e)
}

func (p *Publisher) publish(subject string, payload interface{}) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
