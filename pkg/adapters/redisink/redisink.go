// Package redisink publishes result records to a Redis stream, letting
// dashboards and archivers consume measurement completions live.
package redisink

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Sink implements ports.ResultSink over a Redis stream.
type Sink struct {
	client *backend.Client
	stream string
	maxLen int64
}

var _ ports.ResultSink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithStream sets the stream key.
func WithStream(stream string) Option {
	return func(s *Sink) { s.stream = stream }
}

// WithMaxLen caps the stream length (approximate trimming). Zero keeps the
// stream unbounded.
func WithMaxLen(maxLen int64) Option {
	return func(s *Sink) { s.maxLen = maxLen }
}

// New creates a sink connected to the given address.
func New(address, password string, db int, opts ...Option) *Sink {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a sink over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		stream: "pqc:results",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write appends one record to the stream. The payload travels as a JSON
// value next to the flat query fields.
func (s *Sink) Write(ctx context.Context, record domain.ResultRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling result record: %w", err)
	}
	args := &backend.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"sample":      record.SampleName,
			"contact":     record.ContactName,
			"measurement": record.MeasurementName,
			"state":       string(record.State),
			"record":      string(data),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending result record: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Sink) Close() error {
	return s.client.Close()
}
