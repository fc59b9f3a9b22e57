// Package filesink writes result records as JSON lines, one record per
// measurement completion.
package filesink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Sink implements ports.ResultSink over any writer. Writes are serialized;
// the executor may emit records from its own goroutine while monitoring
// consumers read the file.
type Sink struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
}

var _ ports.ResultSink = (*Sink)(nil)

// New wraps a writer. The sink closes it on Close when it is a closer.
func New(w io.Writer) *Sink {
	s := &Sink{w: w, enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// Open creates or truncates the file at path and returns a sink over it.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// Write appends one record as a JSON line.
func (s *Sink) Write(ctx context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}

// Close closes the underlying file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
