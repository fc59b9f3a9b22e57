// Package station wires the probe station's instruments into the
// capability handles measurements consume. Each instrument is guarded by
// an exclusive scope; a measurement acquires every instrument it declared
// before its first stage runs and releases them on every exit path.
package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hephy-dd/pqc/internal/measure"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// slot is one lockable instrument. assign copies the handle into the
// capability set once the lock is held.
type slot struct {
	sem    chan struct{}
	assign func(*measure.Capabilities)
}

func newSlot(assign func(*measure.Capabilities)) *slot {
	return &slot{sem: make(chan struct{}, 1), assign: assign}
}

// Station grants exclusive, ordered access to instrument handles. It
// implements measure.Station.
type Station struct {
	logger *slog.Logger
	slots  map[string]*slot
	env    *Environment
}

// Option configures a Station.
type Option func(*Station)

// WithLogger sets the station logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Station) { s.logger = logger }
}

// WithHVSource registers the high-voltage source channel.
func WithHVSource(h ports.SourceChannel) Option {
	return func(s *Station) {
		s.slots[measure.KeyHVSource] = newSlot(func(c *measure.Capabilities) { c.HVSource = h })
	}
}

// WithVSource registers the bias voltage source channel.
func WithVSource(h ports.SourceChannel) Option {
	return func(s *Station) {
		s.slots[measure.KeyVSource] = newSlot(func(c *measure.Capabilities) { c.VSource = h })
	}
}

// WithLCR registers the LCR meter.
func WithLCR(h ports.LCRMeter) Option {
	return func(s *Station) {
		s.slots[measure.KeyLCR] = newSlot(func(c *measure.Capabilities) { c.LCR = h })
	}
}

// WithElectrometer registers the electrometer.
func WithElectrometer(h ports.Electrometer) Option {
	return func(s *Station) {
		s.slots[measure.KeyElectrometer] = newSlot(func(c *measure.Capabilities) { c.Electrometer = h })
	}
}

// WithMatrix registers the switching matrix.
func WithMatrix(h ports.SwitchingMatrix) Option {
	return func(s *Station) {
		s.slots[measure.KeyMatrix] = newSlot(func(c *measure.Capabilities) { c.Matrix = h })
	}
}

// WithEnvironment registers the environment box worker. Measurements that
// declare the environment key receive a handle whose calls are serialized
// through the worker queue.
func WithEnvironment(env *Environment) Option {
	return func(s *Station) {
		s.env = env
		box := env.Box()
		s.slots[measure.KeyEnvironment] = newSlot(func(c *measure.Capabilities) { c.Environment = box })
	}
}

// New builds a station from the configured instruments.
func New(opts ...Option) *Station {
	s := &Station{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		slots:  make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Has reports whether an instrument key is configured.
func (s *Station) Has(key string) bool {
	_, ok := s.slots[key]
	return ok
}

// Environment returns the environment box worker, or nil when none is
// configured.
func (s *Station) Environment() *Environment { return s.env }

// Acquire locks the named instruments in declaration order and returns the
// populated capability set. The release function unlocks in reverse order
// and is safe to call more than once. On any failure every lock taken so
// far is released before the error returns.
func (s *Station) Acquire(ctx context.Context, keys []string) (measure.Capabilities, func(), error) {
	var caps measure.Capabilities
	held := make([]*slot, 0, len(keys))
	unwind := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
		}
	}
	for _, key := range keys {
		sl, ok := s.slots[key]
		if !ok {
			unwind()
			return measure.Capabilities{}, nil, fmt.Errorf("instrument not configured: %s", key)
		}
		select {
		case sl.sem <- struct{}{}:
			held = append(held, sl)
			sl.assign(&caps)
		case <-ctx.Done():
			unwind()
			return measure.Capabilities{}, nil, fmt.Errorf("acquiring %s: %w", key, ctx.Err())
		}
	}
	s.logger.Debug("instruments acquired", "keys", keys)
	var once sync.Once
	release := func() {
		once.Do(func() {
			unwind()
			s.logger.Debug("instruments released", "keys", keys)
		})
	}
	return caps, release, nil
}
