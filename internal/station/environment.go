package station

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hephy-dd/pqc/internal/worker"
	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Environment owns the climate enclosure behind a resource worker. All box
// commands flow through the worker queue; the monitor hook polls the
// climate sensors and caches the latest snapshot so readers never touch
// the device directly.
type Environment struct {
	worker *worker.Worker[ports.EnvironmentBox]
	hooks  domain.LifecycleHooks

	mu    sync.RWMutex
	last  domain.Climate
	valid bool
}

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*environmentConfig)

type environmentConfig struct {
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	options worker.Options
}

// WithEnvironmentHooks sets the lifecycle hooks notified on climate polls.
func WithEnvironmentHooks(hooks domain.LifecycleHooks) EnvironmentOption {
	return func(c *environmentConfig) { c.hooks = hooks }
}

// WithEnvironmentLogger sets the worker logger.
func WithEnvironmentLogger(logger *slog.Logger) EnvironmentOption {
	return func(c *environmentConfig) { c.logger = logger }
}

// WithEnvironmentWorkerOptions tunes the worker loop timing.
func WithEnvironmentWorkerOptions(options worker.Options) EnvironmentOption {
	return func(c *environmentConfig) { c.options = options }
}

// NewEnvironment builds the environment box worker. The worker starts
// disabled and idle; call Start and Enable.
func NewEnvironment(opener worker.Opener, factory worker.DriverFactory[ports.EnvironmentBox], opts ...EnvironmentOption) *Environment {
	var cfg environmentConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Environment{hooks: cfg.hooks}
	hooks := worker.Hooks[ports.EnvironmentBox]{OnMonitor: e.poll}
	e.worker = worker.New("environ", opener, factory, hooks, cfg.options, cfg.logger)
	return e
}

// Start launches the worker goroutine.
func (e *Environment) Start() { e.worker.Start() }

// Stop terminates the worker loop and waits for it to exit.
func (e *Environment) Stop() { e.worker.Stop() }

// Enable lets the worker open the box and service requests.
func (e *Environment) Enable() { e.worker.Enable() }

// Disable aborts the open-resource scope.
func (e *Environment) Disable() { e.worker.Disable() }

// Enabled reports whether the worker accepts requests.
func (e *Environment) Enabled() bool { return e.worker.Enabled() }

// poll runs on the worker goroutine between requests.
func (e *Environment) poll(d ports.EnvironmentBox) {
	snapshot, err := d.ReadClimate(context.Background())
	if err != nil {
		return
	}
	e.mu.Lock()
	e.last = snapshot
	e.valid = true
	e.mu.Unlock()
	e.hooks.ClimateChanged(snapshot)
}

// Climate returns the most recent cached climate snapshot. ok is false
// until the first successful poll.
func (e *Environment) Climate() (snapshot domain.Climate, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.valid
}

// SetTestLED switches the measurement-active LED through the worker queue.
func (e *Environment) SetTestLED(ctx context.Context, on bool) error {
	return execVoid(ctx, e.worker, func(d ports.EnvironmentBox) error {
		return d.SetTestLED(ctx, on)
	})
}

// SetBoxLight switches the box illumination through the worker queue.
func (e *Environment) SetBoxLight(ctx context.Context, on bool) error {
	return execVoid(ctx, e.worker, func(d ports.EnvironmentBox) error {
		return d.SetBoxLight(ctx, on)
	})
}

// DischargeDecoupling fires the decoupling discharge relay.
func (e *Environment) DischargeDecoupling(ctx context.Context) error {
	return execVoid(ctx, e.worker, func(d ports.EnvironmentBox) error {
		return d.DischargeDecoupling(ctx)
	})
}

// ReadClimate forces a fresh sensor reading, bypassing the cache but not
// the queue.
func (e *Environment) ReadClimate(ctx context.Context) (domain.Climate, error) {
	return worker.Exec(ctx, e.worker, func(d ports.EnvironmentBox) (domain.Climate, error) {
		return d.ReadClimate(ctx)
	})
}

// Box returns a ports.EnvironmentBox handle whose calls are serialized
// through the worker queue, suitable as a measurement capability.
func (e *Environment) Box() ports.EnvironmentBox { return envBox{e} }

type envBox struct{ env *Environment }

func (b envBox) SetTestLED(ctx context.Context, on bool) error {
	return b.env.SetTestLED(ctx, on)
}

func (b envBox) SetBoxLight(ctx context.Context, on bool) error {
	return b.env.SetBoxLight(ctx, on)
}

func (b envBox) DischargeDecoupling(ctx context.Context) error {
	return b.env.DischargeDecoupling(ctx)
}

func (b envBox) ReadClimate(ctx context.Context) (domain.Climate, error) {
	return b.env.ReadClimate(ctx)
}

func execVoid(ctx context.Context, w *worker.Worker[ports.EnvironmentBox], fn func(ports.EnvironmentBox) error) error {
	_, err := worker.Exec(ctx, w, func(d ports.EnvironmentBox) (struct{}, error) {
		return struct{}{}, fn(d)
	})
	return err
}
