// Package measure defines the measurement lifecycle contract and the
// built-in measurement types. A measurement declares its required
// instruments, acquires them exclusively for the duration of one run, and
// executes initialize, measure, finalize and analyze in order with
// finalize-on-failure guarantees.
package measure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Capabilities is the set of instrument handles a measurement may use.
// Only the handles named in RequiredInstruments are populated; everything
// else is nil. Composition replaces the capability-mixin inheritance of
// earlier designs.
type Capabilities struct {
	HVSource     ports.SourceChannel
	VSource      ports.SourceChannel
	LCR          ports.LCRMeter
	Electrometer ports.Electrometer
	Matrix       ports.SwitchingMatrix
	Environment  ports.EnvironmentBox
}

// Instrument resource keys.
const (
	KeyHVSource     = "hvsrc"
	KeyVSource      = "vsrc"
	KeyLCR          = "lcr"
	KeyElectrometer = "elm"
	KeyMatrix       = "matrix"
	KeyEnvironment  = "environ"
)

// Station grants exclusive access to instrument resources. Acquire blocks
// until every requested instrument is free, in declaration order, and the
// returned release function gives them back on every exit path.
type Station interface {
	Acquire(ctx context.Context, keys []string) (Capabilities, func(), error)
}

// Env carries the runtime collaborators injected into a measurement.
type Env struct {
	Hooks  domain.LifecycleHooks
	Logger *slog.Logger
	// Stop reports whether a cooperative stop was requested.
	Stop func() bool
}

func (e *Env) fill() {
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Stop == nil {
		e.Stop = func() bool { return false }
	}
}

// Measurement is the contract a leaf measurement type satisfies. Bodies
// receive only the capability handles they declared; the lifecycle runner
// guarantees finalize and analyze always run.
type Measurement interface {
	Type() string
	RequiredInstruments() []string
	Initialize(ctx context.Context, caps Capabilities) error
	Measure(ctx context.Context, caps Capabilities) error
	Finalize(ctx context.Context, caps Capabilities) error
	Analyze(ctx context.Context, caps Capabilities) error
	Data() *Data
}

// Run executes the full lifecycle of one measurement against the station.
// The required instruments are acquired exclusively and released on every
// exit path. Finalize runs even when initialize or measure failed, and
// analyze runs even when finalize failed; a later stage's failure takes
// precedence over an earlier one, so an analysis failure propagates last.
func Run(ctx context.Context, m Measurement, station Station, env Env) error {
	env.fill()
	caps, release, err := station.Acquire(ctx, m.RequiredInstruments())
	if err != nil {
		return fmt.Errorf("%w: acquiring instruments: %w", domain.ErrResource, err)
	}
	defer release()

	err = step(env, m.Type(), "Initialize", func() error { return m.Initialize(ctx, caps) })
	if err == nil {
		err = step(env, m.Type(), "Measure", func() error { return m.Measure(ctx, caps) })
	}
	if ferr := step(env, m.Type(), "Finalize", func() error { return m.Finalize(ctx, caps) }); ferr != nil {
		err = ferr
	}
	if aerr := step(env, m.Type(), "Analyze", func() error { return m.Analyze(ctx, caps) }); aerr != nil {
		err = aerr
	}
	return err
}

func step(env Env, typ, name string, fn func() error) error {
	env.Hooks.Message(name + "...")
	env.Logger.Info(name, "measurement", typ)
	if err := fn(); err != nil {
		env.Logger.Error(name+" failed", "measurement", typ, "err", err)
		return err
	}
	env.Hooks.Message(name + "... done.")
	return nil
}

// Base carries the collaborators common to all measurement types.
type Base struct {
	typ      string
	registry *Registry
	data     *Data
	env      Env
}

// NewBase wires a measurement's registry, data payload and environment.
func NewBase(typ string, node *domain.Node, env Env) Base {
	env.fill()
	return Base{
		typ:      typ,
		registry: NewRegistry(node.Parameters, node.DefaultParameters),
		data:     NewData(),
		env:      env,
	}
}

// Type returns the measurement type identifier.
func (b *Base) Type() string { return b.typ }

// Params returns the typed parameter registry.
func (b *Base) Params() *Registry { return b.registry }

// Data returns the result payload under construction.
func (b *Base) Data() *Data { return b.data }

// Env returns the injected collaborators.
func (b *Base) Env() Env { return b.env }

// Wait sleeps cooperatively, returning early with ErrStopRequested when a
// stop was requested. The check interval bounds cancellation latency.
func (b *Base) Wait(seconds float64) error {
	const interval = 100 * time.Millisecond
	remaining := time.Duration(seconds * float64(time.Second))
	for remaining > 0 {
		if b.env.Stop() {
			return domain.ErrStopRequested
		}
		d := interval
		if remaining < d {
			d = remaining
		}
		time.Sleep(d)
		remaining -= d
	}
	return nil
}

// rampValues enumerates the levels of a linear ramp, endpoints included.
// The step sign is normalized to the ramp direction.
func rampValues(start, stop, step float64) []float64 {
	if step == 0 || math.IsNaN(step) {
		return nil
	}
	step = math.Abs(step)
	if stop < start {
		step = -step
	}
	n := int(math.Floor((stop-start)/step)) + 1
	values := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		values = append(values, start+float64(i)*step)
	}
	if len(values) == 0 || values[len(values)-1] != stop {
		values = append(values, stop)
	}
	return values
}
