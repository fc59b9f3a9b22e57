package pqc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/hephy-dd/pqc/internal/executor"
	"github.com/hephy-dd/pqc/internal/metrics"
	"github.com/hephy-dd/pqc/internal/station"
	monitor "github.com/hephy-dd/pqc/pkg/adapters/http"
	"github.com/hephy-dd/pqc/pkg/adapters/yamlseq"
	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Engine is the high-level entry point of the library. It assembles the
// station, the sequence executor, the result sinks and the monitoring
// surface behind one API. Hosts own the instrument workers and hand their
// controllers in via options.
type Engine struct {
	cfg     executor.Config
	loader  ports.SequenceLoader
	station *station.Station
	table   executor.TableController
	env     executor.EnvironmentController
	hvsrc   ports.SourceChannel
	vsrc    ports.SourceChannel
	matrix  ports.SwitchingMatrix
	sinks   []ports.ResultSink
	hooks   domain.LifecycleHooks
	logger  *slog.Logger

	metrics  *metrics.Metrics
	monitor  *monitor.Server
	executor *executor.Executor
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRunConfig sets the run configuration (retry counts, contact motion,
// environment arming). Defaults to executor.DefaultConfig.
func WithRunConfig(cfg executor.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLoader injects a custom sequence loader, bypassing the default YAML
// loader.
func WithLoader(l ports.SequenceLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithTable sets the table motion controller. Without it the engine runs
// without table moves.
func WithTable(table executor.TableController) Option {
	return func(e *Engine) { e.table = table }
}

// WithEnvironment sets the climate enclosure controller used around runs.
func WithEnvironment(env executor.EnvironmentController) Option {
	return func(e *Engine) { e.env = env }
}

// WithRecoveryInstruments sets the instruments recovered before and parked
// after each run. Any handle may be nil.
func WithRecoveryInstruments(hvsrc, vsrc ports.SourceChannel, matrix ports.SwitchingMatrix) Option {
	return func(e *Engine) {
		e.hvsrc = hvsrc
		e.vsrc = vsrc
		e.matrix = matrix
	}
}

// WithSinks registers result sinks notified once per measurement
// completion.
func WithSinks(sinks ...ports.ResultSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// WithLifecycleHooks registers observability hooks. They are merged with
// the engine's own metrics and monitoring hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New initializes an Engine over a configured station.
func New(st *station.Station, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("station is required")
	}
	e := &Engine{
		cfg:     executor.DefaultConfig(),
		station: st,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.loader == nil {
		e.loader = yamlseq.New()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e.metrics = metrics.New()
	e.monitor = monitor.NewServer(
		monitor.WithLogger(e.logger),
		monitor.WithMetricsHandler(e.metrics.Handler()),
	)
	e.hooks = e.hooks.Merge(e.metrics.Hooks()).Merge(e.monitor.Hooks())

	e.executor = executor.New(st, e.cfg,
		executor.WithTable(e.table),
		executor.WithEnvironment(e.env),
		executor.WithRecoveryInstruments(e.hvsrc, e.vsrc, e.matrix),
		executor.WithSinks(e.sinks...),
		executor.WithHooks(e.hooks),
		executor.WithLogger(e.logger),
	)
	return e, nil
}

// LoadSequence parses and validates a sequence definition into its tree.
func (e *Engine) LoadSequence(ctx context.Context, r io.Reader) (*domain.Node, error) {
	return e.loader.Load(ctx, r)
}

// LoadSequenceFile loads a sequence definition from a file.
func (e *Engine) LoadSequenceFile(ctx context.Context, path string) (*domain.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sequence file: %w", err)
	}
	defer f.Close()
	return e.loader.Load(ctx, f)
}

// Run executes the sequence tree and returns its terminal state. The tree
// is reset first; successive runs are independent.
func (e *Engine) Run(ctx context.Context, node *domain.Node) (domain.NodeState, error) {
	return e.executor.Run(ctx, node)
}

// RequestStop raises the cooperative stop flag of the running sequence.
func (e *Engine) RequestStop() { e.executor.RequestStop() }

// Hooks returns the merged lifecycle hooks, including the engine's metrics
// and monitoring consumers. Hosts wire these into the instrument workers
// they own so position, calibration and climate snapshots reach the
// monitoring surface.
func (e *Engine) Hooks() domain.LifecycleHooks { return e.hooks }

// Station returns the engine's station.
func (e *Engine) Station() *station.Station { return e.station }

// MonitorHandler returns the HTTP handler of the monitoring surface: run
// status, the live event stream and the metrics endpoint.
func (e *Engine) MonitorHandler() http.Handler { return e.monitor.Handler() }

// Close closes every registered result sink.
func (e *Engine) Close() error {
	var first error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
