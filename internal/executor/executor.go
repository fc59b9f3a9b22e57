// Package executor orchestrates a sequence run over the tree of group,
// sample, contact and measurement nodes. It owns the two bounded retry
// loops (contact re-moves and measurement retries), moves the table
// through its safe-motion protocol, and records a terminal state on every
// visited node. The executor runs on its own goroutine and talks to
// workers exclusively through their request handles.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/hephy-dd/pqc/internal/measure"
	"github.com/hephy-dd/pqc/internal/worker"
	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// TableController is the motion surface the executor needs. The production
// implementation adapts the table worker's request API; tests substitute a
// recording fake.
type TableController interface {
	SafeAbsoluteMove(ctx context.Context, x, y, z float64) (domain.Position, error)
}

// NewTableController adapts a table worker: each move is submitted to the
// worker queue and awaited on the calling goroutine.
func NewTableController(t *worker.TableWorker) TableController {
	return tableController{t}
}

type tableController struct {
	t *worker.TableWorker
}

// tableMoveTimeout bounds one safe move; the motion protocol itself polls
// for up to three minutes per leg.
const tableMoveTimeout = 15 * time.Minute

func (c tableController) SafeAbsoluteMove(ctx context.Context, x, y, z float64) (domain.Position, error) {
	r, err := c.t.SafeAbsoluteMove(x, y, z)
	if err != nil {
		return domain.UnassignedPosition(), err
	}
	return r.GetTimeout(ctx, tableMoveTimeout).Unpack()
}

// EnvironmentController is the climate enclosure surface the executor
// needs during initialize and finalize.
type EnvironmentController interface {
	SetTestLED(ctx context.Context, on bool) error
	DischargeDecoupling(ctx context.Context) error
}

// Executor runs sequence trees. Construct with New; zero value is not
// usable.
type Executor struct {
	cfg     Config
	station measure.Station
	table   TableController
	env     EnvironmentController
	hvsrc   ports.SourceChannel
	vsrc    ports.SourceChannel
	matrix  ports.SwitchingMatrix
	sinks   []ports.ResultSink
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	rng     *rand.Rand
	factory measure.Factory

	stop atomic.Bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithTable sets the table motion controller.
func WithTable(table TableController) Option {
	return func(e *Executor) { e.table = table }
}

// WithEnvironment sets the climate enclosure controller.
func WithEnvironment(env EnvironmentController) Option {
	return func(e *Executor) { e.env = env }
}

// WithRecoveryInstruments sets the instruments recovered during initialize
// and parked during finalize. Any handle may be nil.
func WithRecoveryInstruments(hvsrc, vsrc ports.SourceChannel, matrix ports.SwitchingMatrix) Option {
	return func(e *Executor) {
		e.hvsrc = hvsrc
		e.vsrc = vsrc
		e.matrix = matrix
	}
}

// WithSinks registers the result sinks notified per measurement
// completion. Sink failures are logged, never fatal.
func WithSinks(sinks ...ports.ResultSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, sinks...) }
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) { e.hooks = hooks }
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithRandomSource seeds the XY retry offset generator, for reproducible
// runs.
func WithRandomSource(src rand.Source) Option {
	return func(e *Executor) { e.rng = rand.New(src) }
}

// WithMeasurementFactory overrides how measurement nodes are instantiated.
// Defaults to the registered measurement types.
func WithMeasurementFactory(factory measure.Factory) Option {
	return func(e *Executor) { e.factory = factory }
}

// New constructs an executor over a station and a run configuration.
func New(station measure.Station, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:     cfg,
		station: station,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		factory: measure.NewMeasurement,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestStop raises the cooperative stop flag. Running protocols finish
// their current sub-step before surfacing a stopped state.
func (e *Executor) RequestStop() { e.stop.Store(true) }

func (e *Executor) stopping() bool { return e.stop.Load() }

// Run executes the subtree rooted at node. The tree is reset to its
// pristine state first, so successive runs are independent of prior-run
// data. Initialize runs before and finalize after the tree, regardless of
// outcome; an initialize failure skips the tree but still finalizes.
func (e *Executor) Run(ctx context.Context, node *domain.Node) (domain.NodeState, error) {
	e.stop.Store(false)
	node.Reset()

	var state domain.NodeState
	var runErr error

	if err := e.validateContacts(node); err != nil {
		return domain.StateError, err
	}

	if err := e.initialize(ctx); err != nil {
		state = domain.StateError
		runErr = err
	} else {
		state = e.runNode(ctx, node)
	}

	e.finalize(ctx)
	e.moveToAfterPosition(ctx)
	e.hooks.ActiveMeasurement(nil)
	e.hooks.Message("Finished.")

	if runErr == nil && state == domain.StateError {
		runErr = fmt.Errorf("sequence finished in state %s", state)
	}
	return state, runErr
}

// validateContacts fails fast when any enabled contact in the subtree has
// no usable position while table moves are requested.
func (e *Executor) validateContacts(node *domain.Node) error {
	if !e.cfg.MoveToContact || e.table == nil {
		return nil
	}
	var invalid []*domain.Node
	node.Walk(func(n *domain.Node) bool {
		if !n.Enabled {
			return false
		}
		if n.Kind == domain.KindContact && len(n.EnabledChildren()) > 0 && !n.HasPosition() {
			invalid = append(invalid, n)
		}
		return true
	})
	if len(invalid) > 0 {
		return fmt.Errorf("contact %q has no assigned position", invalid[0].Name)
	}
	return nil
}

func (e *Executor) runNode(ctx context.Context, node *domain.Node) domain.NodeState {
	switch node.Kind {
	case domain.KindGroup, domain.KindSample:
		return e.runAggregate(ctx, node)
	case domain.KindContact:
		return e.runContact(ctx, node)
	case domain.KindMeasurement:
		return e.runMeasurement(ctx, node)
	default:
		node.SetState(domain.StateError)
		return domain.StateError
	}
}

// runAggregate recurses into enabled children and folds their terminal
// states: success requires at least one enabled child and no failed child.
func (e *Executor) runAggregate(ctx context.Context, node *domain.Node) domain.NodeState {
	e.setState(node, domain.StateProcessing)
	e.hooks.Message(node.Name)

	children := node.EnabledChildren()
	stopped := false
	failed := false
	for _, child := range children {
		if e.stopping() {
			stopped = true
			break
		}
		state := e.runNode(ctx, child)
		switch {
		case state == domain.StateStopped:
			stopped = true
		case state.IsFailure():
			failed = true
		}
		if stopped {
			break
		}
	}

	state := domain.StateSuccess
	switch {
	case stopped:
		state = domain.StateStopped
	case failed, len(children) == 0:
		state = domain.StateError
	}
	e.setState(node, state)
	return state
}

// runContact owns the outer retry loop: each attempt (re-)moves the table
// to the contact position, applying the Z overdrive and a bounded random
// XY offset on re-moves, then drains the failed-measurement set through
// the inner retry loop. The contact succeeds once that set is empty.
func (e *Executor) runContact(ctx context.Context, node *domain.Node) domain.NodeState {
	e.setState(node, domain.StateProcessing)
	e.hooks.Message(fmt.Sprintf("Contact %s", node.Name))

	pending := node.EnabledChildren()
	if len(pending) == 0 {
		e.setState(node, domain.StateError)
		return domain.StateError
	}

	stopped := false
	for attempt := 0; attempt <= e.cfg.RetryContactCount; attempt++ {
		if e.stopping() {
			stopped = true
			break
		}
		if attempt > 0 {
			e.hooks.Message(fmt.Sprintf("Retry contact %s (%d/%d)", node.Name, attempt, e.cfg.RetryContactCount))
		}
		if err := e.moveToContact(ctx, node, attempt); err != nil {
			e.logger.Error("moving to contact failed", "contact", node.Name, "err", err)
			state := domain.StateForError(err)
			if !state.IsFailure() && state != domain.StateStopped {
				state = domain.StateError
			}
			e.setState(node, state)
			return state
		}
		if err := e.wait(e.cfg.ContactDelay); err != nil {
			stopped = true
			break
		}

		for pass := 0; pass <= e.cfg.RetryMeasurementCount; pass++ {
			if pass > 0 && len(pending) > 0 {
				e.hooks.Message(fmt.Sprintf("Retry measurements (%d/%d)", pass, e.cfg.RetryMeasurementCount))
			}
			pending = e.processMeasurementSequence(ctx, pending)
			if e.stopping() {
				stopped = true
				break
			}
			if len(pending) == 0 {
				break
			}
		}
		if stopped || len(pending) == 0 {
			break
		}
	}

	state := e.aggregateChildren(node, stopped)
	e.setState(node, state)
	return state
}

// moveToContact issues the safe absolute move for one contact attempt.
// Attempts after the first add the configured overdrive and offset.
func (e *Executor) moveToContact(ctx context.Context, node *domain.Node, attempt int) error {
	if !e.cfg.MoveToContact || e.table == nil || !node.HasPosition() {
		return nil
	}
	target := node.Pos
	if attempt > 0 {
		target.Z += e.cfg.ContactOverdrive
		if r := e.cfg.RetryContactRadius; r > 0 {
			target.X += (2*e.rng.Float64() - 1) * r
			target.Y += (2*e.rng.Float64() - 1) * r
		}
	}
	_, err := e.table.SafeAbsoluteMove(ctx, target.X, target.Y, target.Z)
	return err
}

// processMeasurementSequence runs each measurement once and returns the
// ones that failed with an analysis error, the only kind eligible for
// retry. Other failures keep their terminal state and do not halt the
// remaining measurements in the pass.
func (e *Executor) processMeasurementSequence(ctx context.Context, items []*domain.Node) []*domain.Node {
	var failed []*domain.Node
	for _, node := range items {
		if e.stopping() {
			e.setState(node, domain.StateStopped)
			continue
		}
		e.hooks.ActiveMeasurement(node)
		if state := e.runMeasurement(ctx, node); state == domain.StateAnalysisError {
			failed = append(failed, node)
		}
	}
	return failed
}

// runMeasurement executes one leaf measurement and records its terminal
// state, result payload and sink record. A re-run discards the previous
// attempt's data first.
func (e *Executor) runMeasurement(ctx context.Context, node *domain.Node) domain.NodeState {
	node.Reset()
	e.setState(node, domain.StateProcessing)
	e.hooks.Message(fmt.Sprintf("Measuring %s", node.Name))

	env := measure.Env{
		Hooks:  e.hooks,
		Logger: e.logger,
		Stop:   e.stopping,
	}
	var state domain.NodeState
	m, err := e.factory(node, env)
	if err != nil {
		e.logger.Error("constructing measurement failed", "measurement", node.Name, "err", err)
		state = domain.StateError
	} else {
		err = measure.Run(ctx, m, e.station, env)
		state = domain.StateForError(err)
		node.SetResult(m.Data().Result())
		if err != nil {
			e.logger.Error("measurement failed", "measurement", node.Name, "state", state, "err", err)
		}
	}
	e.setState(node, state)
	e.emitRecord(ctx, node, state)
	return state
}

// emitRecord delivers the completion record to the hooks and every sink.
func (e *Executor) emitRecord(ctx context.Context, node *domain.Node, state domain.NodeState) {
	record := domain.ResultRecord{
		Timestamp:       time.Now(),
		MeasurementName: node.Name,
		State:           state,
		Data:            node.Result(),
	}
	if contact := node.Contact(); contact != nil {
		record.ContactName = contact.Name
	}
	if sample := node.Sample(); sample != nil {
		record.SampleName = sample.Name
		record.SampleType = sample.SampleType
	}
	e.hooks.MeasurementFinished(record)
	for _, sink := range e.sinks {
		if err := sink.Write(ctx, record); err != nil {
			e.logger.Error("writing result record failed", "measurement", node.Name, "err", err)
		}
	}
}

// aggregateChildren folds the recorded child states into the parent's
// terminal state.
func (e *Executor) aggregateChildren(node *domain.Node, stopped bool) domain.NodeState {
	children := node.EnabledChildren()
	if stopped {
		return domain.StateStopped
	}
	if len(children) == 0 {
		return domain.StateError
	}
	for _, child := range children {
		if child.State().IsFailure() || child.State() == domain.StateStopped {
			return domain.StateError
		}
	}
	return domain.StateSuccess
}

// initialize recovers the instruments and arms the environment before the
// tree runs. Source and matrix recovery failures are fatal; environment
// failures are logged only.
func (e *Executor) initialize(ctx context.Context) error {
	e.hooks.Message("Initialize...")
	if e.cfg.UseEnvironmentBox && e.env != nil {
		if err := e.env.SetTestLED(ctx, true); err != nil {
			e.logger.Error("switching test LED on failed", "err", err)
		}
	}
	if e.hvsrc != nil {
		if err := recoverSource(ctx, e.hvsrc); err != nil {
			return fmt.Errorf("recovering hvsrc: %w", err)
		}
	}
	if e.vsrc != nil {
		if err := recoverSource(ctx, e.vsrc); err != nil {
			e.logger.Error("recovering vsrc failed", "err", err)
		}
	}
	if e.cfg.UseEnvironmentBox && e.env != nil {
		if err := e.env.DischargeDecoupling(ctx); err != nil {
			e.logger.Error("discharging decoupling failed", "err", err)
		}
	}
	if e.matrix != nil {
		if err := e.matrix.OpenAllChannels(ctx); err != nil {
			return fmt.Errorf("opening matrix channels: %w", err)
		}
	}
	return nil
}

// finalize parks the instruments after the tree ran. It always runs and
// never fails; problems are logged.
func (e *Executor) finalize(ctx context.Context) {
	e.hooks.Message("Finalize...")
	if e.hvsrc != nil {
		if err := e.hvsrc.SetOutputEnabled(ctx, false); err != nil {
			e.logger.Error("parking hvsrc failed", "err", err)
		}
	}
	if e.vsrc != nil {
		if err := e.vsrc.SetOutputEnabled(ctx, false); err != nil {
			e.logger.Error("parking vsrc failed", "err", err)
		}
	}
	if e.matrix != nil {
		if err := e.matrix.OpenAllChannels(ctx); err != nil {
			e.logger.Error("opening matrix channels failed", "err", err)
		}
	}
	if e.cfg.UseEnvironmentBox && e.env != nil {
		if err := e.env.SetTestLED(ctx, false); err != nil {
			e.logger.Error("switching test LED off failed", "err", err)
		}
	}
}

// moveToAfterPosition performs the final table move once the sequence
// completed. Failures are logged, never fatal.
func (e *Executor) moveToAfterPosition(ctx context.Context) {
	pos, ok := e.cfg.AfterPosition()
	if !ok || e.table == nil {
		return
	}
	e.hooks.Message("Moving to final position...")
	if _, err := e.table.SafeAbsoluteMove(ctx, pos.X, pos.Y, pos.Z); err != nil {
		e.logger.Error("moving to final position failed", "err", err)
	}
}

// recoverSource resets a source channel, drains its error queue and makes
// sure the output is off.
func recoverSource(ctx context.Context, src ports.SourceChannel) error {
	if err := src.Reset(ctx); err != nil {
		return err
	}
	if err := src.Clear(ctx); err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		_, ok, err := src.NextError(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return src.SetOutputEnabled(ctx, false)
}

func (e *Executor) setState(node *domain.Node, state domain.NodeState) {
	node.SetState(state)
	e.hooks.StateChanged(node, state)
}

// wait sleeps cooperatively, returning early when a stop was requested.
func (e *Executor) wait(seconds float64) error {
	const interval = 100 * time.Millisecond
	remaining := time.Duration(seconds * float64(time.Second))
	for remaining > 0 {
		if e.stopping() {
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
