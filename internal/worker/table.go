package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// tableUnit is the number of device units per millimeter. The table
// firmware works on micrometer-scaled integers; the public API of the
// worker is millimeters and converts at the boundary.
const tableUnit = 1000

// AxisOffset is the relative over-travel used to force an axis past its
// physical range onto the hard limit switch during retreat and range
// finding. Intentionally far beyond any real travel; do not replace with a
// true coordinate.
const AxisOffset int64 = 2_000_000_000

// limitSwitchErrorCode is emitted by the firmware when a move runs into a
// hard limit switch. Expected and cleared after over-travel moves.
const limitSwitchErrorCode = 1004

// zClearanceOffset is the X clearance applied before Z calibration to move
// the chuck out from under the probe card, in device units.
const zClearanceOffset int64 = 52_000

var tableErrorMessages = map[int]string{
	1:    "Internal error.",
	2:    "Internal error.",
	3:    "Internal error.",
	4:    "Internal error.",
	1001: "Invalid parameter.",
	1002: "Not enough parameters on the stack.",
	1003: "Valid range of parameter is exceeded.",
	1004: "Move stopped working, range should run over.",
	1007: "Valid range of parameter is exceeded.",
	1008: "Not enough parameters on the stack.",
	1009: "Not enough space on the stack.",
	1010: "Not enough space on parameter memory.",
	1015: "Parameters outside of working range.",
	2000: "Unknown command.",
}

var tableMachineErrorMessages = map[int]string{
	1:  "Error memory overflow.",
	10: "Motor driver disabled or failing 12V power supply.",
	13: "Exceeded maximum positioning errors in closed loop.",
	23: "RS422 encoder error.",
}

// ToTableUnit converts millimeters to device units.
func ToTableUnit(mm float64) int64 {
	return int64(math.Round(mm * tableUnit))
}

// FromTableUnit converts device units to millimeters.
func FromTableUnit(units int64) float64 {
	return float64(units) / tableUnit
}

// TableState is the table worker's protocol state, published with every
// position snapshot.
type TableState string

const (
	TableIdle        TableState = "idle"
	TableRetractingZ TableState = "retracting_z"
	TableMovingXY    TableState = "moving_xy"
	TableRaisingZ    TableState = "raising_z"
	TableCalibrating TableState = "calibrating"
	TableStopped     TableState = "stopped"
	TableFailed      TableState = "failed"
)

// TableOptions tune the table protocols. The defaults match the Corvus
// controller timing.
type TableOptions struct {
	Options
	// PollDelay is the position poll period inside motion protocols
	// (default 1s).
	PollDelay time.Duration
	// Retries bounds every poll loop (default 180).
	Retries int
	// JoystickLimits are the soft travel maximums while the joystick is
	// enabled, in millimeters.
	JoystickLimits [3]float64
	// ProbecardLimits are the soft travel maximums while under program
	// control, in millimeters.
	ProbecardLimits [3]float64
}

func (o *TableOptions) fill() {
	o.Options.fill()
	if o.PollDelay <= 0 {
		o.PollDelay = time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 180
	}
}

// TableWorker owns the XYZ table controller. It extends the generic worker
// with the safe-move and calibration protocols and caches read-only
// position and calibration snapshots for other goroutines. Snapshots are
// always possibly stale.
type TableWorker struct {
	*Worker[ports.TableDriver]

	opts  TableOptions
	hooks domain.LifecycleHooks

	abort atomic.Bool

	mu      sync.RWMutex
	state   TableState
	pos     domain.Position
	caldone domain.Caldone
}

// NewTable constructs the table worker over a transport opener and a
// protocol driver factory.
func NewTable(opener Opener, factory DriverFactory[ports.TableDriver], opts TableOptions, hooks domain.LifecycleHooks, logger *slog.Logger) *TableWorker {
	opts.fill()
	t := &TableWorker{
		opts:    opts,
		hooks:   hooks,
		state:   TableIdle,
		pos:     domain.UnassignedPosition(),
		caldone: domain.Caldone{X: -1, Y: -1, Z: -1},
	}
	t.Worker = New("table", opener, factory, Hooks[ports.TableDriver]{
		OnOpen:    t.configure,
		OnMonitor: t.monitor,
	}, opts.Options, logger)
	return t
}

// State returns the current protocol state.
func (t *TableWorker) State() TableState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// CachedPosition returns the last published position snapshot in
// millimeters. Possibly stale.
func (t *TableWorker) CachedPosition() domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pos
}

// CachedCaldone returns the last published calibration snapshot. Possibly
// stale.
func (t *TableWorker) CachedCaldone() domain.Caldone {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.caldone
}

// StopCurrentAction raises the cooperative abort flag. The running
// protocol finishes its current axis move to a consistent physical state
// and surfaces a stopped outcome.
func (t *TableWorker) StopCurrentAction() { t.abort.Store(true) }

func (t *TableWorker) setState(state TableState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *TableWorker) configure(d ports.TableDriver) error {
	return d.Configure()
}

// monitor is the background status poll between requests.
func (t *TableWorker) monitor(d ports.TableDriver) {
	if _, err := t.publishPosition(d); err != nil {
		return
	}
	t.publishCaldone(d)
}

func (t *TableWorker) publishPosition(d ports.TableDriver) (domain.Position, error) {
	x, y, z, err := d.Pos()
	if err != nil {
		return domain.UnassignedPosition(), err
	}
	pos := domain.NewPosition(FromTableUnit(x), FromTableUnit(y), FromTableUnit(z))
	t.mu.Lock()
	t.pos = pos
	t.mu.Unlock()
	t.hooks.Position(pos)
	return pos, nil
}

func (t *TableWorker) publishCaldone(d ports.TableDriver) (domain.Caldone, error) {
	caldone, err := d.Caldone()
	if err != nil {
		return caldone, err
	}
	t.mu.Lock()
	t.caldone = caldone
	t.mu.Unlock()
	t.hooks.CaldoneChanged(caldone)
	return caldone, nil
}

// checkErrors pops and validates the controller's error registers.
// Codes listed in ignore are cleared silently.
func (t *TableWorker) checkErrors(d ports.TableDriver, ignore ...int) error {
	mcode, err := d.MachineErrorCode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if mcode != 0 {
		message, ok := tableMachineErrorMessages[mcode]
		if !ok {
			message = "Unknown machine error code."
		}
		return &domain.TableMachineError{Code: mcode, Message: message}
	}
	code, err := d.ErrorCode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if code != 0 && !containsCode(ignore, code) {
		message, ok := tableErrorMessages[code]
		if !ok {
			message = "Unknown error code."
		}
		return &domain.TableError{Code: code, Message: message}
	}
	return nil
}

func (t *TableWorker) checkCalibration(d ports.TableDriver) error {
	caldone, err := t.publishCaldone(d)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if !caldone.Valid() {
		return &domain.TableCalibrationError{Caldone: caldone}
	}
	return nil
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func (t *TableWorker) checkAbort() error {
	if t.abort.Load() {
		t.hooks.Progress(0, 0)
		return domain.ErrStopRequested
	}
	return nil
}

// Identify requests the controller identification string.
func (t *TableWorker) Identify() (*Request[string], error) {
	return Submit(t.Worker, func(d ports.TableDriver) (string, error) {
		return d.Identify()
	})
}

// Status requests a fresh position, caldone and joystick publication.
func (t *TableWorker) Status() (*Request[domain.Position], error) {
	return Submit(t.Worker, func(d ports.TableDriver) (domain.Position, error) {
		pos, err := t.publishPosition(d)
		if err != nil {
			return pos, fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if _, err := t.publishCaldone(d); err != nil {
			return pos, fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		return pos, nil
	})
}

// EnableJoystick switches manual joystick control, programming the
// matching soft travel limits first so manual motion cannot reach the
// probe card.
func (t *TableWorker) EnableJoystick(enabled bool) (*Request[bool], error) {
	return Submit(t.Worker, func(d ports.TableDriver) (bool, error) {
		limits := t.opts.ProbecardLimits
		if enabled {
			limits = t.opts.JoystickLimits
		}
		var programmed ports.TableLimits
		for i, mm := range limits {
			programmed[i] = [2]int64{0, ToTableUnit(mm)}
		}
		if err := d.SetLimits(programmed); err != nil {
			return false, err
		}
		if err := d.SetJoystick(enabled); err != nil {
			return false, err
		}
		return d.Joystick()
	})
}

// RelativeMove commands a single relative move in millimeters and verifies
// the controller accepted it.
func (t *TableWorker) RelativeMove(dx, dy, dz float64) (*Request[domain.Position], error) {
	return Submit(t.Worker, func(d ports.TableDriver) (domain.Position, error) {
		t.hooks.Message(fmt.Sprintf("Moving table relative to x=%.3f, y=%.3f, z=%.3f mm", dx, dy, dz))
		if err := d.MoveRel(ToTableUnit(dx), ToTableUnit(dy), ToTableUnit(dz)); err != nil {
			return domain.UnassignedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := t.checkErrors(d); err != nil {
			return domain.UnassignedPosition(), err
		}
		if err := t.checkCalibration(d); err != nil {
			return domain.UnassignedPosition(), err
		}
		pos, err := t.publishPosition(d)
		if err != nil {
			return pos, fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		t.hooks.Message("Ready")
		return pos, nil
	})
}

// SafeAbsoluteMove moves to an absolute position in millimeters using the
// motion safety protocol: retract Z to zero, move X and Y, then raise Z.
// XY axes are never commanded while Z is off zero, and Z is only raised
// after XY reached its target.
func (t *TableWorker) SafeAbsoluteMove(x, y, z float64) (*Request[domain.Position], error) {
	target := [3]int64{ToTableUnit(x), ToTableUnit(y), ToTableUnit(z)}
	return Submit(t.Worker, func(d ports.TableDriver) (domain.Position, error) {
		t.abort.Store(false)
		pos, err := t.safeAbsoluteMove(d, target)
		switch {
		case err == nil:
			t.setState(TableIdle)
		case errors.Is(err, domain.ErrStopRequested):
			t.setState(TableStopped)
			t.hooks.Message("Moving aborted.")
		default:
			t.setState(TableFailed)
		}
		return pos, err
	})
}

func (t *TableWorker) safeAbsoluteMove(d ports.TableDriver, target [3]int64) (domain.Position, error) {
	t.hooks.Message("Moving...")
	if err := t.checkErrors(d); err != nil {
		return t.CachedPosition(), err
	}
	if err := t.checkCalibration(d); err != nil {
		return t.CachedPosition(), err
	}
	if err := t.checkAbort(); err != nil {
		return t.CachedPosition(), err
	}

	// Step 1: retract Z onto the hard limit switch.
	t.setState(TableRetractingZ)
	t.hooks.Progress(1, 4)
	t.hooks.Message("Retreating Z axis...")
	_, _, cz, err := d.Pos()
	if err != nil {
		return t.CachedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if cz != 0 {
		if err := d.MoveRel(0, 0, -AxisOffset); err != nil {
			return t.CachedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := t.pollUntil(d, func(x, y, z int64) bool { return z == 0 }); err != nil {
			return t.CachedPosition(), err
		}
		// Driving into the limit switch produces error 1004; clear it.
		if err := t.checkErrors(d, limitSwitchErrorCode); err != nil {
			return t.CachedPosition(), err
		}
	}
	if _, err := t.publishCaldone(d); err != nil {
		return t.CachedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.checkAbort(); err != nil {
		return t.CachedPosition(), err
	}

	// Step 2: move X and Y at Z = 0.
	t.setState(TableMovingXY)
	t.hooks.Progress(2, 4)
	t.hooks.Message("Move X Y axes...")
	if err := d.MoveAbs(target[0], target[1], 0); err != nil {
		return t.CachedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.pollUntil(d, func(x, y, z int64) bool {
		return x == target[0] && y == target[1]
	}); err != nil {
		return t.CachedPosition(), err
	}

	// Step 3: raise Z to the target.
	t.setState(TableRaisingZ)
	t.hooks.Progress(3, 4)
	t.hooks.Message("Move up Z axis...")
	if err := d.MoveRel(0, 0, target[2]); err != nil {
		return t.CachedPosition(), fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.pollUntil(d, func(x, y, z int64) bool { return z >= target[2] }); err != nil {
		return t.CachedPosition(), err
	}

	pos, err := t.publishPosition(d)
	if err != nil {
		return pos, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if _, err := t.publishCaldone(d); err != nil {
		return pos, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.checkErrors(d); err != nil {
		return pos, err
	}
	t.hooks.Progress(4, 4)
	t.hooks.Message("Movement successful.")
	return pos, nil
}

// pollUntil polls the position until the condition holds, publishing every
// snapshot and checking the abort flag at every tick. Bounded by the retry
// budget.
func (t *TableWorker) pollUntil(d ports.TableDriver, reached func(x, y, z int64) bool) error {
	for i := 0; i < t.opts.Retries; i++ {
		if err := t.checkAbort(); err != nil {
			return err
		}
		x, y, z, err := d.Pos()
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		t.publishRaw(x, y, z)
		if reached(x, y, z) {
			return nil
		}
		time.Sleep(t.opts.PollDelay)
	}
	x, y, z, err := d.Pos()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return fmt.Errorf("table failed to reach position, stuck at (%d, %d, %d)", x, y, z)
}

func (t *TableWorker) publishRaw(x, y, z int64) {
	pos := domain.NewPosition(FromTableUnit(x), FromTableUnit(y), FromTableUnit(z))
	t.mu.Lock()
	t.pos = pos
	t.mu.Unlock()
	t.hooks.Position(pos)
}

// Calibrate runs the full per-axis calibration sequence and finishes at
// position (0, 0, 0). Every sub-step is bounded by the poll budget.
func (t *TableWorker) Calibrate() (*Request[domain.Caldone], error) {
	return Submit(t.Worker, func(d ports.TableDriver) (domain.Caldone, error) {
		t.abort.Store(false)
		t.setState(TableCalibrating)
		caldone, err := t.calibrate(d)
		switch {
		case err == nil:
			t.setState(TableIdle)
		case errors.Is(err, domain.ErrStopRequested):
			t.setState(TableStopped)
			t.hooks.Message("Calibration aborted.")
		default:
			t.setState(TableFailed)
		}
		return caldone, err
	})
}

func (t *TableWorker) calibrate(d ports.TableDriver) (domain.Caldone, error) {
	t.hooks.Message("Calibrating...")
	if err := t.checkErrors(d); err != nil {
		return t.CachedCaldone(), err
	}

	steps := []struct {
		message string
		run     func() error
	}{
		{"Retreating Z axis...", func() error { return t.ncal(d, ports.AxisZ) }},
		{"Calibrating Y axis...", func() error { return t.ncal(d, ports.AxisY) }},
		{"Calibrating X axis...", func() error { return t.ncal(d, ports.AxisX) }},
		{"Range measure X axis...", func() error { return t.nrm(d, ports.AxisX) }},
		{"Range measure Y axis...", func() error { return t.nrm(d, ports.AxisY) }},
		{"Returning to origin...", func() error { return t.returnToOrigin(d) }},
		{"Calibrating Z axis...", func() error { return t.ncal(d, ports.AxisZ) }},
		{"Range measure Z axis...", func() error { return t.nrm(d, ports.AxisZ) }},
		{"Moving to home position...", func() error { return t.moveHome(d) }},
	}
	total := len(steps)
	for i, step := range steps {
		if err := t.checkAbort(); err != nil {
			return t.CachedCaldone(), err
		}
		if _, err := t.publishCaldone(d); err != nil {
			return t.CachedCaldone(), fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		t.hooks.Progress(i, total)
		t.hooks.Message(step.message)
		if err := step.run(); err != nil {
			return t.CachedCaldone(), err
		}
		if err := t.checkErrors(d); err != nil {
			return t.CachedCaldone(), err
		}
		time.Sleep(t.opts.PollDelay)
	}

	caldone, err := t.publishCaldone(d)
	if err != nil {
		return caldone, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	t.hooks.Progress(total, total)
	t.hooks.Message("Calibration successful.")
	return caldone, nil
}

// ncal runs the find-zero primitive and waits until the axis reports the
// origin.
func (t *TableWorker) ncal(d ports.TableDriver, axis ports.Axis) error {
	if err := d.Ncal(axis); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.pollUntil(d, func(x, y, z int64) bool {
		return pick(axis, x, y, z) == 0
	}); err != nil {
		if errors.Is(err, domain.ErrStopRequested) {
			return err
		}
		return fmt.Errorf("failed to calibrate %s axis: %w", axis, err)
	}
	return nil
}

// nrm runs the find-maximum-range primitive and waits until the axis stops
// changing position for one poll interval.
func (t *TableWorker) nrm(d ports.TableDriver, axis ports.Axis) error {
	if err := d.Nrm(axis); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	rx, ry, rz, err := d.Pos()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	reference := pick(axis, rx, ry, rz)
	t.publishRaw(rx, ry, rz)
	time.Sleep(t.opts.PollDelay)
	for i := 0; i < t.opts.Retries; i++ {
		if err := t.checkAbort(); err != nil {
			return err
		}
		x, y, z, err := d.Pos()
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		t.publishRaw(x, y, z)
		current := pick(axis, x, y, z)
		if current == reference {
			return nil
		}
		reference = current
		time.Sleep(t.opts.PollDelay)
	}
	return fmt.Errorf("failed to range measure %s axis", axis)
}

// returnToOrigin drives XY into the limit switches back to (0, 0), then
// applies the X clearance so Z calibration cannot collide with the probe
// card.
func (t *TableWorker) returnToOrigin(d ports.TableDriver) error {
	if err := d.MoveRel(-AxisOffset, -AxisOffset, 0); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := t.pollUntil(d, func(x, y, z int64) bool { return x == 0 && y == 0 }); err != nil {
		return err
	}
	if err := t.checkErrors(d, limitSwitchErrorCode); err != nil {
		return err
	}
	if err := d.MoveRel(zClearanceOffset, 0, 0); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return t.pollUntil(d, func(x, y, z int64) bool { return x == zClearanceOffset && y == 0 })
}

func (t *TableWorker) moveHome(d ports.TableDriver) error {
	if err := d.MoveAbs(0, 0, 0); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return t.pollUntil(d, func(x, y, z int64) bool { return x == 0 && y == 0 && z == 0 })
}

func pick(axis ports.Axis, x, y, z int64) int64 {
	switch axis {
	case ports.AxisX:
		return x
	case ports.AxisY:
		return y
	default:
		return z
	}
}
