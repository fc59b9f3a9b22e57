package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// fakeTable simulates the Corvus-style controller: stepwise motion toward
// the commanded target, hard limits at zero generating error 1004, and
// read-clear error registers.
type fakeTable struct {
	mu       sync.Mutex
	pos      [3]int64
	target   [3]int64
	max      [3]int64
	step     int64
	errCode  int
	merrCode int
	caldone  domain.Caldone
	joystick bool
	limits   ports.TableLimits
	stall    bool
	calls    []string
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		max:     [3]int64{100_000, 100_000, 25_000},
		step:    600,
		caldone: domain.Caldone{X: 3, Y: 3, Z: 3},
	}
}

func (f *fakeTable) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeTable) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTable) Identify() (string, error) { return "Corvus 1 462 1 380", nil }
func (f *fakeTable) Configure() error          { return nil }

func (f *fakeTable) Pos() (int64, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stall {
		for i := range f.pos {
			delta := f.target[i] - f.pos[i]
			switch {
			case delta > f.step:
				f.pos[i] += f.step
			case delta < -f.step:
				f.pos[i] -= f.step
			default:
				f.pos[i] = f.target[i]
			}
		}
	}
	return f.pos[0], f.pos[1], f.pos[2], nil
}

func (f *fakeTable) clampTarget() {
	for i := range f.target {
		if f.target[i] < 0 {
			f.target[i] = 0
			f.errCode = limitSwitchErrorCode
		}
		if f.target[i] > f.max[i] {
			f.target[i] = f.max[i]
			f.errCode = limitSwitchErrorCode
		}
	}
}

func (f *fakeTable) MoveAbs(x, y, z int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("move(%d,%d,%d)@z=%d", x, y, z, f.pos[2]))
	f.target = [3]int64{x, y, z}
	f.clampTarget()
	return nil
}

func (f *fakeTable) MoveRel(dx, dy, dz int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("rmove(%d,%d,%d)@x=%d,y=%d,z=%d", dx, dy, dz, f.pos[0], f.pos[1], f.pos[2]))
	f.target = [3]int64{f.pos[0] + dx, f.pos[1] + dy, f.pos[2] + dz}
	f.clampTarget()
	return nil
}

func (f *fakeTable) Ncal(axis ports.Axis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ncal " + axis.String())
	f.target[int(axis)] = 0
	return nil
}

func (f *fakeTable) Nrm(axis ports.Axis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("nrm " + axis.String())
	f.target[int(axis)] = f.max[int(axis)]
	return nil
}

func (f *fakeTable) Caldone() (domain.Caldone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caldone, nil
}

func (f *fakeTable) ErrorCode() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := f.errCode
	f.errCode = 0
	return code, nil
}

func (f *fakeTable) MachineErrorCode() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.merrCode, nil
}

func (f *fakeTable) Joystick() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joystick, nil
}

func (f *fakeTable) SetJoystick(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joystick = enabled
	return nil
}

func (f *fakeTable) SetLimits(limits ports.TableLimits) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = limits
	return nil
}

func stubOpener() Opener {
	return openerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nopCloser{&bytes.Buffer{}}, nil
	})
}

type snapshotLog struct {
	mu        sync.Mutex
	positions []domain.Position
}

func (l *snapshotLog) add(pos domain.Position) {
	l.mu.Lock()
	l.positions = append(l.positions, pos)
	l.mu.Unlock()
}

func (l *snapshotLog) all() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Position(nil), l.positions...)
}

func newTestTable(t *testing.T, fake *fakeTable, log *snapshotLog) *TableWorker {
	t.Helper()
	hooks := domain.LifecycleHooks{}
	if log != nil {
		hooks.OnPosition = log.add
	}
	tw := NewTable(
		stubOpener(),
		func(rwc io.ReadWriteCloser) (ports.TableDriver, error) { return fake, nil },
		TableOptions{
			Options:         Options{PollInterval: time.Millisecond},
			PollDelay:       time.Millisecond,
			Retries:         500,
			JoystickLimits:  [3]float64{25, 25, 10},
			ProbecardLimits: [3]float64{100, 100, 25},
		},
		hooks, nil,
	)
	tw.Enable()
	tw.Start()
	t.Cleanup(tw.Stop)
	return tw
}

func TestTableUnitConversion(t *testing.T) {
	assert.Equal(t, int64(5000), ToTableUnit(5.0))
	assert.Equal(t, int64(1), ToTableUnit(0.0005))
	assert.InDelta(t, 5.0, FromTableUnit(5000), 1e-9)
	assert.InDelta(t, -0.001, FromTableUnit(-1), 1e-9)
}

func TestTableWorker_SafeAbsoluteMove(t *testing.T) {
	fake := newFakeTable()
	fake.pos = [3]int64{1000, 2000, 1500}
	fake.target = fake.pos
	log := &snapshotLog{}
	tw := newTestTable(t, fake, log)

	r, err := tw.SafeAbsoluteMove(5, 6, 0.5)
	require.NoError(t, err)
	pos, err := r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, pos.X, 1e-9)
	assert.InDelta(t, 6.0, pos.Y, 1e-9)
	assert.InDelta(t, 0.5, pos.Z, 1e-9)
	assert.Equal(t, TableIdle, tw.State())

	// Command ordering: retract Z, then XY, then raise Z.
	calls := fake.Calls()
	retract, moveXY, raise := -1, -1, -1
	for i, call := range calls {
		switch {
		case call == fmt.Sprintf("rmove(0,0,%d)@x=1000,y=2000,z=1500", -AxisOffset):
			retract = i
		case call == "move(5000,6000,0)@z=0":
			moveXY = i
		case call == "rmove(0,0,500)@x=5000,y=6000,z=0":
			raise = i
		}
	}
	require.GreaterOrEqual(t, retract, 0, "missing Z retract command: %v", calls)
	require.GreaterOrEqual(t, moveXY, 0, "XY commanded while Z off zero or not at all: %v", calls)
	require.GreaterOrEqual(t, raise, 0, "Z raised before XY reached target or not at all: %v", calls)
	assert.Less(t, retract, moveXY)
	assert.Less(t, moveXY, raise)

	// Snapshot property: once XY starts moving, Z stays at zero until XY
	// reaches its target.
	xyMoving := false
	for _, snap := range log.all() {
		atStartXY := snap.X == 1.0 && snap.Y == 2.0
		atTargetXY := snap.X == 5.0 && snap.Y == 6.0
		if !atStartXY && !atTargetXY {
			xyMoving = true
		}
		if xyMoving && !atTargetXY {
			assert.Zero(t, snap.Z, "Z off zero while XY in motion: %v", snap)
		}
		if atTargetXY {
			xyMoving = false
		}
	}
}

func TestTableWorker_SafeMoveSkipsRetractAtZeroZ(t *testing.T) {
	fake := newFakeTable()
	tw := newTestTable(t, fake, nil)

	r, err := tw.SafeAbsoluteMove(1, 1, 0.2)
	require.NoError(t, err)
	_, err = r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	require.NoError(t, err)

	for _, call := range fake.Calls() {
		assert.NotContains(t, call, fmt.Sprintf("rmove(0,0,%d)", -AxisOffset))
	}
}

func TestTableWorker_SafeMoveAbort(t *testing.T) {
	fake := newFakeTable()
	fake.pos = [3]int64{0, 0, 5000}
	fake.target = fake.pos
	fake.stall = true // motion never completes
	tw := newTestTable(t, fake, nil)

	r, err := tw.SafeAbsoluteMove(10, 10, 1)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	tw.StopCurrentAction()

	outcome := r.GetTimeout(context.Background(), 10*time.Second)
	assert.Equal(t, domain.OutcomeStopped, outcome.Status)
	assert.Equal(t, TableStopped, tw.State())
}

func TestTableWorker_SafeMoveRequiresCalibration(t *testing.T) {
	fake := newFakeTable()
	fake.caldone = domain.Caldone{X: 3, Y: 1, Z: 3}
	tw := newTestTable(t, fake, nil)

	r, err := tw.SafeAbsoluteMove(1, 1, 0)
	require.NoError(t, err)
	_, err = r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	var calErr *domain.TableCalibrationError
	require.ErrorAs(t, err, &calErr)
	assert.Equal(t, TableFailed, tw.State())
}

func TestTableWorker_MachineError(t *testing.T) {
	fake := newFakeTable()
	fake.merrCode = 10
	tw := newTestTable(t, fake, nil)

	r, err := tw.SafeAbsoluteMove(1, 1, 0)
	require.NoError(t, err)
	_, err = r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	var machineErr *domain.TableMachineError
	require.ErrorAs(t, err, &machineErr)
	assert.Equal(t, 10, machineErr.Code)
}

func TestTableWorker_Calibrate(t *testing.T) {
	fake := newFakeTable()
	fake.pos = [3]int64{40_000, 30_000, 2000}
	fake.target = fake.pos
	tw := newTestTable(t, fake, nil)

	r, err := tw.Calibrate()
	require.NoError(t, err)
	caldone, err := r.GetTimeout(context.Background(), 30*time.Second).Unpack()
	require.NoError(t, err)
	assert.True(t, caldone.Valid())
	assert.Equal(t, TableIdle, tw.State())

	// The sequence finishes at the home position.
	pos := tw.CachedPosition()
	assert.Zero(t, pos.X)
	assert.Zero(t, pos.Y)
	assert.Zero(t, pos.Z)

	// Axis order: Z retreat, Y, X find-zero, then X, Y range measure,
	// then Z after the X clearance move.
	calls := fake.Calls()
	var primitives []string
	clearance := -1
	for i, call := range calls {
		if call == "ncal X" || call == "ncal Y" || call == "ncal Z" ||
			call == "nrm X" || call == "nrm Y" || call == "nrm Z" {
			primitives = append(primitives, call)
		}
		if call == fmt.Sprintf("rmove(%d,0,0)@x=0,y=0,z=0", zClearanceOffset) {
			clearance = i
		}
	}
	assert.Equal(t, []string{"ncal Z", "ncal Y", "ncal X", "nrm X", "nrm Y", "ncal Z", "nrm Z"}, primitives)
	assert.GreaterOrEqual(t, clearance, 0, "missing probe card clearance move: %v", calls)
}

func TestTableWorker_EnableJoystick(t *testing.T) {
	fake := newFakeTable()
	tw := newTestTable(t, fake, nil)

	r, err := tw.EnableJoystick(true)
	require.NoError(t, err)
	enabled, err := r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, [2]int64{0, 25_000}, fake.limits[0])

	r, err = tw.EnableJoystick(false)
	require.NoError(t, err)
	enabled, err = r.GetTimeout(context.Background(), 10*time.Second).Unpack()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, [2]int64{0, 100_000}, fake.limits[0])
}
