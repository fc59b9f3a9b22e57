package ports

import "github.com/hephy-dd/pqc/pkg/domain"

// Axis indexes the three table axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	}
	return "?"
}

// TableLimits are the per-axis travel limits in device units, [min, max].
type TableLimits [3][2]int64

// TableDriver is the protocol driver for the XYZ table controller,
// constructed over an open resource by the table worker. All coordinates
// are device units (micrometer-scaled integers); unit conversion to
// millimeters happens in the worker, not here.
//
// The driver is not safe for concurrent use. Exactly one worker goroutine
// owns it at any time.
type TableDriver interface {
	// Identify returns the controller identification string.
	Identify() (string, error)
	// Configure applies the initial controller setup (host mode, units).
	Configure() error
	// Pos reads the current position of all three axes.
	Pos() (x, y, z int64, err error)
	// MoveAbs commands an absolute move; returns without waiting.
	MoveAbs(x, y, z int64) error
	// MoveRel commands a relative move; returns without waiting.
	MoveRel(dx, dy, dz int64) error
	// Ncal starts the find-zero calibration primitive on one axis.
	Ncal(axis Axis) error
	// Nrm starts the find-maximum-range primitive on one axis.
	Nrm(axis Axis) error
	// Caldone reads the per-axis calibration status bits.
	Caldone() (domain.Caldone, error)
	// ErrorCode pops the controller's system error code, 0 when clear.
	ErrorCode() (int, error)
	// MachineErrorCode pops the controller's machine error code, 0 when clear.
	MachineErrorCode() (int, error)
	// Joystick reads the manual joystick enable state.
	Joystick() (bool, error)
	// SetJoystick switches manual joystick control on or off.
	SetJoystick(enabled bool) error
	// SetLimits programs the soft travel limits.
	SetLimits(limits TableLimits) error
}
