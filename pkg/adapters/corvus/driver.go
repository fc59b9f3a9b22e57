// Package corvus implements the table controller protocol driver for
// Corvus-style controllers speaking the Venus-1 line protocol. Commands are
// postfix ("<args> <verb>"), queries answer with a single line. Positions
// travel in device units (micrometer-scaled integers).
package corvus

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// axis numbers of the Venus-1 protocol.
var axisNumber = map[ports.Axis]int{
	ports.AxisX: 1,
	ports.AxisY: 2,
	ports.AxisZ: 3,
}

// Driver talks Venus-1 over an open transport. It is not safe for
// concurrent use; exactly one worker goroutine owns it.
type Driver struct {
	w io.Writer
	r *bufio.Reader
}

var _ ports.TableDriver = (*Driver)(nil)

// New wraps an open transport.
func New(rwc io.ReadWriteCloser) *Driver {
	return &Driver{w: rwc, r: bufio.NewReader(rwc)}
}

// Factory adapts New to the worker's driver factory signature.
func Factory(rwc io.ReadWriteCloser) (ports.TableDriver, error) {
	return New(rwc), nil
}

func (d *Driver) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(d.w, format+"\n", args...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return nil
}

func (d *Driver) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return strings.TrimSpace(line), nil
}

func (d *Driver) query(format string, args ...any) (string, error) {
	if err := d.write(format, args...); err != nil {
		return "", err
	}
	return d.readLine()
}

func (d *Driver) queryInt(format string, args ...any) (int, error) {
	line, err := d.query(format, args...)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("unexpected controller response %q", line)
	}
	return v, nil
}

// Identify implements ports.TableDriver.
func (d *Driver) Identify() (string, error) {
	return d.query("identify")
}

// Configure switches the controller to three-axis micrometer units.
func (d *Driver) Configure() error {
	if err := d.write("3 setdim"); err != nil {
		return err
	}
	// unit 1 = micrometer, per axis (0 addresses all axes).
	return d.write("1 0 setunit")
}

// Pos implements ports.TableDriver.
func (d *Driver) Pos() (x, y, z int64, err error) {
	line, err := d.query("pos")
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("unexpected position response %q", line)
	}
	var out [3]int64
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("unexpected position response %q", line)
		}
		out[i] = int64(v)
	}
	return out[0], out[1], out[2], nil
}

// MoveAbs implements ports.TableDriver.
func (d *Driver) MoveAbs(x, y, z int64) error {
	return d.write("%d %d %d move", x, y, z)
}

// MoveRel implements ports.TableDriver.
func (d *Driver) MoveRel(dx, dy, dz int64) error {
	return d.write("%d %d %d rmove", dx, dy, dz)
}

// Ncal implements ports.TableDriver.
func (d *Driver) Ncal(axis ports.Axis) error {
	return d.write("%d ncal", axisNumber[axis])
}

// Nrm implements ports.TableDriver.
func (d *Driver) Nrm(axis ports.Axis) error {
	return d.write("%d nrm", axisNumber[axis])
}

// Caldone implements ports.TableDriver.
func (d *Driver) Caldone() (domain.Caldone, error) {
	var caldone domain.Caldone
	for _, axis := range []struct {
		axis   ports.Axis
		target *int
	}{
		{ports.AxisX, &caldone.X},
		{ports.AxisY, &caldone.Y},
		{ports.AxisZ, &caldone.Z},
	} {
		v, err := d.queryInt("%d getcaldone", axisNumber[axis.axis])
		if err != nil {
			return domain.Caldone{}, err
		}
		*axis.target = v
	}
	return caldone, nil
}

// ErrorCode implements ports.TableDriver.
func (d *Driver) ErrorCode() (int, error) {
	return d.queryInt("geterror")
}

// MachineErrorCode implements ports.TableDriver.
func (d *Driver) MachineErrorCode() (int, error) {
	return d.queryInt("getmerror")
}

// Joystick implements ports.TableDriver.
func (d *Driver) Joystick() (bool, error) {
	v, err := d.queryInt("getjoystick")
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// SetJoystick implements ports.TableDriver.
func (d *Driver) SetJoystick(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return d.write("%d joystick", v)
}

// SetLimits implements ports.TableDriver.
func (d *Driver) SetLimits(limits ports.TableLimits) error {
	return d.write("%d %d %d %d %d %d setlimit",
		limits[0][0], limits[1][0], limits[2][0],
		limits[0][1], limits[1][1], limits[2][1])
}
