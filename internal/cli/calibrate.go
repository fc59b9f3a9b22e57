package cli

import (
	"context"
	"os"
	"time"

	"github.com/hephy-dd/pqc/internal/logging"
)

// calibrateTimeout bounds the full calibration sequence. Every axis pass
// polls for up to three minutes.
const calibrateTimeout = 30 * time.Minute

// CalibrateOptions configures a table calibration.
type CalibrateOptions struct {
	TableDevice string
	TableBaud   int
	LogLevel    string
}

// Calibrate runs the full table calibration sequence and reports the
// resulting calibration state.
func Calibrate(ctx context.Context, opts CalibrateOptions) error {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)
	printer := NewPrinter(os.Stdout)

	tw := NewTableWorker(opts.TableDevice, opts.TableBaud, printer.hooks(), logger)
	tw.Start()
	tw.Enable()
	defer tw.Stop()

	r, err := tw.Calibrate()
	if err != nil {
		return err
	}
	caldone, err := r.GetTimeout(ctx, calibrateTimeout).Unpack()
	if err != nil {
		return err
	}
	printer.Printf("Calibration state: x=%d y=%d z=%d (valid: %t)", caldone.X, caldone.Y, caldone.Z, caldone.Valid())
	return nil
}
