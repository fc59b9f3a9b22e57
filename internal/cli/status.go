package cli

import (
	"context"
	"os"

	"github.com/hephy-dd/pqc/internal/logging"
	"github.com/hephy-dd/pqc/pkg/domain"
)

// StatusOptions configures a table status query.
type StatusOptions struct {
	TableDevice string
	TableBaud   int
	LogLevel    string
}

// Status queries the table controller and prints its identification,
// position and calibration state.
func Status(ctx context.Context, opts StatusOptions) error {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)
	printer := NewPrinter(os.Stdout)

	tw := NewTableWorker(opts.TableDevice, opts.TableBaud, domain.LifecycleHooks{}, logger)
	tw.Start()
	tw.Enable()
	defer tw.Stop()

	idReq, err := tw.Identify()
	if err != nil {
		return err
	}
	id, err := idReq.Get(ctx).Unpack()
	if err != nil {
		return err
	}

	posReq, err := tw.Status()
	if err != nil {
		return err
	}
	pos, err := posReq.Get(ctx).Unpack()
	if err != nil {
		return err
	}
	caldone := tw.CachedCaldone()

	printer.Printf("Controller:  %s", id)
	printer.Printf("Position:    %s mm", pos)
	printer.Printf("Calibration: x=%d y=%d z=%d (valid: %t)", caldone.X, caldone.Y, caldone.Z, caldone.Valid())
	printer.Printf("State:       %s", tw.State())
	return nil
}
