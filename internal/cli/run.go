package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hephy-dd/pqc"
	"github.com/hephy-dd/pqc/internal/executor"
	"github.com/hephy-dd/pqc/internal/logging"
	"github.com/hephy-dd/pqc/internal/station"
	"github.com/hephy-dd/pqc/internal/worker"
	"github.com/hephy-dd/pqc/pkg/adapters/corvus"
	"github.com/hephy-dd/pqc/pkg/adapters/filesink"
	"github.com/hephy-dd/pqc/pkg/adapters/redisink"
	"github.com/hephy-dd/pqc/pkg/adapters/scpi"
	"github.com/hephy-dd/pqc/pkg/adapters/serial"
	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Soft travel limits in millimeters. Joystick limits keep manual motion
// away from the probe card; program limits cover the full table range.
var (
	joystickLimits  = [3]float64{10, 10, 10}
	probecardLimits = [3]float64{1000, 1000, 25}
)

// RunOptions configures a headless sequence run.
type RunOptions struct {
	SequencePath string
	LogLevel     string

	// Instrument addresses (host:port). Empty disables the instrument.
	HVSourceAddr string
	VSourceAddr  string

	// Table transport. An empty device runs without table moves.
	TableDevice string
	TableBaud   int

	// Result sinks.
	OutputPath string
	RedisAddr  string

	// Monitoring HTTP listen address. Empty disables the server.
	MonitorAddr string

	// Run configuration.
	RetryContactCount     int
	RetryMeasurementCount int
	NoMove                bool
	ContactDelay          float64
	MoveToAfterPosition   []float64
}

// lazyTable defers the controller so the table worker can be built after
// the engine, with the engine's merged hooks receiving the worker's
// position and calibration snapshots.
type lazyTable struct {
	inner executor.TableController
}

func (t *lazyTable) SafeAbsoluteMove(ctx context.Context, x, y, z float64) (domain.Position, error) {
	if t.inner == nil {
		return domain.UnassignedPosition(), fmt.Errorf("table not connected")
	}
	return t.inner.SafeAbsoluteMove(ctx, x, y, z)
}

// Run executes one sequence headlessly and returns once it finished.
func Run(ctx context.Context, opts RunOptions) error {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)
	printer := NewPrinter(os.Stdout)

	var stationOpts []station.Option
	hvsrc, err := dialSource(ctx, opts.HVSourceAddr)
	if err != nil {
		return fmt.Errorf("connecting hvsrc: %w", err)
	}
	if hvsrc != nil {
		stationOpts = append(stationOpts, station.WithHVSource(hvsrc))
	}
	vsrc, err := dialSource(ctx, opts.VSourceAddr)
	if err != nil {
		return fmt.Errorf("connecting vsrc: %w", err)
	}
	if vsrc != nil {
		stationOpts = append(stationOpts, station.WithVSource(vsrc))
	}
	st := station.New(append(stationOpts, station.WithLogger(logger))...)

	var sinks []ports.ResultSink
	if opts.OutputPath != "" {
		sink, err := filesink.Open(opts.OutputPath)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if opts.RedisAddr != "" {
		sinks = append(sinks, redisink.New(opts.RedisAddr, "", 0))
	}

	cfg := executor.DefaultConfig()
	cfg.RetryContactCount = opts.RetryContactCount
	cfg.RetryMeasurementCount = opts.RetryMeasurementCount
	cfg.MoveToContact = !opts.NoMove && opts.TableDevice != ""
	if opts.ContactDelay > 0 {
		cfg.ContactDelay = opts.ContactDelay
	}
	cfg.MoveToAfterPosition = opts.MoveToAfterPosition

	engineOpts := []pqc.Option{
		pqc.WithRunConfig(cfg),
		pqc.WithRecoveryInstruments(hvsrc, vsrc, nil),
		pqc.WithSinks(sinks...),
		pqc.WithLifecycleHooks(printer.hooks()),
		pqc.WithLogger(logger),
	}
	table := &lazyTable{}
	if opts.TableDevice != "" {
		engineOpts = append(engineOpts, pqc.WithTable(table))
	}

	eng, err := pqc.New(st, engineOpts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	if opts.TableDevice != "" {
		tw := NewTableWorker(opts.TableDevice, opts.TableBaud, eng.Hooks(), logger)
		table.inner = executor.NewTableController(tw)
		tw.Start()
		tw.Enable()
		defer tw.Stop()
	}

	if opts.MonitorAddr != "" {
		shutdown := serveMonitor(opts.MonitorAddr, eng.MonitorHandler(), printer)
		defer shutdown()
	}

	// First interrupt requests a cooperative stop, a second one kills the
	// process.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		<-signals
		printer.Printf("Stop requested, finishing current step...")
		eng.RequestStop()
		<-signals
		os.Exit(1)
	}()

	tree, err := eng.LoadSequenceFile(ctx, opts.SequencePath)
	if err != nil {
		return err
	}

	state, err := eng.Run(ctx, tree)
	printer.Printf("")
	printer.Printf("Sequence finished: %s", printer.State(state))
	return err
}

// dialSource connects a SCPI source channel, or returns nil for an empty
// address.
func dialSource(ctx context.Context, address string) (ports.SourceChannel, error) {
	if address == "" {
		return nil, nil
	}
	rwc, err := scpi.NewTCPOpener(address).Open(ctx)
	if err != nil {
		return nil, err
	}
	return scpi.NewSource(rwc), nil
}

// NewTableWorker wires the Corvus table controller over its serial
// transport.
func NewTableWorker(device string, baud int, hooks domain.LifecycleHooks, logger *slog.Logger) *worker.TableWorker {
	var serialOpts []serial.Option
	if baud > 0 {
		serialOpts = append(serialOpts, serial.WithBaudRate(baud))
	}
	opener := serial.NewOpener(device, serialOpts...)
	return worker.NewTable(opener, corvus.Factory, worker.TableOptions{
		JoystickLimits:  joystickLimits,
		ProbecardLimits: probecardLimits,
	}, hooks, logger)
}

// serveMonitor starts the monitoring HTTP server and returns its shutdown
// function.
func serveMonitor(addr string, handler http.Handler, printer *Printer) func() {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		printer.Printf("Monitoring on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printer.Printf("Monitoring server error: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
