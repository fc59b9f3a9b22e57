package ports

import (
	"context"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// InstrumentError is one entry of an instrument's error queue.
type InstrumentError struct {
	Code    int
	Message string
}

// Instrument is the minimal surface every SCPI instrument exposes.
type Instrument interface {
	// Identify returns the instrument identification string.
	Identify(ctx context.Context) (string, error)
	// Reset restores the power-on configuration.
	Reset(ctx context.Context) error
	// Clear clears the status and error registers.
	Clear(ctx context.Context) error
	// NextError pops the next queued error, or ok=false when empty.
	NextError(ctx context.Context) (entry InstrumentError, ok bool, err error)
}

// SourceChannel is a voltage source with a current protection limit,
// covering both the HV source and the bias V source.
type SourceChannel interface {
	Instrument
	SetOutputEnabled(ctx context.Context, enabled bool) error
	OutputEnabled(ctx context.Context) (bool, error)
	SetVoltage(ctx context.Context, level float64) error
	Voltage(ctx context.Context) (float64, error)
	SetCurrentCompliance(ctx context.Context, limit float64) error
	ComplianceTripped(ctx context.Context) (bool, error)
	ReadCurrent(ctx context.Context) (float64, error)
}

// LCRMeter measures capacitance/impedance at a configurable test signal.
type LCRMeter interface {
	Instrument
	SetFrequency(ctx context.Context, hz float64) error
	SetAmplitude(ctx context.Context, volts float64) error
	Acquire(ctx context.Context) (primary, secondary float64, err error)
}

// Electrometer reads small currents.
type Electrometer interface {
	Instrument
	ReadCurrent(ctx context.Context) (float64, error)
}

// SwitchingMatrix routes probe card channels to instruments.
type SwitchingMatrix interface {
	Instrument
	CloseChannels(ctx context.Context, channels []string) error
	OpenAllChannels(ctx context.Context) error
	ClosedChannels(ctx context.Context) ([]string, error)
}

// EnvironmentBox controls the climate enclosure around the probe station.
type EnvironmentBox interface {
	SetTestLED(ctx context.Context, on bool) error
	SetBoxLight(ctx context.Context, on bool) error
	DischargeDecoupling(ctx context.Context) error
	ReadClimate(ctx context.Context) (domain.Climate, error)
}
