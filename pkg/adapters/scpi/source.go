package scpi

import (
	"context"
	"fmt"
	"io"

	"github.com/hephy-dd/pqc/pkg/ports"
)

// Source is a SCPI source-measure unit channel (Keithley 24xx command
// set). It implements ports.SourceChannel.
type Source struct {
	conn *Conn
}

var _ ports.SourceChannel = (*Source)(nil)

// NewSource wraps an open transport.
func NewSource(rwc io.ReadWriteCloser) *Source {
	return &Source{conn: NewConn(rwc)}
}

// Identify implements ports.Instrument.
func (s *Source) Identify(context.Context) (string, error) {
	return s.conn.Query("*IDN?")
}

// Reset restores the power-on configuration, waits for completion and
// re-applies the reading format (a reset reverts it to the full element
// list).
func (s *Source) Reset(context.Context) error {
	if err := s.conn.Write("*RST"); err != nil {
		return err
	}
	if _, err := s.conn.Query("*OPC?"); err != nil {
		return err
	}
	return s.conn.Write(":FORM:ELEM CURR")
}

// Clear implements ports.Instrument.
func (s *Source) Clear(context.Context) error {
	return s.conn.Write("*CLS")
}

// NextError pops the next queued error. Code 0 means the queue is empty.
func (s *Source) NextError(context.Context) (ports.InstrumentError, bool, error) {
	line, err := s.conn.Query(":SYST:ERR?")
	if err != nil {
		return ports.InstrumentError{}, false, err
	}
	entry, err := parseSystemError(line)
	if err != nil {
		return ports.InstrumentError{}, false, err
	}
	return entry, entry.Code != 0, nil
}

// SetOutputEnabled implements ports.SourceChannel.
func (s *Source) SetOutputEnabled(_ context.Context, enabled bool) error {
	state := "OFF"
	if enabled {
		state = "ON"
	}
	return s.conn.Write(":OUTP:STAT " + state)
}

// OutputEnabled implements ports.SourceChannel.
func (s *Source) OutputEnabled(context.Context) (bool, error) {
	return s.conn.QueryBool(":OUTP:STAT?")
}

// SetVoltage implements ports.SourceChannel.
func (s *Source) SetVoltage(_ context.Context, level float64) error {
	return s.conn.Write(fmt.Sprintf(":SOUR:VOLT:LEV %G", level))
}

// Voltage implements ports.SourceChannel.
func (s *Source) Voltage(context.Context) (float64, error) {
	return s.conn.QueryFloat(":SOUR:VOLT:LEV?")
}

// SetCurrentCompliance implements ports.SourceChannel.
func (s *Source) SetCurrentCompliance(_ context.Context, limit float64) error {
	return s.conn.Write(fmt.Sprintf(":SENS:CURR:PROT:LEV %G", limit))
}

// ComplianceTripped implements ports.SourceChannel.
func (s *Source) ComplianceTripped(context.Context) (bool, error) {
	return s.conn.QueryBool(":SENS:CURR:PROT:TRIP?")
}

// ReadCurrent triggers a reading and returns the current element.
func (s *Source) ReadCurrent(context.Context) (float64, error) {
	return s.conn.QueryFloat(":READ?")
}
