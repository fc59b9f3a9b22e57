package scpi

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// fakeLink records written commands and serves preloaded responses.
type fakeLink struct {
	sent bytes.Buffer
	resp bytes.Buffer
}

func (l *fakeLink) Write(p []byte) (int, error) { return l.sent.Write(p) }
func (l *fakeLink) Read(p []byte) (int, error)  { return l.resp.Read(p) }
func (l *fakeLink) Close() error                { return nil }

func (l *fakeLink) respond(lines ...string) {
	for _, line := range lines {
		l.resp.WriteString(line + "\r\n")
	}
}

func (l *fakeLink) commands() []string {
	s := strings.TrimSpace(l.sent.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestSource_Identify(t *testing.T) {
	link := &fakeLink{}
	link.respond("KEITHLEY INSTRUMENTS INC.,MODEL 2410,1234567,C33")
	src := NewSource(link)

	id, err := src.Identify(context.Background())
	require.NoError(t, err)
	assert.Contains(t, id, "MODEL 2410")
	assert.Equal(t, []string{"*IDN?"}, link.commands())
}

func TestSource_Reset(t *testing.T) {
	link := &fakeLink{}
	link.respond("1")
	src := NewSource(link)

	require.NoError(t, src.Reset(context.Background()))
	assert.Equal(t, []string{"*RST", "*OPC?", ":FORM:ELEM CURR"}, link.commands())
}

func TestSource_NextError(t *testing.T) {
	link := &fakeLink{}
	link.respond(`-221,"Settings conflict"`, `0,"No error"`)
	src := NewSource(link)

	ctx := context.Background()
	entry, ok, err := src.NextError(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -221, entry.Code)
	assert.Equal(t, "Settings conflict", entry.Message)

	_, ok, err = src.NextError(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSource_OutputControl(t *testing.T) {
	link := &fakeLink{}
	link.respond("1")
	src := NewSource(link)

	ctx := context.Background()
	require.NoError(t, src.SetOutputEnabled(ctx, true))
	on, err := src.OutputEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	require.NoError(t, src.SetOutputEnabled(ctx, false))

	assert.Equal(t, []string{":OUTP:STAT ON", ":OUTP:STAT?", ":OUTP:STAT OFF"}, link.commands())
}

func TestSource_SourceAndSense(t *testing.T) {
	link := &fakeLink{}
	link.respond("-1.000000E+01", "0", "-1.234567E-06")
	src := NewSource(link)

	ctx := context.Background()
	require.NoError(t, src.SetVoltage(ctx, -10))
	voltage, err := src.Voltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, -10.0, voltage)

	require.NoError(t, src.SetCurrentCompliance(ctx, 1e-6))
	tripped, err := src.ComplianceTripped(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)

	current, err := src.ReadCurrent(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -1.234567e-06, current, 1e-12)

	assert.Equal(t, []string{
		":SOUR:VOLT:LEV -10",
		":SOUR:VOLT:LEV?",
		":SENS:CURR:PROT:LEV 1E-06",
		":SENS:CURR:PROT:TRIP?",
		":READ?",
	}, link.commands())
}

func TestQueryFloat_FirstElement(t *testing.T) {
	link := &fakeLink{}
	link.respond("-1.234E-06,+2.000E+00")
	conn := NewConn(link)

	v, err := conn.QueryFloat(":READ?")
	require.NoError(t, err)
	assert.InDelta(t, -1.234e-06, v, 1e-12)
}

func TestQuery_EOFWrapsResourceError(t *testing.T) {
	link := &fakeLink{}
	conn := NewConn(link)

	_, err := conn.Query("*IDN?")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResource)
}

func TestParseSystemError_Malformed(t *testing.T) {
	_, err := parseSystemError("garbage")
	require.Error(t, err)
}
