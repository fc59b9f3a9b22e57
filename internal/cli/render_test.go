package cli

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
)

func newTestPrinter(buf *bytes.Buffer) *Printer {
	return &Printer{out: buf, profile: termenv.Ascii}
}

func TestPrinter_StatePlainOnAscii(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)

	assert.Equal(t, "success", p.State(domain.StateSuccess))
	assert.Equal(t, "error", p.State(domain.StateError))
	assert.Equal(t, "idle", p.State(domain.StateIdle))
}

func TestPrinter_StateColoredOnTrueColor(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf, profile: termenv.TrueColor}

	s := p.State(domain.StateSuccess)
	assert.Contains(t, s, "success")
	assert.NotEqual(t, "success", s)
}

func TestPrinter_HooksNarrateRun(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)
	hooks := p.hooks()

	hooks.Message("Initialize...")

	node := domain.NewNode(domain.KindMeasurement, "Diode IV")
	hooks.StateChanged(node, domain.StateProcessing)
	hooks.StateChanged(node, domain.StateSuccess)

	out := buf.String()
	require.Contains(t, out, "Initialize...")
	assert.NotContains(t, out, "processing")
	assert.Contains(t, out, "Diode IV")
	assert.Contains(t, out, "success")
}
