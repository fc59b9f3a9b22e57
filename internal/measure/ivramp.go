package measure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// IVRamp ramps the HV source from a start to a stop voltage, sampling the
// source current at every step. In case of compliance, stop requests or
// errors the finalize stage ramps back to zero before the output is
// switched off.
type IVRamp struct {
	Base

	voltageStart float64
	voltageStop  float64
	voltageStep  float64
	waitingTime  float64
	compliance   float64
}

// NewIVRamp builds an iv_ramp measurement from a sequence node.
func NewIVRamp(node *domain.Node, env Env) (Measurement, error) {
	m := &IVRamp{Base: NewBase("iv_ramp", node, env)}
	params := m.Params()
	params.MustRegister(Parameter{Key: "voltage_start", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "voltage_stop", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "voltage_step", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "waiting_time", Default: 1.0, Unit: "s"})
	params.MustRegister(Parameter{Key: "hvsrc_current_compliance", Unit: "A", Required: true})
	return m, nil
}

// RequiredInstruments implements Measurement.
func (m *IVRamp) RequiredInstruments() []string { return []string{KeyHVSource} }

// Initialize resets the source, applies compliance and ramps to the start
// voltage.
func (m *IVRamp) Initialize(ctx context.Context, caps Capabilities) error {
	params := m.Params()
	if err := params.Validate(); err != nil {
		return err
	}
	var err error
	if m.voltageStart, err = params.Float("voltage_start"); err != nil {
		return err
	}
	if m.voltageStop, err = params.Float("voltage_stop"); err != nil {
		return err
	}
	if m.voltageStep, err = params.Float("voltage_step"); err != nil {
		return err
	}
	if m.waitingTime, err = params.Seconds("waiting_time"); err != nil {
		return err
	}
	if m.compliance, err = params.Float("hvsrc_current_compliance"); err != nil {
		return err
	}

	data := m.Data()
	data.SetMeta("voltage_start", fmt.Sprintf("%G V", m.voltageStart))
	data.SetMeta("voltage_stop", fmt.Sprintf("%G V", m.voltageStop))
	data.SetMeta("voltage_step", fmt.Sprintf("%G V", m.voltageStep))
	data.SetMeta("waiting_time", fmt.Sprintf("%G s", m.waitingTime))
	data.SetMeta("hvsrc_current_compliance", fmt.Sprintf("%G A", m.compliance))
	if err := data.RegisterSeries("iv", domain.SeriesUnit{X: "V", Y: "A"}); err != nil {
		return err
	}

	hvsrc := caps.HVSource
	if err := hvsrc.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := hvsrc.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if entry, ok, err := hvsrc.NextError(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	} else if ok {
		return fmt.Errorf("hvsrc error %d: %s", entry.Code, entry.Message)
	}
	if err := hvsrc.SetCurrentCompliance(ctx, m.compliance); err != nil {
		return err
	}
	if err := hvsrc.SetOutputEnabled(ctx, true); err != nil {
		return err
	}
	// Ramp to the start voltage before the measurement ramp begins.
	return m.ramp(ctx, caps, 0, m.voltageStart, nil)
}

// Measure ramps to the stop voltage, recording one (voltage, current)
// point per step.
func (m *IVRamp) Measure(ctx context.Context, caps Capabilities) error {
	return m.ramp(ctx, caps, m.voltageStart, m.voltageStop, func(voltage, current float64) error {
		return m.Data().Append("iv", domain.Point{X: voltage, Y: current})
	})
}

// Finalize ramps back to zero and switches the output off. Runs on every
// exit path.
func (m *IVRamp) Finalize(ctx context.Context, caps Capabilities) error {
	hvsrc := caps.HVSource
	voltage, err := hvsrc.Voltage(ctx)
	if err == nil {
		for _, level := range rampValues(voltage, 0, math.Max(m.voltageStep, 1.0)) {
			if err := hvsrc.SetVoltage(ctx, level); err != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return hvsrc.SetOutputEnabled(ctx, false)
}

// Analyze fits a line through the IV series and validates the result.
func (m *IVRamp) Analyze(ctx context.Context, caps Capabilities) error {
	points := m.Data().Series("iv")
	if len(points) < 2 {
		return fmt.Errorf("%w: insufficient points (%d)", domain.ErrAnalysis, len(points))
	}
	slope, offset, ok := linearFit(points)
	if !ok || math.IsNaN(slope) {
		return fmt.Errorf("%w: degenerate iv fit", domain.ErrAnalysis)
	}
	resistance := math.Inf(1)
	if slope != 0 {
		resistance = 1 / slope
	}
	m.Data().SetAnalysis("iv", map[string]any{
		"slope":      slope,
		"offset":     offset,
		"resistance": resistance,
	})
	return nil
}

// ramp steps the source voltage linearly, waiting and checking compliance
// and stop requests at every level.
func (m *IVRamp) ramp(ctx context.Context, caps Capabilities, start, stop float64, sample func(voltage, current float64) error) error {
	hvsrc := caps.HVSource
	for _, level := range rampValues(start, stop, m.voltageStep) {
		if m.Env().Stop() {
			return domain.ErrStopRequested
		}
		m.Env().Hooks.Message(fmt.Sprintf("Ramp... %G V", level))
		if err := hvsrc.SetVoltage(ctx, level); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := m.Wait(m.waitingTime); err != nil {
			return err
		}
		tripped, err := hvsrc.ComplianceTripped(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if tripped {
			return fmt.Errorf("%w: hvsrc at %G V", domain.ErrCompliance, level)
		}
		if sample != nil {
			current, err := hvsrc.ReadCurrent(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrResource, err)
			}
			if err := sample(level, current); err != nil {
				return err
			}
		}
	}
	return nil
}

// linearFit computes a least-squares line through the points.
func linearFit(points []domain.Point) (slope, offset float64, ok bool) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0, false
	}
	var sx, sy, sxx, sxy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
		sxx += p.X * p.X
		sxy += p.X * p.Y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, 0, false
	}
	slope = (n*sxy - sx*sy) / den
	offset = (sy - slope*sx) / n
	return slope, offset, true
}
