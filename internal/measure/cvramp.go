package measure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// CVRamp ramps the bias V source while acquiring capacitance from the LCR
// meter at every step, recording C and 1/C² series.
type CVRamp struct {
	Base

	biasStart   float64
	biasStop    float64
	biasStep    float64
	waitingTime float64
	compliance  float64
	frequency   float64
	amplitude   float64
}

// NewCVRamp builds a cv_ramp measurement from a sequence node.
func NewCVRamp(node *domain.Node, env Env) (Measurement, error) {
	m := &CVRamp{Base: NewBase("cv_ramp", node, env)}
	params := m.Params()
	params.MustRegister(Parameter{Key: "bias_voltage_start", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "bias_voltage_stop", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "bias_voltage_step", Unit: "V", Required: true})
	params.MustRegister(Parameter{Key: "waiting_time", Default: 1.0, Unit: "s"})
	params.MustRegister(Parameter{Key: "vsrc_current_compliance", Unit: "A", Required: true})
	params.MustRegister(Parameter{Key: "lcr_frequency", Default: "1 kHz", Unit: "Hz"})
	params.MustRegister(Parameter{Key: "lcr_amplitude", Default: "250 mV", Unit: "V"})
	return m, nil
}

// RequiredInstruments implements Measurement.
func (m *CVRamp) RequiredInstruments() []string { return []string{KeyLCR, KeyVSource} }

// Initialize configures the LCR test signal and brings the bias source to
// the start voltage.
func (m *CVRamp) Initialize(ctx context.Context, caps Capabilities) error {
	params := m.Params()
	if err := params.Validate(); err != nil {
		return err
	}
	var err error
	if m.biasStart, err = params.Float("bias_voltage_start"); err != nil {
		return err
	}
	if m.biasStop, err = params.Float("bias_voltage_stop"); err != nil {
		return err
	}
	if m.biasStep, err = params.Float("bias_voltage_step"); err != nil {
		return err
	}
	if m.waitingTime, err = params.Seconds("waiting_time"); err != nil {
		return err
	}
	if m.compliance, err = params.Float("vsrc_current_compliance"); err != nil {
		return err
	}
	if m.frequency, err = params.Float("lcr_frequency"); err != nil {
		return err
	}
	if m.amplitude, err = params.Float("lcr_amplitude"); err != nil {
		return err
	}

	data := m.Data()
	data.SetMeta("bias_voltage_start", fmt.Sprintf("%G V", m.biasStart))
	data.SetMeta("bias_voltage_stop", fmt.Sprintf("%G V", m.biasStop))
	data.SetMeta("bias_voltage_step", fmt.Sprintf("%G V", m.biasStep))
	data.SetMeta("lcr_frequency", fmt.Sprintf("%G Hz", m.frequency))
	data.SetMeta("lcr_amplitude", fmt.Sprintf("%G V", m.amplitude))
	if err := data.RegisterSeries("cv", domain.SeriesUnit{X: "V", Y: "F"}); err != nil {
		return err
	}
	if err := data.RegisterSeries("cv2", domain.SeriesUnit{X: "V", Y: "1/F^2"}); err != nil {
		return err
	}

	lcr, vsrc := caps.LCR, caps.VSource
	if err := lcr.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := lcr.SetFrequency(ctx, m.frequency); err != nil {
		return err
	}
	if err := lcr.SetAmplitude(ctx, m.amplitude); err != nil {
		return err
	}
	if err := vsrc.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	if err := vsrc.SetCurrentCompliance(ctx, m.compliance); err != nil {
		return err
	}
	if err := vsrc.SetOutputEnabled(ctx, true); err != nil {
		return err
	}
	return m.rampBias(ctx, caps, 0, m.biasStart)
}

// Measure ramps the bias and acquires one capacitance reading per step.
func (m *CVRamp) Measure(ctx context.Context, caps Capabilities) error {
	lcr := caps.LCR
	for _, level := range rampValues(m.biasStart, m.biasStop, m.biasStep) {
		if m.Env().Stop() {
			return domain.ErrStopRequested
		}
		if err := caps.VSource.SetVoltage(ctx, level); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := m.Wait(m.waitingTime); err != nil {
			return err
		}
		tripped, err := caps.VSource.ComplianceTripped(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if tripped {
			return fmt.Errorf("%w: vsrc at %G V", domain.ErrCompliance, level)
		}
		capacitance, _, err := lcr.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := m.Data().Append("cv", domain.Point{X: level, Y: capacitance}); err != nil {
			return err
		}
		inv := math.NaN()
		if capacitance != 0 {
			inv = 1 / (capacitance * capacitance)
		}
		if err := m.Data().Append("cv2", domain.Point{X: level, Y: inv}); err != nil {
			return err
		}
	}
	return nil
}

// Finalize ramps the bias back to zero and switches the output off.
func (m *CVRamp) Finalize(ctx context.Context, caps Capabilities) error {
	vsrc := caps.VSource
	voltage, err := vsrc.Voltage(ctx)
	if err == nil {
		for _, level := range rampValues(voltage, 0, math.Max(m.biasStep, 1.0)) {
			if err := vsrc.SetVoltage(ctx, level); err != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return vsrc.SetOutputEnabled(ctx, false)
}

// Analyze validates the acquired CV curve.
func (m *CVRamp) Analyze(ctx context.Context, caps Capabilities) error {
	points := m.Data().Series("cv")
	if len(points) < 2 {
		return fmt.Errorf("%w: insufficient points (%d)", domain.ErrAnalysis, len(points))
	}
	var sum float64
	for _, p := range points {
		if math.IsNaN(p.Y) || p.Y <= 0 {
			return fmt.Errorf("%w: non-physical capacitance at %G V", domain.ErrAnalysis, p.X)
		}
		sum += p.Y
	}
	m.Data().SetAnalysis("cv", map[string]any{
		"mean_capacitance": sum / float64(len(points)),
		"points":           len(points),
	})
	return nil
}

func (m *CVRamp) rampBias(ctx context.Context, caps Capabilities, start, stop float64) error {
	for _, level := range rampValues(start, stop, m.biasStep) {
		if m.Env().Stop() {
			return domain.ErrStopRequested
		}
		if err := caps.VSource.SetVoltage(ctx, level); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrResource, err)
		}
		if err := m.Wait(m.waitingTime); err != nil {
			return err
		}
	}
	return nil
}
