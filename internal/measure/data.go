package measure

import (
	"fmt"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// Data accumulates the result payload of one measurement run: metadata,
// named time series and analysis output. Series must be registered before
// points are appended, which catches column typos early.
type Data struct {
	result *domain.MeasurementResult
}

// NewData returns an empty payload.
func NewData() *Data {
	return &Data{result: domain.NewMeasurementResult()}
}

// SetMeta records one metadata entry.
func (d *Data) SetMeta(key string, value any) {
	d.result.Meta[key] = value
}

// RegisterSeries declares a named series with its component units.
func (d *Data) RegisterSeries(key string, unit domain.SeriesUnit) error {
	if _, ok := d.result.Series[key]; ok {
		return fmt.Errorf("series already exists: %s", key)
	}
	d.result.Series[key] = []domain.Point{}
	d.result.SeriesUnits[key] = unit
	return nil
}

// Append adds a point to a registered series.
func (d *Data) Append(key string, p domain.Point) error {
	if _, ok := d.result.Series[key]; !ok {
		return fmt.Errorf("no such series: %s", key)
	}
	d.result.Series[key] = append(d.result.Series[key], p)
	return nil
}

// Series returns the points of a series, nil when absent.
func (d *Data) Series(key string) []domain.Point {
	return d.result.Series[key]
}

// SetAnalysis records the analysis output of one named check.
func (d *Data) SetAnalysis(key string, values map[string]any) {
	d.result.Analysis[key] = values
}

// Result returns the accumulated payload.
func (d *Data) Result() *domain.MeasurementResult {
	return d.result
}
