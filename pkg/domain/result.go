package domain

import "time"

// Point is a single (x, y) sample of a measurement series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SeriesUnit names the physical units of a series' two components.
type SeriesUnit struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// MeasurementResult is the full data payload of one measurement run:
// metadata, time series and analysis output. It is produced by the
// measurement lifecycle runner, attached to the measurement node and handed
// to result sinks for serialization. The core itself performs no file I/O.
type MeasurementResult struct {
	Meta        map[string]any             `json:"meta"`
	SeriesUnits map[string]SeriesUnit      `json:"series_units"`
	Series      map[string][]Point         `json:"series"`
	Analysis    map[string]map[string]any  `json:"analysis"`
}

// NewMeasurementResult returns an empty result payload.
func NewMeasurementResult() *MeasurementResult {
	return &MeasurementResult{
		Meta:        make(map[string]any),
		SeriesUnits: make(map[string]SeriesUnit),
		Series:      make(map[string][]Point),
		Analysis:    make(map[string]map[string]any),
	}
}

// ResultRecord is the structured record emitted once per measurement
// completion, regardless of terminal state.
type ResultRecord struct {
	Timestamp       time.Time          `json:"timestamp"`
	SampleName      string             `json:"sample_name"`
	SampleType      string             `json:"sample_type"`
	ContactName     string             `json:"contact_name"`
	MeasurementName string             `json:"measurement_name"`
	State           NodeState          `json:"state"`
	Data            *MeasurementResult `json:"data,omitempty"`
}
