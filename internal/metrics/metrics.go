// Package metrics exposes the run's observability counters. Collectors are
// fed through lifecycle hooks, so the executor and workers stay unaware of
// the metrics layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// Metrics holds the Prometheus collectors of one engine instance. Each
// instance owns its registry, so tests never collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	measurementsTotal *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	tablePosition     *prometheus.GaugeVec
	tableCalibrated   prometheus.Gauge
	chuckTemperature  prometheus.Gauge
	boxTemperature    prometheus.Gauge
	boxHumidity       prometheus.Gauge
}

// New builds and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		measurementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqc_measurements_total",
				Help: "Total number of completed measurements by terminal state",
			},
			[]string{"state"},
		),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqc_node_state_transitions_total",
				Help: "Total number of sequence node state transitions",
			},
			[]string{"kind", "state"},
		),
		tablePosition: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pqc_table_position_millimeters",
				Help: "Last published table position per axis",
			},
			[]string{"axis"},
		),
		tableCalibrated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pqc_table_calibrated",
			Help: "Whether the table reports a valid calibration (0 or 1)",
		}),
		chuckTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pqc_chuck_temperature_celsius",
			Help: "Last published chuck temperature",
		}),
		boxTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pqc_box_temperature_celsius",
			Help: "Last published box temperature",
		}),
		boxHumidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pqc_box_humidity_percent",
			Help: "Last published box relative humidity",
		}),
	}
	m.registry.MustRegister(
		m.measurementsTotal,
		m.stateTransitions,
		m.tablePosition,
		m.tableCalibrated,
		m.chuckTemperature,
		m.boxTemperature,
		m.boxHumidity,
	)
	return m
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the collectors. Merge them into
// the engine's hook chain.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMeasurementFinished: func(record domain.ResultRecord) {
			m.measurementsTotal.WithLabelValues(string(record.State)).Inc()
		},
		OnStateChanged: func(node *domain.Node, state domain.NodeState) {
			m.stateTransitions.WithLabelValues(string(node.Kind), string(state)).Inc()
		},
		OnPosition: func(pos domain.Position) {
			if !pos.IsValid() {
				return
			}
			m.tablePosition.WithLabelValues("x").Set(pos.X)
			m.tablePosition.WithLabelValues("y").Set(pos.Y)
			m.tablePosition.WithLabelValues("z").Set(pos.Z)
		},
		OnCaldone: func(caldone domain.Caldone) {
			if caldone.Valid() {
				m.tableCalibrated.Set(1)
			} else {
				m.tableCalibrated.Set(0)
			}
		},
		OnClimate: func(climate domain.Climate) {
			m.chuckTemperature.Set(climate.ChuckTemperature)
			m.boxTemperature.Set(climate.BoxTemperature)
			m.boxHumidity.Set(climate.BoxHumidity)
		},
	}
}
