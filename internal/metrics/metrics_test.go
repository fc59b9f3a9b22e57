package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
)

func TestHooksFeedCollectors(t *testing.T) {
	m := New()
	hooks := m.Hooks()

	hooks.MeasurementFinished(domain.ResultRecord{State: domain.StateSuccess})
	hooks.MeasurementFinished(domain.ResultRecord{State: domain.StateSuccess})
	hooks.MeasurementFinished(domain.ResultRecord{State: domain.StateAnalysisError})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.measurementsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.measurementsTotal.WithLabelValues("analysis_error")))

	node := domain.NewNode(domain.KindContact, "PAD 1")
	hooks.StateChanged(node, domain.StateProcessing)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateTransitions.WithLabelValues("contact", "processing")))

	hooks.Position(domain.NewPosition(1, 2, 0.5))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tablePosition.WithLabelValues("x")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.tablePosition.WithLabelValues("z")))

	// Unassigned positions must not clobber the gauges.
	hooks.Position(domain.UnassignedPosition())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tablePosition.WithLabelValues("x")))

	hooks.CaldoneChanged(domain.Caldone{X: 3, Y: 3, Z: 3})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tableCalibrated))
	hooks.CaldoneChanged(domain.Caldone{X: 3, Y: 1, Z: 3})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.tableCalibrated))

	hooks.ClimateChanged(domain.Climate{ChuckTemperature: 21.5, BoxHumidity: 42})
	assert.Equal(t, 21.5, testutil.ToFloat64(m.chuckTemperature))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.boxHumidity))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Hooks().MeasurementFinished(domain.ResultRecord{State: domain.StateSuccess})

	assert.Equal(t, 1.0, testutil.ToFloat64(a.measurementsTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.measurementsTotal.WithLabelValues("success")))

	count, err := testutil.GatherAndCount(a.Registry())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}
