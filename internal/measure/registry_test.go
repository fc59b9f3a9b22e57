package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in   string
		unit string
		want float64
	}{
		{"250 mV", "V", 0.25},
		{"250mV", "V", 0.25},
		{"10 uA", "A", 1e-5},
		{"1 kHz", "Hz", 1000},
		{"1.5 MHz", "Hz", 1.5e6},
		{"-100 V", "V", -100},
		{"4.7 pF", "F", 4.7e-12},
		{"42", "V", 42},
		{"  5 V ", "V", 5},
	}
	for _, tc := range cases {
		got, err := parseQuantity(tc.in, tc.unit)
		require.NoError(t, err, tc.in)
		assert.InEpsilon(t, tc.want, got, 1e-12, tc.in)
	}
}

func TestParseQuantity_ZeroValue(t *testing.T) {
	got, err := parseQuantity("0 V", "V")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestParseQuantity_Invalid(t *testing.T) {
	for _, in := range []string{"", "volts", "1 xV", "1 A"} {
		_, err := parseQuantity(in, "V")
		assert.Error(t, err, in)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(
		map[string]any{"voltage": "10 V", "count": 3},
		map[string]any{"waiting_time": 0.5},
	)
	r.MustRegister(Parameter{Key: "voltage", Unit: "V", Required: true})
	r.MustRegister(Parameter{Key: "count"})
	r.MustRegister(Parameter{Key: "waiting_time", Default: 1.0, Unit: "s"})
	r.MustRegister(Parameter{Key: "mode", Default: "auto", Values: []string{"auto", "manual"}})

	require.NoError(t, r.Validate())

	v, err := r.Float("voltage")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	n, err := r.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Node-level defaults win over the declared fallback.
	w, err := r.Seconds("waiting_time")
	require.NoError(t, err)
	assert.Equal(t, 0.5, w)

	mode, err := r.String("mode")
	require.NoError(t, err)
	assert.Equal(t, "auto", mode)
}

func TestRegistry_MissingRequired(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.MustRegister(Parameter{Key: "voltage", Unit: "V", Required: true})

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voltage")

	_, err = r.Float("voltage")
	require.Error(t, err)
}

func TestRegistry_UndeclaredKey(t *testing.T) {
	r := NewRegistry(map[string]any{"voltage": 1.0}, nil)
	_, err := r.Float("voltage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such parameter")
}

func TestRegistry_InvalidEnumValue(t *testing.T) {
	r := NewRegistry(map[string]any{"mode": "turbo"}, nil)
	r.MustRegister(Parameter{Key: "mode", Values: []string{"auto", "manual"}})
	_, err := r.String("mode")
	require.Error(t, err)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry(nil, nil)
	require.NoError(t, r.Register(Parameter{Key: "voltage"}))
	require.Error(t, r.Register(Parameter{Key: "voltage"}))
}

func TestFactory(t *testing.T) {
	assert.Equal(t, []string{"cv_ramp", "iv_ramp"}, Types())

	node := ivNode(fastIVParams())
	m, err := NewMeasurement(node, Env{})
	require.NoError(t, err)
	assert.Equal(t, "iv_ramp", m.Type())

	node.MeasurementType = "nope"
	_, err = NewMeasurement(node, Env{})
	require.Error(t, err)
}
