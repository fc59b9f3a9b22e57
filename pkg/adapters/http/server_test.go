package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
)

func TestStatus_ReflectsHookEvents(t *testing.T) {
	server := NewServer()
	hooks := server.Hooks()

	hooks.Message("contacting PAD 1")
	hooks.Position(domain.NewPosition(10, 20, 1.5))
	hooks.CaldoneChanged(domain.Caldone{X: 3, Y: 3, Z: 3})
	hooks.ClimateChanged(domain.Climate{BoxTemperature: 23.5, BoxHumidity: 41})
	node := domain.NewNode(domain.KindMeasurement, "Diode IV")
	hooks.ActiveMeasurement(node)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := stdhttp.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "Diode IV", status.ActiveMeasurement)
	assert.Equal(t, "contacting PAD 1", status.LastMessage)
	require.NotNil(t, status.TablePosition)
	assert.Equal(t, domain.NewPosition(10, 20, 1.5), *status.TablePosition)
	assert.True(t, status.TableCalibrated)
	assert.Equal(t, 23.5, status.Climate.BoxTemperature)
	assert.False(t, status.UpdatedAt.IsZero())
}

func TestStatus_InvalidPositionKeepsLastKnown(t *testing.T) {
	server := NewServer()
	hooks := server.Hooks()

	hooks.Position(domain.NewPosition(1, 2, 3))
	hooks.Position(domain.UnassignedPosition())

	status := server.Status()
	require.NotNil(t, status.TablePosition)
	assert.Equal(t, domain.NewPosition(1, 2, 3), *status.TablePosition)
}

func TestStatus_ClearsActiveMeasurement(t *testing.T) {
	server := NewServer()
	hooks := server.Hooks()

	hooks.ActiveMeasurement(domain.NewNode(domain.KindMeasurement, "Diode IV"))
	hooks.ActiveMeasurement(nil)

	assert.Empty(t, server.Status().ActiveMeasurement)
}

func TestEvents_StreamsHookEvents(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return server.Subscribers() == 1 },
		time.Second, 10*time.Millisecond)

	hooks := server.Hooks()
	hooks.Message("started")
	hooks.StateChanged(domain.NewNode(domain.KindContact, "PAD 1"), domain.StateProcessing)
	hooks.MeasurementFinished(domain.ResultRecord{
		MeasurementName: "Diode IV",
		State:           domain.StateSuccess,
	})

	type wireEvent struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	readEvent := func() wireEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	ev := readEvent()
	assert.Equal(t, "message", ev.Type)
	var text string
	require.NoError(t, json.Unmarshal(ev.Payload, &text))
	assert.Equal(t, "started", text)

	ev = readEvent()
	assert.Equal(t, "state", ev.Type)
	var state map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &state))
	assert.Equal(t, "contact", state["kind"])
	assert.Equal(t, "PAD 1", state["name"])
	assert.Equal(t, string(domain.StateProcessing), state["state"])

	ev = readEvent()
	assert.Equal(t, "result", ev.Type)
	var record domain.ResultRecord
	require.NoError(t, json.Unmarshal(ev.Payload, &record))
	assert.Equal(t, "Diode IV", record.MeasurementName)
	assert.Equal(t, domain.StateSuccess, record.State)
}

func TestEvents_DisconnectRemovesSubscriber(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	require.Eventually(t, func() bool { return server.Subscribers() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return server.Subscribers() == 0 },
		time.Second, 10*time.Millisecond)

	// Broadcasting with no subscribers must not panic or block.
	server.Hooks().Message("after disconnect")
}

func TestHandler_MountsMetrics(t *testing.T) {
	metrics := stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.Write([]byte("pqc_up 1\n"))
	})
	server := NewServer(WithMetricsHandler(metrics))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := stdhttp.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
}

func TestHandler_Healthz(t *testing.T) {
	ts := httptest.NewServer(NewServer().Handler())
	defer ts.Close()

	resp, err := stdhttp.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
}
