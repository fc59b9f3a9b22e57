// Package http serves the monitoring surface of a run: current status as
// JSON, a live event stream over WebSocket, and the Prometheus metrics
// endpoint. The server is fed through lifecycle hooks and never calls back
// into the engine.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// Status is the snapshot served on the status route. All fields are
// possibly stale; they reflect the last published hook events.
type Status struct {
	ActiveMeasurement string           `json:"active_measurement,omitempty"`
	LastMessage       string           `json:"last_message,omitempty"`
	TablePosition     *domain.Position `json:"table_position,omitempty"`
	TableCalibrated   bool             `json:"table_calibrated"`
	Climate           domain.Climate   `json:"climate"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Event is one entry of the live stream.
type Event struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Server holds the monitoring state and its WebSocket subscribers.
type Server struct {
	logger   *slog.Logger
	metrics  http.Handler
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	status  Status
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsHandler mounts a metrics handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer builds a monitoring server. Wire its Hooks into the engine's
// hook chain and mount its Handler.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the monitoring router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/events", s.handleEvents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Status returns the current snapshot.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribers returns the number of connected event stream clients.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Error("encoding status failed", "err", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, 64)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("event stream client connected", "remote", conn.RemoteAddr())

	go s.writeLoop(c)
	// Drain (and discard) client frames so pings are answered and closes
	// are noticed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(c)
}

func (s *Server) writeLoop(c *client) {
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			s.drop(c)
			return
		}
	}
	c.conn.Close()
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

// broadcast delivers an event to every subscriber without blocking the
// emitting goroutine. Slow subscribers are disconnected.
func (s *Server) broadcast(ev Event) {
	s.mu.Lock()
	var stale []*client
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) update(evType string, payload any, mutate func(*Status)) {
	now := time.Now()
	s.mu.Lock()
	if mutate != nil {
		mutate(&s.status)
		s.status.UpdatedAt = now
	}
	s.mu.Unlock()
	s.broadcast(Event{Type: evType, Time: now, Payload: payload})
}

// Hooks returns lifecycle hooks that feed the status snapshot and the
// event stream.
func (s *Server) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMessage: func(text string) {
			s.update("message", text, func(st *Status) { st.LastMessage = text })
		},
		OnProgress: func(value, max int) {
			s.update("progress", map[string]int{"value": value, "max": max}, nil)
		},
		OnStateChanged: func(node *domain.Node, state domain.NodeState) {
			s.update("state", map[string]string{
				"kind":  string(node.Kind),
				"name":  node.Name,
				"state": string(state),
			}, nil)
		},
		OnMeasurementFinished: func(record domain.ResultRecord) {
			s.update("result", record, nil)
		},
		OnPosition: func(pos domain.Position) {
			// Positions with unassigned axes are NaN and not representable
			// in JSON; keep the last known one instead.
			if !pos.IsValid() {
				return
			}
			s.update("position", pos, func(st *Status) { st.TablePosition = &pos })
		},
		OnCaldone: func(caldone domain.Caldone) {
			s.update("caldone", caldone, func(st *Status) { st.TableCalibrated = caldone.Valid() })
		},
		OnClimate: func(climate domain.Climate) {
			s.update("climate", climate, func(st *Status) { st.Climate = climate })
		},
		OnActiveMeasurement: func(node *domain.Node) {
			name := ""
			if node != nil {
				name = node.Name
			}
			s.update("active_measurement", name, func(st *Status) { st.ActiveMeasurement = name })
		},
	}
}
