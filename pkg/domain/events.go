package domain

// LifecycleHooks defines the fire-and-forget callbacks the executor and
// workers emit for observability. All fields are optional; delivery must
// never block the emitting goroutine. Consumers that need buffering (GUIs,
// event streams) are expected to provide it themselves.
type LifecycleHooks struct {
	// OnMessage delivers a human-readable progress message.
	OnMessage func(text string)
	// OnProgress delivers step progress as value out of max.
	OnProgress func(value, max int)
	// OnStateChanged fires after a node's state was recorded.
	OnStateChanged func(node *Node, state NodeState)
	// OnMeasurementFinished fires once per measurement completion with the
	// structured record handed to result sinks.
	OnMeasurementFinished func(record ResultRecord)
	// OnPosition publishes a possibly-stale table position snapshot.
	OnPosition func(pos Position)
	// OnCaldone publishes a table calibration state snapshot.
	OnCaldone func(caldone Caldone)
	// OnClimate publishes an environment box climate reading.
	OnClimate func(climate Climate)
	// OnActiveMeasurement fires when a measurement becomes active, letting
	// display consumers hide the previous one. nil means none is active.
	OnActiveMeasurement func(node *Node)
}

// Message emits a progress message if a handler is set.
func (h LifecycleHooks) Message(text string) {
	if h.OnMessage != nil {
		h.OnMessage(text)
	}
}

// Progress emits step progress if a handler is set.
func (h LifecycleHooks) Progress(value, max int) {
	if h.OnProgress != nil {
		h.OnProgress(value, max)
	}
}

// StateChanged emits a node state transition if a handler is set.
func (h LifecycleHooks) StateChanged(node *Node, state NodeState) {
	if h.OnStateChanged != nil {
		h.OnStateChanged(node, state)
	}
}

// MeasurementFinished emits a completion record if a handler is set.
func (h LifecycleHooks) MeasurementFinished(record ResultRecord) {
	if h.OnMeasurementFinished != nil {
		h.OnMeasurementFinished(record)
	}
}

// Position publishes a position snapshot if a handler is set.
func (h LifecycleHooks) Position(pos Position) {
	if h.OnPosition != nil {
		h.OnPosition(pos)
	}
}

// CaldoneChanged publishes a caldone snapshot if a handler is set.
func (h LifecycleHooks) CaldoneChanged(caldone Caldone) {
	if h.OnCaldone != nil {
		h.OnCaldone(caldone)
	}
}

// ActiveMeasurement announces the measurement now active, if a handler is
// set.
func (h LifecycleHooks) ActiveMeasurement(node *Node) {
	if h.OnActiveMeasurement != nil {
		h.OnActiveMeasurement(node)
	}
}

// ClimateChanged publishes a climate reading if a handler is set.
func (h LifecycleHooks) ClimateChanged(climate Climate) {
	if h.OnClimate != nil {
		h.OnClimate(climate)
	}
}

// Merge returns hooks that fan out to both h and other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	merged := LifecycleHooks{}
	merged.OnMessage = fanout(h.OnMessage, other.OnMessage)
	merged.OnPosition = fanout(h.OnPosition, other.OnPosition)
	merged.OnCaldone = fanout(h.OnCaldone, other.OnCaldone)
	merged.OnClimate = fanout(h.OnClimate, other.OnClimate)
	merged.OnActiveMeasurement = fanout(h.OnActiveMeasurement, other.OnActiveMeasurement)
	merged.OnMeasurementFinished = fanout(h.OnMeasurementFinished, other.OnMeasurementFinished)
	if h.OnProgress != nil || other.OnProgress != nil {
		a, b := h.OnProgress, other.OnProgress
		merged.OnProgress = func(value, max int) {
			if a != nil {
				a(value, max)
			}
			if b != nil {
				b(value, max)
			}
		}
	}
	if h.OnStateChanged != nil || other.OnStateChanged != nil {
		a, b := h.OnStateChanged, other.OnStateChanged
		merged.OnStateChanged = func(node *Node, state NodeState) {
			if a != nil {
				a(node, state)
			}
			if b != nil {
				b(node, state)
			}
		}
	}
	return merged
}

func fanout[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}
