package domain

// NodeState is the execution state of a sequence tree node.
type NodeState string

const (
	// StateIdle is the pristine state of a node before any run.
	StateIdle NodeState = "idle"
	// StateProcessing marks a node currently being executed.
	StateProcessing NodeState = "processing"
	// StateSuccess is the terminal state of a completed node.
	StateSuccess NodeState = "success"
	// StateCompliance marks a measurement terminated by an instrument
	// protection limit.
	StateCompliance NodeState = "compliance"
	// StateTimeout marks a measurement terminated by a communication
	// timeout on an instrument resource.
	StateTimeout NodeState = "timeout"
	// StateError is the generic terminal failure state.
	StateError NodeState = "error"
	// StateAnalysisError marks a measurement whose post-acquisition data
	// quality check failed. This is the only state eligible for automatic
	// retry.
	StateAnalysisError NodeState = "analysis_error"
	// StateStopped marks a node interrupted by a cooperative stop request.
	StateStopped NodeState = "stopped"
)

// IsTerminal reports whether the state ends a node's processing until the
// next reset.
func (s NodeState) IsTerminal() bool {
	switch s {
	case StateIdle, StateProcessing:
		return false
	}
	return true
}

// IsFailure reports whether the state counts against the parent's success
// aggregation.
func (s NodeState) IsFailure() bool {
	switch s {
	case StateCompliance, StateTimeout, StateError, StateAnalysisError:
		return true
	}
	return false
}

func (s NodeState) String() string { return string(s) }
