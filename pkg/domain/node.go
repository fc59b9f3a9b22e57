package domain

import (
	"sync"
)

// NodeKind discriminates the variants of a sequence tree node.
type NodeKind string

const (
	KindGroup       NodeKind = "group"
	KindSample      NodeKind = "sample"
	KindContact     NodeKind = "contact"
	KindMeasurement NodeKind = "measurement"
)

// Node is one element of the sequence tree. A node owns its children
// exclusively; measurement and contact nodes additionally hold a weak
// reference to their owning contact and sample for display and result
// metadata, never for lifecycle.
//
// Nodes are constructed once per loaded sequence definition, mutated in
// place during a run (state and measurement results) and reset to a
// pristine state between runs. State reads and writes may come from
// different goroutines (executor vs. monitoring), so they are guarded.
type Node struct {
	Kind    NodeKind
	Name    string
	Enabled bool

	Children []*Node

	// Sample fields.
	SampleType     string
	SamplePosition string
	Comment        string

	// Contact fields.
	ContactID string
	Pos       Position

	// Measurement fields.
	MeasurementID     string
	MeasurementType   string
	Parameters        map[string]any
	DefaultParameters map[string]any
	Tags              []string

	mu      sync.RWMutex
	state   NodeState
	result  *MeasurementResult
	contact *Node
	sample  *Node
}

// NewNode returns a node of the given kind in the pristine state.
func NewNode(kind NodeKind, name string) *Node {
	return &Node{
		Kind:    kind,
		Name:    name,
		Enabled: true,
		Pos:     UnassignedPosition(),
		state:   StateIdle,
	}
}

// AddChild appends a child and wires the weak back references used for
// result metadata lookup.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	switch n.Kind {
	case KindSample:
		child.sample = n
	case KindContact:
		child.contact = n
		child.sample = n.sample
	}
	return child
}

// State returns the node's current state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// SetState records a state transition. Callers are expected to notify
// observers themselves; the node holds no callbacks.
func (n *Node) SetState(state NodeState) {
	n.mu.Lock()
	n.state = state
	n.mu.Unlock()
}

// Result returns the most recent measurement result, or nil.
func (n *Node) Result() *MeasurementResult {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.result
}

// SetResult attaches a measurement result to the node.
func (n *Node) SetResult(result *MeasurementResult) {
	n.mu.Lock()
	n.result = result
	n.mu.Unlock()
}

// Contact returns the owning contact of a measurement node, or nil.
func (n *Node) Contact() *Node { return n.contact }

// Sample returns the owning sample of a contact or measurement node, or nil.
func (n *Node) Sample() *Node { return n.sample }

// HasPosition reports whether a contact node has a usable position.
func (n *Node) HasPosition() bool {
	return n.Kind == KindContact && n.Pos.IsValid()
}

// EnabledChildren returns the enabled children in order.
func (n *Node) EnabledChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		if child.Enabled {
			out = append(out, child)
		}
	}
	return out
}

// Reset restores the subtree to its pristine state: states back to idle and
// measurement results dropped. Two successive runs of a reset tree are
// independent of prior-run data.
func (n *Node) Reset() {
	n.mu.Lock()
	n.state = StateIdle
	n.result = nil
	n.mu.Unlock()
	for _, child := range n.Children {
		child.Reset()
	}
}

// Walk visits the subtree depth-first in child order, n included. A visit
// returning false prunes that node's children; siblings are still visited.
func (n *Node) Walk(visit func(*Node) bool) {
	if !visit(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visit)
	}
}
