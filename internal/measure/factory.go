package measure

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// Factory builds a measurement instance from a sequence node.
type Factory func(node *domain.Node, env Env) (Measurement, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{
		"iv_ramp": NewIVRamp,
		"cv_ramp": NewCVRamp,
	}
)

// RegisterFactory adds a measurement type. Registering an existing type is
// a programming error.
func RegisterFactory(typ string, factory Factory) error {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[typ]; ok {
		return fmt.Errorf("measurement type already registered: %s", typ)
	}
	factories[typ] = factory
	return nil
}

// NewMeasurement instantiates the measurement type declared by the node.
func NewMeasurement(node *domain.Node, env Env) (Measurement, error) {
	factoryMu.RLock()
	factory, ok := factories[node.MeasurementType]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown measurement type: %s", node.MeasurementType)
	}
	return factory(node, env)
}

// Types lists the registered measurement types, sorted.
func Types() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for typ := range factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
