package measure

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Parameter describes one typed measurement parameter.
type Parameter struct {
	Key      string
	Default  any
	Unit     string
	Required bool
	Values   []string
}

// Registry is the typed access layer over a measurement's raw parameter
// maps. Parameters are declared up front; lookups fail fast on missing
// required keys and convert quantity strings ("250 mV", "10 uA") to bare
// base-unit numbers before exposing them to the measurement body.
type Registry struct {
	declared map[string]Parameter
	values   map[string]any
	defaults map[string]any
}

// NewRegistry builds a registry over the node's parameters and the
// measurement type's defaults.
func NewRegistry(values, defaults map[string]any) *Registry {
	if values == nil {
		values = map[string]any{}
	}
	if defaults == nil {
		defaults = map[string]any{}
	}
	return &Registry{
		declared: make(map[string]Parameter),
		values:   values,
		defaults: defaults,
	}
}

// Register declares a parameter. Declaring the same key twice is a
// programming error.
func (r *Registry) Register(p Parameter) error {
	if _, ok := r.declared[p.Key]; ok {
		return fmt.Errorf("parameter already registered: %s", p.Key)
	}
	r.declared[p.Key] = p
	return nil
}

// MustRegister is Register for static declarations in constructors.
func (r *Registry) MustRegister(p Parameter) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(key string) (Parameter, any, error) {
	p, ok := r.declared[key]
	if !ok {
		return Parameter{}, nil, fmt.Errorf("no such parameter: %s", key)
	}
	if value, ok := r.values[key]; ok {
		return p, value, nil
	}
	if value, ok := r.defaults[key]; ok {
		return p, value, nil
	}
	if p.Required {
		return Parameter{}, nil, fmt.Errorf("missing required parameter: %s", key)
	}
	return p, p.Default, nil
}

// Float returns a numeric parameter converted to the base unit declared at
// registration.
func (r *Registry) Float(key string) (float64, error) {
	p, value, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	if s, ok := value.(string); ok {
		return parseQuantity(s, p.Unit)
	}
	return cast.ToFloat64E(value)
}

// Seconds returns a duration parameter in seconds.
func (r *Registry) Seconds(key string) (float64, error) {
	return r.Float(key)
}

// String returns a string parameter, validated against the allowed values
// when any were declared.
func (r *Registry) String(key string) (string, error) {
	p, value, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return "", err
	}
	if len(p.Values) > 0 {
		for _, allowed := range p.Values {
			if s == allowed {
				return s, nil
			}
		}
		return "", fmt.Errorf("invalid value for parameter %s: %q", key, s)
	}
	return s, nil
}

// Bool returns a boolean parameter.
func (r *Registry) Bool(key string) (bool, error) {
	_, value, err := r.lookup(key)
	if err != nil {
		return false, err
	}
	return cast.ToBoolE(value)
}

// Int returns an integer parameter.
func (r *Registry) Int(key string) (int, error) {
	_, value, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	return cast.ToIntE(value)
}

// Validate checks that every required declared parameter is present.
func (r *Registry) Validate() error {
	var missing []string
	for key, p := range r.declared {
		if !p.Required {
			continue
		}
		if _, ok := r.values[key]; ok {
			continue
		}
		if _, ok := r.defaults[key]; ok {
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// siPrefixes maps metric prefixes to their scale.
var siPrefixes = map[string]float64{
	"G": 1e9,
	"M": 1e6,
	"k": 1e3,
	"":  1,
	"m": 1e-3,
	"u": 1e-6,
	"n": 1e-9,
	"p": 1e-12,
	"f": 1e-15,
}

// parseQuantity converts a quantity string like "250 mV" or "-1uA" to the
// given base unit. A bare number is taken to be in the base unit already.
func parseQuantity(s, baseUnit string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	i := strings.LastIndexFunc(s, func(r rune) bool {
		return r >= '0' && r <= '9' || r == '.'
	})
	if i < 0 {
		return 0, fmt.Errorf("invalid quantity: %q", s)
	}
	number, unit := strings.TrimSpace(s[:i+1]), strings.TrimSpace(s[i+1:])
	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity: %q", s)
	}
	if baseUnit == "" || unit == baseUnit {
		return v, nil
	}
	if !strings.HasSuffix(unit, baseUnit) {
		return 0, fmt.Errorf("quantity %q does not match unit %s", s, baseUnit)
	}
	prefix := strings.TrimSuffix(unit, baseUnit)
	scale, ok := siPrefixes[prefix]
	if !ok {
		return 0, fmt.Errorf("unknown unit prefix in %q", s)
	}
	return v * scale, nil
}
