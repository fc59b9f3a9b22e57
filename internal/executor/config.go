package executor

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// Config is the run configuration of one sequence execution. There is no
// process-wide settings state; the caller constructs a Config and hands it
// to the executor.
type Config struct {
	// RetryContactCount bounds the contact re-move loop: a contact is
	// attempted at most RetryContactCount+1 times.
	RetryContactCount int `mapstructure:"retryContactCount"`
	// RetryMeasurementCount bounds the per-attempt measurement retry loop.
	RetryMeasurementCount int `mapstructure:"retryMeasurementCount"`
	// MoveToContact moves the table to each contact position before its
	// measurements run.
	MoveToContact bool `mapstructure:"moveToContact"`
	// MoveToAfterPosition is an optional (x, y, z) position in millimeters
	// the table moves to once the sequence completed.
	MoveToAfterPosition []float64 `mapstructure:"moveToAfterPosition"`
	// ContactDelay is the settle time in seconds after each touch-down.
	ContactDelay float64 `mapstructure:"contactDelay"`
	// UseEnvironmentBox arms the climate enclosure (test LED, discharge)
	// around the run.
	UseEnvironmentBox bool `mapstructure:"useEnvironmentBox"`
	// ContactOverdrive is the extra Z travel in millimeters applied on
	// contact re-moves to improve re-contact odds.
	ContactOverdrive float64 `mapstructure:"contactOverdrive"`
	// RetryContactRadius bounds the random XY offset in millimeters applied
	// on contact re-moves.
	RetryContactRadius float64 `mapstructure:"retryContactRadius"`
}

// DefaultConfig returns the configuration used when a key is absent from
// the decoded map.
func DefaultConfig() Config {
	return Config{
		MoveToContact:    true,
		ContactDelay:     0.5,
		ContactOverdrive: 0.005,
	}
}

// DecodeConfig decodes a flat key/value map into a Config over the
// defaults, with loose type coercion for values coming from YAML or HTTP
// payloads.
func DecodeConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding run configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.RetryContactCount < 0 {
		return fmt.Errorf("retryContactCount must not be negative: %d", c.RetryContactCount)
	}
	if c.RetryMeasurementCount < 0 {
		return fmt.Errorf("retryMeasurementCount must not be negative: %d", c.RetryMeasurementCount)
	}
	if n := len(c.MoveToAfterPosition); n != 0 && n != 3 {
		return fmt.Errorf("moveToAfterPosition needs exactly three components, got %d", n)
	}
	if c.ContactDelay < 0 {
		return fmt.Errorf("contactDelay must not be negative: %G", c.ContactDelay)
	}
	return nil
}

// AfterPosition returns the configured final table position, if any.
func (c Config) AfterPosition() (domain.Position, bool) {
	if len(c.MoveToAfterPosition) != 3 {
		return domain.UnassignedPosition(), false
	}
	return domain.NewPosition(c.MoveToAfterPosition[0], c.MoveToAfterPosition[1], c.MoveToAfterPosition[2]), true
}
