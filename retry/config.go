package retry

import (
	"fmt"
	"time"
)

// Config bounds the retry of transient write failures.
type Config struct {
	// MaxAttempts counts the first attempt. Must be at least 1.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// Multiplier grows the delay after each retry. 1 keeps it constant.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`

	// RetryUnavailable applies the same budget to unavailable-replica errors.
	RetryUnavailable bool `mapstructure:"retry_unavailable" yaml:"retry_unavailable"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      10,
		InitialDelay:     50 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		RetryUnavailable: true,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", c.Multiplier)
	}
	return nil
}
