package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package, usable with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// WrapInvalid tags err as a configuration validation failure.
func WrapInvalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// NewInvalidf builds a validation failure from a format string.
func NewInvalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// WrapLoad tags err as a loading failure.
func WrapLoad(err error) error {
	return fmt.Errorf("%w: %w", ErrLoadConfig, err)
}
