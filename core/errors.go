package core

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrLockMisuse    = errors.New("port lock misuse")
	ErrHardwareHang  = errors.New("hardware did not respond")
)

// ConfigurationError reports an out-of-range pin, channel, function, divisor
// or similar argument. It is always returned before any register is written.
type ConfigurationError struct {
	Field string
	Value interface{}
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Invalid builds a ConfigurationError.
func Invalid(field string, value interface{}, msg string) error {
	return &ConfigurationError{Field: field, Value: value, Msg: msg}
}

// LockMisuseError reports a Port atomic session used by the wrong owner,
// or begun twice by the same owner.
type LockMisuseError struct {
	Op string
}

func (e *LockMisuseError) Error() string {
	return "port lock misuse in " + e.Op
}

func (e *LockMisuseError) Unwrap() error { return ErrLockMisuse }

// HardwareHangError reports a status bit that never reached the expected
// state within the spin limit.
type HardwareHangError struct {
	What       string
	Iterations int
}

func (e *HardwareHangError) Error() string {
	return fmt.Sprintf("timed out waiting for %s after %d polls", e.What, e.Iterations)
}

func (e *HardwareHangError) Unwrap() error { return ErrHardwareHang }
