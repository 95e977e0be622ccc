// Package shift595 drives a chain of 74HC595 shift registers by bit-banging
// data, clock and latch lines.
package shift595

import (
	"fmt"

	"bcmio/core"
	"bcmio/port"
)

// Register holds the last known output of every bit in the chain
type Register struct {
	data   port.Line
	clock  port.Line
	latch  port.Line
	clear  port.Line // optional
	values []bool
}

// New creates a digital Port over a chain of bits outputs. clear may be nil.
func New(data, clock, latch, clear port.Line, bits int) (*port.Port[bool], *Register, error) {
	if data == nil || clock == nil || latch == nil {
		return nil, nil, core.Invalid("shift595 lines", nil, "data, clock and latch are required")
	}
	if bits <= 0 {
		return nil, nil, core.Invalid("shift595 bits", bits, "must be positive")
	}
	r := &Register{
		data:   data,
		clock:  clock,
		latch:  latch,
		clear:  clear,
		values: make([]bool, bits),
	}
	return port.New[bool](r, bits), r, nil
}

// ApplyChange records value for pin and reports whether it changed
func (r *Register) ApplyChange(pin int, value bool) (bool, error) {
	if r.values[pin] == value {
		return false, nil
	}
	r.values[pin] = value
	return true, nil
}

// PinValue returns the last shifted value for pin
func (r *Register) PinValue(pin int) bool {
	return r.values[pin]
}

// FlushChanges shifts every bit out in index order and latches the result
func (r *Register) FlushChanges() error {
	if r.clear != nil {
		if err := pulse(r.clear); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	for i, v := range r.values {
		if err := r.data.Set(v); err != nil {
			return fmt.Errorf("data bit %d: %w", i, err)
		}
		if err := pulse(r.clock); err != nil {
			return fmt.Errorf("clock bit %d: %w", i, err)
		}
	}
	// Transfer the shift stage to the storage outputs
	if err := pulse(r.latch); err != nil {
		return fmt.Errorf("latch: %w", err)
	}
	return nil
}

// pulse drives a line low then high; the chip acts on the rising edge
func pulse(l port.Line) error {
	if err := l.Set(false); err != nil {
		return err
	}
	return l.Set(true)
}
