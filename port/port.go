// Package port groups output pins behind a buffered, all-or-nothing write
// cycle. A device supplies ApplyChange and FlushChanges; the Port provides
// the atomic session protocol on top.
package port

import (
	"errors"
	"sync"

	"bcmio/core"
)

// ErrBusy is returned by Atomically when another owner holds the port
var ErrBusy = errors.New("port is held by another owner")

// Line is a single digital output, such as a GPIO pin or a pin of another
// digital Port.
type Line interface {
	Set(high bool) error
}

// Device is the hardware side of a Port.
type Device[T comparable] interface {
	// ApplyChange records value for pin and reports whether it differs from
	// the last known value.
	ApplyChange(pin int, value T) (bool, error)

	// FlushChanges writes all applied values out to the hardware.
	FlushChanges() error

	// PinValue returns the last applied value for pin.
	PinValue(pin int) T
}

// NoFlush can be embedded by devices that apply changes immediately
type NoFlush struct{}

// FlushChanges does nothing
func (NoFlush) FlushChanges() error { return nil }

// Owner identifies the holder of an atomic session
type Owner struct {
	name string
}

// NewOwner returns a fresh owner identity
func NewOwner(name string) *Owner {
	return &Owner{name: name}
}

func (o *Owner) String() string {
	if o == nil {
		return "<nil>"
	}
	return o.name
}

type slot[T comparable] struct {
	set   bool
	value T
}

// Port is a fixed-size set of pins over a Device.
type Port[T comparable] struct {
	mu     sync.Mutex
	dev    Device[T]
	owner  *Owner
	buffer []slot[T]
}

// New creates a Port with size pins
func New[T comparable](dev Device[T], size int) *Port[T] {
	return &Port[T]{dev: dev, buffer: make([]slot[T], size)}
}

// Size returns the number of pins
func (p *Port[T]) Size() int {
	return len(p.buffer)
}

// Pin returns a handle for pin index i
func (p *Port[T]) Pin(i int) (Pin[T], error) {
	if i < 0 || i >= len(p.buffer) {
		return Pin[T]{}, core.Invalid("port pin", i, "out of range")
	}
	return Pin[T]{port: p, index: i}, nil
}

// Pins returns handles for every pin in index order
func (p *Port[T]) Pins() []Pin[T] {
	pins := make([]Pin[T], len(p.buffer))
	for i := range pins {
		pins[i] = Pin[T]{port: p, index: i}
	}
	return pins
}

// Held reports whether an atomic session is open
func (p *Port[T]) Held() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner != nil
}

// BeginAtomic opens an atomic session for owner. It returns false without
// error when another owner holds the port, and a LockMisuseError when owner
// already holds it.
func (p *Port[T]) BeginAtomic(owner *Owner) (bool, error) {
	if owner == nil {
		return false, core.Invalid("owner", nil, "must not be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner == owner {
		return false, &core.LockMisuseError{Op: "BeginAtomic"}
	}
	if p.owner != nil {
		return false, nil
	}
	p.owner = owner
	for i := range p.buffer {
		p.buffer[i] = slot[T]{}
	}
	return true, nil
}

// SetPinValue buffers value while a session is open, otherwise it applies
// and flushes immediately.
func (p *Port[T]) SetPinValue(pin int, value T) error {
	if pin < 0 || pin >= len(p.buffer) {
		return core.Invalid("port pin", pin, "out of range")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner != nil {
		p.buffer[pin] = slot[T]{set: true, value: value}
		return nil
	}
	if _, err := p.dev.ApplyChange(pin, value); err != nil {
		return err
	}
	return p.dev.FlushChanges()
}

// PinValue returns the device's last applied value for pin
func (p *Port[T]) PinValue(pin int) (T, error) {
	var zero T
	if pin < 0 || pin >= len(p.buffer) {
		return zero, core.Invalid("port pin", pin, "out of range")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.PinValue(pin), nil
}

// CompleteAtomic applies every buffered value and flushes once if any of
// them changed. The session is released even when applying or flushing
// fails.
func (p *Port[T]) CompleteAtomic(owner *Owner) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if owner == nil || p.owner != owner {
		return &core.LockMisuseError{Op: "CompleteAtomic"}
	}
	defer func() { p.owner = nil }()

	changed := false
	for i, s := range p.buffer {
		if !s.set {
			continue
		}
		c, err := p.dev.ApplyChange(i, s.value)
		if err != nil {
			return err
		}
		changed = changed || c
	}
	if !changed {
		return nil
	}
	return p.dev.FlushChanges()
}

// AbortAtomic discards the buffered values and releases the session
func (p *Port[T]) AbortAtomic(owner *Owner) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if owner == nil || p.owner != owner {
		return &core.LockMisuseError{Op: "AbortAtomic"}
	}
	p.owner = nil
	return nil
}

// Atomically runs fn inside a session held by owner. The session is
// completed when fn succeeds and aborted when it fails.
func (p *Port[T]) Atomically(owner *Owner, fn func() error) error {
	ok, err := p.BeginAtomic(owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	if err := fn(); err != nil {
		if abortErr := p.AbortAtomic(owner); abortErr != nil {
			return abortErr
		}
		return err
	}
	return p.CompleteAtomic(owner)
}

// Pin is a view of one slot of a Port
type Pin[T comparable] struct {
	port  *Port[T]
	index int
}

// Index returns the slot index
func (p Pin[T]) Index() int {
	return p.index
}

// Set writes value through the port
func (p Pin[T]) Set(value T) error {
	return p.port.SetPinValue(p.index, value)
}

// Value returns the last applied value
func (p Pin[T]) Value() T {
	v, _ := p.port.PinValue(p.index)
	return v
}
