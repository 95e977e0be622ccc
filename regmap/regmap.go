// Package regmap exposes a BCM2835 peripheral register file as a shared,
// mutex-guarded array of 32-bit words.
package regmap

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"bcmio/core"
)

// Bus describes one peripheral register file relative to the peripheral base
type Bus struct {
	Name   string
	Offset int64 // Offset from the peripheral base address
	Words  int   // Number of 32-bit registers used by the controllers
}

// Register files used by the controllers
var (
	GPIO  = Bus{Name: "gpio", Offset: 0x200000, Words: 41}
	Clock = Bus{Name: "clock", Offset: 0x101000, Words: 45}
	PWM   = Bus{Name: "pwm", Offset: 0x20C000, Words: 45}
	SPI0  = Bus{Name: "spi0", Offset: 0x204000, Words: 6}
)

// Buses lists every register file in mapping order
var Buses = []Bus{GPIO, Clock, PWM, SPI0}

// Map is one register file. Every read-modify-write sequence against the
// words of a Map must hold its lock for the whole sequence.
type Map struct {
	mu    sync.Mutex
	bus   Bus
	words []uint32
	unmap func() error

	// trace, when set, observes every Store
	trace func(index int, value uint32)
}

// New returns an in-memory register file with every word zero. It stands in
// for mapped hardware in tests and simulated runs.
func New(bus Bus) *Map {
	n := bus.Words
	if n <= 0 {
		n = 1
	}
	return &Map{bus: bus, words: make([]uint32, n)}
}

// Bus returns the register file description
func (m *Map) Bus() Bus {
	return m.bus
}

// Len returns the number of addressable words
func (m *Map) Len() int {
	return len(m.words)
}

// Lock acquires the register file lock
func (m *Map) Lock() {
	m.mu.Lock()
}

// Unlock releases the register file lock
func (m *Map) Unlock() {
	m.mu.Unlock()
}

// SetTrace installs a hook observing every store. Pass nil to remove it.
func (m *Map) SetTrace(fn func(index int, value uint32)) {
	m.trace = fn
}

// Load reads the word at index
func (m *Map) Load(index int) uint32 {
	return atomic.LoadUint32(&m.words[index])
}

// Store writes value to the word at index
func (m *Map) Store(index int, value uint32) {
	atomic.StoreUint32(&m.words[index], value)
	core.RecordWrite(m.bus.Name, index, value)
	if m.trace != nil {
		m.trace(index, value)
	}
}

// ClearMask ANDs the word with an inverse mask
func (m *Map) ClearMask(index int, mask uint32) {
	m.Store(index, m.Load(index)&mask)
}

// SetMasked clears the word with an inverse mask, then ORs in value
func (m *Map) SetMasked(index int, mask, value uint32) {
	m.Store(index, (m.Load(index)&mask)|value)
}

// SetBits ORs value into the word
func (m *Map) SetBits(index int, value uint32) {
	m.Store(index, m.Load(index)|value)
}

// IsBitSet reports whether any bit of the pre-shifted bit is set
func (m *Map) IsBitSet(index int, bit uint32) bool {
	return m.Load(index)&bit != 0
}

// Dump prints every word in binary, one line per offset
func (m *Map) Dump(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.words {
		if _, err := fmt.Fprintf(w, "Offset %d:\t%032b\n", i, m.Load(i)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases a mapped register file. It is a no-op for in-memory maps.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmap == nil {
		return nil
	}
	err := m.unmap()
	m.unmap = nil
	m.words = nil
	if err != nil {
		return fmt.Errorf("failed to unmap %s registers: %w", m.bus.Name, err)
	}
	return nil
}
