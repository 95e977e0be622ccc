package board

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"

	"bcmio/clock"
	"bcmio/core"
	"bcmio/gpio"
	"bcmio/host/config"
	"bcmio/pwm"
	"bcmio/regmap"
	"bcmio/spi"
)

// ErrAlreadyOpen is returned when the hardware registers are mapped twice
var ErrAlreadyOpen = errors.New("board registers are already mapped")

var (
	openMu sync.Mutex
	opened bool
)

// Board represents the mapped peripheral register files of a BCM2835 and
// the controllers built on them. Clock, PWM and SPI are nil when the device
// only exposes the GPIO block.
type Board struct {
	Config *config.Config

	GPIO  *gpio.Controller
	Clock *clock.Controller
	PWM   *pwm.Controller
	SPI   *spi.Controller

	maps      map[string]*regmap.Map
	simulated bool
}

// Open maps the hardware registers. It may only succeed once per process
// until the board is closed.
func Open(cfg *config.Config) (*Board, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.Simulate {
		return NewSimulated(cfg), nil
	}

	openMu.Lock()
	defer openMu.Unlock()
	if opened {
		return nil, ErrAlreadyOpen
	}

	maps := map[string]*regmap.Map{}
	var errs error
	for _, bus := range regmap.Buses {
		if cfg.Device == "/dev/gpiomem" && bus.Name != regmap.GPIO.Name {
			continue
		}
		m, err := regmap.Open(bus, cfg.Device, cfg.PeripheralBase)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		maps[bus.Name] = m
	}
	if errs != nil {
		for _, m := range maps {
			errs = multierr.Append(errs, m.Close())
		}
		return nil, fmt.Errorf("failed to map registers: %w", errs)
	}

	opened = true
	return build(cfg, maps, false), nil
}

// NewSimulated builds a board over in-memory registers. Writes to the GPIO
// set and clear registers are mirrored into the level registers and the SPI
// status always reports a ready FIFO, so transfers loop back.
func NewSimulated(cfg *config.Config) *Board {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	maps := map[string]*regmap.Map{}
	for _, bus := range regmap.Buses {
		maps[bus.Name] = regmap.New(bus)
	}
	simulateLevels(maps[regmap.GPIO.Name])
	simulateSPI(maps[regmap.SPI0.Name])
	return build(cfg, maps, true)
}

func build(cfg *config.Config, maps map[string]*regmap.Map, simulated bool) *Board {
	b := &Board{Config: cfg, maps: maps, simulated: simulated}
	limit := core.SpinLimit(cfg.SpinLimit)

	b.GPIO = gpio.New(maps[regmap.GPIO.Name], gpio.Options{
		ResistorSettle: time.Duration(cfg.ResistorSettleNs) * time.Nanosecond,
	})
	if m, ok := maps[regmap.Clock.Name]; ok {
		b.Clock = clock.New(m, b.GPIO, clock.Options{SpinLimit: limit})
	}
	if m, ok := maps[regmap.PWM.Name]; ok {
		b.PWM = pwm.New(m, b.GPIO)
	}
	if m, ok := maps[regmap.SPI0.Name]; ok {
		b.SPI = spi.New(m, b.GPIO, spi.Options{SpinLimit: limit})
	}
	return b
}

// Simulated reports whether the board runs on in-memory registers
func (b *Board) Simulated() bool {
	return b.simulated
}

// Registers returns the register file for a bus name
func (b *Board) Registers(bus string) (*regmap.Map, error) {
	m, ok := b.maps[bus]
	if !ok {
		return nil, core.Invalid("bus", bus, "not mapped")
	}
	return m, nil
}

// Dump prints the register file of bus in binary
func (b *Board) Dump(w io.Writer, bus string) error {
	m, err := b.Registers(bus)
	if err != nil {
		return err
	}
	return m.Dump(w)
}

// Close unmaps every register file
func (b *Board) Close() error {
	var err error
	for _, bus := range regmap.Buses {
		if m, ok := b.maps[bus.Name]; ok {
			err = multierr.Append(err, m.Close())
		}
	}
	b.maps = nil
	if !b.simulated {
		openMu.Lock()
		opened = false
		openMu.Unlock()
	}
	return err
}

func simulateLevels(m *regmap.Map) {
	m.SetTrace(func(index int, value uint32) {
		switch {
		case index >= gpio.RegSet && index < gpio.RegSet+2:
			level := gpio.RegLevel + index - gpio.RegSet
			m.Store(level, m.Load(level)|value)
		case index >= gpio.RegClear && index < gpio.RegClear+2:
			level := gpio.RegLevel + index - gpio.RegClear
			m.Store(level, m.Load(level)&^value)
		}
	})
}

func simulateSPI(m *regmap.Map) {
	ready := uint32(spi.TXCanAcceptData | spi.TransferDone)
	m.SetTrace(func(index int, value uint32) {
		if index == spi.RegCS && value&ready != ready {
			m.Store(spi.RegCS, value|ready)
		}
	})
	m.Store(spi.RegCS, ready)
}
