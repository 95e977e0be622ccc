// Package spi drives the BCM2835 SPI0 master with polled, byte-at-a-time
// transfers.
package spi

import (
	"errors"

	"tinygo.org/x/drivers"

	"bcmio/core"
	"bcmio/gpio"
	"bcmio/regmap"
)

// Registers of the SPI0 block, in 32-bit words
const (
	RegCS   = 0 // control and status
	RegFIFO = 1
	RegClk  = 2
)

// Control is a control/status register bit
type Control uint32

// Control and status bits
const (
	ClockPhase        Control = 0x00000004
	ClockPolarity     Control = 0x00000008
	ChipSelectPol     Control = 0x00000040
	TransferActive    Control = 0x00000080
	DMAEnable         Control = 0x00000100
	InterruptOnDone   Control = 0x00000200
	InterruptOnRXR    Control = 0x00000400
	DeassertCS        Control = 0x00000800
	ReadEnable        Control = 0x00001000
	LoSSIEnable       Control = 0x00002000
	TransferDone      Control = 0x00010000
	RXContainsData    Control = 0x00020000
	TXCanAcceptData   Control = 0x00040000
	RXNeedsReading    Control = 0x00080000
	RXFull            Control = 0x00100000
	CS0Polarity       Control = 0x00200000
	CS1Polarity       Control = 0x00400000
	CS2Polarity       Control = 0x00800000
	DMALen            Control = 0x01000000
	LoSSILongDataWord Control = 0x02000000
)

// ChipSelect selects which CE line is asserted during a transfer
type ChipSelect uint32

const (
	CS0    ChipSelect = 0
	CS1    ChipSelect = 1
	CS2    ChipSelect = 2
	CSNone ChipSelect = 3
)

const chipSelectMask uint32 = 0b11

// DataMode is the SPI clock polarity and phase, mode 0 to 3
type DataMode uint32

const (
	Mode0 DataMode = 0
	Mode1 DataMode = 1
	Mode2 DataMode = 2
	Mode3 DataMode = 3
)

const (
	dataModeShift        = 2
	dataModeMask  uint32 = 0b11 << dataModeShift
)

// Clear selects which FIFOs to clear
type Clear uint32

const (
	ClearRX  Clear = 0x20
	ClearTX  Clear = 0x10
	ClearAll Clear = 0x30
)

// Divisor is the core clock divider, a power of two. Zero divides by 65536.
type Divisor uint32

// Divider65536 is the largest divider, encoded as zero
const Divider65536 Divisor = 0

// NewDivisor validates a power of two divider up to 65536
func NewDivisor(div int) (Divisor, error) {
	if div == 65536 {
		return Divider65536, nil
	}
	if div < 1 || div > 32768 || div&(div-1) != 0 {
		return 0, core.Invalid("spi divisor", div, "must be a power of two up to 65536")
	}
	return Divisor(div), nil
}

// Pins are the SPI0 GPIOs: MISO, MOSI, SCLK, CE1, CE0
var Pins = []int{9, 10, 11, 7, 8}

const pinFunction = gpio.Alt0

// ErrLengthMismatch is returned by Tx when both buffers are given with
// different lengths
var ErrLengthMismatch = errors.New("spi: write and read buffers differ in length")

// Options tune a Controller
type Options struct {
	SpinLimit core.SpinLimit
}

// Controller drives SPI0
type Controller struct {
	regs  *regmap.Map
	gpio  *gpio.Controller
	limit core.SpinLimit
}

var _ drivers.SPI = (*Controller)(nil)

// New creates a SPI0 controller
func New(regs *regmap.Map, g *gpio.Controller, opts Options) *Controller {
	return &Controller{regs: regs, gpio: g, limit: opts.SpinLimit}
}

// Enter routes the SPI pins, resets the control register and clears both
// FIFOs.
func (c *Controller) Enter() error {
	if err := c.route(pinFunction); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(RegCS, 0)
	c.regs.SetBits(RegCS, uint32(ClearAll))
	return nil
}

// Exit returns the SPI pins to INPUT
func (c *Controller) Exit() error {
	return c.route(gpio.Input)
}

func (c *Controller) route(fn gpio.Function) error {
	if c.gpio == nil {
		return core.Invalid("spi", "pins", "no gpio controller")
	}
	for _, p := range Pins {
		if err := c.gpio.SetFunction(p, fn); err != nil {
			return err
		}
	}
	return nil
}

// SetControl sets a control bit
func (c *Controller) SetControl(ctl Control) {
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetBits(RegCS, uint32(ctl))
}

// ClearControl clears a control bit
func (c *Controller) ClearControl(ctl Control) {
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.ClearMask(RegCS, ^uint32(ctl))
}

// SetControlValue sets or clears a control bit
func (c *Controller) SetControlValue(ctl Control, value bool) {
	if value {
		c.SetControl(ctl)
	} else {
		c.ClearControl(ctl)
	}
}

// SetChipSelect selects the CE line
func (c *Controller) SetChipSelect(cs ChipSelect) error {
	if cs > CSNone {
		return core.Invalid("chip select", cs, "")
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetMasked(RegCS, ^chipSelectMask, uint32(cs))
	return nil
}

// SetDataMode sets clock polarity and phase
func (c *Controller) SetDataMode(m DataMode) error {
	if m > Mode3 {
		return core.Invalid("spi mode", m, "must be 0..3")
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetMasked(RegCS, ^dataModeMask, uint32(m)<<dataModeShift)
	return nil
}

// SetClear clears the selected FIFOs. The clear bits are one-shot.
func (c *Controller) SetClear(cl Clear) {
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetBits(RegCS, uint32(cl))
}

// SetDivisor writes the clock divider
func (c *Controller) SetDivisor(d Divisor) {
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(RegClk, uint32(d))
}

// Transfer sends one byte and returns the byte clocked in
func (c *Controller) Transfer(b byte) (byte, error) {
	c.regs.Lock()
	defer c.regs.Unlock()
	return c.transfer(b)
}

// transfer runs one polled exchange; caller holds the lock
func (c *Controller) transfer(b byte) (byte, error) {
	c.regs.SetBits(RegCS, uint32(ClearAll))
	c.regs.SetBits(RegCS, uint32(TransferActive))

	err := core.WaitFor("spi tx fifo", c.limit, func() bool {
		return c.regs.IsBitSet(RegCS, uint32(TXCanAcceptData))
	})
	if err != nil {
		c.regs.ClearMask(RegCS, ^uint32(TransferActive))
		return 0, err
	}
	c.regs.Store(RegFIFO, uint32(b))

	err = core.WaitFor("spi transfer done", c.limit, func() bool {
		return c.regs.IsBitSet(RegCS, uint32(TransferDone))
	})
	if err != nil {
		c.regs.ClearMask(RegCS, ^uint32(TransferActive))
		return 0, err
	}
	in := byte(c.regs.Load(RegFIFO))
	c.regs.ClearMask(RegCS, ^uint32(TransferActive))
	return in, nil
}

// Tx exchanges a buffer byte by byte. w may be nil to clock out zeros and r
// may be nil to discard the input.
func (c *Controller) Tx(w, r []byte) error {
	n := len(w)
	switch {
	case w == nil:
		n = len(r)
	case r != nil && len(r) != len(w):
		return ErrLengthMismatch
	}

	c.regs.Lock()
	defer c.regs.Unlock()
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in, err := c.transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}
