// Package pwm drives the two BCM2835 PWM channels.
package pwm

import (
	"bcmio/core"
	"bcmio/gpio"
	"bcmio/regmap"
)

// Registers of the PWM block, in 32-bit words
const (
	RegControl = 0
	RegStatus  = 1
)

// Channel is PWM channel 0 or 1
type Channel int

const (
	Channel0 Channel = 0
	Channel1 Channel = 1
)

// RangeRegister returns the channel's range register
func (ch Channel) RangeRegister() int { return 4 + 4*int(ch) }

// DataRegister returns the channel's data register
func (ch Channel) DataRegister() int { return 5 + 4*int(ch) }

func (ch Channel) valid() error {
	if ch != Channel0 && ch != Channel1 {
		return core.Invalid("pwm channel", int(ch), "must be 0 or 1")
	}
	return nil
}

// Control is a channel 0 control bit. Channel 1 bits sit 8 bits higher.
type Control uint32

// Control register bits
const (
	Enable     Control = 0x01
	Mode       Control = 0x02 // serializer mode
	RepeatLast Control = 0x04
	Silence    Control = 0x08
	Polarity   Control = 0x10
	UseFIFO    Control = 0x20
	ClearFIFO  Control = 0x40
	MSEnable   Control = 0x80 // mark-space mode
)

// Shifted returns the control bit positioned for ch
func (c Control) Shifted(ch Channel) uint32 {
	return uint32(c) << (8 * uint(ch))
}

// Status is a status register flag
type Status uint32

// Status register flags
const (
	FIFOFull      Status = 0x1
	FIFOEmpty     Status = 0x2
	FIFOWriteErr  Status = 0x4
	FIFOReadErr   Status = 0x8
	Channel1Gap   Status = 0x10
	Channel2Gap   Status = 0x20
	BusError      Status = 0x100
	Channel1State Status = 0x200
	Channel2State Status = 0x400
)

// Controller drives the PWM register file. Pin routing goes through the GPIO
// controller outside the PWM lock.
type Controller struct {
	regs *regmap.Map
	gpio *gpio.Controller
}

// New creates a PWM controller
func New(regs *regmap.Map, g *gpio.Controller) *Controller {
	return &Controller{regs: regs, gpio: g}
}

// SetControl sets a control bit for ch
func (c *Controller) SetControl(ch Channel, ctl Control) error {
	if err := ch.valid(); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetBits(RegControl, ctl.Shifted(ch))
	return nil
}

// ClearControl clears a control bit for ch
func (c *Controller) ClearControl(ch Channel, ctl Control) error {
	if err := ch.valid(); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.ClearMask(RegControl, ^ctl.Shifted(ch))
	return nil
}

// SetControlValue sets or clears a control bit for ch
func (c *Controller) SetControlValue(ch Channel, ctl Control, value bool) error {
	if value {
		return c.SetControl(ch, ctl)
	}
	return c.ClearControl(ch, ctl)
}

// ControlSet reports whether a control bit is set for ch
func (c *Controller) ControlSet(ch Channel, ctl Control) (bool, error) {
	if err := ch.valid(); err != nil {
		return false, err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	return c.regs.IsBitSet(RegControl, ctl.Shifted(ch)), nil
}

// Status reports whether a status flag is set
func (c *Controller) Status(flag Status) bool {
	c.regs.Lock()
	defer c.regs.Unlock()
	return c.regs.IsBitSet(RegStatus, uint32(flag))
}

// SetRange writes the channel's range register
func (c *Controller) SetRange(ch Channel, rng uint32) error {
	if err := ch.valid(); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.RangeRegister(), rng)
	return nil
}

// SetData writes the channel's data register
func (c *Controller) SetData(ch Channel, data uint32) error {
	if err := ch.valid(); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.DataRegister(), data)
	return nil
}
