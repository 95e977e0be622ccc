// Package gpio configures and drives BCM2835 GPIO lines through the GPIO
// register file.
package gpio

import (
	"time"

	"bcmio/core"
	"bcmio/regmap"
)

// DefaultResistorSettle is the setup and hold time of the pull resistor
// control signal. The datasheet asks for 150 cycles of the 250MHz bus clock.
const DefaultResistorSettle = 1000 * time.Nanosecond

// Options tune a Controller
type Options struct {
	Delay          core.Delayer
	ResistorSettle time.Duration
}

// Controller serializes all access to one GPIO register file
type Controller struct {
	regs   *regmap.Map
	delay  core.Delayer
	settle time.Duration
}

// New creates a controller over the GPIO register file
func New(regs *regmap.Map, opts Options) *Controller {
	c := &Controller{
		regs:   regs,
		delay:  opts.Delay,
		settle: opts.ResistorSettle,
	}
	if c.delay == nil {
		c.delay = core.DefaultDelayer()
	}
	if c.settle <= 0 {
		c.settle = DefaultResistorSettle
	}
	return c
}

// Registers returns the underlying register file
func (c *Controller) Registers() *regmap.Map {
	return c.regs
}

// SetFunction routes pin to fn
func (c *Controller) SetFunction(pin int, fn Function) error {
	g, err := Lookup(pin)
	if err != nil {
		return err
	}
	if fn > 7 {
		return core.Invalid("function", fn, "")
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetMasked(g.FunctionRegister, g.FunctionMask, g.FunctionValue(fn))
	core.DebugAsyncf("[GPIO] pin %d -> %s", pin, fn)
	return nil
}

// Function reads back the function currently selected for pin
func (c *Controller) Function(pin int) (Function, error) {
	g, err := Lookup(pin)
	if err != nil {
		return 0, err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	return Function((c.regs.Load(g.FunctionRegister) >> g.FunctionOffset) & 0b111), nil
}

// SetValue drives pin high (true) or low (false)
func (c *Controller) SetValue(pin int, value bool) error {
	g, err := Lookup(pin)
	if err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.setValue(g, value)
	return nil
}

// setValue writes the set or clear register; caller holds the lock
func (c *Controller) setValue(g Geometry, value bool) {
	if value {
		c.regs.Store(g.SetRegister, g.Mask)
	} else {
		c.regs.Store(g.ClearRegister, g.Mask)
	}
}

// Value reads the level of pin
func (c *Controller) Value(pin int) (bool, error) {
	g, err := Lookup(pin)
	if err != nil {
		return false, err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	return c.regs.IsBitSet(g.LevelRegister, g.Mask), nil
}

// Toggle inverts the level of pin and returns the new level
func (c *Controller) Toggle(pin int) (bool, error) {
	g, err := Lookup(pin)
	if err != nil {
		return false, err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	next := !c.regs.IsBitSet(g.LevelRegister, g.Mask)
	c.setValue(g, next)
	return next, nil
}

// SetResistor selects the pull resistor of pin. The control word is clocked
// into the pad with fixed setup and hold times, then both registers are
// cleared again.
func (c *Controller) SetResistor(pin int, r Resistor) error {
	g, err := Lookup(pin)
	if err != nil {
		return err
	}
	if r > PullUp {
		return core.Invalid("resistor", r, "")
	}
	c.regs.Lock()
	defer c.regs.Unlock()

	c.regs.Store(RegPull, uint32(r))
	c.delay.Spin(c.settle)
	c.regs.Store(g.PullClockRegister, g.Mask)
	c.delay.Spin(c.settle)
	c.regs.Store(RegPull, 0)
	c.regs.Store(g.PullClockRegister, 0)
	core.DebugAsyncf("[GPIO] pin %d pull %s", pin, r)
	return nil
}
