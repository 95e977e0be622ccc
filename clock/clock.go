// Package clock drives the BCM2835 general purpose clock generators.
//
// Every write to a clock manager control or divider register must carry the
// manager password in its top byte, otherwise the hardware ignores it.
package clock

import (
	"math"
	"strings"

	"bcmio/core"
	"bcmio/gpio"
	"bcmio/regmap"
)

// Control and divider register bits
const (
	Password   uint32 = 0x5A000000
	EnableBit  uint32 = 1 << 4
	BusyBit    uint32 = 1 << 7
	sourceMask uint32 = 0xF
	mashShift         = 9
	mashMask   uint32 = 0b11 << mashShift
)

// Divisor limits
const (
	DivisorMax   = 0xFFF
	DivisorScale = DivisorMax + 1
	divisorShift = 12
)

// Channel is a clock generator and the pin its output can be routed to
type Channel struct {
	Name    string
	Control int
	Divider int
	Pin     int // -1 when the generator has no pin
}

// Clock generators
var (
	GP0 = Channel{Name: "GP0", Control: 28, Divider: 29, Pin: 4}
	GP1 = Channel{Name: "GP1", Control: 30, Divider: 31, Pin: 5}
	GP2 = Channel{Name: "GP2", Control: 32, Divider: 33, Pin: 6}
	PWM = Channel{Name: "PWM", Control: 40, Divider: 41, Pin: -1}
)

// Channels lists every generator
var Channels = []Channel{GP0, GP1, GP2, PWM}

// ChannelByName finds a channel such as "gp0" or "pwm"
func ChannelByName(name string) (Channel, error) {
	for _, ch := range Channels {
		if strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	return Channel{}, core.Invalid("clock channel", name, "")
}

// Source selects the generator input
type Source uint8

// Clock sources in hardware order
const (
	GND Source = iota
	Oscillator
	Test0
	Test1
	PLLA
	PLLC
	PLLD
	HDMI
)

var sourceNames = []string{"GND", "OSC", "TEST0", "TEST1", "PLLA", "PLLC", "PLLD", "HDMI"}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "INVALID"
}

// ParseSource accepts a source name such as "osc" or "plld"
func ParseSource(s string) (Source, error) {
	for i, name := range sourceNames {
		if strings.EqualFold(name, s) {
			return Source(i), nil
		}
	}
	if strings.EqualFold(s, "oscillator") {
		return Oscillator, nil
	}
	return 0, core.Invalid("clock source", s, "")
}

// Mash is the noise shaping stage count. Zero is plain integer division.
type Mash uint8

// MASH filter settings
const (
	MashInteger Mash = iota
	Mash1
	Mash2
	Mash3
)

// Divisor is a 12.12 fixed point division ratio
type Divisor struct {
	Int  int
	Frac int
}

// NewDivisor splits x into integer and fractional parts. Both parts must lie
// in [0, 4095].
func NewDivisor(x float64) (Divisor, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return Divisor{}, core.Invalid("divisor", x, "must be a non-negative number")
	}
	whole := math.Trunc(x)
	if whole > DivisorMax {
		return Divisor{}, core.Invalid("divisor", x, "integer part exceeds 4095")
	}
	d := Divisor{
		Int:  int(whole),
		Frac: int((x - whole) * DivisorScale),
	}
	return d, d.Validate()
}

// Validate checks both parts are in range
func (d Divisor) Validate() error {
	if d.Int < 0 || d.Int > DivisorMax {
		return core.Invalid("divisor integer part", d.Int, "must be 0..4095")
	}
	if d.Frac < 0 || d.Frac > DivisorMax {
		return core.Invalid("divisor fractional part", d.Frac, "must be 0..4095")
	}
	return nil
}

// Word encodes the divisor as a divider register value
func (d Divisor) Word() uint32 {
	return Password | uint32(d.Int)<<divisorShift | uint32(d.Frac)
}

// Float returns the ratio represented by d
func (d Divisor) Float() float64 {
	return float64(d.Int) + float64(d.Frac)/DivisorScale
}

// State is the observable state of a generator
type State int

const (
	StateReset State = iota
	StateDisabled
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	}
	return "unknown"
}

// Options tune a Controller
type Options struct {
	SpinLimit core.SpinLimit
}

// Controller drives the generators in one clock manager register file.
// Pin routing goes through the GPIO controller and is never done while the
// clock registers are locked.
type Controller struct {
	regs  *regmap.Map
	gpio  *gpio.Controller
	limit core.SpinLimit
}

// New creates a controller. gpio may be nil when no channel with a pin is
// enabled or disabled.
func New(regs *regmap.Map, g *gpio.Controller, opts Options) *Controller {
	return &Controller{regs: regs, gpio: g, limit: opts.SpinLimit}
}

func (c *Controller) check(ch Channel) error {
	if ch.Control < 0 || ch.Divider < 0 || ch.Control >= c.regs.Len() || ch.Divider >= c.regs.Len() {
		return core.Invalid("clock channel", ch.Name, "registers out of range")
	}
	return nil
}

// awaitIdle spins until the busy bit clears; caller holds the lock
func (c *Controller) awaitIdle(ch Channel) error {
	return core.WaitFor(ch.Name+" clock idle", c.limit, func() bool {
		return !c.regs.IsBitSet(ch.Control, BusyBit)
	})
}

// Reset writes the bare password to both registers and waits for idle
func (c *Controller) Reset(ch Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.Control, Password)
	c.regs.Store(ch.Divider, Password)
	return c.awaitIdle(ch)
}

// ConfigureSource selects the generator input
func (c *Controller) ConfigureSource(ch Channel, src Source) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if src > HDMI {
		return core.Invalid("clock source", src, "")
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetMasked(ch.Control, ^sourceMask, Password|uint32(src))
	return nil
}

// ConfigureMash selects the MASH filter stage count
func (c *Controller) ConfigureMash(ch Channel, m Mash) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if m > Mash3 {
		return core.Invalid("mash", m, "must be 0..3")
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.SetMasked(ch.Control, ^mashMask, Password|uint32(m)<<mashShift)
	return nil
}

// ConfigureDivisor sets the division ratio. Nothing is written when either
// part of x is out of range.
func (c *Controller) ConfigureDivisor(ch Channel, x float64) error {
	d, err := NewDivisor(x)
	if err != nil {
		return err
	}
	return c.ConfigureDivisorParts(ch, d)
}

// ConfigureDivisorParts sets a pre-split division ratio
func (c *Controller) ConfigureDivisorParts(ch Channel, d Divisor) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.Divider, d.Word())
	core.DebugAsyncf("[CLOCK] %s divisor %d.%d", ch.Name, d.Int, d.Frac)
	return nil
}

// Enable routes the channel pin to ALT0 and starts the generator
func (c *Controller) Enable(ch Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if err := c.route(ch, gpio.Alt0); err != nil {
		return err
	}
	c.enable(ch)
	return nil
}

func (c *Controller) enable(ch Channel) {
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.Control, c.regs.Load(ch.Control)|Password|EnableBit)
}

// Disable returns the channel pin to INPUT, stops the generator and waits for
// it to finish its current cycle.
func (c *Controller) Disable(ch Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if err := c.route(ch, gpio.Input); err != nil {
		return err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	c.regs.Store(ch.Control, (c.regs.Load(ch.Control)&^EnableBit)|Password)
	return c.awaitIdle(ch)
}

// Start routes the channel pin to ALT0, then resets, configures and enables
// the generator. Nothing is written when divisor is out of range.
func (c *Controller) Start(ch Channel, src Source, m Mash, divisor float64) error {
	d, err := NewDivisor(divisor)
	if err != nil {
		return err
	}
	if err := c.check(ch); err != nil {
		return err
	}
	if err := c.route(ch, gpio.Alt0); err != nil {
		return err
	}
	if err := c.Reset(ch); err != nil {
		return err
	}
	if err := c.ConfigureSource(ch, src); err != nil {
		return err
	}
	if err := c.ConfigureMash(ch, m); err != nil {
		return err
	}
	if err := c.ConfigureDivisorParts(ch, d); err != nil {
		return err
	}
	c.enable(ch)
	return nil
}

// State derives the generator state from its control register
func (c *Controller) State(ch Channel) (State, error) {
	if err := c.check(ch); err != nil {
		return 0, err
	}
	c.regs.Lock()
	defer c.regs.Unlock()
	ctl := c.regs.Load(ch.Control)
	switch {
	case ctl&EnableBit != 0:
		return StateEnabled, nil
	case ctl&^Password == 0 && c.regs.Load(ch.Divider)&^Password == 0:
		return StateReset, nil
	}
	return StateDisabled, nil
}

func (c *Controller) route(ch Channel, fn gpio.Function) error {
	if ch.Pin < 0 {
		return nil
	}
	if c.gpio == nil {
		return core.Invalid("clock channel", ch.Name, "has a pin but no gpio controller")
	}
	return c.gpio.SetFunction(ch.Pin, fn)
}
