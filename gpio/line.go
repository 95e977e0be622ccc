package gpio

import (
	"strconv"

	"periph.io/x/periph/conn/pin"

	"bcmio/core"
	"bcmio/port"
)

// Line is a single GPIO bound to its controller. It satisfies port.Line and
// periph's pin.Pin.
type Line struct {
	c    *Controller
	geom Geometry
}

var (
	_ port.Line = (*Line)(nil)
	_ pin.Pin   = (*Line)(nil)
)

// Line returns a handle for pin
func (c *Controller) Line(p int) (*Line, error) {
	g, err := Lookup(p)
	if err != nil {
		return nil, err
	}
	return &Line{c: c, geom: g}, nil
}

// Output routes the line to OUTPUT and returns it
func (c *Controller) Output(p int) (*Line, error) {
	l, err := c.Line(p)
	if err != nil {
		return nil, err
	}
	if err := c.SetFunction(p, Output); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Line) String() string { return l.Name() }

// Halt returns the line to INPUT
func (l *Line) Halt() error {
	return l.c.SetFunction(l.geom.Pin, Input)
}

// Name returns the BCM name of the line, e.g. GPIO17
func (l *Line) Name() string { return "GPIO" + strconv.Itoa(l.geom.Pin) }

// Number returns the BCM pin number
func (l *Line) Number() int { return l.geom.Pin }

// Function returns the name of the selected function
func (l *Line) Function() string {
	fn, err := l.c.Function(l.geom.Pin)
	if err != nil {
		return ""
	}
	return fn.String()
}

// Geometry returns the register layout of the line
func (l *Line) Geometry() Geometry { return l.geom }

// Set drives the line
func (l *Line) Set(high bool) error {
	l.c.regs.Lock()
	defer l.c.regs.Unlock()
	l.c.setValue(l.geom, high)
	return nil
}

// Read returns the line level
func (l *Line) Read() bool {
	l.c.regs.Lock()
	defer l.c.regs.Unlock()
	return l.c.regs.IsBitSet(l.geom.LevelRegister, l.geom.Mask)
}

// SetFunction routes the line to fn
func (l *Line) SetFunction(fn Function) error {
	return l.c.SetFunction(l.geom.Pin, fn)
}

// SetResistor selects the line's pull resistor
func (l *Line) SetResistor(r Resistor) error {
	return l.c.SetResistor(l.geom.Pin, r)
}

// Digital applies port writes straight to GPIO lines
type Digital struct {
	port.NoFlush
	lines  []*Line
	values []bool
}

// NewDigitalPort groups pins into a digital Port. Every pin is routed to
// OUTPUT and driven low.
func NewDigitalPort(c *Controller, pins ...int) (*port.Port[bool], error) {
	if len(pins) == 0 {
		return nil, core.Invalid("pins", pins, "at least one pin is required")
	}
	d := &Digital{values: make([]bool, len(pins))}
	for _, p := range pins {
		l, err := c.Output(p)
		if err != nil {
			return nil, err
		}
		if err := l.Set(false); err != nil {
			return nil, err
		}
		d.lines = append(d.lines, l)
	}
	return port.New[bool](d, len(pins)), nil
}

// ApplyChange drives the line and reports whether the value changed
func (d *Digital) ApplyChange(i int, value bool) (bool, error) {
	if err := d.lines[i].Set(value); err != nil {
		return false, err
	}
	if d.values[i] == value {
		return false, nil
	}
	d.values[i] = value
	return true, nil
}

// PinValue returns the last driven value
func (d *Digital) PinValue(i int) bool {
	return d.values[i]
}
