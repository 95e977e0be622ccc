package pwm

import (
	"bcmio/core"
	"bcmio/gpio"
	"bcmio/port"
)

// Route is a GPIO that can carry a PWM channel
type Route struct {
	Pin      int
	Function gpio.Function
	Channel  Channel
}

// Routes lists every GPIO with a PWM alternate function
var Routes = []Route{
	{Pin: 12, Function: gpio.Alt0, Channel: Channel0},
	{Pin: 13, Function: gpio.Alt0, Channel: Channel1},
	{Pin: 18, Function: gpio.Alt5, Channel: Channel0},
	{Pin: 19, Function: gpio.Alt5, Channel: Channel1},
	{Pin: 40, Function: gpio.Alt0, Channel: Channel0},
	{Pin: 41, Function: gpio.Alt0, Channel: Channel1},
	{Pin: 45, Function: gpio.Alt0, Channel: Channel1},
	{Pin: 52, Function: gpio.Alt1, Channel: Channel0},
	{Pin: 53, Function: gpio.Alt1, Channel: Channel1},
}

// RouteFor returns the PWM route of a GPIO
func RouteFor(pin int) (Route, error) {
	for _, r := range Routes {
		if r.Pin == pin {
			return r, nil
		}
	}
	return Route{}, core.Invalid("pwm pin", pin, "has no PWM function")
}

// EnablePin routes r's GPIO to its PWM function and enables the channel
func (c *Controller) EnablePin(r Route) error {
	if c.gpio == nil {
		return core.Invalid("pwm pin", r.Pin, "no gpio controller")
	}
	if err := c.gpio.SetFunction(r.Pin, r.Function); err != nil {
		return err
	}
	return c.SetControl(r.Channel, Enable)
}

// DisablePin returns r's GPIO to INPUT and disables the channel
func (c *Controller) DisablePin(r Route) error {
	if c.gpio == nil {
		return core.Invalid("pwm pin", r.Pin, "no gpio controller")
	}
	if err := c.gpio.SetFunction(r.Pin, gpio.Input); err != nil {
		return err
	}
	return c.ClearControl(r.Channel, Enable)
}

// SetPinRange disables r before writing its channel range
func (c *Controller) SetPinRange(r Route, rng uint32) error {
	if err := c.DisablePin(r); err != nil {
		return err
	}
	return c.SetRange(r.Channel, rng)
}

// DutyRange is the channel range used by Device
const DutyRange = 255

// Device exposes PWM routes as byte-valued port pins. Each value is a duty
// cycle out of DutyRange and is written straight to the data register.
type Device struct {
	port.NoFlush
	c      *Controller
	routes []Route
	duty   []uint8
}

// NewPort enables routes in mark-space mode with range DutyRange and groups
// them into a Port.
func NewPort(c *Controller, routes ...Route) (*port.Port[uint8], error) {
	if len(routes) == 0 {
		return nil, core.Invalid("pwm routes", routes, "at least one route is required")
	}
	d := &Device{c: c, routes: routes, duty: make([]uint8, len(routes))}
	for _, r := range routes {
		if err := c.SetPinRange(r, DutyRange); err != nil {
			return nil, err
		}
		if err := c.SetData(r.Channel, 0); err != nil {
			return nil, err
		}
		if err := c.SetControl(r.Channel, MSEnable); err != nil {
			return nil, err
		}
		if err := c.EnablePin(r); err != nil {
			return nil, err
		}
	}
	return port.New[uint8](d, len(routes)), nil
}

// ApplyChange writes the duty cycle and reports whether it changed
func (d *Device) ApplyChange(i int, value uint8) (bool, error) {
	if err := d.c.SetData(d.routes[i].Channel, uint32(value)); err != nil {
		return false, err
	}
	if d.duty[i] == value {
		return false, nil
	}
	d.duty[i] = value
	return true, nil
}

// PinValue returns the last written duty cycle
func (d *Device) PinValue(i int) uint8 {
	return d.duty[i]
}
