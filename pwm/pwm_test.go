package pwm

import (
	"errors"
	"testing"

	"bcmio/core"
	"bcmio/gpio"
	"bcmio/regmap"
)

func newTestController() (*Controller, *regmap.Map, *gpio.Controller) {
	regs := regmap.New(regmap.PWM)
	g := gpio.New(regmap.New(regmap.GPIO), gpio.Options{})
	return New(regs, g), regs, g
}

func TestControlBitsShiftPerChannel(t *testing.T) {
	c, regs, _ := newTestController()

	if err := c.SetControl(Channel0, MSEnable); err != nil {
		t.Fatal(err)
	}
	if err := c.SetControl(Channel1, Enable); err != nil {
		t.Fatal(err)
	}
	if got := regs.Load(RegControl); got != 0x0180 {
		t.Errorf("Expected 0x0180, got 0x%04x", got)
	}

	if err := c.SetControlValue(Channel0, MSEnable, false); err != nil {
		t.Fatal(err)
	}
	if got := regs.Load(RegControl); got != 0x0100 {
		t.Errorf("Expected 0x0100, got 0x%04x", got)
	}
	if on, _ := c.ControlSet(Channel1, Enable); !on {
		t.Error("Expected channel 1 enabled")
	}
}

func TestRangeAndData(t *testing.T) {
	c, regs, _ := newTestController()
	c.SetRange(Channel0, 1024)
	c.SetData(Channel1, 77)
	if regs.Load(4) != 1024 {
		t.Errorf("Expected range register 4 = 1024, got %d", regs.Load(4))
	}
	if regs.Load(9) != 77 {
		t.Errorf("Expected data register 9 = 77, got %d", regs.Load(9))
	}
	if err := c.SetData(Channel(2), 1); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	c, regs, _ := newTestController()
	regs.Store(RegStatus, uint32(Channel1State|FIFOEmpty))
	if !c.Status(Channel1State) || !c.Status(FIFOEmpty) || c.Status(BusError) {
		t.Error("Unexpected status flags")
	}
}

func TestPinRoutes(t *testing.T) {
	c, regs, g := newTestController()
	r, err := RouteFor(18)
	if err != nil {
		t.Fatal(err)
	}
	if r.Function != gpio.Alt5 || r.Channel != Channel0 {
		t.Errorf("Unexpected route %+v", r)
	}

	if err := c.EnablePin(r); err != nil {
		t.Fatal(err)
	}
	if fn, _ := g.Function(18); fn != gpio.Alt5 {
		t.Errorf("Expected pin 18 ALT5, got %s", fn)
	}
	if regs.Load(RegControl)&0x1 == 0 {
		t.Error("Expected channel 0 enabled")
	}

	if err := c.SetPinRange(r, 500); err != nil {
		t.Fatal(err)
	}
	if fn, _ := g.Function(18); fn != gpio.Input {
		t.Errorf("Expected pin 18 INPUT after range change, got %s", fn)
	}
	if regs.Load(RegControl)&0x1 != 0 {
		t.Error("Expected channel 0 disabled")
	}
	if regs.Load(4) != 500 {
		t.Errorf("Expected range 500, got %d", regs.Load(4))
	}

	if _, err := RouteFor(17); err == nil {
		t.Error("Expected error for pin without PWM")
	}
}

func TestPort(t *testing.T) {
	c, regs, _ := newTestController()
	r0, _ := RouteFor(12)
	r1, _ := RouteFor(13)
	p, err := NewPort(c, r0, r1)
	if err != nil {
		t.Fatal(err)
	}
	if regs.Load(RegControl) != 0x8181 {
		t.Errorf("Expected both channels enabled in M/S mode, got 0x%04x", regs.Load(RegControl))
	}
	if regs.Load(8) != DutyRange {
		t.Errorf("Expected channel 1 range %d, got %d", DutyRange, regs.Load(8))
	}

	if err := p.SetPinValue(1, 128); err != nil {
		t.Fatal(err)
	}
	if regs.Load(9) != 128 {
		t.Errorf("Expected channel 1 data 128, got %d", regs.Load(9))
	}
	if v, _ := p.PinValue(1); v != 128 {
		t.Errorf("Expected port value 128, got %d", v)
	}
}
