package gpio

import (
	"strings"

	"bcmio/core"
)

// PinCount is the number of GPIO lines on the BCM2835
const PinCount = 54

// Register layout of the GPIO block, in 32-bit words
const (
	RegFunctionSelect = 0  // GPFSEL0..5
	RegSet            = 7  // GPSET0..1
	RegClear          = 10 // GPCLR0..1
	RegLevel          = 13 // GPLEV0..1
	RegPull           = 37 // GPPUD
	RegPullClock      = 38 // GPPUDCLK0..1
)

// Function is a 3-bit function select code
type Function uint8

// Function select codes
const (
	Input  Function = 0b000
	Output Function = 0b001
	Alt0   Function = 0b100
	Alt1   Function = 0b101
	Alt2   Function = 0b110
	Alt3   Function = 0b111
	Alt4   Function = 0b011
	Alt5   Function = 0b010
)

var functionNames = [8]string{
	Input:  "INPUT",
	Output: "OUTPUT",
	Alt0:   "ALT0",
	Alt1:   "ALT1",
	Alt2:   "ALT2",
	Alt3:   "ALT3",
	Alt4:   "ALT4",
	Alt5:   "ALT5",
}

func (f Function) String() string {
	if f > 7 {
		return "INVALID"
	}
	return functionNames[f]
}

// ParseFunction accepts a function name such as "output" or "alt0"
func ParseFunction(s string) (Function, error) {
	up := strings.ToUpper(s)
	for code, name := range functionNames {
		if name == up {
			return Function(code), nil
		}
	}
	switch up {
	case "IN":
		return Input, nil
	case "OUT":
		return Output, nil
	}
	return 0, core.Invalid("function", s, "")
}

// Resistor is a pull resistor mode
type Resistor uint8

// Pull resistor modes
const (
	PullOff  Resistor = 0b00
	PullDown Resistor = 0b01
	PullUp   Resistor = 0b10
)

func (r Resistor) String() string {
	switch r {
	case PullOff:
		return "OFF"
	case PullDown:
		return "DOWN"
	case PullUp:
		return "UP"
	}
	return "INVALID"
}

// ParseResistor accepts "off", "down" or "up"
func ParseResistor(s string) (Resistor, error) {
	switch strings.ToUpper(s) {
	case "OFF", "NONE":
		return PullOff, nil
	case "DOWN":
		return PullDown, nil
	case "UP":
		return PullUp, nil
	}
	return 0, core.Invalid("resistor", s, "")
}

// FunctionRegister returns the function select register holding pin
func FunctionRegister(pin int) int { return RegFunctionSelect + pin/10 }

// FunctionOffset returns the bit offset of pin's 3-bit function field
func FunctionOffset(pin int) uint { return uint(pin%10) * 3 }

// FunctionMask returns the inverse mask clearing pin's function field
func FunctionMask(pin int) uint32 { return ^(uint32(0b111) << FunctionOffset(pin)) }

// ValueGroup returns which of the two value register banks holds pin
func ValueGroup(pin int) int { return pin / 32 }

// ValueOffset returns the bit offset of pin within its value bank
func ValueOffset(pin int) uint { return uint(pin % 32) }

// PinMask returns the single-bit mask of pin within its value bank
func PinMask(pin int) uint32 { return 1 << ValueOffset(pin) }

// Geometry is the register layout derived from a pin number
type Geometry struct {
	Pin               int
	FunctionRegister  int
	FunctionOffset    uint
	FunctionMask      uint32
	ValueGroup        int
	ValueOffset       uint
	Mask              uint32
	SetRegister       int
	ClearRegister     int
	LevelRegister     int
	PullClockRegister int
}

var (
	geometry [PinCount]Geometry

	// shifted[code][pin%10] is a function code moved into its field
	shifted [8][10]uint32
)

func init() {
	for code := 0; code < 8; code++ {
		for slot := 0; slot < 10; slot++ {
			shifted[code][slot] = uint32(code) << (uint(slot) * 3)
		}
	}
	for p := 0; p < PinCount; p++ {
		group := ValueGroup(p)
		geometry[p] = Geometry{
			Pin:               p,
			FunctionRegister:  FunctionRegister(p),
			FunctionOffset:    FunctionOffset(p),
			FunctionMask:      FunctionMask(p),
			ValueGroup:        group,
			ValueOffset:       ValueOffset(p),
			Mask:              PinMask(p),
			SetRegister:       RegSet + group,
			ClearRegister:     RegClear + group,
			LevelRegister:     RegLevel + group,
			PullClockRegister: RegPullClock + group,
		}
	}
}

// Lookup returns the precomputed geometry for pin
func Lookup(pin int) (Geometry, error) {
	if pin < 0 || pin >= PinCount {
		return Geometry{}, core.Invalid("pin", pin, "must be 0..53")
	}
	return geometry[pin], nil
}

// FunctionValue returns fn shifted into this pin's function field
func (g Geometry) FunctionValue(fn Function) uint32 {
	return shifted[fn&7][g.Pin%10]
}
