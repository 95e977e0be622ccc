package gpio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/periph/conn/pin"

	"bcmio/core"
	"bcmio/regmap"
)

// fakeDelay records requested spins instead of waiting
type fakeDelay struct {
	spins []time.Duration
}

func (d *fakeDelay) Spin(t time.Duration)  { d.spins = append(d.spins, t) }
func (d *fakeDelay) Sleep(t time.Duration) {}

func newTestController() (*Controller, *regmap.Map, *fakeDelay) {
	regs := regmap.New(regmap.GPIO)
	delay := &fakeDelay{}
	return New(regs, Options{Delay: delay}), regs, delay
}

func TestBitfieldDerivation(t *testing.T) {
	for p := 0; p < PinCount; p++ {
		g, err := Lookup(p)
		if err != nil {
			t.Fatalf("Lookup(%d) failed: %v", p, err)
		}
		if g.FunctionRegister != p/10 {
			t.Errorf("pin %d: expected function register %d, got %d", p, p/10, g.FunctionRegister)
		}
		if g.FunctionOffset != uint(p%10)*3 {
			t.Errorf("pin %d: expected offset %d, got %d", p, (p%10)*3, g.FunctionOffset)
		}
		if g.FunctionMask != ^(uint32(7) << (uint(p%10) * 3)) {
			t.Errorf("pin %d: wrong function mask 0x%08x", p, g.FunctionMask)
		}
		if g.ValueGroup != p/32 || g.ValueOffset != uint(p%32) {
			t.Errorf("pin %d: wrong value group/offset %d/%d", p, g.ValueGroup, g.ValueOffset)
		}
		if g.Mask != 1<<uint(p%32) {
			t.Errorf("pin %d: wrong mask 0x%08x", p, g.Mask)
		}
		if g.SetRegister != 7+p/32 || g.ClearRegister != 10+p/32 ||
			g.LevelRegister != 13+p/32 || g.PullClockRegister != 38+p/32 {
			t.Errorf("pin %d: wrong value registers %+v", p, g)
		}
	}
}

func TestLookupOutOfRange(t *testing.T) {
	for _, p := range []int{-1, 54, 100} {
		if _, err := Lookup(p); !errors.Is(err, core.ErrConfiguration) {
			t.Errorf("Lookup(%d): expected configuration error, got %v", p, err)
		}
	}
}

func TestSetFunctionPin0(t *testing.T) {
	c, regs, _ := newTestController()
	regs.Store(0, 0xFFFFFFF8)

	if err := c.SetFunction(0, Alt2); err != nil {
		t.Fatal(err)
	}
	if got := regs.Load(0); got != 0xFFFFFFFE {
		t.Errorf("Expected 0xFFFFFFFE, got 0x%08x", got)
	}
}

func TestSetFunctionPin11(t *testing.T) {
	c, regs, _ := newTestController()
	regs.Store(1, 0x7<<3|0x5)

	if err := c.SetFunction(11, Output); err != nil {
		t.Fatal(err)
	}
	got := regs.Load(1)
	if (got>>3)&7 != 0b001 {
		t.Errorf("Expected bits 3..5 = 001, got %03b", (got>>3)&7)
	}
	if got&7 != 0x5 {
		t.Errorf("Expected neighbouring field untouched, got %03b", got&7)
	}
}

func TestFunctionRoundTrip(t *testing.T) {
	c, _, _ := newTestController()
	fns := []Function{Input, Output, Alt0, Alt1, Alt2, Alt3, Alt4, Alt5}
	for _, p := range []int{0, 9, 10, 31, 32, 53} {
		for _, fn := range fns {
			if err := c.SetFunction(p, fn); err != nil {
				t.Fatal(err)
			}
			got, err := c.Function(p)
			if err != nil {
				t.Fatal(err)
			}
			if got != fn {
				t.Errorf("pin %d: expected %s, got %s", p, fn, got)
			}
		}
	}
}

func TestConcurrentSetFunction(t *testing.T) {
	c, regs, _ := newTestController()

	// Pins 0..9 share GPFSEL0 and 10..12 share GPFSEL1
	tests := []struct {
		pin int
		fn  Function
	}{
		{0, Output},
		{1, Alt0},
		{2, Alt1},
		{3, Alt2},
		{4, Alt3},
		{5, Alt4},
		{6, Alt5},
		{7, Output},
		{8, Alt0},
		{9, Alt3},
		{10, Alt5},
		{11, Output},
		{12, Alt4},
	}

	var wg sync.WaitGroup
	for _, tt := range tests {
		wg.Add(1)
		go func(pin int, fn Function) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				// Bounce through INPUT so every round is a real read-modify-write
				if err := c.SetFunction(pin, Input); err != nil {
					t.Error(err)
					return
				}
				if err := c.SetFunction(pin, fn); err != nil {
					t.Error(err)
					return
				}
			}
		}(tt.pin, tt.fn)
	}
	wg.Wait()

	for _, tt := range tests {
		got, err := c.Function(tt.pin)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.fn {
			t.Errorf("pin %d: expected %s, got %s (lost update)", tt.pin, tt.fn, got)
		}
	}
	if regs.Load(2) != 0 {
		t.Errorf("Expected GPFSEL2 untouched, got 0x%08x", regs.Load(2))
	}
}

func TestSetValueWritesSetAndClear(t *testing.T) {
	c, regs, _ := newTestController()

	if err := c.SetValue(35, true); err != nil {
		t.Fatal(err)
	}
	if got := regs.Load(RegSet + 1); got != 1<<3 {
		t.Errorf("Expected GPSET1 = 0x8, got 0x%08x", got)
	}
	if err := c.SetValue(4, false); err != nil {
		t.Fatal(err)
	}
	if got := regs.Load(RegClear); got != 1<<4 {
		t.Errorf("Expected GPCLR0 = 0x10, got 0x%08x", got)
	}
}

func TestValueReadsLevel(t *testing.T) {
	c, regs, _ := newTestController()
	regs.Store(RegLevel, 1<<17)

	v, err := c.Value(17)
	if err != nil || !v {
		t.Errorf("Expected pin 17 high, got %v %v", v, err)
	}
	v, _ = c.Value(18)
	if v {
		t.Error("Expected pin 18 low")
	}
}

func TestToggle(t *testing.T) {
	c, regs, _ := newTestController()
	regs.Store(RegLevel, 1<<5)

	next, err := c.Toggle(5)
	if err != nil || next {
		t.Fatalf("Expected toggle to low, got %v %v", next, err)
	}
	if regs.Load(RegClear) != 1<<5 {
		t.Errorf("Expected GPCLR0 write, got 0x%08x", regs.Load(RegClear))
	}
}

func TestSetResistorSequence(t *testing.T) {
	c, regs, delay := newTestController()

	type write struct {
		index int
		value uint32
	}
	var writes []write
	regs.SetTrace(func(index int, value uint32) {
		writes = append(writes, write{index, value})
	})

	if err := c.SetResistor(33, PullUp); err != nil {
		t.Fatal(err)
	}
	want := []write{
		{RegPull, uint32(PullUp)},
		{RegPullClock + 1, 1 << 1},
		{RegPull, 0},
		{RegPullClock + 1, 0},
	}
	if len(writes) != len(want) {
		t.Fatalf("Expected %d writes, got %v", len(want), writes)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Errorf("write %d: expected %+v, got %+v", i, want[i], writes[i])
		}
	}
	if len(delay.spins) != 2 || delay.spins[0] < 1000*time.Nanosecond || delay.spins[1] < 1000*time.Nanosecond {
		t.Errorf("Expected two spins of at least 1us, got %v", delay.spins)
	}
}

func TestInvalidArgumentsWriteNothing(t *testing.T) {
	c, regs, _ := newTestController()
	writes := 0
	regs.SetTrace(func(int, uint32) { writes++ })

	if err := c.SetFunction(54, Output); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
	if err := c.SetFunction(3, Function(8)); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
	if err := c.SetResistor(3, Resistor(3)); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
	if writes != 0 {
		t.Errorf("Expected no writes, got %d", writes)
	}
}

func TestParseFunction(t *testing.T) {
	tests := []struct {
		in   string
		want Function
	}{
		{"input", Input},
		{"out", Output},
		{"ALT0", Alt0},
		{"alt4", Alt4},
		{"alt5", Alt5},
	}
	for _, tt := range tests {
		got, err := ParseFunction(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFunction(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFunction("alt9"); err == nil {
		t.Error("Expected error for alt9")
	}
}

func TestLine(t *testing.T) {
	c, regs, _ := newTestController()
	l, err := c.Output(17)
	if err != nil {
		t.Fatal(err)
	}
	if l.Name() != "GPIO17" || l.Number() != 17 {
		t.Errorf("Unexpected identity %s/%d", l.Name(), l.Number())
	}
	if l.Function() != "OUTPUT" {
		t.Errorf("Expected OUTPUT, got %s", l.Function())
	}
	if err := l.Set(true); err != nil {
		t.Fatal(err)
	}
	if regs.Load(RegSet) != 1<<17 {
		t.Errorf("Expected GPSET0 write, got 0x%08x", regs.Load(RegSet))
	}
	if err := l.Halt(); err != nil {
		t.Fatal(err)
	}
	if l.Function() != "INPUT" {
		t.Errorf("Expected INPUT after Halt, got %s", l.Function())
	}
}

func TestDigitalPort(t *testing.T) {
	c, regs, _ := newTestController()
	p, err := NewDigitalPort(c, 22, 23)
	if err != nil {
		t.Fatal(err)
	}
	if fn, _ := c.Function(23); fn != Output {
		t.Errorf("Expected pin 23 OUTPUT, got %s", fn)
	}

	if err := p.SetPinValue(1, true); err != nil {
		t.Fatal(err)
	}
	if regs.Load(RegSet) != 1<<23 {
		t.Errorf("Expected GPSET0 = pin 23, got 0x%08x", regs.Load(RegSet))
	}
	if v, _ := p.PinValue(1); !v {
		t.Error("Expected port pin 1 high")
	}
}

func TestHeader(t *testing.T) {
	if p, err := HeaderPin(11); err != nil || p != 17 {
		t.Errorf("Expected header 11 -> 17, got %d %v", p, err)
	}
	if _, err := HeaderPin(1); err == nil {
		t.Error("Expected error for power pin")
	}
	if len(HeaderPositions()) != len(P1) {
		t.Errorf("Expected %d positions", len(P1))
	}

	c, _, _ := newTestController()
	rows := c.Header()
	if len(rows) != 2 || len(rows[0]) != 13 {
		t.Fatalf("Unexpected header shape")
	}
	// Position 3 is the second pin of the odd row
	if rows[0][1].Number() != 0 {
		t.Errorf("Expected position 3 to be GPIO0, got %s", rows[0][1])
	}
	if rows[1][2] != pin.GROUND {
		t.Errorf("Expected position 6 to be ground, got %s", rows[1][2])
	}
}
