package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"bcmio/clock"
	"bcmio/core"
	"bcmio/gpio"
	"bcmio/host/board"
	"bcmio/port"
	"bcmio/port/shift595"
	"bcmio/pwm"
	"bcmio/spi"
)

// session holds the state shared by console commands
type session struct {
	board *board.Board
	out   io.Writer
	delay core.Delayer
	owner *port.Owner

	shift *port.Port[bool]
}

func newSession(b *board.Board, out io.Writer, delay core.Delayer) *session {
	if delay == nil {
		delay = core.DefaultDelayer()
	}
	return &session{board: b, out: out, delay: delay, owner: port.NewOwner("console")}
}

type command struct {
	usage string
	run   func(s *session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"fsel":   {"fsel PIN FUNCTION       - Select pin function (input, output, alt0..alt5)", (*session).fsel},
		"get":    {"get PIN                 - Read pin level", (*session).get},
		"set":    {"set PIN 0|1             - Drive pin low or high", (*session).set},
		"toggle": {"toggle PIN              - Invert pin level", (*session).toggle},
		"pull":   {"pull PIN off|down|up    - Select pull resistor", (*session).pull},
		"blink":  {"blink [PIN] [-n N] [-ms MS]  - Blink an output", (*session).blink},
		"input":  {"input [PIN] [-pull up] [-n N] [-ms MS]  - Sample an input", (*session).input},
		"clock":  {"clock [-channel gp0] [-source osc] [-mash 0] [-div D] [-state] [-stop]", (*session).clock},
		"pulse":  {"pulse [-ms MS] [-n N]   - Run GP0 then blink its pin", (*session).pulse},
		"pwm":    {"pwm PIN [-range R] [-data D] [-off]  - Drive a PWM pin", (*session).pwm},
		"fade":   {"fade [PIN] [-range R] [-ms MS]  - Fade a PWM pin up and down", (*session).fade},
		"spi":    {"spi [-cs 0] [-mode 0] [-div 65536] [-hex] DATA  - Exchange bytes on SPI0", (*session).spi},
		"shift":  {"shift [-random] [-n N] [-ms MS] BITS  - Write bits to the 595 chain", (*session).shiftBits},
		"scan":   {"scan [-n N] [-ms MS]    - Sweep one lit bit along the 595 chain", (*session).scan},
		"dump":   {"dump gpio|clock|pwm|spi0  - Print a register file in binary", (*session).dump},
		"trace":  {"trace on|off|show       - Capture register stores", (*session).trace},
		"header": {"header                  - Print the P1 header map", (*session).header},
	}
}

// run executes one command line already split into words
func (s *session) run(args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", args[0])
	}
	return cmd.run(s, args[1:])
}

func (s *session) pin(name string) (int, error) {
	return s.board.Config.ResolvePin(name)
}

func (s *session) pinArg(args []string, def string) (int, error) {
	if len(args) > 0 {
		return s.pin(args[0])
	}
	return s.pin(def)
}

// intParm parses an integer option, using def when it is absent
func intParm(parm *parms.Parms, name string, def int) (int, error) {
	v := parm.ByName[name]
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, core.Invalid("number", v, ""))
	}
	return n, nil
}

func floatParm(parm *parms.Parms, name string, def float64) (float64, error) {
	v := parm.ByName[name]
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, core.Invalid("number", v, ""))
	}
	return f, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (s *session) fsel(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: fsel PIN FUNCTION")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	fn, err := gpio.ParseFunction(args[1])
	if err != nil {
		return err
	}
	return s.board.GPIO.SetFunction(p, fn)
}

func (s *session) get(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get PIN")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	v, err := s.board.GPIO.Value(p)
	if err != nil {
		return err
	}
	fn, _ := s.board.GPIO.Function(p)
	fmt.Fprintf(s.out, "GPIO%d %s %v\n", p, fn, v)
	return nil
}

func (s *session) set(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set PIN 0|1")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseBool(args[1])
	if err != nil {
		return core.Invalid("value", args[1], "want 0 or 1")
	}
	return s.board.GPIO.SetValue(p, v)
}

func (s *session) toggle(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: toggle PIN")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	v, err := s.board.GPIO.Toggle(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "GPIO%d %v\n", p, v)
	return nil
}

func (s *session) pull(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: pull PIN off|down|up")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	r, err := gpio.ParseResistor(args[1])
	if err != nil {
		return err
	}
	return s.board.GPIO.SetResistor(p, r)
}

func (s *session) blink(args []string) error {
	parm, args := parms.New(args, "-n", "-ms")
	p, err := s.pinArg(args, "p1-11")
	if err != nil {
		return err
	}
	n, err := intParm(parm, "-n", 10)
	if err != nil {
		return err
	}
	period, err := intParm(parm, "-ms", 500)
	if err != nil {
		return err
	}

	l, err := s.board.GPIO.Output(p)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		l.Set(true)
		s.delay.Sleep(ms(period))
		l.Set(false)
		s.delay.Sleep(ms(period))
	}
	return nil
}

func (s *session) input(args []string) error {
	parm, args := parms.New(args, "-pull", "-n", "-ms")
	p, err := s.pinArg(args, "p1-15")
	if err != nil {
		return err
	}
	pullName := parm.ByName["-pull"]
	if pullName == "" {
		pullName = "up"
	}
	r, err := gpio.ParseResistor(pullName)
	if err != nil {
		return err
	}
	n, err := intParm(parm, "-n", 10)
	if err != nil {
		return err
	}
	interval, err := intParm(parm, "-ms", 200)
	if err != nil {
		return err
	}

	if err := s.board.GPIO.SetFunction(p, gpio.Input); err != nil {
		return err
	}
	if err := s.board.GPIO.SetResistor(p, r); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, err := s.board.GPIO.Value(p)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
		s.delay.Sleep(ms(interval))
	}
	return nil
}

func (s *session) clockController() (*clock.Controller, error) {
	if s.board.Clock == nil {
		return nil, fmt.Errorf("clock registers are not mapped on %s", s.board.Config.Device)
	}
	return s.board.Clock, nil
}

func (s *session) clock(args []string) error {
	c, err := s.clockController()
	if err != nil {
		return err
	}
	flag, args := flags.New(args, "-stop", "-state")
	parm, _ := parms.New(args, "-channel", "-source", "-mash", "-div")

	def := s.board.Config.Clock
	chName, srcName, mash, div := "gp0", "osc", 0, 1.0
	if def != nil {
		chName, srcName, mash, div = def.Channel, def.Source, def.Mash, def.Divisor
	}
	if v := parm.ByName["-channel"]; v != "" {
		chName = v
	}
	if v := parm.ByName["-source"]; v != "" {
		srcName = v
	}
	if mash, err = intParm(parm, "-mash", mash); err != nil {
		return err
	}
	if div, err = floatParm(parm, "-div", div); err != nil {
		return err
	}

	ch, err := clock.ChannelByName(chName)
	if err != nil {
		return err
	}
	if flag.ByName["-state"] {
		st, err := c.State(ch)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %s\n", ch.Name, st)
		return nil
	}
	if flag.ByName["-stop"] {
		return c.Disable(ch)
	}
	src, err := clock.ParseSource(srcName)
	if err != nil {
		return err
	}
	if err := c.Start(ch, src, clock.Mash(mash), div); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s enabled: %s / %g\n", ch.Name, src, div)
	return nil
}

func (s *session) pulse(args []string) error {
	c, err := s.clockController()
	if err != nil {
		return err
	}
	parm, _ := parms.New(args, "-ms", "-n")
	hold, err := intParm(parm, "-ms", 5000)
	if err != nil {
		return err
	}
	n, err := intParm(parm, "-n", 10)
	if err != nil {
		return err
	}

	if err := c.Start(clock.GP0, clock.Oscillator, clock.MashInteger, clock.DivisorMax); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Enabled clock pin...")
	s.delay.Sleep(ms(hold))
	if err := c.Disable(clock.GP0); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Disabled clock pin...")

	l, err := s.board.GPIO.Output(clock.GP0.Pin)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		l.Set(false)
		s.delay.Sleep(ms(50))
		l.Set(true)
		s.delay.Sleep(ms(50))
	}
	return nil
}

func (s *session) pwmController() (*pwm.Controller, error) {
	if s.board.PWM == nil {
		return nil, fmt.Errorf("pwm registers are not mapped on %s", s.board.Config.Device)
	}
	return s.board.PWM, nil
}

// startPWMClock runs the PWM clock from the oscillator divided by div
func (s *session) startPWMClock(div float64) error {
	c, err := s.clockController()
	if err != nil {
		return err
	}
	if err := c.ConfigureSource(clock.PWM, clock.Oscillator); err != nil {
		return err
	}
	if err := c.ConfigureDivisor(clock.PWM, div); err != nil {
		return err
	}
	return c.Enable(clock.PWM)
}

func (s *session) pwm(args []string) error {
	c, err := s.pwmController()
	if err != nil {
		return err
	}
	flag, args := flags.New(args, "-off")
	parm, args := parms.New(args, "-range", "-data")
	if len(args) != 1 {
		return fmt.Errorf("usage: pwm PIN [-range R] [-data D] [-off]")
	}
	p, err := s.pin(args[0])
	if err != nil {
		return err
	}
	r, err := pwm.RouteFor(p)
	if err != nil {
		return err
	}
	if flag.ByName["-off"] {
		return c.DisablePin(r)
	}
	rng, err := intParm(parm, "-range", 1024)
	if err != nil {
		return err
	}
	data, err := intParm(parm, "-data", rng/2)
	if err != nil {
		return err
	}
	if err := s.startPWMClock(10); err != nil {
		return err
	}
	if err := c.SetPinRange(r, uint32(rng)); err != nil {
		return err
	}
	if err := c.SetData(r.Channel, uint32(data)); err != nil {
		return err
	}
	return c.EnablePin(r)
}

func (s *session) fade(args []string) error {
	c, err := s.pwmController()
	if err != nil {
		return err
	}
	parm, args := parms.New(args, "-range", "-ms")
	p, err := s.pinArg(args, "gpio18")
	if err != nil {
		return err
	}
	r, err := pwm.RouteFor(p)
	if err != nil {
		return err
	}
	rng, err := intParm(parm, "-range", 1024)
	if err != nil {
		return err
	}
	step, err := intParm(parm, "-ms", 10)
	if err != nil {
		return err
	}

	if err := s.startPWMClock(10); err != nil {
		return err
	}
	if err := c.SetPinRange(r, uint32(rng)); err != nil {
		return err
	}
	if err := c.EnablePin(r); err != nil {
		return err
	}
	for i := 0; i <= rng; i++ {
		c.SetData(r.Channel, uint32(i))
		s.delay.Sleep(ms(step))
	}
	for i := rng; i >= 0; i-- {
		c.SetData(r.Channel, uint32(i))
		s.delay.Sleep(ms(step))
	}
	return nil
}

func (s *session) spi(args []string) (err error) {
	bus := s.board.SPI
	if bus == nil {
		return fmt.Errorf("spi registers are not mapped on %s", s.board.Config.Device)
	}
	flag, args := flags.New(args, "-hex")
	parm, args := parms.New(args, "-cs", "-mode", "-div")
	if len(args) != 1 {
		return fmt.Errorf("usage: spi [-cs 0] [-mode 0] [-div 65536] [-hex] DATA")
	}
	var out []byte
	if flag.ByName["-hex"] {
		if out, err = hex.DecodeString(args[0]); err != nil {
			return core.Invalid("hex data", args[0], err.Error())
		}
	} else {
		out = []byte(args[0])
	}
	if len(out) == 0 {
		return core.Invalid("data", args[0], "empty")
	}
	cs, err := intParm(parm, "-cs", 0)
	if err != nil {
		return err
	}
	mode, err := intParm(parm, "-mode", 0)
	if err != nil {
		return err
	}
	divN, err := intParm(parm, "-div", 65536)
	if err != nil {
		return err
	}
	div, err := spi.NewDivisor(divN)
	if err != nil {
		return err
	}

	if err := bus.Enter(); err != nil {
		return err
	}
	defer func() {
		if exitErr := bus.Exit(); err == nil {
			err = exitErr
		}
	}()
	if err := bus.SetDataMode(spi.DataMode(mode)); err != nil {
		return err
	}
	bus.SetDivisor(div)
	if err := bus.SetChipSelect(spi.ChipSelect(cs)); err != nil {
		return err
	}

	// The reply to byte i arrives while byte i+1 is sent
	in := make([]byte, len(out)+1)
	if err := bus.Tx(append(out, 0), in); err != nil {
		return err
	}
	echo := in[1:]
	if flag.ByName["-hex"] {
		fmt.Fprintf(s.out, "Sent: %x\nEchoed back: %x\n", out, echo)
	} else {
		fmt.Fprintf(s.out, "Sent: '%s'\nEchoed back: '%s'\n", out, echo)
	}
	return nil
}

// shiftPort builds the 595 chain on first use
func (s *session) shiftPort() (*port.Port[bool], error) {
	if s.shift != nil {
		return s.shift, nil
	}
	cfg := s.board.Config.Shift595
	dataName, clockName, latchName, clearName, bits := "p1-11", "p1-15", "p1-16", "", 24
	if cfg != nil {
		dataName, clockName, latchName, clearName, bits = cfg.DataPin, cfg.ClockPin, cfg.LatchPin, cfg.ClearPin, cfg.Bits
	}

	var lines []port.Line
	for _, name := range []string{dataName, clockName, latchName} {
		p, err := s.pin(name)
		if err != nil {
			return nil, err
		}
		l, err := s.board.GPIO.Output(p)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	var clear port.Line
	if clearName != "" {
		p, err := s.pin(clearName)
		if err != nil {
			return nil, err
		}
		l, err := s.board.GPIO.Output(p)
		if err != nil {
			return nil, err
		}
		clear = l
	}

	p, _, err := shift595.New(lines[0], lines[1], lines[2], clear, bits)
	if err != nil {
		return nil, err
	}
	s.shift = p
	return p, nil
}

func (s *session) shiftBits(args []string) error {
	flag, args := flags.New(args, "-random")
	parm, args := parms.New(args, "-n", "-ms")
	p, err := s.shiftPort()
	if err != nil {
		return err
	}
	n, err := intParm(parm, "-n", 1)
	if err != nil {
		return err
	}
	pause, err := intParm(parm, "-ms", 500)
	if err != nil {
		return err
	}

	var bits string
	if !flag.ByName["-random"] {
		if len(args) != 1 {
			return fmt.Errorf("usage: shift [-random] [-n N] [-ms MS] BITS")
		}
		bits = strings.TrimSpace(args[0])
		if len(bits) > p.Size() || strings.Trim(bits, "01") != "" {
			return core.Invalid("bits", bits, fmt.Sprintf("want up to %d of 0 and 1", p.Size()))
		}
	}

	for i := 0; i < n; i++ {
		err := p.Atomically(s.owner, func() error {
			for _, pin := range p.Pins() {
				var v bool
				if bits == "" {
					v = rand.Intn(2) == 1
				} else if pin.Index() < len(bits) {
					v = bits[pin.Index()] == '1'
				}
				if err := pin.Set(v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if i+1 < n {
			s.delay.Sleep(ms(pause))
		}
	}
	return nil
}

func (s *session) scan(args []string) error {
	parm, _ := parms.New(args, "-n", "-ms")
	p, err := s.shiftPort()
	if err != nil {
		return err
	}
	sweeps, err := intParm(parm, "-n", 2)
	if err != nil {
		return err
	}
	pause, err := intParm(parm, "-ms", 50)
	if err != nil {
		return err
	}
	size := p.Size()
	if size < 2 {
		return core.Invalid("shift595 bits", size, "scan needs at least 2")
	}

	i, reverse := 1, true
	for steps := 0; steps < sweeps*(size-1); steps++ {
		err := p.Atomically(s.owner, func() error {
			if err := p.SetPinValue(i, false); err != nil {
				return err
			}
			if reverse {
				i--
			} else {
				i++
			}
			return p.SetPinValue(i, true)
		})
		if err != nil {
			return err
		}
		if i == 0 || i == size-1 {
			reverse = !reverse
		}
		s.delay.Sleep(ms(pause))
	}
	return nil
}

func (s *session) dump(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dump gpio|clock|pwm|spi0")
	}
	return s.board.Dump(s.out, args[0])
}

func (s *session) trace(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: trace on|off|show")
	}
	switch args[0] {
	case "on":
		core.ClearWriteRing()
		core.SetTraceEnabled(true)
	case "off":
		core.SetTraceEnabled(false)
	case "show":
		for _, evt := range core.RecentWrites() {
			fmt.Fprintf(s.out, "%-5s [%2d] = %032b\n", evt.Bus, evt.Index, evt.Value)
		}
	default:
		return fmt.Errorf("usage: trace on|off|show")
	}
	return nil
}

func (s *session) header(args []string) error {
	for _, n := range gpio.HeaderPositions() {
		fmt.Fprintf(s.out, "P1-%-2d  GPIO%d\n", n, gpio.P1[n])
	}
	return nil
}
