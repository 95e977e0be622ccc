package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bcmio/core"
	"bcmio/gpio"
)

// Config describes how the host maps and drives the board
type Config struct {
	Device           string            `json:"device"`             // /dev/mem or /dev/gpiomem
	PeripheralBase   int64             `json:"peripheral_base"`    // 0 = read from device tree
	SpinLimit        int               `json:"spin_limit"`         // 0 = default, negative = unbounded
	ResistorSettleNs int               `json:"resistor_settle_ns"` // pull resistor setup/hold time
	Simulate         bool              `json:"simulate"`           // use in-memory registers
	Pins             map[string]string `json:"pins"`               // alias -> pin name
	Shift595         *Shift595Config   `json:"shift595,omitempty"`
	Clock            *ClockConfig      `json:"clock,omitempty"`
}

// Shift595Config wires a 74HC595 chain to GPIO lines
type Shift595Config struct {
	DataPin  string `json:"data_pin"`
	ClockPin string `json:"clock_pin"`
	LatchPin string `json:"latch_pin"`
	ClearPin string `json:"clear_pin,omitempty"`
	Bits     int    `json:"bits"`
}

// ClockConfig is the default setup used by the clock command
type ClockConfig struct {
	Channel string  `json:"channel"`
	Source  string  `json:"source"`
	Mash    int     `json:"mash"`
	Divisor float64 `json:"divisor"`
}

// LoadConfig parses a JSON configuration and applies defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a JSON configuration file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *Config) {
	if config.Device == "" {
		config.Device = "/dev/mem"
	}
	if config.ResistorSettleNs == 0 {
		config.ResistorSettleNs = 1000 // datasheet asks for 600ns
	}
	if config.Pins == nil {
		config.Pins = map[string]string{}
	}
	if sr := config.Shift595; sr != nil && sr.Bits == 0 {
		sr.Bits = 8
	}
	if clk := config.Clock; clk != nil {
		if clk.Channel == "" {
			clk.Channel = "gp0"
		}
		if clk.Source == "" {
			clk.Source = "osc"
		}
		if clk.Divisor == 0 {
			clk.Divisor = 1
		}
	}
}

// Validate checks every pin name resolves
func (c *Config) Validate() error {
	for alias := range c.Pins {
		if _, err := c.ResolvePin(alias); err != nil {
			return err
		}
	}
	if sr := c.Shift595; sr != nil {
		for _, name := range []string{sr.DataPin, sr.ClockPin, sr.LatchPin} {
			if _, err := c.ResolvePin(name); err != nil {
				return err
			}
		}
		if sr.ClearPin != "" {
			if _, err := c.ResolvePin(sr.ClearPin); err != nil {
				return err
			}
		}
		if sr.Bits < 1 {
			return core.Invalid("shift595 bits", sr.Bits, "must be positive")
		}
	}
	if c.ResistorSettleNs < 0 {
		return core.Invalid("resistor_settle_ns", c.ResistorSettleNs, "must not be negative")
	}
	return nil
}

// ResolvePin turns a pin name into a BCM pin number. Accepted forms are a
// configured alias, "gpio17", "p1-11" for a header position, or a bare
// number.
func (c *Config) ResolvePin(name string) (int, error) {
	seen := map[string]bool{}
	for {
		target, ok := c.Pins[name]
		if !ok {
			break
		}
		if seen[name] {
			return 0, core.Invalid("pin alias", name, "refers to itself")
		}
		seen[name] = true
		name = target
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(lower, "gpio"):
		return parsePin(name, strings.TrimPrefix(lower, "gpio"))
	case strings.HasPrefix(lower, "p1-"):
		n, err := strconv.Atoi(strings.TrimPrefix(lower, "p1-"))
		if err != nil {
			return 0, core.Invalid("pin", name, "bad header position")
		}
		return gpio.HeaderPin(n)
	}
	return parsePin(name, lower)
}

func parsePin(name, digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, core.Invalid("pin", name, "")
	}
	if _, err := gpio.Lookup(n); err != nil {
		return 0, err
	}
	return n, nil
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	cfg := &Config{
		Pins: map[string]string{
			"led": "gpio17",
		},
	}
	applyDefaults(cfg)
	return cfg
}
