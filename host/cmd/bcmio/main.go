package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/platinasystems/log"

	"bcmio/core"
	"bcmio/host/board"
	"bcmio/host/config"
)

var (
	configPath = flag.String("config", "", "JSON board configuration file")
	device     = flag.String("device", "", "Memory device (/dev/mem or /dev/gpiomem)")
	simulate   = flag.Bool("sim", false, "Use in-memory registers instead of hardware")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
	useSyslog  = flag.Bool("syslog", false, "Send verbose output to syslog")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		if *useSyslog {
			core.SetDebugWriter(func(s string) { log.Print("debug", s) })
		} else {
			core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		}
		core.SetDebugEnabled(true)
	}
	if core.IsDebugEnabled() {
		core.InitAsyncDebug()
	}

	// Map the registers; nothing works without them
	b, err := board.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	s := newSession(b, os.Stdout, nil)

	// One-shot mode: bcmio set 17 1
	if args := flag.Args(); len(args) > 0 {
		if err := s.run(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			b.Close()
			os.Exit(1)
		}
		return
	}

	fmt.Println("bcmio - BCM2835 register console")
	fmt.Println("================================")
	if b.Simulated() {
		fmt.Println("(simulated registers)")
	}
	fmt.Println()
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	if err := console(s, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		b.Close()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *simulate {
		cfg.Simulate = true
	}
	return cfg, nil
}

// console runs the interactive command loop until quit or end of input
func console(s *session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return nil

		case "help", "?":
			printHelp(out)

		default:
			if err := s.run(parts); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
	}

	return scanner.Err()
}

func printHelp(out io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "\nAvailable commands:")
	fmt.Fprintln(out, "  help                    - Show this help message")
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(out, "  quit/exit/q             - Exit the program")
	fmt.Fprintln(out, "\nPins may be given as 17, gpio17, p1-11 or a configured alias.")
	fmt.Fprintln(out)
}
