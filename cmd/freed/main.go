// Command freed validates, records, replays, simulates and analyses FreeD
// camera-tracking telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/banshee-data/freed-tools/internal/config"
	"github.com/banshee-data/freed-tools/internal/monitoring"
	"github.com/banshee-data/freed-tools/internal/network"
	"github.com/banshee-data/freed-tools/internal/timeutil"
	"github.com/banshee-data/freed-tools/internal/version"
)

// errUsage marks command-line mistakes; the usage text has already been
// printed.
var errUsage = errors.New("usage error")

// app carries the process-wide dependencies so tests can swap the network
// and clock.
type app struct {
	stdout io.Writer
	stderr io.Writer
	color  bool

	sockets network.UDPSocketFactory
	clock   timeutil.Clock
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		color:   isatty.IsTerminal(os.Stdout.Fd()),
		sockets: network.RealUDPSocketFactory{},
		clock:   timeutil.RealClock{},
	}
	code := a.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printUsage(a.stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "validate":
		err = a.cmdValidate(ctx, rest)
	case "selftest":
		err = a.cmdSelftest(rest)
	case "replay":
		err = a.cmdReplay(ctx, rest)
	case "simulate":
		err = a.cmdSimulate(ctx, rest)
	case "analyze", "analyse":
		err = a.cmdAnalyze(rest)
	case "sessions":
		err = a.cmdSessions(rest)
	case "version":
		fmt.Fprintln(a.stdout, version.String())
	case "help", "-h", "--help":
		a.printUsage(a.stdout)
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", command)
		a.printUsage(a.stderr)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
}

func (a *app) printUsage(w io.Writer) {
	fmt.Fprint(w, `freed - FreeD camera-tracking test tools

Usage: freed <command> [options]

Commands:
  validate   Listen for FreeD packets, validate and optionally record them
  selftest   Run the built-in packet validation suite
  replay     Replay a recorded capture (.csv, .pcap, .pcapng or --db session)
  simulate   Generate a synthetic camera pattern (circle, figure8, oscillate)
  analyze    Summarise a recorded capture and render charts
  sessions   List or delete sessions in a capture database
  version    Show version information
  help       Show this help message

Common Flags:
  --config <file>      JSON or TOML defaults; explicit flags win
  --log-level <level>  trace, debug, info, warn or error

Examples:
  freed validate --port 6000 --duration 60s --log capture.csv
  freed replay capture.csv --ip 192.168.1.50 --speed 2 --loop
  freed simulate figure8 --rate 50 --duration 30s
  freed analyze capture.csv --output run1 --html run1.html
`)
}

// commandFlags is a FlagSet with the flags every subcommand shares.
type commandFlags struct {
	*flag.FlagSet
	configPath *string
	logLevel   *string
	positional []string
}

func (a *app) newFlags(name, usage string) *commandFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	cf := &commandFlags{
		FlagSet:    fs,
		configPath: fs.String("config", "", "JSON or TOML config file"),
		logLevel:   fs.String("log-level", "", "Log level (trace, debug, info, warn, error)"),
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: freed %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return cf
}

// parse parses args, loads --config and applies the log level. It returns
// the config and the set of flags given explicitly.
func (cf *commandFlags) parse(args []string) (*config.Config, map[string]bool, error) {
	// Positional arguments may appear before, between or after flags.
	for {
		if err := cf.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, nil, err
			}
			return nil, nil, errUsage
		}
		rest := cf.Args()
		if len(rest) == 0 {
			break
		}
		cf.positional = append(cf.positional, rest[0])
		args = rest[1:]
	}

	cfg := config.Empty()
	if *cf.configPath != "" {
		loaded, err := config.Load(*cf.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	cf.Visit(func(f *flag.Flag) { set[f.Name] = true })

	lvl := cfg.GetLogLevel()
	if set["log-level"] {
		parsed, err := zerolog.ParseLevel(*cf.logLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --log-level %q", *cf.logLevel)
		}
		lvl = parsed
	}
	if lvl != zerolog.NoLevel {
		monitoring.SetLogger(monitoring.Logger().Level(lvl))
	}
	return cfg, set, nil
}

// arg returns the i'th positional argument, or "".
func (cf *commandFlags) arg(i int) string {
	if i < 0 || i >= len(cf.positional) {
		return ""
	}
	return cf.positional[i]
}

// usageError prints msg and the command usage.
func (cf *commandFlags) usageError(format string, v ...interface{}) error {
	fmt.Fprintf(cf.Output(), "Error: "+format+"\n\n", v...)
	cf.Usage()
	return errUsage
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func (a *app) paint(color, s string) string {
	if !a.color {
		return s
	}
	return color + s + ansiReset
}
