package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	serial "github.com/luhtfiimanal/serialterm"
)

// MaxArgs is the number of positional arguments accepted: [device] [rate].
const MaxArgs = 2

// BindFlags registers the session flags on fs, writing into cfg.
// The current cfg values become the flag defaults.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Device, "device", cfg.Device, "serial device path")
	fs.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "baud rate")
	fs.IntVar(&cfg.DataBits, "data-bits", cfg.DataBits, "data bits per character (5-8)")
	fs.Var(&parityValue{&cfg.Parity}, "parity", "parity: none, even or odd")
	fs.IntVar(&cfg.StopBits, "stop-bits", cfg.StopBits, "stop bits (1 or 2)")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "driver read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "driver write timeout (0 waits indefinitely)")

	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "run without a device attached")
	fs.BoolVar(&cfg.Logging, "logging", cfg.Logging, "log incoming device data to a file")
	fs.BoolVar(&cfg.LogRequired, "log-required", cfg.LogRequired, "abort the session if the log file cannot be written")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for session log files")

	fs.StringVar(&cfg.ExitCommand, "exit-command", cfg.ExitCommand, "line that ends the session")
	fs.Var(&lineEndingValue{&cfg.LineEnding}, "line-ending", `terminator appended to each line sent: cr, lf, crlf, none or an escaped literal like '\r\n'`)
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "device polling interval")
	fs.Var(&printFormatValue{&cfg.PrintFormat}, "print-format", "how device data is shown: ascii or repr")
	fs.BoolVar(&cfg.ReplaceCRLF, "replace-crlf", cfg.ReplaceCRLF, `show "\r\n" from the device as "\n" (ascii format only)`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "diagnostic log level (debug, info, warn, error)")
}

// ChangedFlags returns the names of flags set on the command line.
func ChangedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// WantsHelp reports whether the first positional argument asks for usage.
func WantsHelp(args []string) bool {
	return len(args) > 0 && (args[0] == "h" || args[0] == "-h")
}

// ApplyArgs applies the positional arguments [device] [rate], which take
// precedence over every other source.
func ApplyArgs(cfg *Config, args []string) error {
	if len(args) > MaxArgs {
		return usagef("too many arguments (%d), expected at most %d", len(args), MaxArgs)
	}
	if len(args) > 0 {
		cfg.Device = args[0]
	}
	if len(args) > 1 {
		rate, err := strconv.Atoi(args[1])
		if err != nil || rate <= 0 {
			return usagef("invalid baud rate %q", args[1])
		}
		cfg.BaudRate = rate
	}
	return nil
}

type parityValue struct{ p *serial.Parity }

func (v *parityValue) String() string { return v.p.String() }
func (v *parityValue) Type() string   { return "parity" }

func (v *parityValue) Set(s string) error {
	p, err := serial.ParseParity(s)
	if err != nil {
		return err
	}
	*v.p = p
	return nil
}

type lineEndingValue struct{ s *string }

func (v *lineEndingValue) String() string { return strconv.Quote(*v.s) }
func (v *lineEndingValue) Type() string   { return "ending" }

func (v *lineEndingValue) Set(s string) error {
	e, err := ParseLineEnding(s)
	if err != nil {
		return err
	}
	*v.s = e
	return nil
}

type printFormatValue struct{ f *PrintFormat }

func (v *printFormatValue) String() string { return string(*v.f) }
func (v *printFormatValue) Type() string   { return "format" }

func (v *printFormatValue) Set(s string) error {
	f, err := ParsePrintFormat(s)
	if err != nil {
		return fmt.Errorf("%w (want %s or %s)", err, FormatASCII, FormatRepr)
	}
	*v.f = f
	return nil
}
