package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	serial "github.com/luhtfiimanal/serialterm"
)

// ErrUsage marks errors caused by bad arguments or configuration values.
// The session is never started when one is returned.
var ErrUsage = errors.New("serialterm: usage error")

// PrintFormat selects how device bytes are rendered on screen and in the log.
type PrintFormat string

const (
	// FormatASCII writes the bytes as text.
	FormatASCII PrintFormat = "ascii"
	// FormatRepr writes an escaped rendering, so "\r" and "\n" are visible.
	FormatRepr PrintFormat = "repr"
)

// Config is the resolved configuration of one terminal session.
// It is built once at startup and passed by value afterwards.
type Config struct {
	Device       string
	BaudRate     int
	DataBits     int
	Parity       serial.Parity
	StopBits     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Simulate replaces the serial port with a device that never sends
	// anything and discards writes.
	Simulate bool

	Logging     bool
	LogRequired bool
	LogDir      string

	ExitCommand string
	LineEnding  string

	PollInterval time.Duration
	PrintFormat  PrintFormat
	ReplaceCRLF  bool
	LogLevel     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Device:       "/dev/ttyUSB0",
		BaudRate:     230400,
		DataBits:     8,
		Parity:       serial.ParityNone,
		StopBits:     1,
		Logging:      true,
		LogDir:       "./logs/",
		ExitCommand:  "exit",
		LineEnding:   "\r",
		PollInterval: 10 * time.Millisecond,
		PrintFormat:  FormatASCII,
		LogLevel:     "info",
	}
}

// Serial returns the driver settings.
func (c Config) Serial() serial.Config {
	return serial.Config{
		Device:       c.Device,
		BaudRate:     c.BaudRate,
		DataBits:     c.DataBits,
		Parity:       c.Parity,
		StopBits:     c.StopBits,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if !c.Simulate && c.Device == "" {
		return usagef("device is required unless simulating")
	}
	if c.BaudRate <= 0 {
		return usagef("baud rate must be positive")
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return usagef("data bits must be between 5 and 8, got %d", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return usagef("stop bits must be 1 or 2, got %d", c.StopBits)
	}
	if c.ExitCommand == "" {
		return usagef("exit command must not be empty")
	}
	if c.PollInterval <= 0 {
		return usagef("poll interval must be positive")
	}
	if c.Logging && c.LogDir == "" {
		return usagef("log-dir is required when logging is on")
	}
	switch c.PrintFormat {
	case FormatASCII, FormatRepr:
	default:
		return usagef("unknown print format %q", c.PrintFormat)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return usagef("log level: %v", err)
	}
	return nil
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ParseLineEnding accepts "cr", "lf", "crlf", "none" or an escaped literal
// such as `\r\n`.
func ParseLineEnding(s string) (string, error) {
	switch strings.ToLower(s) {
	case "cr":
		return "\r", nil
	case "lf":
		return "\n", nil
	case "crlf":
		return "\r\n", nil
	case "none", "":
		return "", nil
	}
	v, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return "", fmt.Errorf("line ending %q: %w", s, err)
	}
	return v, nil
}

// ParsePrintFormat validates a print format name.
func ParsePrintFormat(s string) (PrintFormat, error) {
	switch f := PrintFormat(strings.ToLower(s)); f {
	case FormatASCII, FormatRepr:
		return f, nil
	}
	return "", fmt.Errorf("unknown print format %q", s)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

func (s *configSetter) setParity(flag, value string, dst *serial.Parity) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	p, err := serial.ParseParity(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = p
	return nil
}

// setLineEnding treats an unset value as "keep"; use "none" to clear it.
func (s *configSetter) setLineEnding(flag, value string, dst *string) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	v, err := ParseLineEnding(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = v
	return nil
}

func (s *configSetter) setPrintFormat(flag, value string, dst *PrintFormat) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := ParsePrintFormat(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}
