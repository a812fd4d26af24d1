package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly string fields.
type FileConfig struct {
	Device       string `toml:"device"`
	BaudRate     int    `toml:"baud_rate"`
	DataBits     int    `toml:"data_bits"`
	Parity       string `toml:"parity"`
	StopBits     int    `toml:"stop_bits"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
	Simulate     *bool  `toml:"simulate"`
	Logging      *bool  `toml:"logging"`
	LogRequired  *bool  `toml:"log_required"`
	LogDir       string `toml:"log_dir"`
	ExitCommand  string `toml:"exit_command"`
	LineEnding   string `toml:"line_ending"`
	PollInterval string `toml:"poll_interval"`
	PrintFormat  string `toml:"print_format"`
	ReplaceCRLF  *bool  `toml:"replace_crlf"`
	LogLevel     string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.serialterm/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".serialterm", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("device", fc.Device, &cfg.Device)
	s.setString("log-dir", fc.LogDir, &cfg.LogDir)
	s.setString("exit-command", fc.ExitCommand, &cfg.ExitCommand)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("baud", fc.BaudRate, &cfg.BaudRate)
	s.setInt("data-bits", fc.DataBits, &cfg.DataBits)
	s.setInt("stop-bits", fc.StopBits, &cfg.StopBits)

	if err := s.setParity("parity", fc.Parity, &cfg.Parity); err != nil {
		return err
	}
	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", fc.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setLineEnding("line-ending", fc.LineEnding, &cfg.LineEnding); err != nil {
		return err
	}
	if err := s.setPrintFormat("print-format", fc.PrintFormat, &cfg.PrintFormat); err != nil {
		return err
	}

	s.setBool("simulate", fc.Simulate, &cfg.Simulate)
	s.setBool("logging", fc.Logging, &cfg.Logging)
	s.setBool("log-required", fc.LogRequired, &cfg.LogRequired)
	s.setBool("replace-crlf", fc.ReplaceCRLF, &cfg.ReplaceCRLF)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
