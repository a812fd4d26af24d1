package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (SERIALTERM_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("device", os.Getenv("SERIALTERM_DEVICE"), &cfg.Device)
	s.setString("log-dir", os.Getenv("SERIALTERM_LOG_DIR"), &cfg.LogDir)
	s.setString("exit-command", os.Getenv("SERIALTERM_EXIT_COMMAND"), &cfg.ExitCommand)
	s.setString("log-level", os.Getenv("SERIALTERM_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("baud", os.Getenv("SERIALTERM_BAUD_RATE"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString("data-bits", os.Getenv("SERIALTERM_DATA_BITS"), &cfg.DataBits); err != nil {
		return err
	}
	if err := s.setIntFromString("stop-bits", os.Getenv("SERIALTERM_STOP_BITS"), &cfg.StopBits); err != nil {
		return err
	}
	if err := s.setParity("parity", os.Getenv("SERIALTERM_PARITY"), &cfg.Parity); err != nil {
		return err
	}

	if err := s.setDuration("read-timeout", os.Getenv("SERIALTERM_READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", os.Getenv("SERIALTERM_WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("SERIALTERM_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}

	if err := s.setLineEnding("line-ending", os.Getenv("SERIALTERM_LINE_ENDING"), &cfg.LineEnding); err != nil {
		return err
	}
	if err := s.setPrintFormat("print-format", os.Getenv("SERIALTERM_PRINT_FORMAT"), &cfg.PrintFormat); err != nil {
		return err
	}

	s.setBoolFromString("simulate", os.Getenv("SERIALTERM_SIMULATE"), &cfg.Simulate)
	s.setBoolFromString("logging", os.Getenv("SERIALTERM_LOGGING"), &cfg.Logging)
	s.setBoolFromString("log-required", os.Getenv("SERIALTERM_LOG_REQUIRED"), &cfg.LogRequired)
	s.setBoolFromString("replace-crlf", os.Getenv("SERIALTERM_REPLACE_CRLF"), &cfg.ReplaceCRLF)

	return nil
}
