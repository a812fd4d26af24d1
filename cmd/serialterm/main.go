package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luhtfiimanal/serialterm/internal/config"
	"github.com/luhtfiimanal/serialterm/internal/console"
	"github.com/luhtfiimanal/serialterm/internal/terminal"
)

const longHelp = `Talk to a serial device from your terminal.

Every line you type is sent to the device with the configured line ending.
Everything the device sends is printed as it arrives and, unless logging is
turned off, written to a timestamped file in the log directory. Messages from
serialterm itself start with "serialterm> ". Type the exit command (default
"exit") to quit.

Settings come from, in increasing priority: built-in defaults, the config
file, SERIALTERM_* environment variables, flags, and the positional
arguments.`

var exampleUsage = strings.TrimSpace(`
  serialterm
  serialterm /dev/ttyUSB1
  serialterm /dev/ttyUSB1 115200
  serialterm --simulate --log-dir /tmp/serial-logs
  serialterm --config ./bench.toml --line-ending crlf
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	out := console.New(os.Stdout)

	root := &cobra.Command{
		Use:           "serialterm [device] [rate]",
		Short:         "Interactive serial terminal with session logging",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.WantsHelp(args) {
				return cmd.Help()
			}
			if len(args) > config.MaxArgs {
				return fmt.Errorf("%w: too many arguments", config.ErrUsage)
			}

			changed := config.ChangedFlags(cmd.Flags())

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}
			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("%w: load config %s: %v", config.ErrUsage, cfgFile, err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return fmt.Errorf("%w: %v", config.ErrUsage, err)
				}
				out.Noticef("Using configuration file\n%q.", cfgFile)
			} else if cfgPath != "" {
				return fmt.Errorf("%w: config file %s not found", config.ErrUsage, cfgPath)
			}

			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return fmt.Errorf("%w: %v", config.ErrUsage, err)
			}
			if err := config.ApplyArgs(&cfg, args); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := config.Logger(cfg.LogLevel)
			log.Debug().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			term := terminal.New(cfg,
				terminal.WithConsole(out),
				terminal.WithLogger(log),
			)
			return term.Run(ctx)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrUsage, err)
	})

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.serialterm/config.toml)")
	config.BindFlags(root.Flags(), &cfg)

	if err := root.Execute(); err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, root.UsageString())
			os.Exit(2)
		}
		logger := config.Logger(cfg.LogLevel)
		logger.Error().Err(err).Msg("serialterm")
		os.Exit(1)
	}
}
