/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/serial-station/internal/config"
	"github.com/allbin/serial-station/internal/logging"
	"github.com/allbin/serial-station/internal/version"
)

var (
	cfgFile string
	v       = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serial-station",
	Short: "Ground-station serial terminal",
	Long: `serial-station reads newline-delimited text from one serial port, shows it
live and records it to a file on request.

The station runs as a service with a websocket control channel (serve), as an
interactive operator console (console), or headless (capture).

Configuration is read from serial-station.yaml in the working directory or
$HOME/.config/serial-station/, from SERIAL_STATION_* environment variables
and from flags, in increasing order of precedence.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.Version = version.Get()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./serial-station.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console, json")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	v.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	config.Setup(v, cfgFile)
}

// bindFlags binds command-local flags to config keys. Commands share keys,
// so binding happens when the command runs rather than in init.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

type runtime struct {
	cfg     *config.Config
	log     zerolog.Logger
	closers []io.Closer
}

// loadRuntime reads the configuration and builds the logger. With quiet set
// and no log file configured, logs are discarded so they do not draw over a
// full-screen UI.
func loadRuntime(quiet bool) (*runtime, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	var w io.Writer = os.Stderr
	switch {
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.closers = append(rt.closers, f)
		w = f
	case quiet:
		w = io.Discard
	}

	rt.log, err = logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if used := config.Used(v); used != "" {
		rt.log.Debug().Str("file", used).Msg("config loaded")
	}
	return rt, nil
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		c.Close()
	}
}
