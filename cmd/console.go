/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/allbin/serial-station/internal/control"
	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/tui/models"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Operate the station from an interactive terminal UI",
	Long: `Open the operator console: a full-screen view of received lines with a
status bar showing the connection and recording state.

Keys:
  c  connect (enter "port [baud]")   d  disconnect
  r  start recording                 p  pause/resume recording
  s  stop recording                  x  clear screen
  t  toggle timestamps               ?  help
  q  quit (refused while a port is open, press again to force)

With --serve the websocket control channel runs alongside the console so
other clients can watch and drive the same station.

Example usage:
  serial-station console
  serial-station console --port /dev/ttyUSB0 --baud 115200
  serial-station console --serve --log-file station.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, map[string]string{
			"port": "serial.port",
			"baud": "serial.baud",
			"dir":  "recording.dir",
		}); err != nil {
			return err
		}
		serve, _ := cmd.Flags().GetBool("serve")
		connect, _ := cmd.Flags().GetBool("connect")

		rt, err := loadRuntime(true)
		if err != nil {
			return err
		}
		defer rt.Close()
		return runConsole(rt, serve, connect)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().StringP("port", "p", "", "Port offered by the connect prompt")
	consoleCmd.Flags().IntP("baud", "b", station.DefaultBaudRate, "Baud rate")
	consoleCmd.Flags().String("dir", "", "Directory for suggested recording paths")
	consoleCmd.Flags().Bool("connect", false, "Connect to --port at startup")
	consoleCmd.Flags().Bool("serve", false, "Also run the websocket control channel")
}

func runConsole(rt *runtime, serve, connect bool) error {
	hub := control.NewHub(rt.log, rt.cfg.Control.ClientBuffer)

	var notifier station.Notifier = hub
	var srv *control.Server
	if serve {
		srv = control.NewServer(hub, rt.log, rt.cfg.Control.Listen)
		notifier = srv
	}
	st := rt.newStation(notifier)
	if srv != nil {
		srv.SetStation(st)
	}

	events := hub.Subscribe()
	console := models.NewConsole(st, events, models.Options{
		Port:        rt.cfg.Serial.Port,
		Baud:        rt.cfg.Serial.Baud,
		SuggestPath: rt.picker().Suggest,
	})

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return st.Run(ctx) })
	if srv != nil {
		g.Go(srv.ListenAndServe)
	}
	if connect && rt.cfg.Serial.Port != "" {
		g.Go(func() error {
			if err := st.Connect(ctx, rt.cfg.Serial.Port, rt.cfg.Serial.Baud); err != nil {
				rt.log.Warn().Err(err).Msg("connect at startup failed")
			}
			return nil
		})
	}

	p := tea.NewProgram(console, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, uiErr := p.Run()

	// The console normally exits after the station has shut down. Make sure
	// it has if the program ended some other way.
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Shutdown(sctx, true); err != nil && !errors.Is(err, station.ErrStopped) {
		rt.log.Warn().Err(err).Msg("forced shutdown")
	}
	cancel()

	err := g.Wait()
	if uiErr != nil {
		return fmt.Errorf("console: %w", uiErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
