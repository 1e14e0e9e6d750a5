/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/allbin/serial-station/internal/control"
	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the station with its websocket control channel",
	Long: `Run the station as a service. Clients connect to the control channel at
ws://<listen>/ws to open and close the port, control recording and receive
received lines and status updates.

Interrupting the service while a port is open is refused and reported to
clients; interrupt again (or pass --force) to close the port and exit.

Example usage:
  serial-station serve
  serial-station serve --port /dev/ttyUSB0 --baud 115200
  serial-station serve --listen 0.0.0.0:17865 --dir /var/log/station`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, map[string]string{
			"port":   "serial.port",
			"baud":   "serial.baud",
			"listen": "control.listen",
			"dir":    "recording.dir",
		}); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		rt, err := loadRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		return runServe(rt, force)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "", "Connect to this port at startup")
	serveCmd.Flags().IntP("baud", "b", station.DefaultBaudRate, "Baud rate")
	serveCmd.Flags().StringP("listen", "l", "", "Control channel address (default 127.0.0.1:17865)")
	serveCmd.Flags().String("dir", "", "Directory for recordings started without a path")
	serveCmd.Flags().Bool("force", false, "Close an open port on the first interrupt")
}

func (rt *runtime) newStation(notifier station.Notifier) *station.Coordinator {
	return station.New(
		station.WithLogger(rt.log),
		station.WithNotifier(notifier),
		station.WithTargetPicker(rt.picker()),
		station.WithIdleTimeout(rt.cfg.Framer.Idle),
		station.WithKeepEmptyLines(rt.cfg.Framer.KeepEmpty),
		station.WithSinkOpener(recorder.FileOpener(rt.cfg.Recording.HighWater)),
	)
}

func (rt *runtime) picker() recorder.TimestampPicker {
	return recorder.TimestampPicker{Dir: rt.cfg.Recording.Dir}
}

func runServe(rt *runtime, force bool) error {
	hub := control.NewHub(rt.log, rt.cfg.Control.ClientBuffer)
	srv := control.NewServer(hub, rt.log, rt.cfg.Control.Listen)
	st := rt.newStation(srv)
	srv.SetStation(st)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return st.Run(ctx) })
	g.Go(srv.ListenAndServe)
	g.Go(func() error { return watchSignals(ctx, st, force, rt.log) })

	if port := rt.cfg.Serial.Port; port != "" {
		g.Go(func() error {
			if err := st.Connect(ctx, port, rt.cfg.Serial.Baud); err != nil {
				rt.log.Error().Err(err).Str("port", port).Msg("connect at startup failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchSignals turns interrupts into shutdown requests. The first interrupt
// is refused while a port is open; the next one forces it. SIGTERM always
// forces.
func watchSignals(ctx context.Context, st *station.Coordinator, force bool, log zerolog.Logger) error {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	blocked := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-st.Done():
			return nil
		case sig := <-sigs:
			forced := force || blocked || sig == syscall.SIGTERM
			log.Info().Str("signal", sig.String()).Bool("force", forced).Msg("shutdown requested")

			err := st.Shutdown(ctx, forced)
			switch {
			case errors.Is(err, station.ErrShutdownConflict):
				blocked = true
				fmt.Fprintln(os.Stderr, "A port is still open. Interrupt again to close it and exit.")
			case errors.Is(err, station.ErrStopped), errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				return fmt.Errorf("shutdown: %w", err)
			}
		}
	}
}
