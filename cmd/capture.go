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
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/serial-station/internal/control"
	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> [output-file]",
	Short: "Record lines from a serial port to a file",
	Long: `Capture framed lines from a serial port into a recording without a UI.

Lines are appended to the output file, one per line. Without an output file
a timestamped file is created in the recording directory. Runs until
interrupted (Ctrl+C) or until the port goes away.

Example usage:
  serial-station capture /dev/ttyUSB0 data.log
  serial-station capture /dev/ttyUSB0 --baud 115200 --console
  serial-station capture /dev/ttyACM0 --dir /var/log/station`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, map[string]string{
			"baud": "serial.baud",
			"dir":  "recording.dir",
		}); err != nil {
			return err
		}
		showConsole, _ := cmd.Flags().GetBool("console")

		var output string
		if len(args) == 2 {
			output = args[1]
		}

		rt, err := loadRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		return runCapture(rt, args[0], output, showConsole)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().IntP("baud", "b", station.DefaultBaudRate, "Baud rate")
	captureCmd.Flags().String("dir", "", "Directory for the recording when no output file is given")
	captureCmd.Flags().BoolP("console", "c", false, "Print received lines while capturing")
}

func runCapture(rt *runtime, port, output string, showConsole bool) error {
	hub := control.NewHub(rt.log, rt.cfg.Control.ClientBuffer)
	st := rt.newStation(hub)
	events := hub.Subscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- st.Run(ctx) }()

	status, err := startCapture(ctx, st, port, rt.cfg.Serial.Baud, output)
	if err != nil {
		st.Shutdown(context.Background(), true)
		<-runErr
		return err
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", port, status.Filepath)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")
	startTime := time.Now()

	var written uint64
	for e := range events {
		switch e.Type {
		case control.TypeData:
			if showConsole {
				fmt.Println(e.Data.(control.DataPayload).Line)
			}
		case control.TypeRecordingStatus:
			written = e.Data.(recorder.Status).Written
		case control.TypePortError, control.TypeRecordingError:
			fmt.Fprintf(os.Stderr, "Error: %s\n", e.Data.(control.ErrorPayload).Message)
		case control.TypePortStatus:
			if e.Data.(station.ConnectionStatus).State == station.StateClosed {
				// Port gone; the recording has already been stopped.
				go st.Shutdown(context.Background(), true)
			}
		}
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d lines written in %v\n", written, time.Since(startTime).Round(time.Millisecond))
	return nil
}

func startCapture(ctx context.Context, st *station.Coordinator, port string, baud int, output string) (recorder.Status, error) {
	if err := st.Connect(ctx, port, baud); err != nil {
		return recorder.Status{}, fmt.Errorf("failed to open port: %w", err)
	}
	status, err := st.StartRecording(ctx, output)
	if err != nil {
		return recorder.Status{}, fmt.Errorf("failed to start recording: %w", err)
	}
	return status, nil
}
