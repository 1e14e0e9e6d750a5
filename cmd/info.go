/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serial-station"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  serial-station info /dev/ttyUSB0
  serial-station info /dev/ttyACM0

For USB devices, this displays vendor/product IDs, the serial number and
the product name reported by the device.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := serial.GetPortInfo(args[0])
		if err != nil && !errors.Is(err, serial.ErrUSBInfoNotAvailable) {
			return fmt.Errorf("getting port info: %w", err)
		}
		fmt.Print(formatPortInfo(info))
		if err != nil {
			fmt.Println("\nUSB details are not available for this port.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func formatPortInfo(info *serial.PortInfo) string {
	s := fmt.Sprintf("Port Information: %s\n\n", info.Path)
	s += fmt.Sprintf("  Name:        %s\n", info.Name)
	s += fmt.Sprintf("  Type:        %s\n", getPortType(info.Name))
	s += fmt.Sprintf("  Description: %s\n", info.Description)

	if !info.IsUSB() {
		return s
	}
	s += "\nUSB Device Information:\n"
	if info.VendorID != "" {
		s += fmt.Sprintf("  Vendor ID:    %s\n", info.VendorID)
	}
	if info.ProductID != "" {
		s += fmt.Sprintf("  Product ID:   %s\n", info.ProductID)
	}
	if info.SerialNumber != "" {
		s += fmt.Sprintf("  Serial:       %s\n", info.SerialNumber)
	}
	if info.Product != "" {
		s += fmt.Sprintf("  Product:      %s\n", info.Product)
	}
	return s
}
