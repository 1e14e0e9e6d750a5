package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ListPorts returns a list of available serial ports on the system
// Filters for communication-capable devices and excludes virtual terminals
func ListPorts() ([]string, error) {
	var ports []string

	// Check /dev directory for serial devices
	devDir := "/dev"
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	// Regular expressions for different types of serial devices
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
	}

	// Exclude patterns for virtual terminals and other non-serial devices
	excludePatterns := []*regexp.Regexp{
		regexp.MustCompile(`^tty\d+$`),  // Virtual terminals (tty1, tty2, etc.)
		regexp.MustCompile(`^console$`), // Console
		regexp.MustCompile(`^ptmx$`),    // Pseudo-terminal multiplexer
		regexp.MustCompile(`^pty.*$`),   // Pseudo-terminals
		regexp.MustCompile(`^pts/.*$`),  // Pseudo-terminal slaves
	}

	for _, entry := range entries {
		name := entry.Name()

		// Skip if it matches exclude patterns
		excluded := false
		for _, excludePattern := range excludePatterns {
			if excludePattern.MatchString(name) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		// Check if it matches any of our serial device patterns
		matched := false
		for _, pattern := range patterns {
			if pattern.MatchString(name) {
				matched = true
				break
			}
		}

		if matched {
			fullPath := filepath.Join(devDir, name)

			// Verify it's a character device (not a directory or regular file)
			if isCharacterDevice(fullPath) {
				ports = append(ports, fullPath)
			}
		}
	}

	// Sort the ports for consistent ordering
	sort.Strings(ports)

	return ports, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	// Check if it's a character device
	mode := info.Mode()
	return mode&os.ModeCharDevice != 0
}

// PortInfo describes a serial device and, for USB adapters, its identity
type PortInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Description  string `json:"description"`
	VendorID     string `json:"vendorId,omitempty"`
	ProductID    string `json:"productId,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
}

// IsUSB reports whether USB metadata was found for the port
func (p PortInfo) IsUSB() bool {
	return p.VendorID != "" || p.ProductID != ""
}

// detailedPorts is swapped out in tests
var detailedPorts = enumerator.GetDetailedPortsList

// ListPortInfo returns PortInfo for every port found by ListPorts. USB
// metadata is looked up once for the whole listing.
func ListPortInfo() ([]PortInfo, error) {
	paths, err := ListPorts()
	if err != nil {
		return nil, err
	}

	usb := usbDetails()
	infos := make([]PortInfo, 0, len(paths))
	for _, path := range paths {
		info := newPortInfo(path)
		applyUSBDetails(&info, usb)
		infos = append(infos, info)
	}
	return infos, nil
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	info := newPortInfo(portPath)
	if isUSBName(info.Name) {
		if !applyUSBDetails(&info, usbDetails()) {
			return &info, ErrUSBInfoNotAvailable
		}
	}
	return &info, nil
}

func newPortInfo(path string) PortInfo {
	name := filepath.Base(path)
	return PortInfo{
		Name:        name,
		Path:        path,
		Description: getPortDescription(name),
	}
}

func isUSBName(name string) bool {
	return strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM")
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// usbDetails indexes the enumerator's USB ports by device path. Enumeration
// failures leave the listing without USB metadata rather than failing it.
func usbDetails() map[string]*enumerator.PortDetails {
	details, err := detailedPorts()
	if err != nil {
		return nil
	}
	byPath := make(map[string]*enumerator.PortDetails, len(details))
	for _, d := range details {
		if d == nil || !d.IsUSB {
			continue
		}
		byPath[d.Name] = d
	}
	return byPath
}

func applyUSBDetails(info *PortInfo, usb map[string]*enumerator.PortDetails) bool {
	d, ok := usb[info.Path]
	if !ok {
		return false
	}
	info.VendorID = strings.ToLower(d.VID)
	info.ProductID = strings.ToLower(d.PID)
	info.SerialNumber = d.SerialNumber
	info.Product = d.Product
	if d.Product != "" {
		info.Description = d.Product
	}
	return true
}
