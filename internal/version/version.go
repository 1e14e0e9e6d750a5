// Package version reports which build of serial-station is running.
package version

import (
	"runtime"
	"runtime/debug"
)

const Name = "serial-station"

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/allbin/serial-station/internal/version.Version=v1.2.0"
var Version string

// Get returns the stamped version, else the module version recorded by
// go install, else "dev".
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Info is the application identity exposed to control clients.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
}

func Current() Info {
	return Info{Name: Name, Version: Get(), GoVersion: runtime.Version()}
}
