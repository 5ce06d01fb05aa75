// Package version reports the build identity of the stochgrid binary.
package version

import (
	"runtime/debug"
)

const unknown = "unknown"

// Set through -ldflags "-X github.com/Sumatoshi-tech/stochgrid/pkg/version.Version=..." at release time.
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills values that were not set by the linker from the
// module build info embedded by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String returns the one-line version banner.
func String() string {
	return "stochgrid " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
