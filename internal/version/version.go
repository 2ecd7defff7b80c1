// Package version carries build metadata injected with -ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const Name = "dsnbridge"

// String is the full banner printed by `dsnbridge version`.
func String() string {
	return Name + " " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// Short is the bare version used as the telemetry service version.
func Short() string {
	if Commit == "none" || Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
