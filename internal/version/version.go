// Package version carries build metadata stamped in at link time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String reports the binary's build metadata. Unstamped builds fall back to
// the module version and VCS settings recorded by the toolchain.
func String() string {
	info, _ := debug.ReadBuildInfo()
	return format(resolve(info))
}

type metadata struct {
	version, commit, date string
	dirty                 bool
}

func resolve(info *debug.BuildInfo) metadata {
	meta := metadata{version: Version, commit: Commit, date: Date}
	if info == nil {
		return meta
	}
	if meta.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		meta.version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if meta.commit == "none" {
				meta.commit = setting.Value
			}
		case "vcs.time":
			if meta.date == "unknown" {
				meta.date = setting.Value
			}
		case "vcs.modified":
			meta.dirty = setting.Value == "true"
		}
	}
	return meta
}

func format(meta metadata) string {
	commit := meta.commit
	if meta.dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("parley %s (commit=%s, date=%s, go=%s)", meta.version, commit, meta.date, runtime.Version())
}
