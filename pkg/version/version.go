// Package version reports netdeploy build metadata.
//
// Release builds set the variables below with
//
//	go build -ldflags "-X github.com/dl-alexandre/netdeploy/pkg/version.Version=v1.2.0 \
//	  -X github.com/dl-alexandre/netdeploy/pkg/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/dl-alexandre/netdeploy/pkg/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/netdeploy
//
// Binaries built with `go install` leave them unset; the module version and
// VCS stamp recorded by the toolchain are used instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get merges the ldflags values with the toolchain's build info.
func Get() *Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuild(Version, Commit, Date, bi)
}

func fromBuild(ver, commit, date string, bi *debug.BuildInfo) *Info {
	info := &Info{
		Version:   ver,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
					if len(info.Commit) > 12 {
						info.Commit = info.Commit[:12]
					}
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

func (i *Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("netdeploy %s (%s) built %s", i.Version, commit, i.Date)
}

// UserAgent identifies this client to the Deploy Service.
func (i *Info) UserAgent() string {
	return fmt.Sprintf("netdeploy/%s (%s)", i.Version, i.Platform)
}
