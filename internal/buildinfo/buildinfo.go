// Package buildinfo exposes the version stamped into the binary at
// link time and the process uptime.
//
// Release builds set the variables with:
//
//	-ldflags "-X github.com/nugget/assistente/internal/buildinfo.Version=v1.2.0 ..."
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set at link time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info is the build metadata reported by `assistente version` and
// GET /v1/version.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime,omitempty"`
}

// Get returns the static build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Runtime returns the build metadata plus process uptime, for a
// running server.
func Runtime() Info {
	info := Get()
	info.Uptime = Uptime().String()
	return info
}

// Fields returns the metadata as ordered label/value pairs for text
// output. Empty values are skipped.
func (i Info) Fields() [][2]string {
	all := [][2]string{
		{"version", i.Version},
		{"git_commit", i.GitCommit},
		{"git_branch", i.GitBranch},
		{"build_time", i.BuildTime},
		{"go_version", i.GoVersion},
		{"os", i.OS},
		{"arch", i.Arch},
		{"uptime", i.Uptime},
	}
	out := all[:0]
	for _, f := range all {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

// Uptime returns the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String returns a one-line summary for logs and `assistente version`.
func String() string {
	return fmt.Sprintf("assistente %s (%s@%s) built %s", Version, GitCommit, GitBranch, BuildTime)
}

// UserAgent is the User-Agent sent on outbound HTTP requests.
func UserAgent() string {
	return "assistente/" + Version
}
