// Package version identifies the running bladelsp build.
package version

import (
	"crypto/sha256"
	"fmt"
	"runtime/debug"
	"sync"
)

const Version = "0.1.0"

// Set with -ldflags "-X github.com/standardbeagle/bladelsp/internal/version.GitCommit=..."
var (
	GitCommit = "unknown"
	BuildDate = "development"
)

// BuildInfo describes the binary. Commit and Modified fall back to the VCS
// stamp Go embeds when GitCommit was not set at link time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
	BuildID   string `json:"build_id"`
}

var (
	info     BuildInfo
	infoOnce sync.Once
)

// Info returns the build description, computed once per process
func Info() BuildInfo {
	infoOnce.Do(func() { info = readBuildInfo() })
	return info
}

// FullInfo renders Info on one line
func FullInfo() string {
	bi := Info()
	commit := bi.Commit
	if bi.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("bladelsp %s (commit: %s, built: %s)", bi.Version, commit, bi.BuildDate)
}

// BuildID fingerprints the binary so cached reports can be tied to the
// build that produced them.
func BuildID() string {
	return Info().BuildID
}

func readBuildInfo() BuildInfo {
	bi := BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
	raw, ok := debug.ReadBuildInfo()
	if !ok {
		bi.BuildID = Version + "-" + GitCommit
		return bi
	}
	bi.GoVersion = raw.GoVersion

	h := sha256.New()
	h.Write([]byte(raw.GoVersion))
	h.Write([]byte(raw.Main.Path))
	h.Write([]byte(raw.Main.Version))
	for _, s := range raw.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "unknown" && s.Value != "" {
				bi.Commit = s.Value
			}
		case "vcs.modified":
			bi.Modified = s.Value == "true"
		case "vcs.time":
			if bi.BuildDate == "development" && s.Value != "" {
				bi.BuildDate = s.Value
			}
		default:
			continue
		}
		h.Write([]byte(s.Key))
		h.Write([]byte(s.Value))
	}
	bi.BuildID = fmt.Sprintf("%x", h.Sum(nil))[:16]
	return bi
}
