package obs

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guildhall_build_info",
			Help: "guildd build and runtime information.",
		},
		[]string{"version", "commit", "go_version", "backend"},
	)
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Backend string
}

// InitBuildInfo exports b as guildhall_build_info. A commit left as "" or
// "unknown" is taken from the embedded VCS revision when there is one.
func InitBuildInfo(b Build) {
	goVersion := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		goVersion = info.GoVersion
		if b.Commit == "" || b.Commit == "unknown" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					b.Commit = s.Value
				}
			}
		}
	}
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, goVersion, b.Backend).Set(1)
}
