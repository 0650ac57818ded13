// Package build holds build-time version information injected via ldflags.
//
// To inject values at build time:
//
//	go build -ldflags "-X github.com/haivivi/speakernet/cmd/speakernet/internal/build.Version=v0.3.0 \
//	  -X github.com/haivivi/speakernet/cmd/speakernet/internal/build.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/haivivi/speakernet/cmd/speakernet/internal/build.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package build

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the structured form of the version, for --format json/yaml.
type Info struct {
	Version  string `json:"version" yaml:"version" msgpack:"version"`
	Commit   string `json:"commit" yaml:"commit" msgpack:"commit"`
	Date     string `json:"date" yaml:"date" msgpack:"date"`
	Go       string `json:"go" yaml:"go" msgpack:"go"`
	Platform string `json:"platform" yaml:"platform" msgpack:"platform"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Version:  Version,
		Commit:   Commit,
		Date:     Date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a formatted version string.
func String() string {
	return fmt.Sprintf("speakernet %s (%s) built %s %s/%s",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
