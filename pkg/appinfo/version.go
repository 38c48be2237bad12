// Package appinfo exposes the build metadata stamped into the binary.
package appinfo

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stamped at link time, for example:
//
//	go build -ldflags "-X github.com/wuxler/stowage/pkg/appinfo.version=v1.0.0"
//
// Binaries built without the stamps fall back to the VCS details the Go
// toolchain embeds when building inside a checkout.
var (
	version      = "dev"
	gitCommit    = ""
	gitTreeState = ""
	buildDate    = ""
)

// Version is the build metadata of the running binary.
type Version struct {
	Version string    `json:"version" yaml:"version"`
	Git     GitInfo   `json:"git" yaml:"git"`
	Build   BuildInfo `json:"build" yaml:"build"`
}

// GitInfo describes the checkout the binary was built from.
type GitInfo struct {
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	TreeState string `json:"tree_state,omitempty" yaml:"tree_state,omitempty"`
}

// BuildInfo describes the toolchain and target of the build.
type BuildInfo struct {
	Date      string `json:"date,omitempty" yaml:"date,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Compiler  string `json:"compiler" yaml:"compiler"`
	Platform  string `json:"platform" yaml:"platform"`
}

// GetVersion assembles the version of the running binary from the link-time
// stamps, filling gaps from the embedded VCS settings.
func GetVersion() Version {
	v := Version{
		Version: version,
		Git:     GitInfo{Commit: gitCommit, TreeState: gitTreeState},
		Build: BuildInfo{
			Date:      buildDate,
			GoVersion: runtime.Version(),
			Compiler:  runtime.Compiler,
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if v.Git.Commit == "" {
				v.Git.Commit = setting.Value
			}
		case "vcs.modified":
			if v.Git.TreeState == "" {
				v.Git.TreeState = "clean"
				if setting.Value == "true" {
					v.Git.TreeState = "dirty"
				}
			}
		case "vcs.time":
			if v.Build.Date == "" {
				v.Build.Date = setting.Value
			}
		}
	}
	return v
}

// String returns the one-line form, the version followed by the abbreviated
// commit when one is known.
func (v Version) String() string {
	s := v.Version
	if c := v.Git.Commit; c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		s += " (" + c + ")"
	}
	return s
}

// WriteOptions select how a Version is rendered.
type WriteOptions struct {
	// AppName prefixes the text forms when set.
	AppName string
	// Format is "text", "json" or "yaml". Anything else renders as text.
	Format string
	// Short reduces the text form to a single line.
	Short bool
}

// Write renders the version to w.
func (v Version) Write(w io.Writer, opts WriteOptions) error {
	switch strings.ToLower(opts.Format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		return yaml.NewEncoder(w).Encode(v)
	}
	if opts.Short {
		line := v.String()
		if opts.AppName != "" {
			line = opts.AppName + " " + line
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
	_, err := io.WriteString(w, v.text(opts.AppName))
	return err
}

// text renders the long form, one field per line with empty fields left out.
func (v Version) text(appName string) string {
	var b strings.Builder
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-12s: %s\n", name, value)
		}
	}
	field("application", appName)
	field("version", v.Version)
	field("git commit", v.Git.Commit)
	field("git state", v.Git.TreeState)
	field("build date", v.Build.Date)
	field("go version", v.Build.GoVersion)
	field("compiler", v.Build.Compiler)
	field("platform", v.Build.Platform)
	return b.String()
}
