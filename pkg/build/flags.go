// SPDX-License-Identifier: MIT
//
// Package build provides the build information embedded in the binary: the
// application name, build timestamp, Git commit hash and semantic version.
// Release builds set them with linker flags:
//
//	go build -ldflags "-X lid/pkg/build.buildVersion=0.2.0 -X lid/pkg/build.buildCommit=$(git rev-parse HEAD) ..."
//
// Development builds fall back to the module and VCS information recorded by
// the Go toolchain.
package build

import (
	"errors"
	"runtime/debug"
	"sync"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

const (
	defaultName        = "lid"
	defaultDescription = "Spoken language identification from live audio"
	unknown            = "unknown"
)

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string

	mu        sync.Mutex
	buildInfo = &Info{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies the ldflags values into the build information. Missing
// values are taken from the toolchain's build info where possible. The
// returned error lists the flags that had to be filled in; it is informational
// and callers normally only log it.
func Initialize() error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	var bi *debug.BuildInfo
	if info, ok := readBuildInfo(); ok {
		bi = info
	}

	set := func(dst *string, flag, value, fallback string) {
		switch {
		case value != "":
			*dst = value
		case fallback != "":
			*dst = fallback
			errs = append(errs, errors.New(flag+" not set, using build info"))
		default:
			errs = append(errs, errors.New(flag+" is required"))
		}
	}

	set(&buildInfo.Name, "BuildName", buildName, "")
	set(&buildInfo.Time, "BuildTime", buildTime, vcsSetting(bi, "vcs.time"))
	set(&buildInfo.Commit, "BuildCommit", buildCommit, vcsSetting(bi, "vcs.revision"))
	set(&buildInfo.Version, "BuildVersion", buildVersion, moduleVersion(bi))

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	mu.Lock()
	defer mu.Unlock()
	info := *buildInfo
	return &info
}

func vcsSetting(bi *debug.BuildInfo, key string) string {
	if bi == nil {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func moduleVersion(bi *debug.BuildInfo) string {
	if bi == nil || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return ""
	}
	return bi.Main.Version
}
