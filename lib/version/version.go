// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies the running Taskvault binary.
//
// The package-level variables are stamped at build time with -ldflags:
//
//	go build -ldflags "-X github.com/taskvault/taskvault/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Binaries without stamps report "unknown" fields rather than failing.
package version

import (
	"fmt"
	"runtime"
)

// Stamped via -ldflags. Version is bumped by hand for releases.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Build is a snapshot of the stamped build identity plus the runtime
// toolchain facts.
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	BuiltAt   string
	GoVersion string
	Platform  string
}

// Current collects the stamped variables into a Build.
func Current() Build {
	return Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuiltAt:   BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the one-line form used by --version output.
func (b Build) String() string {
	commit := b.Commit
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.BuiltAt)
}

// Detailed renders the multi-line form with toolchain details.
func (b Build) Detailed() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s", b.String(), b.GoVersion, b.Platform)
}
