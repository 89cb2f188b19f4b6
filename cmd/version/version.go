// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables overridden via ldflags.
var (
	Version   = "unknown-version"
	GitCommit = "unknown-commit"
	BuildTime = "unknown-buildtime"
)

// BuildInfo returns the version, commit and platform of the binary.
func BuildInfo() string {
	commit := GitCommit
	if info, ok := debug.ReadBuildInfo(); ok && commit == "unknown-commit" {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				commit = setting.Value
			}
		}
	}
	var builder strings.Builder
	fmt.Fprintln(&builder, "Version:\t", Version)
	fmt.Fprintln(&builder, "Go version:\t", runtime.Version())
	fmt.Fprintln(&builder, "Git commit:\t", commit)
	fmt.Fprintln(&builder, "Built:\t\t", BuildTime)
	fmt.Fprintf(&builder, "OS/Arch:\t %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return builder.String()
}
