// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"context"
	"regexp"
)

// Policy is the set of host facts plugins may consult. Everything else a
// plugin decides on comes from file existence or command exit codes.
type Policy interface {
	// Arch returns the machine architecture, e.g. x86_64.
	Arch() string
	// KernelVersion returns the running kernel release.
	KernelVersion() string
	// Hostname returns the host name.
	Hostname() string
	// DistroMajorVersion returns the major version of the distribution.
	DistroMajorVersion() string
	// DefaultRunlevel returns the runlevel the host boots into.
	DefaultRunlevel() int
	// ServicesEnabledAtRunlevel returns the services started at level.
	ServicesEnabledAtRunlevel(ctx context.Context, level int) map[string]bool
	// PackagePresent reports whether the named package is installed.
	PackagePresent(ctx context.Context, name string) bool
	// AllPackagesMatching returns installed packages whose name matches re.
	AllPackagesMatching(ctx context.Context, re *regexp.Regexp) []string
}
