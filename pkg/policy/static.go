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
	"sort"
)

// Static is a Policy with fixed facts, for tests and dry runs.
type Static struct {
	ArchName    string
	Kernel      string
	Host        string
	DistroMajor string
	Runlevel    int
	Services    map[int][]string
	Packages    []string
}

// PackageSet returns a Static seeded with the given packages.
func PackageSet(packages ...string) *Static {
	return &Static{
		ArchName: "x86_64",
		Kernel:   "6.1.0",
		Host:     "testhost",
		Runlevel: DefaultRunlevel,
		Packages: packages,
	}
}

func (s *Static) Arch() string               { return s.ArchName }
func (s *Static) KernelVersion() string      { return s.Kernel }
func (s *Static) Hostname() string           { return s.Host }
func (s *Static) DistroMajorVersion() string { return s.DistroMajor }
func (s *Static) DefaultRunlevel() int       { return s.Runlevel }

func (s *Static) ServicesEnabledAtRunlevel(_ context.Context, level int) map[string]bool {
	out := make(map[string]bool)
	for _, name := range s.Services[level] {
		out[name] = true
	}
	return out
}

func (s *Static) PackagePresent(_ context.Context, name string) bool {
	for _, p := range s.Packages {
		if p == name {
			return true
		}
	}
	return false
}

func (s *Static) AllPackagesMatching(_ context.Context, re *regexp.Regexp) []string {
	var out []string
	for _, p := range s.Packages {
		if re.MatchString(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
