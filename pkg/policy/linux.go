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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	utilexec "k8s.io/utils/exec"

	"github.com/NVIDIA/hostbundle/pkg/version"
)

var (
	filePathReleasePrimary  = "etc/os-release"
	filePathReleaseFallback = "usr/lib/os-release"
	filePathInittab         = "etc/inittab"
	filePathDefaultTarget   = "etc/systemd/system/default.target"
	rcDirs                  = []string{"etc/rc.d/rc%d.d", "etc/rc%d.d"}

	initdefault = regexp.MustCompile(`^[^:]*:(\d):initdefault:`)

	targetRunlevels = map[string]int{
		"poweroff.target":   0,
		"rescue.target":     1,
		"multi-user.target": 3,
		"graphical.target":  5,
		"reboot.target":     6,
	}
)

// DefaultRunlevel is assumed when the host declares none.
const DefaultRunlevel = 3

// UnitLister lists the service units enabled on the host.
type UnitLister interface {
	EnabledServices(ctx context.Context) ([]string, error)
}

// Linux is the reference Policy for Linux hosts. Host files are read
// relative to a configurable root so tests can supply a fake filesystem.
type Linux struct {
	root  string
	exec  utilexec.Interface
	units UnitLister
	uname func(*unix.Utsname) error

	unameOnce sync.Once
	arch      string
	kernel    string
	nodename  string

	pkgOnce  sync.Once
	packages map[string]bool
}

// LinuxOption configures a Linux policy.
type LinuxOption func(*Linux)

// WithRoot reads host files below root instead of /.
func WithRoot(root string) LinuxOption {
	return func(l *Linux) { l.root = root }
}

// WithExec sets the executor used for package database queries.
func WithExec(e utilexec.Interface) LinuxOption {
	return func(l *Linux) { l.exec = e }
}

// WithUnitLister sets the source of enabled systemd services.
func WithUnitLister(u UnitLister) LinuxOption {
	return func(l *Linux) { l.units = u }
}

// WithUname replaces the uname syscall.
func WithUname(fn func(*unix.Utsname) error) LinuxOption {
	return func(l *Linux) { l.uname = fn }
}

// NewLinux returns a Linux policy reading the live host.
func NewLinux(opts ...LinuxOption) *Linux {
	l := &Linux{
		root:  "/",
		exec:  utilexec.New(),
		units: SystemdUnits{},
		uname: unix.Uname,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Linux) path(rel string) string {
	return filepath.Join(l.root, rel)
}

func (l *Linux) loadUname() {
	l.unameOnce.Do(func() {
		var u unix.Utsname
		if err := l.uname(&u); err != nil {
			slog.Warn("uname failed", "error", err)
			return
		}
		l.arch = unix.ByteSliceToString(u.Machine[:])
		l.kernel = unix.ByteSliceToString(u.Release[:])
		l.nodename = unix.ByteSliceToString(u.Nodename[:])
	})
}

// Arch implements Policy.
func (l *Linux) Arch() string {
	l.loadUname()
	return l.arch
}

// KernelVersion implements Policy.
func (l *Linux) KernelVersion() string {
	l.loadUname()
	return l.kernel
}

// Hostname implements Policy.
func (l *Linux) Hostname() string {
	l.loadUname()
	if l.nodename != "" {
		return l.nodename
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}

// Release returns the parsed os-release file, falling back to
// /usr/lib/os-release per freedesktop.org.
func (l *Linux) Release() map[string]string {
	path := l.path(filePathReleasePrimary)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = l.path(filePathReleaseFallback)
	}
	kv, err := readKV(path, "=", `"'`)
	if err != nil {
		slog.Debug("os release unavailable", "error", err)
		return map[string]string{}
	}
	return kv
}

// DistroMajorVersion implements Policy.
func (l *Linux) DistroMajorVersion() string {
	id := l.Release()["VERSION_ID"]
	v, err := version.Parse(id)
	if err != nil {
		major, _, _ := strings.Cut(id, ".")
		return major
	}
	return strconv.Itoa(v.Major)
}

// DefaultRunlevel implements Policy. It reads initdefault from inittab, then
// the systemd default target, and falls back to 3.
func (l *Linux) DefaultRunlevel() int {
	if lines, err := readLines(l.path(filePathInittab)); err == nil {
		for _, line := range lines {
			if m := initdefault.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[1])
				return n
			}
		}
	}
	if target, err := os.Readlink(l.path(filePathDefaultTarget)); err == nil {
		if n, ok := targetRunlevels[filepath.Base(target)]; ok {
			return n
		}
	}
	return DefaultRunlevel
}

// ServicesEnabledAtRunlevel implements Policy. SysV start links in the rc
// directory for level are combined with systemd services enabled for the
// multi-user runlevels 2 to 5.
func (l *Linux) ServicesEnabledAtRunlevel(ctx context.Context, level int) map[string]bool {
	out := make(map[string]bool)
	for _, pattern := range rcDirs {
		entries, err := os.ReadDir(l.path(fmt.Sprintf(pattern, level)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if len(name) > 3 && name[0] == 'S' && isDigit(name[1]) && isDigit(name[2]) {
				out[name[3:]] = true
			}
		}
	}
	if level >= 2 && level <= 5 && l.units != nil {
		services, err := l.units.EnabledServices(ctx)
		if err != nil {
			slog.Debug("systemd unit listing unavailable", "error", err)
		}
		for _, s := range services {
			out[s] = true
		}
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// PackagePresent implements Policy.
func (l *Linux) PackagePresent(ctx context.Context, name string) bool {
	return l.installed(ctx)[name]
}

// AllPackagesMatching implements Policy.
func (l *Linux) AllPackagesMatching(ctx context.Context, re *regexp.Regexp) []string {
	var out []string
	for name := range l.installed(ctx) {
		if re.MatchString(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// installed lists the package database once: rpm first, then dpkg.
func (l *Linux) installed(ctx context.Context) map[string]bool {
	l.pkgOnce.Do(func() {
		l.packages = make(map[string]bool)
		queries := [][]string{
			{"rpm", "-qa", "--queryformat", "%{NAME}\n"},
			{"dpkg-query", "-W", "-f", "${Package}\n"},
		}
		for _, q := range queries {
			if _, err := l.exec.LookPath(q[0]); err != nil {
				continue
			}
			out, err := l.exec.CommandContext(ctx, q[0], q[1:]...).Output()
			if err != nil {
				slog.Debug("package query failed", "tool", q[0], "error", err)
				continue
			}
			for _, line := range strings.Split(string(out), "\n") {
				if name := strings.TrimSpace(line); name != "" {
					l.packages[name] = true
				}
			}
			if len(l.packages) > 0 {
				slog.Debug("package database loaded", "tool", q[0], "count", len(l.packages))
				return
			}
		}
	})
	return l.packages
}
