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

package plugins

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("kernel", newKernel)
}

var kernelMeta = plugin.Meta{
	Description: "kernel related information",
	Options: option.Schema{
		{Key: "modinfo", Description: "gathers module information on all modules", Speed: option.Fast, Default: option.Bool(true)},
		{Key: "sysrq", Description: "trigger SysRq memory, register and task dumps", Speed: option.Fast, Default: option.Bool(false)},
	},
}

// Boot parameters left out of the report.
var hiddenBootParams = []string{"root"}

type kernel struct {
	*plugin.Base
	modulesFile  string
	cmdlineFile  string
	sysrqTrigger string
	sysrqState   string

	modules []string
}

func newKernel(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &kernel{
		Base:         plugin.NewBase(name, c, kernelMeta),
		modulesFile:  "/proc/modules",
		cmdlineFile:  "/proc/cmdline",
		sysrqTrigger: "/proc/sysrq-trigger",
		sysrqState:   "/proc/sys/kernel/sysrq",
	}, nil
}

func (k *kernel) Setup(ctx context.Context) error {
	k.CollectExtOutput("uname -a", collect.WithRootSymlink("uname"))
	k.CollectExtOutput("lsmod", collect.WithRootSymlink("lsmod"))

	mods, err := k.RegexFindAll(`(?m)^(\S+)\s`, k.modulesFile)
	if err != nil {
		return fmt.Errorf("failed to list kernel modules: %w", err)
	}
	k.modules = mods
	if k.OptBool("modinfo") {
		for _, mod := range mods {
			k.CollectExtOutput("modinfo " + mod)
		}
	}

	k.AddCopySpec(
		"/proc/filesystems",
		"/proc/kallsyms",
		"/proc/slabinfo",
		path.Join("/lib/modules", k.Policy().KernelVersion(), "modules.dep"),
		"/etc/conf.modules",
		"/etc/modules.conf",
		"/etc/modprobe.conf",
		"/etc/modprobe.d",
		"/etc/modules-load.d",
		"/proc/cmdline",
		"/proc/driver",
		"/proc/sys/kernel",
	)
	k.CollectExtOutput("dmidecode", collect.WithRootSymlink("dmidecode"))
	k.CollectExtOutput("dkms status")

	if k.OptBool("sysrq") {
		if k.triggerSysrq() {
			k.AddCopySpec("/var/log/messages*")
		}
	}
	return nil
}

// triggerSysrq asks the kernel for memory, register and task dumps, which
// land in the system log. The sysrq mask is restored afterwards.
func (k *kernel) triggerSysrq() bool {
	if unix.Access(k.sysrqTrigger, unix.W_OK) != nil || unix.Access(k.sysrqState, unix.R_OK) != nil {
		return false
	}
	state, err := os.ReadFile(k.sysrqState)
	if err != nil {
		return false
	}
	defer func() {
		if err := os.WriteFile(k.sysrqState, state, 0o644); err != nil {
			slog.Warn("failed to restore sysrq mask", "error", err)
		}
	}()
	if err := os.WriteFile(k.sysrqState, []byte("1\n"), 0o644); err != nil {
		slog.Warn("failed to enable sysrq", "error", err)
		return false
	}
	for _, key := range []string{"m", "p", "t"} {
		if err := os.WriteFile(k.sysrqTrigger, []byte(key), 0o200); err != nil {
			slog.Warn("sysrq trigger failed", "key", key, "error", err)
			return false
		}
	}
	return true
}

func (k *kernel) Analyze(context.Context) error {
	params := bootParams(k.cmdlineFile)
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Kernel %s with %d modules loaded.</p>",
		html.EscapeString(k.Policy().KernelVersion()), len(k.modules))
	if len(params) > 0 {
		b.WriteString("<p>Boot parameters: <code>")
		b.WriteString(html.EscapeString(strings.Join(params, " ")))
		b.WriteString("</code></p>")
	}
	k.AddCustomText(b.String())
	return nil
}

// bootParams returns the kernel command line words, minus hidden keys.
func bootParams(cmdline string) []string {
	data, err := os.ReadFile(cmdline)
	if err != nil {
		return nil
	}
	var out []string
	for _, field := range strings.Fields(string(data)) {
		key, _, _ := strings.Cut(field, "=")
		if !slices.Contains(hiddenBootParams, key) {
			out = append(out, field)
		}
	}
	return out
}
