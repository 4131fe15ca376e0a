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
	"os"
	"strings"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("general", newGeneral)
}

var generalMeta = plugin.Meta{
	Description: "basic system information",
	Options: option.Schema{
		{Key: "syslogsize", Description: "max size (MiB) to collect per syslog file", Speed: option.Fast, Default: option.Int(15)},
		{Key: "all_logs", Description: "collect all log files defined in syslog.conf", Speed: option.Slow, Default: option.Bool(false)},
	},
}

type general struct {
	*plugin.Base
	syslogConfs []string
}

func newGeneral(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &general{
		Base:        plugin.NewBase(name, c, generalMeta),
		syslogConfs: []string{"/etc/syslog.conf", "/etc/rsyslog.conf"},
	}, nil
}

func (g *general) Setup(ctx context.Context) error {
	g.AddCopySpec(
		"/etc/os-release",
		"/etc/redhat-release",
		"/etc/fedora-release",
		"/etc/inittab",
		"/etc/hostbundle.conf",
		"/etc/sysconfig",
		"/proc/stat",
		"/var/log/dmesg",
		"/var/log/messages",
	)
	size := g.OptInt("syslogsize")
	g.AddCopySpecLimit("/var/log/messages.*", size)
	g.AddCopySpec("/var/log/secure")
	g.AddCopySpecLimit("/var/log/secure.*", size)
	g.AddCopySpec("/var/log/sa", "/var/log/up2date")

	g.CollectExtOutput("hostname", collect.WithRootSymlink("hostname"))
	g.CollectExtOutput("date", collect.WithRootSymlink("date"))
	g.CollectExtOutput("uptime", collect.WithRootSymlink("uptime"))
	g.CollectExtOutput("env")

	if g.OptBool("all_logs") {
		for _, log := range g.syslogTargets() {
			g.AddCopySpec(log)
		}
	}
	return nil
}

// syslogTargets returns the regular files named as actions in the syslog
// configuration files.
func (g *general) syslogTargets() []string {
	var out []string
	for _, conf := range g.syslogConfs {
		targets, err := g.RegexFindAll(`(?m)^\S+\s+(\S+)`, conf)
		if err != nil {
			continue
		}
		for _, t := range targets {
			t = strings.TrimLeft(t, "-")
			if fi, err := os.Stat(t); err == nil && fi.Mode().IsRegular() {
				out = append(out, t)
			}
		}
	}
	return out
}

func (g *general) Postproc(ctx context.Context) error {
	_, err := g.RegexSub(ctx, "/etc/sysconfig/rhn/up2date", `(\s*proxyPassword\s*=\s*)\S+`, `\1***`)
	return err
}
