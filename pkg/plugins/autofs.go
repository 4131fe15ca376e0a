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
	"strings"

	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("autofs", newAutofs)
}

type autofs struct {
	*plugin.Base
	sysconfig   string
	syslogConfs []string
}

func newAutofs(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &autofs{
		Base: plugin.NewBase(name, c, plugin.Meta{
			Description: "autofs server-related information",
		}),
		sysconfig:   "/etc/sysconfig/autofs",
		syslogConfs: []string{"/etc/syslog.conf", "/etc/rsyslog.conf"},
	}, nil
}

// CheckEnabled runs the plugin only when autofs starts in the default
// runlevel.
func (a *autofs) CheckEnabled(ctx context.Context) (bool, error) {
	p := a.Policy()
	if p == nil {
		return false, nil
	}
	return p.ServicesEnabledAtRunlevel(ctx, p.DefaultRunlevel())["autofs"], nil
}

func (a *autofs) Setup(context.Context) error {
	a.AddCopySpec("/etc/auto*", a.sysconfig, "/etc/rc.d/init.d/autofs")
	a.CollectExtOutput("systemctl status autofs --no-pager")
	if f := a.daemonDebugFile(); f != "" {
		a.AddCopySpec(f)
	}
	return nil
}

// daemonDebugFile returns the file daemon.* messages are logged to.
func (a *autofs) daemonDebugFile() string {
	for _, conf := range a.syslogConfs {
		files, err := a.RegexFindAll(`(?m)^daemon\S*\s+-?(/var\S*)`, conf)
		if err == nil && len(files) > 0 {
			return files[0]
		}
	}
	return ""
}

func (a *autofs) Analyze(context.Context) error {
	values, err := a.RegexFindAll(`(?m)^(?:DEFAULT_LOGGING|DAEMONOPTIONS)=(.*)$`, a.sysconfig)
	if err != nil {
		return err
	}
	for _, v := range values {
		v = strings.Trim(v, `"' `)
		if v == "debug" || strings.Contains(v, "--debug") {
			a.AddAlert("autofs debug logging is enabled")
			break
		}
	}
	return nil
}
