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
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("services", newServices)
}

var servicesMeta = plugin.Meta{
	Description: "init and systemd service state",
	Options: option.Schema{
		{Key: "properties", Description: "dump systemd properties of services enabled at boot", Speed: option.Slow, Default: option.Bool(false)},
	},
}

// Unit properties left out of the dumps.
var hiddenUnitProperties = []string{
	"AllowedCPUs",
	"AllowedMemoryNodes",
	"Asserts",
	"BPFProgram",
	"BusName",
	"Id",
	"*Credential*",
	"*Environment*",
}

// unitProperties reads the properties of one systemd unit.
type unitProperties interface {
	GetAllPropertiesContext(ctx context.Context, unit string) (map[string]any, error)
	Close()
}

type services struct {
	*plugin.Base
	dial func(ctx context.Context) (unitProperties, error)

	enabled []string
}

func newServices(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &services{
		Base: plugin.NewBase(name, c, servicesMeta),
		dial: func(ctx context.Context) (unitProperties, error) {
			conn, err := dbus.NewSystemdConnectionContext(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to systemd: %w", err)
			}
			return conn, nil
		},
	}, nil
}

func (s *services) Setup(ctx context.Context) error {
	s.AddCopySpec("/etc/inittab", "/etc/systemd/system", "/etc/rc.d/rc.local")
	s.CollectExtOutput("runlevel")
	s.CollectExtOutput("chkconfig --list")
	s.CollectExtOutput("systemctl list-units --all --no-pager")
	s.CollectExtOutput("systemctl list-unit-files --no-pager", collect.WithRootSymlink("unit-files"))

	if p := s.Policy(); p != nil {
		for name := range p.ServicesEnabledAtRunlevel(ctx, p.DefaultRunlevel()) {
			s.enabled = append(s.enabled, name)
		}
		sort.Strings(s.enabled)
	}

	if s.OptBool("properties") {
		s.dumpProperties(ctx)
	}
	return nil
}

// dumpProperties writes one key=value listing per enabled service. A host
// without a reachable systemd bus yields no listings.
func (s *services) dumpProperties(ctx context.Context) {
	conn, err := s.dial(ctx)
	if err != nil {
		slog.Warn("systemd bus unavailable", "plugin", s.Name(), "error", err)
		return
	}
	defer conn.Close()

	for _, name := range s.enabled {
		unit := name
		if !strings.Contains(unit, ".") {
			unit += ".service"
		}
		props, err := conn.GetAllPropertiesContext(ctx, unit)
		if err != nil {
			slog.Warn("failed to get unit properties", "unit", unit, "error", err)
			continue
		}
		if _, err := s.WriteTextToCommand("systemd_"+unit, formatProperties(props)); err != nil {
			slog.Warn("failed to write unit properties", "unit", unit, "error", err)
		}
	}
}

func formatProperties(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if !hiddenProperty(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, props[k])
	}
	return b.String()
}

func hiddenProperty(key string) bool {
	for _, pattern := range hiddenUnitProperties {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return true
		}
	}
	return false
}

func (s *services) Analyze(context.Context) error {
	if len(s.enabled) == 0 {
		return nil
	}
	s.AddCustomText(fmt.Sprintf("<p>%d services start by default: %s</p>",
		len(s.enabled), html.EscapeString(strings.Join(s.enabled, ", "))))
	return nil
}
