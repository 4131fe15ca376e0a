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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
	"github.com/NVIDIA/hostbundle/pkg/policy"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// load instantiates a registered plugin and binds it to a fresh staging root.
func load[T plugin.Plugin](t *testing.T, name string, pol policy.Policy, values map[string]option.Value) (T, *staging.Staging) {
	t.Helper()
	factory, ok := plugin.GlobalFactories()[name]
	require.True(t, ok, name)
	p, err := factory(name, &plugin.Commons{Policy: pol})
	require.NoError(t, err)
	p.Facade().SetOptionValues(values)

	st, err := staging.Make(context.Background(), t.TempDir(), "testhost", staging.WithoutLock())
	require.NoError(t, err)
	p.Facade().Bind(st)
	typed, ok := p.(T)
	require.True(t, ok)
	return typed, st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuiltinsRegistered(t *testing.T) {
	names := plugin.GlobalNames()
	for _, name := range []string{"autofs", "general", "hardware", "kernel", "networking", "services"} {
		assert.Contains(t, names, name)
	}
}

func TestGeneralSetup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		g, _ := load[*general](t, "general", policy.PackageSet(), nil)
		require.NoError(t, g.Setup(context.Background()))
		plan := g.Planned()
		assert.Contains(t, plan, "copy /etc/os-release")
		assert.Contains(t, plan, "copy /var/log/messages.* (limit 15MB)")
		assert.Contains(t, plan, "run hostname")
		assert.Contains(t, plan, "run env")
	})

	t.Run("syslog size and all logs", func(t *testing.T) {
		dir := t.TempDir()
		kept := filepath.Join(dir, "kern.log")
		writeFile(t, kept, "x")
		conf := filepath.Join(dir, "rsyslog.conf")
		writeFile(t, conf, "kern.*  -"+kept+"\n*.info  "+filepath.Join(dir, "missing.log")+"\n")

		g, _ := load[*general](t, "general", policy.PackageSet(), map[string]option.Value{
			"syslogsize": option.Int(5),
			"all_logs":   option.Bool(true),
		})
		g.syslogConfs = []string{conf}
		require.NoError(t, g.Setup(context.Background()))

		plan := g.Planned()
		assert.Contains(t, plan, "copy /var/log/secure.* (limit 5MB)")
		assert.Contains(t, plan, "copy "+kept)
		assert.NotContains(t, plan, "copy "+filepath.Join(dir, "missing.log"))
	})
}

func TestKernelSetup(t *testing.T) {
	modules := filepath.Join(t.TempDir(), "modules")
	writeFile(t, modules, "nvidia 56762368 0 - Live 0x0\nxfs 2002944 1 - Live 0x0\n")

	tests := []struct {
		name    string
		modinfo bool
		want    []string
		absent  []string
	}{
		{
			name:    "modinfo on",
			modinfo: true,
			want:    []string{"run modinfo nvidia", "run modinfo xfs", "copy /lib/modules/6.1.0/modules.dep"},
		},
		{
			name:   "modinfo off",
			want:   []string{"run lsmod"},
			absent: []string{"run modinfo nvidia"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, _ := load[*kernel](t, "kernel", policy.PackageSet(), map[string]option.Value{
				"modinfo": option.Bool(tt.modinfo),
			})
			k.modulesFile = modules
			require.NoError(t, k.Setup(context.Background()))
			for _, w := range tt.want {
				assert.Contains(t, k.Planned(), w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, k.Planned(), a)
			}
			assert.Equal(t, []string{"nvidia", "xfs"}, k.modules)
			assert.Equal(t, map[string]string{
				"uname":     "uname -a",
				"lsmod":     "lsmod",
				"dmidecode": "dmidecode",
			}, k.PlannedRootSymlinks())
		})
	}
}

func TestKernelSysrq(t *testing.T) {
	dir := t.TempDir()
	k, _ := load[*kernel](t, "kernel", policy.PackageSet(), map[string]option.Value{
		"modinfo": option.Bool(false),
		"sysrq":   option.Bool(true),
	})
	k.modulesFile = filepath.Join(dir, "modules")
	k.sysrqTrigger = filepath.Join(dir, "sysrq-trigger")
	k.sysrqState = filepath.Join(dir, "sysrq")
	writeFile(t, k.sysrqTrigger, "")
	writeFile(t, k.sysrqState, "16\n")

	require.NoError(t, k.Setup(context.Background()))
	assert.Contains(t, k.Planned(), "copy /var/log/messages*")

	trigger, err := os.ReadFile(k.sysrqTrigger)
	require.NoError(t, err)
	assert.Equal(t, "t", string(trigger))
	state, err := os.ReadFile(k.sysrqState)
	require.NoError(t, err)
	assert.Equal(t, "16\n", string(state))
}

func TestKernelAnalyze(t *testing.T) {
	cmdline := filepath.Join(t.TempDir(), "cmdline")
	writeFile(t, cmdline, "BOOT_IMAGE=/vmlinuz root=/dev/sda1 quiet <x>\n")
	assert.Equal(t, []string{"BOOT_IMAGE=/vmlinuz", "quiet", "<x>"}, bootParams(cmdline))
	assert.Nil(t, bootParams(filepath.Join(t.TempDir(), "missing")))

	k, _ := load[*kernel](t, "kernel", policy.PackageSet(), nil)
	k.cmdlineFile = cmdline
	k.modules = []string{"xfs"}
	require.NoError(t, k.Analyze(context.Background()))
	report := k.Report()
	assert.Contains(t, report, "Kernel 6.1.0 with 1 modules loaded.")
	assert.Contains(t, report, "quiet &lt;x&gt;")
	assert.NotContains(t, report, "sda1")
}

func TestHardwareSetup(t *testing.T) {
	h, _ := load[*hardware](t, "hardware", policy.PackageSet(), nil)
	require.NoError(t, h.Setup(context.Background()))
	plan := h.Planned()
	assert.Contains(t, plan, "copy /proc/cpuinfo")
	assert.Contains(t, plan, "run lspci -vvn")
	assert.True(t, h.DefaultEnabled())
}

func TestInterfaceNames(t *testing.T) {
	out := "1: lo: <LOOPBACK,UP> mtu 65536\n" +
		"2: eth0: <BROADCAST,UP> mtu 1500\n" +
		"3: veth1a2b@if4: <BROADCAST> mtu 1500\n"
	assert.Equal(t, []string{"eth0", "veth1a2b"}, interfaceNames(out))
	assert.Empty(t, interfaceNames(""))
}

func TestNetworkingSetup(t *testing.T) {
	n, st := load[*networking](t, "networking", policy.PackageSet(), nil)
	n.linkCmd = `printf '1: lo: <LOOPBACK>\n2: eth0: <UP>\n'`
	require.NoError(t, n.Setup(context.Background()))

	plan := n.Planned()
	assert.Contains(t, plan, "copy /etc/host*")
	assert.Contains(t, plan, "run ethtool eth0")
	assert.NotContains(t, plan, "run ethtool lo")
	assert.True(t, n.Collector().Forbidden("/etc/NetworkManager/system-connections/home.nmconnection"))
	links := n.PlannedRootSymlinks()
	assert.Equal(t, "ip route show table all", links["route"])
	assert.Equal(t, "ss -tuanp", links["netstat"])

	entries, err := os.ReadDir(st.Commands())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAutofsCheckEnabled(t *testing.T) {
	tests := []struct {
		name     string
		services map[int][]string
		want     bool
	}{
		{"enabled at default runlevel", map[int][]string{3: {"autofs", "sshd"}}, true},
		{"enabled elsewhere", map[int][]string{5: {"autofs"}}, false},
		{"absent", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := policy.PackageSet()
			pol.Services = tt.services
			a, _ := load[*autofs](t, "autofs", pol, nil)
			ok, err := a.CheckEnabled(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAutofsDebug(t *testing.T) {
	dir := t.TempDir()
	a, _ := load[*autofs](t, "autofs", policy.PackageSet(), nil)
	a.sysconfig = filepath.Join(dir, "autofs")
	a.syslogConfs = []string{filepath.Join(dir, "syslog.conf")}
	writeFile(t, a.sysconfig, "TIMEOUT=300\nDEFAULT_LOGGING=\"debug\"\n")
	writeFile(t, a.syslogConfs[0], "*.info /var/log/messages\ndaemon.*  -/var/log/daemon.log\n")

	require.NoError(t, a.Setup(context.Background()))
	assert.Contains(t, a.Planned(), "copy /var/log/daemon.log")

	require.NoError(t, a.Analyze(context.Background()))
	assert.Equal(t, []string{"autofs debug logging is enabled"}, a.Alerts())
}

type fakeUnits struct {
	props  map[string]map[string]any
	closed bool
}

func (f *fakeUnits) GetAllPropertiesContext(_ context.Context, unit string) (map[string]any, error) {
	p, ok := f.props[unit]
	if !ok {
		return nil, errors.New("no such unit")
	}
	return p, nil
}

func (f *fakeUnits) Close() { f.closed = true }

func TestServicesProperties(t *testing.T) {
	pol := policy.PackageSet()
	pol.Services = map[int][]string{3: {"sshd", "crond.service", "gone"}}
	s, st := load[*services](t, "services", pol, map[string]option.Value{"properties": option.Bool(true)})

	units := &fakeUnits{props: map[string]map[string]any{
		"sshd.service": {
			"ActiveState":      "active",
			"Environment":      []string{"TOKEN=x"},
			"LoadCredential":   "secret",
			"ExecMainPID":      uint32(812),
			"Id":               "sshd.service",
			"AllowedCPUs":      []byte{},
			"UnitFileState":    "enabled",
			"SetCredentialEnc": "x",
		},
		"crond.service": {"ActiveState": "inactive"},
	}}
	s.dial = func(context.Context) (unitProperties, error) { return units, nil }

	require.NoError(t, s.Setup(context.Background()))
	assert.True(t, units.closed)
	assert.Equal(t, []string{"crond.service", "gone", "sshd"}, s.enabled)

	data, err := os.ReadFile(filepath.Join(st.Commands(), "services.systemd_sshd.service"))
	require.NoError(t, err)
	assert.Equal(t, "ActiveState=active\nExecMainPID=812\nUnitFileState=enabled\n", string(data))
	assert.FileExists(t, filepath.Join(st.Commands(), "services.systemd_crond.service"))
	assert.NoFileExists(t, filepath.Join(st.Commands(), "services.systemd_gone.service"))

	require.NoError(t, s.Analyze(context.Background()))
	assert.Contains(t, s.Report(), "3 services start by default")
}

func TestServicesBusUnavailable(t *testing.T) {
	s, st := load[*services](t, "services", policy.PackageSet(), map[string]option.Value{"properties": option.Bool(true)})
	s.dial = func(context.Context) (unitProperties, error) { return nil, errors.New("no bus") }
	require.NoError(t, s.Setup(context.Background()))
	entries, err := os.ReadDir(st.Commands())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, s.Planned(), "run systemctl list-units --all --no-pager")
}
