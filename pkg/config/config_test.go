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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Batch() {
		t.Error("Batch() = true, want false")
	}
	if cfg.CommandTimeout() != defaults.CommandTimeout {
		t.Errorf("CommandTimeout() = %v, want %v", cfg.CommandTimeout(), defaults.CommandTimeout)
	}
	if cfg.Compression() != CompressionAuto {
		t.Errorf("Compression() = %q, want %q", cfg.Compression(), CompressionAuto)
	}
	if cfg.ConfigFile() != defaults.ConfigFile || cfg.ConfigRequired() {
		t.Error("default config file should be optional")
	}
	if cfg.TmpDir() != defaults.TempDir {
		t.Errorf("TmpDir() = %q, want %q", cfg.TmpDir(), defaults.TempDir)
	}
}

func TestConfigImmutability(t *testing.T) {
	cfg := NewConfig(WithOnly("general", "kernel"))
	only := cfg.Only()
	only[0] = "mutated"
	if cfg.Only()[0] != "general" {
		t.Error("Only() must return a copy")
	}
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg := NewConfig(
		WithBatch(true),
		WithBuild(true),
		WithSkip("autofs"),
		WithEnable("hardware"),
		WithOptions("general.syslogsize=30"),
		WithAllOptions(true),
		WithTicket("12345"),
		WithName("Jane Doe"),
		WithVerbosity(2),
		WithDebug(true),
		WithCompression(CompressionBzip2),
		WithCommandTimeout(10*time.Second),
		WithPluginTimeout(time.Minute),
		WithNoReport(true),
		WithLogSize(10),
		WithAllLogs(true),
		WithUpload("oci://registry.example.com/bundles:latest", true, false),
		WithConfigFile("/tmp/x.conf"),
		WithVersion("v1.2.3"),
	)

	assert.True(t, cfg.Batch())
	assert.True(t, cfg.Build())
	assert.Equal(t, []string{"autofs"}, cfg.Skip())
	assert.Equal(t, []string{"hardware"}, cfg.Enable())
	assert.Equal(t, []string{"general.syslogsize=30"}, cfg.Options())
	assert.True(t, cfg.AllOptions())
	assert.Equal(t, "12345", cfg.Ticket())
	assert.Equal(t, "Jane Doe", cfg.Name())
	assert.Equal(t, 2, cfg.Verbosity())
	assert.True(t, cfg.Debug())
	assert.Equal(t, CompressionBzip2, cfg.Compression())
	assert.Equal(t, 10*time.Second, cfg.CommandTimeout())
	assert.Equal(t, time.Minute, cfg.PluginTimeout())
	assert.True(t, cfg.NoReport())
	assert.Equal(t, 10, cfg.LogSize())
	assert.True(t, cfg.AllLogs())
	assert.Equal(t, "oci://registry.example.com/bundles:latest", cfg.Upload())
	assert.True(t, cfg.UploadPlainHTTP())
	assert.False(t, cfg.UploadInsecureTLS())
	assert.True(t, cfg.ConfigRequired())
	assert.Equal(t, "v1.2.3", cfg.Version())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid default config", config: NewConfig()},
		{name: "numeric ticket", config: NewConfig(WithTicket("00042"))},
		{name: "non-numeric ticket", config: NewConfig(WithTicket("abc")), wantErr: true},
		{name: "bad compression", config: NewConfig(WithCompression("gzip")), wantErr: true},
		{name: "zero command timeout", config: NewConfig(WithCommandTimeout(0)), wantErr: true},
		{name: "negative plugin timeout", config: NewConfig(WithPluginTimeout(-time.Second)), wantErr: true},
		{name: "negative log size", config: NewConfig(WithLogSize(-1)), wantErr: true},
		{name: "log size", config: NewConfig(WithLogSize(20), WithAllLogs(true))},
		{name: "bad upload scheme", config: NewConfig(WithUpload("https://x", false, false)), wantErr: true},
		{name: "oci upload", config: NewConfig(WithUpload("oci://ghcr.io/acme/bundles:v1", false, false))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && cnserrors.CodeOf(err) != cnserrors.ErrCodeInvalidRequest {
				t.Errorf("Validate() code = %q, want %q", cnserrors.CodeOf(err), cnserrors.ErrCodeInvalidRequest)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostbundle.conf")
	content := `[general]
ftp_upload_url = ftp://example.com

[plugins]
disable = autofs, hardware,kernel

[tunables]
general.syslogsize = 30
networking.traceroute = off
general.all_logs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f, err := LoadFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.Equal(t, []string{"autofs", "hardware", "kernel"}, f.Disable)
	assert.Equal(t, "30", f.Tunables["general.syslogsize"])
	assert.Equal(t, "off", f.Tunables["networking.traceroute"])
	assert.Equal(t, "true", f.Tunables["general.all_logs"])
	assert.Equal(t, []string{"general.all_logs", "general.syslogsize", "networking.traceroute"}, f.TunableNames())
}

func TestLoadFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.conf")

	f, err := LoadFile(missing, false)
	require.NoError(t, err)
	assert.Empty(t, f.Disable)
	assert.Empty(t, f.Tunables)

	_, err = LoadFile(missing, true)
	require.Error(t, err)
	assert.Equal(t, cnserrors.ErrCodeInvalidRequest, cnserrors.CodeOf(err))
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("[plugins\ndisable=x\n"), 0o644))
	_, err := LoadFile(path, true)
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b", []string{"a", "b"}},
		{" a , b ,, c", []string{"a", "b", "c"}},
		{"", nil},
		{",", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitList(tt.in), tt.in)
	}
	assert.Equal(t, []string{"a", "b", "c"}, SplitLists([]string{"a,b", "c"}))
}
