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
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

var validate = validator.New()

// Compression settings.
const (
	CompressionAuto  = "auto"
	CompressionXZ    = "xz"
	CompressionBzip2 = "bzip2"
)

// Config holds the settings of one run. It is immutable once built; use the
// getters for read access.
type Config struct {
	// listPlugins renders the plugin partition and options, then exits.
	listPlugins bool

	// only, enable and skip are the plugin toggles.
	only   []string
	enable []string
	skip   []string

	// options are raw -k plugin.key[=value] assignments.
	options []string

	// allOptions turns every boolean option on.
	allOptions bool

	// batch disables prompts.
	batch bool

	// build leaves the staging tree in place instead of packaging it.
	build bool

	// tmpDir is the temp base for the staging root.
	tmpDir string

	// configFile is the INI file path; configRequired is set when it was
	// given explicitly.
	configFile     string
	configRequired bool

	// ticket and name feed the archive name.
	ticket string
	name   string

	// verbosity is the -v repeat count.
	verbosity int

	// debug re-raises plugin failures.
	debug bool

	// compression selects the archive compressor.
	compression string

	// commandTimeout and pluginTimeout bound external commands and plugins.
	commandTimeout time.Duration
	pluginTimeout  time.Duration

	// noReport skips the HTML and XML summaries.
	noReport bool

	// logSizeMB caps size-limited harvests; allLogs lifts every cap.
	logSizeMB int
	allLogs   bool

	// upload is an oci:// reference the archive is pushed to.
	upload            string
	uploadPlainHTTP   bool
	uploadInsecureTLS bool

	// version is the tool version recorded in reports.
	version string
}

// ListPlugins returns the list-plugins setting.
func (c *Config) ListPlugins() bool { return c.listPlugins }

// Only returns a copy of the --only list.
func (c *Config) Only() []string { return slices.Clone(c.only) }

// Enable returns a copy of the --enable list.
func (c *Config) Enable() []string { return slices.Clone(c.enable) }

// Skip returns a copy of the --skip list.
func (c *Config) Skip() []string { return slices.Clone(c.skip) }

// Options returns a copy of the raw -k assignments.
func (c *Config) Options() []string { return slices.Clone(c.options) }

// AllOptions returns the all-options setting.
func (c *Config) AllOptions() bool { return c.allOptions }

// Batch returns the batch setting.
func (c *Config) Batch() bool { return c.batch }

// Build returns the build-only setting.
func (c *Config) Build() bool { return c.build }

// TmpDir returns the temp base.
func (c *Config) TmpDir() string { return c.tmpDir }

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string { return c.configFile }

// ConfigRequired reports whether the config file must exist.
func (c *Config) ConfigRequired() bool { return c.configRequired }

// Ticket returns the ticket number.
func (c *Config) Ticket() string { return c.ticket }

// Name returns the submitter name.
func (c *Config) Name() string { return c.name }

// Verbosity returns the -v count.
func (c *Config) Verbosity() int { return c.verbosity }

// Debug returns the debug setting.
func (c *Config) Debug() bool { return c.debug }

// Compression returns the compressor selection.
func (c *Config) Compression() string { return c.compression }

// CommandTimeout returns the per-command timeout.
func (c *Config) CommandTimeout() time.Duration { return c.commandTimeout }

// PluginTimeout returns the per-plugin cap, zero when uncapped.
func (c *Config) PluginTimeout() time.Duration { return c.pluginTimeout }

// NoReport returns the no-report setting.
func (c *Config) NoReport() bool { return c.noReport }

// LogSize returns the run-wide harvest cap in MB, zero when unset.
func (c *Config) LogSize() int { return c.logSizeMB }

// AllLogs returns whether harvests ignore size limits.
func (c *Config) AllLogs() bool { return c.allLogs }

// Upload returns the upload reference.
func (c *Config) Upload() string { return c.upload }

// UploadPlainHTTP returns whether the registry is reached without TLS.
func (c *Config) UploadPlainHTTP() bool { return c.uploadPlainHTTP }

// UploadInsecureTLS returns whether registry certificates are not verified.
func (c *Config) UploadInsecureTLS() bool { return c.uploadInsecureTLS }

// Version returns the tool version.
func (c *Config) Version() string { return c.version }

// Validate checks if the Config has valid settings.
func (c *Config) Validate() error {
	checks := []struct {
		field string
		value any
		tag   string
	}{
		{"ticket-number", c.ticket, "omitempty,numeric"},
		{"compression", c.compression, "oneof=auto xz bzip2"},
		{"tmp-dir", c.tmpDir, "required"},
		{"command-timeout", int64(c.commandTimeout), "gt=0"},
		{"plugin-timeout", int64(c.pluginTimeout), "gte=0"},
		{"log-size", c.logSizeMB, "gte=0"},
		{"upload", c.upload, "omitempty,startswith=oci://"},
		{"verbose", c.verbosity, "gte=0"},
	}
	for _, ck := range checks {
		if err := validate.Var(ck.value, ck.tag); err != nil {
			return cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
				fmt.Sprintf("invalid %s: %v", ck.field, ck.value), err,
				map[string]any{"field": ck.field, "rule": ck.tag})
		}
	}
	return nil
}

type Option func(*Config)

// WithListPlugins sets whether the run only lists plugins.
func WithListPlugins(enabled bool) Option {
	return func(c *Config) { c.listPlugins = enabled }
}

// WithOnly sets the plugins that are the only ones to run.
func WithOnly(names ...string) Option {
	return func(c *Config) { c.only = append(c.only, names...) }
}

// WithEnable sets plugins to force-enable.
func WithEnable(names ...string) Option {
	return func(c *Config) { c.enable = append(c.enable, names...) }
}

// WithSkip sets plugins to force-skip.
func WithSkip(names ...string) Option {
	return func(c *Config) { c.skip = append(c.skip, names...) }
}

// WithOptions adds raw -k assignments.
func WithOptions(assignments ...string) Option {
	return func(c *Config) { c.options = append(c.options, assignments...) }
}

// WithAllOptions sets whether every boolean option is turned on.
func WithAllOptions(enabled bool) Option {
	return func(c *Config) { c.allOptions = enabled }
}

// WithBatch sets whether prompts are disabled.
func WithBatch(enabled bool) Option {
	return func(c *Config) { c.batch = enabled }
}

// WithBuild sets whether packaging is skipped.
func WithBuild(enabled bool) Option {
	return func(c *Config) { c.build = enabled }
}

// WithTmpDir sets the temp base.
func WithTmpDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.tmpDir = dir
		}
	}
}

// WithConfigFile sets an explicit config file, which then must exist.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.configFile = path
			c.configRequired = true
		}
	}
}

// WithTicket sets the ticket number.
func WithTicket(ticket string) Option {
	return func(c *Config) { c.ticket = ticket }
}

// WithName sets the submitter name.
func WithName(name string) Option {
	return func(c *Config) { c.name = name }
}

// WithVerbosity sets the -v count.
func WithVerbosity(n int) Option {
	return func(c *Config) { c.verbosity = n }
}

// WithDebug sets whether plugin failures are re-raised.
func WithDebug(enabled bool) Option {
	return func(c *Config) { c.debug = enabled }
}

// WithCompression sets the compressor (auto, xz, bzip2).
func WithCompression(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.compression = name
		}
	}
}

// WithCommandTimeout sets the per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) { c.commandTimeout = d }
}

// WithPluginTimeout sets the per-plugin cap.
func WithPluginTimeout(d time.Duration) Option {
	return func(c *Config) { c.pluginTimeout = d }
}

// WithNoReport sets whether HTML and XML summaries are skipped.
func WithNoReport(enabled bool) Option {
	return func(c *Config) { c.noReport = enabled }
}

// WithLogSize sets the run-wide harvest cap in MB.
func WithLogSize(mb int) Option {
	return func(c *Config) { c.logSizeMB = mb }
}

// WithAllLogs sets whether harvests ignore size limits.
func WithAllLogs(enabled bool) Option {
	return func(c *Config) { c.allLogs = enabled }
}

// WithUpload sets the oci:// reference and transport flags for shipping.
func WithUpload(ref string, plainHTTP, insecureTLS bool) Option {
	return func(c *Config) {
		c.upload = ref
		c.uploadPlainHTTP = plainHTTP
		c.uploadInsecureTLS = insecureTLS
	}
}

// WithVersion sets the tool version.
func WithVersion(version string) Option {
	return func(c *Config) { c.version = version }
}

// NewConfig returns a Config with default values.
func NewConfig(options ...Option) *Config {
	c := &Config{
		commandTimeout: defaults.CommandTimeout,
		compression:    CompressionAuto,
		configFile:     defaults.ConfigFile,
		pluginTimeout:  defaults.PluginTimeout,
		tmpDir:         defaults.TempDir,
		version:        "dev",
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}
