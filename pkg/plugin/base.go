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

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/policy"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// Meta is the static declaration of a plugin.
type Meta struct {
	Description string
	Options     option.Schema

	// Packages and Files are enablement signals: the default gate passes
	// when any package is installed or any file exists.
	Packages []string
	Files    []string

	// DefaultOff keeps the plugin out of a run unless it is enabled
	// explicitly.
	DefaultOff bool
}

type step struct {
	desc string
	link string
	run  func(ctx context.Context, c *collect.Collector) error
}

// Base implements the plugin façade over the collection primitives. Setup
// declares a plan with AddCopySpec, AddCopySpecLimit and CollectExtOutput;
// Execute carries it out once the plugin is bound to a staging root.
type Base struct {
	name    string
	meta    Meta
	commons *Commons

	values map[string]option.Value
	coll   *collect.Collector

	plan      []step
	forbidden []string

	alerts    []string
	diagnoses []string
	custom    []string

	partial bool
	dropped int
	stopped atomic.Bool
}

// NewBase returns a Base for the plugin registered as name.
func NewBase(name string, c *Commons, m Meta) *Base {
	if c == nil {
		c = &Commons{}
	}
	b := &Base{
		name:    name,
		meta:    m,
		commons: c,
		values:  make(map[string]option.Value, len(m.Options)),
	}
	for _, s := range m.Options {
		b.values[s.Key] = s.Default
	}
	return b
}

// Name returns the registered plugin name.
func (b *Base) Name() string { return b.name }

// Description returns the one-line description.
func (b *Base) Description() string { return b.meta.Description }

// Options returns the option schema.
func (b *Base) Options() option.Schema { return slices.Clone(b.meta.Options) }

// DefaultEnabled reports whether the plugin runs without being named.
func (b *Base) DefaultEnabled() bool { return !b.meta.DefaultOff }

// Facade returns b.
func (b *Base) Facade() *Base { return b }

// Commons returns the run-wide collaborators.
func (b *Base) Commons() *Commons { return b.commons }

// Policy returns the host policy, which may be nil in tests.
func (b *Base) Policy() policy.Policy { return b.commons.Policy }

// IsInstalled reports whether the package database lists name.
func (b *Base) IsInstalled(ctx context.Context, name string) bool {
	if b.commons.Policy == nil {
		return false
	}
	return b.commons.Policy.PackagePresent(ctx, name)
}

// CheckEnabled passes when no signals are declared, when any package signal
// is installed, or when any file signal exists.
func (b *Base) CheckEnabled(ctx context.Context) (bool, error) {
	if len(b.meta.Packages) == 0 && len(b.meta.Files) == 0 {
		return true, nil
	}
	for _, p := range b.meta.Packages {
		if b.IsInstalled(ctx, p) {
			return true, nil
		}
	}
	for _, f := range b.meta.Files {
		if collect.HasMeta(f) {
			if m, err := collect.Expand(f); err == nil && len(m) > 0 {
				return true, nil
			}
			continue
		}
		if _, err := os.Lstat(f); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// Diagnose is a no-op.
func (b *Base) Diagnose(context.Context) error { return nil }

// Analyze is a no-op.
func (b *Base) Analyze(context.Context) error { return nil }

// Postproc is a no-op.
func (b *Base) Postproc(context.Context) error { return nil }

// Report returns the custom text added by the plugin.
func (b *Base) Report() string { return strings.Join(b.custom, "\n") }

// Stop makes Execute abandon the remaining plan at the next step boundary.
func (b *Base) Stop() {
	if b.stopped.CompareAndSwap(false, true) {
		slog.Debug("plugin stop requested", "plugin", b.name)
	}
}

// SetOptionValues overlays resolved option values on the schema defaults.
func (b *Base) SetOptionValues(values map[string]option.Value) {
	maps.Copy(b.values, values)
}

// OptionValues returns a copy of the effective option values.
func (b *Base) OptionValues() map[string]option.Value { return maps.Clone(b.values) }

// Opt returns the value of key.
func (b *Base) Opt(key string) (option.Value, bool) {
	v, ok := b.values[key]
	return v, ok
}

// OptBool returns key as a bool, false when undeclared.
func (b *Base) OptBool(key string) bool {
	v, _ := b.Opt(key)
	return v.AsBool()
}

// OptInt returns key as an int, 0 when undeclared.
func (b *Base) OptInt(key string) int {
	v, _ := b.Opt(key)
	return v.AsInt()
}

// OptString returns key as a string, empty when undeclared.
func (b *Base) OptString(key string) string {
	v, ok := b.Opt(key)
	if !ok {
		return ""
	}
	return v.String()
}

// Bind attaches the plugin to a staging root. Forbidden paths declared
// before binding are carried over.
func (b *Base) Bind(st *staging.Staging, opts ...collect.Option) {
	opts = append(opts, collect.WithForbidden(b.forbidden...))
	b.coll = collect.New(st, b.name, opts...)
	b.forbidden = nil
}

// Collector returns the bound collector, or nil before Bind.
func (b *Base) Collector() *collect.Collector { return b.coll }

func (b *Base) collector() (*collect.Collector, error) {
	if b.coll == nil {
		return nil, cnserrors.New(cnserrors.ErrCodeInternal,
			fmt.Sprintf("plugin %s is not bound to a staging root", b.name))
	}
	return b.coll, nil
}

// AddForbiddenPath excludes paths matching the glob patterns from every
// copy of the run. Patterns added before Bind are applied at Bind.
func (b *Base) AddForbiddenPath(patterns ...string) {
	if b.coll == nil {
		b.forbidden = append(b.forbidden, patterns...)
		return
	}
	b.coll.AddForbidden(patterns...)
}

// AddCopySpec plans a copy of each path or glob.
func (b *Base) AddCopySpec(specs ...string) {
	for _, spec := range specs {
		b.plan = append(b.plan, step{
			desc: "copy " + spec,
			run: func(ctx context.Context, c *collect.Collector) error {
				return c.CopySpec(ctx, spec)
			},
		})
	}
}

// AddCopySpecLimit plans a size-limited copy of the newest files matching
// glob. A limit of zero or less copies everything.
func (b *Base) AddCopySpecLimit(glob string, limitMB int) {
	b.plan = append(b.plan, step{
		desc: fmt.Sprintf("copy %s (limit %dMB)", glob, limitMB),
		run: func(ctx context.Context, c *collect.Collector) error {
			return c.CopyLimited(ctx, glob, limitMB)
		},
	})
}

// CollectExtOutput plans the capture of a command's output.
func (b *Base) CollectExtOutput(command string, opts ...collect.CommandOption) {
	b.plan = append(b.plan, step{
		desc: "run " + command,
		link: collect.RootSymlinkName(opts...),
		run: func(ctx context.Context, c *collect.Collector) error {
			_, err := c.RunCommand(ctx, command, opts...)
			return err
		},
	})
}

// Planned returns the descriptions of the steps not yet executed.
func (b *Base) Planned() []string {
	out := make([]string, len(b.plan))
	for i, s := range b.plan {
		out[i] = s.desc
	}
	return out
}

// PlannedRootSymlinks maps each root alias of the pending steps to its
// command.
func (b *Base) PlannedRootSymlinks() map[string]string {
	out := map[string]string{}
	for _, s := range b.plan {
		if s.link != "" {
			out[s.link] = strings.TrimPrefix(s.desc, "run ")
		}
	}
	return out
}

// Execute runs the plan in declaration order. When ctx ends or Stop is
// called the remaining steps are dropped and the plugin is marked partial.
func (b *Base) Execute(ctx context.Context) error {
	c, err := b.collector()
	if err != nil {
		return err
	}
	plan := b.plan
	b.plan = nil
	for i, s := range plan {
		if b.stopped.Load() {
			b.abandon(len(plan) - i)
			return cnserrors.New(cnserrors.ErrCodeAborted, "plugin "+b.name+" stopped")
		}
		if err := ctx.Err(); err != nil {
			b.abandon(len(plan) - i)
			return err
		}
		slog.Debug("plan step", "plugin", b.name, "step", s.desc)
		if err := s.run(ctx, c); err != nil {
			b.abandon(len(plan) - i - 1)
			return err
		}
	}
	return nil
}

func (b *Base) abandon(n int) {
	b.partial = true
	b.dropped += n
	slog.Warn("plugin plan cut short", "plugin", b.name, "dropped", n)
}

// Partial reports whether the plan was cut short.
func (b *Base) Partial() bool { return b.partial }

// Dropped returns how many plan steps were never run.
func (b *Base) Dropped() int { return b.dropped }

// CollectOutputNow runs a command immediately and captures its output.
func (b *Base) CollectOutputNow(ctx context.Context, command string, opts ...collect.CommandOption) (collect.CommandResult, error) {
	c, err := b.collector()
	if err != nil {
		return collect.CommandResult{}, err
	}
	return c.RunCommand(ctx, command, opts...)
}

// CallExtProg runs a command without capturing it into the archive.
func (b *Base) CallExtProg(ctx context.Context, command string, opts ...collect.CommandOption) (collect.CommandResult, error) {
	c, err := b.collector()
	if err != nil {
		return collect.CommandResult{}, err
	}
	return c.Exec(ctx, command, opts...)
}

// WriteTextToCommand stores text as if it were the output of a command
// called name, returning the path written.
func (b *Base) WriteTextToCommand(name, text string) (string, error) {
	c, err := b.collector()
	if err != nil {
		return "", err
	}
	return c.WriteText(name, text)
}

// RegexSub rewrites mirrored copies of pathOrGlob, replacing pattern with
// repl. It returns the number of replacements made.
func (b *Base) RegexSub(ctx context.Context, pathOrGlob, pattern, repl string, opts ...collect.SubOption) (int, error) {
	c, err := b.collector()
	if err != nil {
		return 0, err
	}
	return c.RegexSub(ctx, pathOrGlob, pattern, repl, opts...)
}

// FileGrep returns the lines of a host file matching pattern.
func (b *Base) FileGrep(pattern, path string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "invalid grep pattern", err)
	}
	return collect.FileGrep(re, path)
}

// RegexFindAll returns every match of pattern in a host file.
func (b *Base) RegexFindAll(pattern, path string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "invalid pattern", err)
	}
	return collect.RegexFindAll(re, path)
}

// AddDiagnose records a pre-flight finding.
func (b *Base) AddDiagnose(msg string) { b.diagnoses = append(b.diagnoses, msg) }

// AddAlert records a finding for the summary report.
func (b *Base) AddAlert(msg string) { b.alerts = append(b.alerts, msg) }

// AddCustomText appends an HTML fragment to the plugin's report section.
func (b *Base) AddCustomText(text string) { b.custom = append(b.custom, text) }

// Diagnoses returns the recorded pre-flight findings.
func (b *Base) Diagnoses() []string { return slices.Clone(b.diagnoses) }

// Alerts returns the recorded alerts.
func (b *Base) Alerts() []string { return slices.Clone(b.alerts) }
