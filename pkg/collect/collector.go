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

package collect

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// Kind classifies a copied host object.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// CopyRecord describes one host object placed in the mirror.
type CopyRecord struct {
	Source      string    `json:"source" yaml:"source"`
	Destination string    `json:"destination" yaml:"destination"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Target      string    `json:"target,omitempty" yaml:"target,omitempty"`
	Mode        string    `json:"mode" yaml:"mode"`
	Size        int64     `json:"size" yaml:"size"`
	UID         int       `json:"uid" yaml:"uid"`
	GID         int       `json:"gid" yaml:"gid"`
	ModTime     time.Time `json:"mtime" yaml:"mtime"`
}

// CommandRecord describes one captured external command.
type CommandRecord struct {
	Command        string   `json:"command" yaml:"command"`
	Argv           []string `json:"argv" yaml:"argv"`
	ExitCode       int      `json:"exit_code" yaml:"exit_code"`
	File           string   `json:"file,omitempty" yaml:"file,omitempty"`
	Stderr         string   `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	RuntimeSeconds float64  `json:"runtime_seconds" yaml:"runtime_seconds"`
	SuggestedName  string   `json:"suggested_name,omitempty" yaml:"suggested_name,omitempty"`
	RootSymlink    string   `json:"root_symlink,omitempty" yaml:"root_symlink,omitempty"`
	TimedOut       bool     `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// Redaction describes one postproc substitution applied to a mirrored file.
type Redaction struct {
	File         string `json:"file" yaml:"file"`
	Pattern      string `json:"pattern" yaml:"pattern"`
	Replacements int    `json:"replacements" yaml:"replacements"`
}

// Collector performs the collection primitives for one plugin against one
// staging root and keeps that plugin's action logs. It is not safe for
// concurrent use.
type Collector struct {
	st     *staging.Staging
	plugin string

	copies     []CopyRecord
	commands   []CommandRecord
	redactions []Redaction
	warnings   []string

	forbidden *ForbiddenSet
	seed      []string
	visited   map[string]bool

	timeout   time.Duration
	logSizeMB int
	allLogs   bool
	progress  rate.Sometimes
	copied    int
}

// Option configures a Collector.
type Option func(*Collector)

// WithCommandTimeout sets the default per-call command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogSize caps every size-limited harvest at mb megabytes. Zero leaves
// the per-call limits alone.
func WithLogSize(mb int) Option {
	return func(c *Collector) {
		if mb > 0 {
			c.logSizeMB = mb
		}
	}
}

// WithAllLogs lifts every size limit on harvests.
func WithAllLogs(enabled bool) Option {
	return func(c *Collector) { c.allLogs = enabled }
}

// WithForbidden adds patterns to the forbidden-path set.
func WithForbidden(patterns ...string) Option {
	return func(c *Collector) {
		c.seed = append(c.seed, patterns...)
	}
}

// WithForbiddenSet shares set with other collectors of the run.
func WithForbiddenSet(set *ForbiddenSet) Option {
	return func(c *Collector) {
		if set != nil {
			c.forbidden = set
		}
	}
}

// New returns a Collector writing into st on behalf of plugin.
func New(st *staging.Staging, plugin string, opts ...Option) *Collector {
	c := &Collector{
		st:       st,
		plugin:   plugin,
		visited:  make(map[string]bool),
		timeout:  defaults.CommandTimeout,
		progress: rate.Sometimes{Interval: defaults.ProgressLogInterval},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.forbidden == nil {
		c.forbidden = NewForbiddenSet()
	}
	c.AddForbidden(c.seed...)
	c.seed = nil
	return c
}

// Plugin returns the owning plugin's name.
func (c *Collector) Plugin() string { return c.plugin }

// Staging returns the staging root the collector writes into.
func (c *Collector) Staging() *staging.Staging { return c.st }

// Copies returns the copy log in collection order.
func (c *Collector) Copies() []CopyRecord { return slices.Clone(c.copies) }

// Commands returns the command log in execution order.
func (c *Collector) Commands() []CommandRecord { return slices.Clone(c.commands) }

// Redactions returns the redaction log.
func (c *Collector) Redactions() []Redaction { return slices.Clone(c.redactions) }

// Warnings returns the non-fatal problems met while collecting.
func (c *Collector) Warnings() []string { return slices.Clone(c.warnings) }

func (c *Collector) warn(msg string, args ...any) {
	text := fmt.Sprintf(msg, args...)
	c.warnings = append(c.warnings, text)
	slog.Warn(text, "plugin", c.plugin)
}
