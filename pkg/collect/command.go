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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-shellwords"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

// CommandResult is what a captured command produced.
type CommandResult struct {
	ExitCode int
	Output   string
	Stderr   string
	Runtime  time.Duration
	TimedOut bool
	NotFound bool
	// File is the output file relative to the staging root, empty when none
	// was written.
	File string
}

type commandSettings struct {
	suggestedName  string
	rootSymlink    string
	timeout        time.Duration
	separateStderr bool
}

// CommandOption configures RunCommand and Exec.
type CommandOption func(*commandSettings)

// WithSuggestedName names the output file after name instead of the argv.
func WithSuggestedName(name string) CommandOption {
	return func(s *commandSettings) { s.suggestedName = name }
}

// WithRootSymlink adds a short-name alias for the output at the staging root.
func WithRootSymlink(name string) CommandOption {
	return func(s *commandSettings) { s.rootSymlink = name }
}

// RootSymlinkName returns the root alias opts request, empty when none.
func RootSymlinkName(opts ...CommandOption) string {
	var s commandSettings
	for _, o := range opts {
		o(&s)
	}
	return s.rootSymlink
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) CommandOption {
	return func(s *commandSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSeparateStderr captures stderr apart from stdout instead of merging.
func WithSeparateStderr() CommandOption {
	return func(s *commandSettings) { s.separateStderr = true }
}

// RunCommand executes command and captures its output into
// commands/<plugin>.<mangled>. An unresolvable command yields exit code 127
// and writes nothing. A timeout yields exit code 124 with partial output kept.
func (c *Collector) RunCommand(ctx context.Context, command string, opts ...CommandOption) (CommandResult, error) {
	s := commandSettings{timeout: c.timeout}
	for _, opt := range opts {
		opt(&s)
	}

	argv, res, err := c.run(ctx, command, s)
	if err != nil {
		return res, err
	}
	rec := CommandRecord{
		Command:        command,
		Argv:           argv,
		ExitCode:       res.ExitCode,
		Stderr:         res.Stderr,
		RuntimeSeconds: res.Runtime.Seconds(),
		SuggestedName:  s.suggestedName,
		RootSymlink:    s.rootSymlink,
		TimedOut:       res.TimedOut,
	}

	if res.NotFound {
		c.commands = append(c.commands, rec)
		slog.Debug("command not found", "plugin", c.plugin, "command", command)
		return res, ctx.Err()
	}
	if res.TimedOut {
		c.warn("command %q timed out after %s", command, s.timeout)
	}

	name := s.suggestedName
	if name == "" {
		name = command
	}
	path, werr := c.writeSlot(name, res.Output)
	if werr != nil {
		c.warn("cannot write output of %q: %v", command, werr)
	} else {
		rec.File = c.st.Rel(path)
		res.File = rec.File
		if s.rootSymlink != "" {
			if replaced, err := c.st.RootSymlink(s.rootSymlink, path); err != nil {
				c.warn("cannot create root symlink %q: %v", s.rootSymlink, err)
			} else if replaced {
				c.warn("root symlink %q replaced by %s", s.rootSymlink, rec.File)
			}
		}
	}
	c.commands = append(c.commands, rec)

	slog.Debug("command captured",
		"plugin", c.plugin,
		"command", command,
		"exit_code", res.ExitCode,
		"runtime", res.Runtime.Round(time.Millisecond),
		"file", rec.File,
	)
	return res, ctx.Err()
}

// Exec runs command like RunCommand but neither writes a file nor records it.
func (c *Collector) Exec(ctx context.Context, command string, opts ...CommandOption) (CommandResult, error) {
	s := commandSettings{timeout: c.timeout}
	for _, opt := range opts {
		opt(&s)
	}
	_, res, err := c.run(ctx, command, s)
	if err != nil {
		return res, err
	}
	return res, ctx.Err()
}

// WriteText writes text into a command slot named after name and returns the
// path written.
func (c *Collector) WriteText(name, text string) (string, error) {
	return c.writeSlot(name, text)
}

func (c *Collector) run(ctx context.Context, command string, s commandSettings) ([]string, CommandResult, error) {
	var res CommandResult
	if err := ctx.Err(); err != nil {
		return nil, res, err
	}
	argv, err := shellwords.Parse(command)
	if err != nil || len(argv) == 0 {
		return argv, res, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"cannot parse command", err, map[string]any{"command": command})
	}

	dir := c.st.Parent()
	bin, ok := resolve(argv[0], dir)
	if !ok {
		res.ExitCode = defaults.ExitCodeNotFound
		res.NotFound = true
		return argv, res, nil
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, bin, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Env = commandEnv()
	cmd.WaitDelay = defaults.CommandWaitDelay
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if s.separateStderr {
		cmd.Stderr = &stderr
	} else {
		cmd.Stderr = &stdout
	}

	start := time.Now()
	runErr := cmd.Run()
	res.Runtime = time.Since(start)
	if res.Runtime == 0 {
		res.Runtime = time.Nanosecond
	}
	res.Output = strings.TrimSuffix(stdout.String(), "\n")
	res.Stderr = strings.TrimSuffix(stderr.String(), "\n")

	var exitErr *exec.ExitError
	switch {
	case errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.ExitCode = defaults.ExitCodeTimeout
		res.TimedOut = true
	case runErr == nil:
		res.ExitCode = 0
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = defaults.ExitCodeNotFound
		res.NotFound = true
		slog.Debug("command failed to start", "command", command, "error", runErr)
	}
	return argv, res, nil
}

// resolve finds the executable for the first argv token. Bare names are
// looked up on PATH; relative paths are taken from dir, the working
// directory of the child. The result is checked for an executable regular
// file.
func resolve(name, dir string) (string, bool) {
	if !strings.ContainsRune(name, '/') {
		p, err := exec.LookPath(name)
		return p, err == nil
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	fi, err := os.Stat(name)
	if err != nil || !fi.Mode().IsRegular() || fi.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return name, true
}

func commandEnv() []string {
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LC_ALL=") || strings.HasPrefix(kv, "LANG=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "LC_ALL=C", "LANG=C")
}

// writeSlot writes text to commands/<plugin>.<mangled name>, appending 'z'
// until the name is free.
func (c *Collector) writeSlot(name, text string) (string, error) {
	base := filepath.Join(c.st.Commands(), c.plugin+"."+Mangle(name))
	path := base
	for {
		f, err := c.st.Create(path, 0o600)
		if err == nil {
			if _, err := f.WriteString(text); err != nil {
				_ = f.Close()
				return "", fmt.Errorf("failed to write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("failed to close %s: %w", path, err)
			}
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		path += "z"
	}
}

// Mangle turns a command line into a filesystem-safe name. Whitespace and
// slashes become '_', shell metacharacters become '-', leading and trailing
// '_', '-' and '.' are trimmed and the result is capped at MaxMangledLength
// bytes.
func Mangle(s string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\t', '\n':
			return '_'
		case ';', '#', '$', '|', '%', '"', '\'', '`', '{', '}':
			return '-'
		}
		return r
	}, s)
	out = strings.Trim(out, "_-.")
	if len(out) > defaults.MaxMangledLength {
		out = out[:defaults.MaxMangledLength]
		for !utf8.ValidString(out) {
			out = out[:len(out)-1]
		}
	}
	if out == "" {
		return "command"
	}
	return out
}
