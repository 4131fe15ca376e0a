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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// FailureFile collects isolated hook failures with their stack traces.
const FailureFile = "plugin-errors.txt"

type failure struct {
	plugin string
	phase  string
	err    error
	stack  []byte
}

// failureLog buffers failures until the staging root exists, then appends
// them to logs/plugin-errors.txt.
type failureLog struct {
	pending []failure
	f       *os.File
	n       int
}

func (l *failureLog) open(st *staging.Staging) error {
	f, err := st.Create(filepath.Join(st.Logs(), FailureFile), 0o600)
	if err != nil {
		return err
	}
	l.f = f
	for _, p := range l.pending {
		l.write(p)
	}
	l.pending = nil
	return nil
}

func (l *failureLog) add(fl failure) {
	l.n++
	if l.f == nil {
		l.pending = append(l.pending, fl)
		return
	}
	l.write(fl)
}

func (l *failureLog) write(fl failure) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %v\n", fl.plugin, fl.phase, fl.err)
	if len(fl.stack) > 0 {
		b.Write(fl.stack)
	}
	b.WriteString("\n")
	if _, err := l.f.WriteString(b.String()); err != nil {
		slog.Warn("failed to write plugin failure", "plugin", fl.plugin, "error", err)
	}
}

func (l *failureLog) count() int { return l.n }

func (l *failureLog) close() {
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
}

// isolate runs one hook. Errors and panics are recorded and swallowed;
// only cancellation of the run, or any failure under --debug, is returned.
func (e *Engine) isolate(ctx context.Context, name, phase string, code cnserrors.ErrorCode, fn func(context.Context) error) error {
	start := time.Now()
	stack, err := call(ctx, fn)
	e.metrics.observePhase(name, phase, time.Since(start))

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return abortErr(ctx.Err())
	}
	if err == nil {
		return nil
	}
	if stack == nil {
		stack = debug.Stack()
	}

	wrapped := cnserrors.WrapWithContext(code, phase+" hook failed", err,
		map[string]any{"plugin": name, "phase": phase})
	e.metrics.hookFailed(name, phase)
	e.failures.add(failure{plugin: name, phase: phase, err: err, stack: stack})
	slog.Error("plugin hook failed", "plugin", name, "phase", phase, "error", err)

	if e.cfg.Debug() {
		fmt.Fprintf(e.stderr, "%s\n", stack)
		return wrapped
	}
	return nil
}

func call(ctx context.Context, fn func(context.Context) error) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = debug.Stack()
		}
	}()
	return nil, fn(ctx)
}
