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

package logging

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvLogLevel is the environment variable that overrides the log level.
const EnvLogLevel = "LOG_LEVEL"

var (
	consoleMu sync.RWMutex
	console   slog.Handler
)

// ParseLogLevel converts a level name into a slog.Level.
// Unknown or empty names yield slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelForVerbosity maps a repeat count of -v onto a level name:
// 0 is warn, 1 is info and anything higher is debug.
func LevelForVerbosity(count int) string {
	switch {
	case count <= 0:
		return "warn"
	case count == 1:
		return "info"
	default:
		return "debug"
	}
}

// NewStructuredLogger creates a JSON logger writing to stderr with module and
// version attached to every record.
func NewStructuredLogger(module, version, level string) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, ParseLogLevel(level))).With(
		"module", module,
		"version", version,
	)
}

// NewHandler returns the JSON handler used for every hostbundle log stream.
// Source locations are included at debug level.
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
}

// SetDefaultStructuredLogger installs a default logger whose level comes from
// LOG_LEVEL.
func SetDefaultStructuredLogger(module, version string) {
	SetDefaultStructuredLoggerWithLevel(module, version, os.Getenv(EnvLogLevel))
}

// SetDefaultStructuredLoggerWithLevel installs a default logger with an
// explicit level.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) {
	l := NewStructuredLogger(module, version, level)
	consoleMu.Lock()
	console = l.Handler()
	consoleMu.Unlock()
	slog.SetDefault(l)
}

// Console returns the handler installed by SetDefaultStructuredLogger*, or a
// warn-level JSON handler on stderr when none was installed. It never
// returns slog's built-in handler, which writes through the log package.
func Console() slog.Handler {
	consoleMu.RLock()
	defer consoleMu.RUnlock()
	if console != nil {
		return console
	}
	return NewHandler(os.Stderr, slog.LevelWarn)
}

// Install makes l the default logger and returns a function that restores
// the previous slog default together with the log package output and flags.
func Install(l *slog.Logger) (restore func()) {
	prev, out, flags := slog.Default(), log.Writer(), log.Flags()
	slog.SetDefault(l)
	return func() {
		slog.SetDefault(prev)
		log.SetOutput(out)
		log.SetFlags(flags)
	}
}

// NewLogLogger adapts the default slog handler to a standard library logger.
func NewLogLogger(level slog.Level, addSource bool) *log.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	})
	return slog.NewLogLogger(h, level)
}

// Fanout returns a handler that delivers each record to every handler that
// accepts its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	hs := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &fanout{handlers: hs}
}

type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{handlers: hs}
}

// WithFile returns a logger that writes to both console and a debug-level
// JSON stream on w. It is used for the in-archive engine log. console must
// not be slog's built-in handler; pass Console().
func WithFile(console slog.Handler, w io.Writer, module, version string) *slog.Logger {
	file := NewHandler(w, slog.LevelDebug).WithAttrs([]slog.Attr{
		slog.String("module", module),
		slog.String("version", version),
	})
	return slog.New(Fanout(console, file))
}
