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

package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

// Child directory names created under every staging root.
const (
	MirrorDir   = "mirror"
	CommandsDir = "commands"
	LogsDir     = "logs"
	ReportsDir  = "reports"

	lockFile  = ".hostbundle.lock"
	dirMode   = 0o700
	stampForm = "20060102150405"
)

// Staging owns one run's staging root. It is the only writer of files under
// that root; every path it hands out or writes is checked to lie beneath it.
type Staging struct {
	root     string
	mirror   string
	commands string
	logs     string
	reports  string
	lock     *flock.Flock
}

type settings struct {
	now      func() time.Time
	attempts int
	noLock   bool
}

// Option configures Make.
type Option func(*settings)

// WithClock sets the time source used for the root's name.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAttempts sets how many names are tried before giving up on collisions.
func WithAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithoutLock skips the run lock on the temp base.
func WithoutLock() Option {
	return func(s *settings) {
		s.noLock = true
	}
}

// Make creates a unique staging root named <host>-YYYYMMDDHHMMSS-<epoch>
// under tmpBase, with mode 0700 and the mirror, commands, logs and reports
// children. A colliding name is retried with the clock advanced by a second.
func Make(ctx context.Context, tmpBase, host string, opts ...Option) (*Staging, error) {
	s := &settings{now: time.Now, attempts: defaults.StagingAttempts}
	for _, opt := range opts {
		opt(s)
	}

	base, err := filepath.Abs(tmpBase)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeStagingInit, "invalid temp base", err)
	}
	if resolved, evalErr := filepath.EvalSymlinks(base); evalErr == nil {
		base = resolved
	}
	if fi, statErr := os.Stat(base); statErr != nil || !fi.IsDir() {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeStagingInit,
			"temp base is not a directory", statErr, map[string]any{"tmp_dir": base})
	}

	var fl *flock.Flock
	if !s.noLock {
		fl, err = acquire(ctx, filepath.Join(base, lockFile))
		if err != nil {
			return nil, err
		}
	}

	host = hostComponent(host)
	now := s.now()
	var root string
	for i := 0; i < s.attempts; i++ {
		candidate := filepath.Join(base, fmt.Sprintf("%s-%s-%d", host, now.Format(stampForm), now.Unix()))
		err = os.Mkdir(candidate, dirMode)
		if err == nil {
			root = candidate
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			break
		}
		slog.Debug("staging name collision", "path", candidate, "attempt", i+1)
		now = now.Add(time.Second)
	}
	if root == "" {
		release(fl)
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeStagingInit,
			"cannot create staging root", err, map[string]any{"tmp_dir": base})
	}

	st := &Staging{
		root:     root,
		mirror:   filepath.Join(root, MirrorDir),
		commands: filepath.Join(root, CommandsDir),
		logs:     filepath.Join(root, LogsDir),
		reports:  filepath.Join(root, ReportsDir),
		lock:     fl,
	}
	for _, dir := range []string{st.mirror, st.commands, st.logs, st.reports} {
		if err := os.Mkdir(dir, dirMode); err != nil {
			_ = os.RemoveAll(root)
			release(fl)
			return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeStagingInit,
				"cannot create staging child", err, map[string]any{"path": dir})
		}
	}
	// Mkdir honours the umask; the root must be exactly 0700.
	if err := os.Chmod(root, dirMode); err != nil {
		_ = os.RemoveAll(root)
		release(fl)
		return nil, cnserrors.Wrap(cnserrors.ErrCodeStagingInit, "cannot set staging mode", err)
	}

	slog.Debug("staging root created", "root", root)
	return st, nil
}

func acquire(ctx context.Context, path string) (*flock.Flock, error) {
	fl := flock.New(path)
	lctx, cancel := context.WithTimeout(ctx, defaults.StagingLockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lctx, defaults.StagingLockRetry)
	if err != nil || !locked {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeStagingInit,
			"another run holds the temp base lock", err, map[string]any{"lock": path})
	}
	return fl, nil
}

func release(fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Unlock(); err != nil {
		slog.Warn("failed to release staging lock", "path", fl.Path(), "error", err)
	}
}

// hostComponent reduces a host name to a single safe path component.
func hostComponent(host string) string {
	host = strings.TrimSpace(host)
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	host = strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator || r < ' ' {
			return '_'
		}
		return r
	}, host)
	if host == "" || host == "." || host == ".." {
		return "localhost"
	}
	return host
}

// Root returns the staging root.
func (s *Staging) Root() string { return s.root }

// Mirror returns the mirror directory.
func (s *Staging) Mirror() string { return s.mirror }

// Commands returns the commands directory.
func (s *Staging) Commands() string { return s.commands }

// Logs returns the logs directory.
func (s *Staging) Logs() string { return s.logs }

// Reports returns the reports directory.
func (s *Staging) Reports() string { return s.reports }

// Parent returns the directory containing the staging root. Commands run here.
func (s *Staging) Parent() string { return filepath.Dir(s.root) }

// Name returns the base name of the staging root.
func (s *Staging) Name() string { return filepath.Base(s.root) }

// Rel returns p relative to the staging root using forward slashes.
func (s *Staging) Rel(p string) string {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

// Contains reports whether p lies lexically under the staging root.
func (s *Staging) Contains(p string) bool {
	return within(s.root, p)
}

// MirrorOf maps a host path onto the mirror without touching disk.
func (s *Staging) MirrorOf(src string) string {
	return filepath.Join(s.mirror, strings.TrimLeft(filepath.Clean("/"+src), "/"))
}

// HostOf maps a mirror path back to the host path it was copied from.
func (s *Staging) HostOf(dest string) (string, bool) {
	rel, err := filepath.Rel(s.mirror, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

// MirrorPath returns mirror/<src> and ensures its parent directories exist.
// Existing components that are symlinks are followed only when they resolve
// inside the staging root.
func (s *Staging) MirrorPath(src string) (string, error) {
	dest := s.MirrorOf(src)
	if err := s.ensureDir(filepath.Dir(dest)); err != nil {
		return "", err
	}
	return dest, nil
}

// EnsureDir creates dir and any missing parents under the staging root.
func (s *Staging) EnsureDir(dir string) error {
	return s.ensureDir(dir)
}

func (s *Staging) ensureDir(dir string) error {
	if !within(s.root, dir) {
		return escapeError(dir)
	}
	rel, err := filepath.Rel(s.root, dir)
	if err != nil {
		return escapeError(dir)
	}
	cur := s.root
	if rel == "." {
		return nil
	}
	for _, comp := range strings.Split(rel, string(os.PathSeparator)) {
		next := filepath.Join(cur, comp)
		fi, err := os.Lstat(next)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(next, dirMode); err != nil && !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("failed to create directory %s: %w", next, err)
			}
		case err != nil:
			return fmt.Errorf("failed to stat %s: %w", next, err)
		case fi.Mode()&fs.ModeSymlink != 0:
			resolved, err := filepath.EvalSymlinks(next)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", next, err)
			}
			if !within(s.root, resolved) {
				return escapeError(next)
			}
			if rfi, err := os.Stat(resolved); err != nil || !rfi.IsDir() {
				return fmt.Errorf("symlink %s does not lead to a directory", next)
			}
			next = resolved
		case !fi.IsDir():
			return fmt.Errorf("path component %s is not a directory", next)
		}
		cur = next
	}
	return nil
}

// checkWrite validates that path, and its resolved parent, lie under the root.
func (s *Staging) checkWrite(path string) error {
	if !within(s.root, path) || filepath.Clean(path) == s.root {
		return escapeError(path)
	}
	if err := s.ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", filepath.Dir(path), err)
	}
	if !within(s.root, parent) {
		return escapeError(path)
	}
	return nil
}

// Create creates a new file under the staging root. It fails if path exists,
// so an existing symlink is never followed.
func (s *Staging) Create(path string, perm os.FileMode) (*os.File, error) {
	if err := s.checkWrite(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// CreateTemp creates a temporary file next to path for atomic replacement.
func (s *Staging) CreateTemp(path string) (*os.File, error) {
	if err := s.checkWrite(path); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	return f, nil
}

// WriteFile writes data to a new file under the staging root.
func (s *Staging) WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := s.Create(path, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	slog.Debug("file written", "path", path, "size_bytes", len(data))
	return nil
}

// Symlink creates link pointing at target. The link itself must lie under
// the root; the target is stored verbatim.
func (s *Staging) Symlink(target, link string) error {
	if err := s.checkWrite(link); err != nil {
		return err
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", link, err)
	}
	return nil
}

// RootSymlink creates <root>/<name> as a relative link to target, which must
// lie under the root. An existing entry with the same name is replaced and
// reported through the returned flag.
func (s *Staging) RootSymlink(name, target string) (bool, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || name == "." || name == ".." {
		return false, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"root symlink name must be a single path component", map[string]any{"name": name})
	}
	if !within(s.root, target) {
		return false, escapeError(target)
	}
	for _, reserved := range []string{MirrorDir, CommandsDir, LogsDir, ReportsDir} {
		if name == reserved {
			return false, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
				"root symlink name collides with a staging directory", map[string]any{"name": name})
		}
	}
	link := filepath.Join(s.root, name)
	replaced := false
	if fi, err := os.Lstat(link); err == nil {
		if fi.Mode()&fs.ModeSymlink == 0 {
			return false, fmt.Errorf("root entry %s exists and is not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return false, fmt.Errorf("failed to replace root symlink %s: %w", link, err)
		}
		replaced = true
		slog.Warn("root symlink replaced", "name", name, "target", s.Rel(target))
	}
	if err := os.Symlink(RelativeFrom(s.root, target), link); err != nil {
		return replaced, fmt.Errorf("failed to create root symlink %s: %w", link, err)
	}
	return replaced, nil
}

// SafeRemove deletes the staging root provided it still holds the commands/
// marker, then releases the run lock.
func (s *Staging) SafeRemove() error {
	root := filepath.Clean(s.root)
	if root == "/" || root == "." || root == "" {
		return cnserrors.NewWithContext(cnserrors.ErrCodeInternal,
			"refusing to remove suspicious staging root", map[string]any{"root": s.root})
	}
	fi, err := os.Lstat(s.commands)
	if err != nil || !fi.IsDir() {
		return cnserrors.WrapWithContext(cnserrors.ErrCodeInternal,
			"refusing to remove staging root without commands marker", err, map[string]any{"root": s.root})
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove staging root %s: %w", root, err)
	}
	slog.Debug("staging root removed", "root", root)
	s.Close()
	return nil
}

// Close releases the run lock without touching the tree.
func (s *Staging) Close() {
	release(s.lock)
	s.lock = nil
}

// RelativeFrom returns the shortest path from directory a to path b using
// parent references. It returns b verbatim when the paths share no leading
// component and "." when they are equal.
func RelativeFrom(a, b string) string {
	const sep = "/"
	pa := strings.Split(strings.TrimSuffix(filepath.ToSlash(a), sep), sep)
	pb := strings.Split(strings.TrimSuffix(filepath.ToSlash(b), sep), sep)

	n := 0
	for n < len(pa) && n < len(pb) && pa[n] == pb[n] {
		n++
	}
	if n == 0 {
		return b
	}
	parts := make([]string, 0, len(pa)-n+len(pb)-n)
	for range pa[n:] {
		parts = append(parts, "..")
	}
	parts = append(parts, pb[n:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, sep)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

func escapeError(p string) error {
	return cnserrors.NewWithContext(cnserrors.ErrCodeInternal,
		"path escapes the staging root", map[string]any{"path": p})
}
