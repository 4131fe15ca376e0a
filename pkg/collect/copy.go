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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// ForbiddenSet holds the forbidden-path patterns of a run. Collectors that
// share a set honour every pattern added through any of them.
type ForbiddenSet struct {
	patterns []string
}

// NewForbiddenSet returns an empty set.
func NewForbiddenSet() *ForbiddenSet {
	return &ForbiddenSet{}
}

// Add appends valid glob patterns and returns the invalid ones.
func (f *ForbiddenSet) Add(patterns ...string) (invalid []string) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !doublestar.ValidatePathPattern(p) {
			invalid = append(invalid, p)
			continue
		}
		f.patterns = append(f.patterns, filepath.Clean(p))
	}
	return invalid
}

// Patterns returns a copy of the patterns in insertion order.
func (f *ForbiddenSet) Patterns() []string {
	return slices.Clone(f.patterns)
}

// Match reports whether path, or any of its ancestors, matches a pattern.
func (f *ForbiddenSet) Match(path string) bool {
	if len(f.patterns) == 0 {
		return false
	}
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		for _, pattern := range f.patterns {
			if ok, _ := doublestar.PathMatch(pattern, p); ok {
				return true
			}
		}
		if p == "/" || p == "." {
			return false
		}
	}
}

// AddForbidden adds glob patterns whose matches are never copied by any
// collector sharing this collector's set.
func (c *Collector) AddForbidden(patterns ...string) {
	for _, p := range c.forbidden.Add(patterns...) {
		c.warn("invalid forbidden pattern %q", p)
	}
}

// Forbidden reports whether path is excluded by the forbidden set.
func (c *Collector) Forbidden(path string) bool {
	return c.forbidden.Match(path)
}

// HasMeta reports whether spec contains glob metacharacters.
func HasMeta(spec string) bool {
	return strings.ContainsAny(spec, "*?[{")
}

// Expand returns the host paths matched by spec in lexical order. A spec
// without metacharacters is returned as is.
func Expand(spec string) ([]string, error) {
	if !HasMeta(spec) {
		return []string{filepath.Clean(spec)}, nil
	}
	matches, err := doublestar.FilepathGlob(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", spec, err)
	}
	slices.Sort(matches)
	return matches, nil
}

// CopySpec expands a path or glob and copies every match.
func (c *Collector) CopySpec(ctx context.Context, spec string) error {
	matches, err := Expand(spec)
	if err != nil {
		c.warn("%v", err)
		return nil
	}
	if len(matches) == 0 {
		slog.Debug("copy spec matched nothing", "plugin", c.plugin, "spec", spec)
		return nil
	}
	for _, m := range matches {
		if err := c.Copy(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Copy places src in the mirror. Missing sources and per-file failures are
// recorded as warnings; only cancellation is returned as an error.
func (c *Collector) Copy(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !filepath.IsAbs(src) {
		c.warn("copy source %q is not absolute", src)
		return nil
	}
	src = filepath.Clean(src)
	if c.Forbidden(src) {
		slog.Debug("skipping forbidden path", "plugin", c.plugin, "path", src)
		return nil
	}
	if c.visited[src] {
		return nil
	}

	fi, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		c.warn("%s not found", src)
		return nil
	}
	if err != nil {
		c.warn("cannot stat %s: %v", src, err)
		return nil
	}
	c.visited[src] = true

	switch mode := fi.Mode(); {
	case mode&fs.ModeSymlink != 0:
		return c.copyLink(ctx, src, fi)
	case mode.IsDir():
		return c.copyDir(ctx, src, fi)
	case mode.IsRegular():
		c.copyFile(src, fi)
		return nil
	default:
		slog.Debug("skipping special file", "plugin", c.plugin, "path", src, "mode", mode.String())
		return nil
	}
}

func (c *Collector) copyLink(ctx context.Context, src string, fi fs.FileInfo) error {
	target, err := os.Readlink(src)
	if err != nil {
		c.warn("cannot read link %s: %v", src, err)
		return nil
	}
	absTarget := target
	if !filepath.IsAbs(absTarget) {
		absTarget = filepath.Join(filepath.Dir(src), target)
	}
	absTarget = filepath.Clean(absTarget)

	// The target goes first so the link can be pointed into the mirror.
	if err := c.Copy(ctx, absTarget); err != nil {
		return err
	}

	dest, err := c.st.MirrorPath(src)
	if err != nil {
		c.warn("cannot place link %s: %v", src, err)
		return nil
	}
	if _, err := os.Lstat(dest); err == nil {
		return nil
	}
	if err := c.st.Symlink(c.linkTarget(dest, absTarget), dest); err != nil {
		c.warn("cannot create link %s: %v", src, err)
		return nil
	}
	a := attrsOf(fi)
	if a.uid >= 0 {
		_ = os.Lchown(dest, a.uid, a.gid)
	}
	_ = setLinkTimes(dest, a)

	c.record(src, dest, KindSymlink, target, fi)
	return nil
}

// linkTarget picks what a mirror link at dest should point at: the relative
// path to the mirrored target when it was collected, otherwise the host path.
func (c *Collector) linkTarget(dest, hostTarget string) string {
	mirrored := c.st.MirrorOf(hostTarget)
	if _, err := os.Lstat(mirrored); err == nil {
		return staging.RelativeFrom(filepath.Dir(dest), mirrored)
	}
	return hostTarget
}

func (c *Collector) copyDir(ctx context.Context, src string, fi fs.FileInfo) error {
	dest, err := c.st.MirrorPath(src)
	if err != nil {
		c.warn("cannot place directory %s: %v", src, err)
		return nil
	}
	if err := os.Mkdir(dest, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		c.warn("cannot create directory for %s: %v", src, err)
		return nil
	}
	if dfi, err := os.Lstat(dest); err != nil || !dfi.IsDir() {
		c.warn("mirror entry for %s is not a directory", src)
		return nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		c.warn("cannot read directory %s: %v", src, err)
	}
	for _, e := range entries {
		if err := c.Copy(ctx, filepath.Join(src, e.Name())); err != nil {
			return err
		}
	}

	// Attributes are restored after the children so a read-only source
	// directory does not block its own contents.
	c.restore(dest, fi)
	c.record(src, dest, KindDirectory, "", fi)
	return nil
}

func (c *Collector) copyFile(src string, fi fs.FileInfo) {
	dest, err := c.st.MirrorPath(src)
	if err != nil {
		c.warn("cannot place %s: %v", src, err)
		return
	}
	if _, err := os.Lstat(dest); err == nil {
		return
	}

	in, err := os.Open(src)
	if err != nil {
		c.warn("cannot open %s: %v", src, err)
		return
	}
	defer in.Close()

	out, err := c.st.Create(dest, 0o600)
	if err != nil {
		c.warn("cannot create mirror file for %s: %v", src, err)
		return
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		c.warn("copy of %s incomplete: %v", src, err)
	} else if err := out.Close(); err != nil {
		c.warn("cannot close mirror file for %s: %v", src, err)
	}

	c.restore(dest, fi)
	c.record(src, dest, KindFile, "", fi)
}

// restore applies the source's mode, ownership and timestamps to dest.
// Ownership changes are best effort when not running as root.
func (c *Collector) restore(dest string, fi fs.FileInfo) {
	a := attrsOf(fi)
	if a.uid >= 0 {
		if err := os.Lchown(dest, a.uid, a.gid); err != nil && !errors.Is(err, fs.ErrPermission) {
			slog.Debug("cannot restore ownership", "path", dest, "error", err)
		}
	}
	if err := os.Chmod(dest, fi.Mode().Perm()|fi.Mode()&(fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky)); err != nil {
		slog.Debug("cannot restore mode", "path", dest, "error", err)
	}
	if err := os.Chtimes(dest, a.atime, a.mtime); err != nil {
		slog.Debug("cannot restore timestamps", "path", dest, "error", err)
	}
}

func (c *Collector) record(src, dest string, kind Kind, target string, fi fs.FileInfo) {
	a := attrsOf(fi)
	c.copies = append(c.copies, CopyRecord{
		Source:      src,
		Destination: c.st.Rel(dest),
		Kind:        kind,
		Target:      target,
		Mode:        fi.Mode().String(),
		Size:        fi.Size(),
		UID:         a.uid,
		GID:         a.gid,
		ModTime:     fi.ModTime(),
	})
	c.copied++
	c.progress.Do(func() {
		slog.Info("copy in progress", "plugin", c.plugin, "objects", c.copied, "last", src)
	})
}

// FixupLinks rewrites mirror symlinks that still point at a host absolute
// path whose target has since been collected, so they resolve inside the
// mirror. It returns the number of links rewritten.
func FixupLinks(ctx context.Context, st *staging.Staging) (int, error) {
	mirror := st.Mirror()
	fixed := 0
	err := filepath.WalkDir(mirror, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable subtrees are left alone
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(path)
		if err != nil || !filepath.IsAbs(target) {
			return nil //nolint:nilerr
		}
		if rel, relErr := filepath.Rel(mirror, target); relErr == nil && !strings.HasPrefix(rel, "..") {
			return nil
		}
		mirrored := filepath.Join(mirror, strings.TrimLeft(target, "/"))
		if _, err := os.Lstat(mirrored); err != nil {
			return nil //nolint:nilerr
		}
		tmp := path + ".hostbundle-link"
		if err := st.Symlink(staging.RelativeFrom(filepath.Dir(path), mirrored), tmp); err != nil {
			return nil //nolint:nilerr
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return nil //nolint:nilerr
		}
		fixed++
		return nil
	})
	return fixed, err
}
