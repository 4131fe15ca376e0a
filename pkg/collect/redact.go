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
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

type subSettings struct {
	multiline bool
}

// SubOption configures RegexSub.
type SubOption func(*subSettings)

// Multiline applies the pattern to the whole file instead of line by line.
func Multiline() SubOption {
	return func(s *subSettings) { s.multiline = true }
}

var pyBackref = regexp.MustCompile(`\\(\d+)|\\g<(\w+)>|\\\\`)

// ExpandReplacement converts a replacement string that uses \1 or \g<name>
// group references into the ${1} form understood by regexp. Literal '$' is
// escaped.
func ExpandReplacement(repl string) string {
	repl = strings.ReplaceAll(repl, "$", "$$")
	return pyBackref.ReplaceAllStringFunc(repl, func(m string) string {
		if m == `\\` {
			return `\`
		}
		sub := pyBackref.FindStringSubmatch(m)
		if sub[1] != "" {
			return "${" + sub[1] + "}"
		}
		return "${" + sub[2] + "}"
	})
}

// RegexSub rewrites every regular file in the mirror that matches
// pathOrGlob, substituting pattern with repl. A plain path that was mirrored
// as a symlink is followed to its mirrored target; glob matches that are
// symlinks are skipped. Links are only ever resolved inside the mirror.
// It returns the number of substitutions made.
func (c *Collector) RegexSub(ctx context.Context, pathOrGlob, pattern, repl string, opts ...SubOption) (int, error) {
	var s subSettings
	for _, opt := range opts {
		opt(&s)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"invalid redaction pattern", err, map[string]any{"pattern": pattern})
	}
	template := ExpandReplacement(repl)

	mirrorSpec := c.st.MirrorOf(pathOrGlob)
	targets := []string{mirrorSpec}
	if HasMeta(pathOrGlob) {
		targets, err = doublestar.FilepathGlob(mirrorSpec)
		if err != nil {
			return 0, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
				"invalid redaction glob", err, map[string]any{"glob": pathOrGlob})
		}
	}

	total := 0
	seen := make(map[string]bool, len(targets))
	for _, dest := range targets {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !HasMeta(pathOrGlob) {
			resolved, ok := c.mirrorTarget(dest)
			if !ok {
				continue
			}
			dest = resolved
		}
		if seen[dest] {
			continue
		}
		seen[dest] = true
		fi, err := os.Lstat(dest)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		n := 0
		err = c.edit(dest, fi, func(data []byte) []byte {
			var out []byte
			out, n = substitute(re, template, data, s.multiline)
			return out
		})
		if err != nil {
			c.warn("redaction of %s failed: %v", c.st.Rel(dest), err)
			continue
		}
		if n > 0 {
			c.redactions = append(c.redactions, Redaction{
				File:         c.st.Rel(dest),
				Pattern:      pattern,
				Replacements: n,
			})
		}
		total += n
	}
	return total, nil
}

func substitute(re *regexp.Regexp, template string, data []byte, multiline bool) ([]byte, int) {
	if multiline {
		n := len(re.FindAllIndex(data, -1))
		if n == 0 {
			return data, 0
		}
		return re.ReplaceAll(data, []byte(template)), n
	}

	var (
		buf   bytes.Buffer
		count int
	)
	buf.Grow(len(data))
	for len(data) > 0 {
		line := data
		var nl []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, nl, data = data[:i], data[i:i+1], data[i+1:]
		} else {
			data = nil
		}
		if n := len(re.FindAllIndex(line, -1)); n > 0 {
			count += n
			line = re.ReplaceAll(line, []byte(template))
		}
		buf.Write(line)
		buf.Write(nl)
	}
	return buf.Bytes(), count
}

// MirrorEdit rewrites the mirrored copy of hostPath with fn. The host file
// is never touched. The rewrite is atomic and keeps mode, ownership and
// timestamps.
func (c *Collector) MirrorEdit(hostPath string, fn func([]byte) []byte) error {
	dest, ok := c.mirrorTarget(c.st.MirrorOf(hostPath))
	if !ok {
		return cnserrors.NewWithContext(cnserrors.ErrCodeNotFound,
			"path was not collected", map[string]any{"path": hostPath})
	}
	fi, err := os.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return cnserrors.NewWithContext(cnserrors.ErrCodeNotFound,
			"path was not collected", map[string]any{"path": hostPath})
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	if !fi.Mode().IsRegular() {
		return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"mirror entry is not a regular file", map[string]any{"path": hostPath})
	}
	return c.edit(dest, fi, fn)
}

// maxLinkHops bounds symlink resolution in the mirror.
const maxLinkHops = 40

// mirrorTarget resolves symlinks at and above dest without leaving the
// mirror. Absolute link targets are host paths and are read as their mirror
// equivalents; ".." stops at the mirror root. It returns false when a
// component is missing, the chain is too long, or dest is outside the mirror.
func (c *Collector) mirrorTarget(dest string) (string, bool) {
	mirror := c.st.Mirror()
	rel, err := filepath.Rel(mirror, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	resolved := mirror
	pending := strings.Split(rel, string(filepath.Separator))
	hops := 0
	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]
		switch part {
		case "", ".":
			continue
		case "..":
			if resolved != mirror {
				resolved = filepath.Dir(resolved)
			}
			continue
		}

		next := filepath.Join(resolved, part)
		fi, err := os.Lstat(next)
		if err != nil {
			return "", false
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}
		if hops++; hops > maxLinkHops {
			return "", false
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", false
		}
		if filepath.IsAbs(target) {
			if r, err := filepath.Rel(mirror, target); err == nil && r != ".." &&
				!strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				target = r
			}
			target = strings.TrimLeft(filepath.Clean(target), string(filepath.Separator))
			resolved = mirror
		}
		pending = append(strings.Split(target, string(filepath.Separator)), pending...)
	}
	return resolved, true
}

func (c *Collector) edit(dest string, fi fs.FileInfo, fn func([]byte) []byte) error {
	data, err := os.ReadFile(dest)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dest, err)
	}
	out := fn(data)
	if bytes.Equal(out, data) {
		return nil
	}

	tmp, err := c.st.CreateTemp(dest)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	c.restore(dest, fi)
	return nil
}
