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
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

func TestRegexSubLineByLine(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	src := filepath.Join(host, "etc", "secret.conf")
	writeHostFile(t, src, "bindpw hunter2\n")
	require.NoError(t, os.Chmod(src, 0o640))
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))
	require.NoError(t, c.Copy(context.Background(), src))

	n, err := c.RegexSub(context.Background(), src, `(\s*bindpw\s*)\S+`, `\1***`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dest := c.Staging().MirrorOf(src)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "bindpw ***\n", string(data))

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
	assert.True(t, fi.ModTime().Equal(mtime))

	host2, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "bindpw hunter2\n", string(host2), "host file must not change")

	red := c.Redactions()
	require.Len(t, red, 1)
	assert.Equal(t, 1, red[0].Replacements)
}

func TestRegexSubGlobSkipsSymlinks(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	conf := filepath.Join(host, "conf")
	writeHostFile(t, filepath.Join(conf, "a.conf"), "password=one\n")
	writeHostFile(t, filepath.Join(conf, "b.conf"), "password=two\nother=1\n")
	require.NoError(t, os.Symlink(filepath.Join(conf, "a.conf"), filepath.Join(conf, "link.conf")))
	require.NoError(t, c.Copy(context.Background(), conf))

	n, err := c.RegexSub(context.Background(), filepath.Join(conf, "*.conf"), `password=\S+`, `password=***`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(c.Staging().MirrorOf(filepath.Join(conf, "b.conf")))
	require.NoError(t, err)
	assert.Equal(t, "password=***\nother=1\n", string(data))

	fi, err := os.Lstat(c.Staging().MirrorOf(filepath.Join(conf, "link.conf")))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink, "link must stay a link")
}

func TestRegexSubFollowsMirroredLink(t *testing.T) {
	tests := []struct {
		name   string
		target func(etc string) string
	}{
		{"relative link", func(string) string { return filepath.Join("openldap", "ldap.conf") }},
		{"absolute link", func(etc string) string { return filepath.Join(etc, "openldap", "ldap.conf") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector(t)
			etc := filepath.Join(t.TempDir(), "etc")
			conf := filepath.Join(etc, "openldap", "ldap.conf")
			link := filepath.Join(etc, "ldap.conf")
			writeHostFile(t, conf, "uri ldap://x\nbindpw hunter2\n")
			require.NoError(t, os.Symlink(tt.target(etc), link))
			require.NoError(t, c.Copy(context.Background(), link))

			n, err := c.RegexSub(context.Background(), link, `(bindpw\s+)\S+`, `${1}******`)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			data, err := os.ReadFile(c.Staging().MirrorOf(link))
			require.NoError(t, err)
			assert.Equal(t, "uri ldap://x\nbindpw ******\n", string(data))

			fi, err := os.Lstat(c.Staging().MirrorOf(link))
			require.NoError(t, err)
			assert.NotZero(t, fi.Mode()&os.ModeSymlink, "link must stay a link")

			host, err := os.ReadFile(conf)
			require.NoError(t, err)
			assert.Contains(t, string(host), "bindpw hunter2")

			red := c.Redactions()
			require.Len(t, red, 1)
			assert.Contains(t, red[0].File, filepath.Join("openldap", "ldap.conf"))
		})
	}
}

func TestRegexSubLinkToUncollectedTarget(t *testing.T) {
	c := newCollector(t)
	etc := filepath.Join(t.TempDir(), "etc")
	conf := filepath.Join(etc, "private", "ldap.conf")
	link := filepath.Join(etc, "ldap.conf")
	writeHostFile(t, conf, "bindpw hunter2\n")
	require.NoError(t, os.Symlink(conf, link))
	c.AddForbidden(filepath.Join(etc, "private"))
	require.NoError(t, c.Copy(context.Background(), link))

	n, err := c.RegexSub(context.Background(), link, `(bindpw\s+)\S+`, `${1}******`)
	require.NoError(t, err)
	assert.Zero(t, n)

	host, err := os.ReadFile(conf)
	require.NoError(t, err)
	assert.Equal(t, "bindpw hunter2\n", string(host), "host file must not change")
}

func TestMirrorTargetStaysInMirror(t *testing.T) {
	c := newCollector(t)
	mirror := c.Staging().Mirror()
	require.NoError(t, os.MkdirAll(filepath.Join(mirror, "etc"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "..", "..", "etc", "passwd"), filepath.Join(mirror, "etc", "up")))
	require.NoError(t, os.Symlink("loop", filepath.Join(mirror, "etc", "loop")))

	_, ok := c.mirrorTarget(filepath.Join(mirror, "etc", "up"))
	assert.False(t, ok, "mirror has no etc/passwd")
	_, ok = c.mirrorTarget(filepath.Join(mirror, "etc", "loop"))
	assert.False(t, ok)
	_, ok = c.mirrorTarget(filepath.Join(c.Staging().Root(), "logs"))
	assert.False(t, ok)
}

func TestRegexSubMultiline(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	src := filepath.Join(host, "key.txt")
	writeHostFile(t, src, "head\n-----BEGIN KEY-----\nabc\ndef\n-----END KEY-----\ntail\n")
	require.NoError(t, c.Copy(context.Background(), src))

	n, err := c.RegexSub(context.Background(), src, `(?s)-----BEGIN KEY-----.*?-----END KEY-----`, `[redacted]`, Multiline())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(c.Staging().MirrorOf(src))
	require.NoError(t, err)
	assert.Equal(t, "head\n[redacted]\ntail\n", string(data))
}

func TestRegexSubInvalidPattern(t *testing.T) {
	c := newCollector(t)
	_, err := c.RegexSub(context.Background(), "/etc/x", `(`, "")
	require.Error(t, err)
	assert.Equal(t, cnserrors.ErrCodeInvalidRequest, cnserrors.CodeOf(err))
}

func TestRegexSubUncollectedIsNoop(t *testing.T) {
	c := newCollector(t)
	n, err := c.RegexSub(context.Background(), "/etc/never-copied", `x`, "y")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMirrorEdit(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	src := filepath.Join(host, "f")
	writeHostFile(t, src, "abc")
	require.NoError(t, c.Copy(context.Background(), src))

	require.NoError(t, c.MirrorEdit(src, func(b []byte) []byte { return append(b, 'd') }))
	data, err := os.ReadFile(c.Staging().MirrorOf(src))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	err = c.MirrorEdit(filepath.Join(host, "missing"), func(b []byte) []byte { return b })
	assert.Equal(t, cnserrors.ErrCodeNotFound, cnserrors.CodeOf(err))

	entries, err := os.ReadDir(filepath.Dir(c.Staging().MirrorOf(src)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestExpandReplacement(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\1***`, `${1}***`},
		{`\1=\2`, `${1}=${2}`},
		{`\g<name>x`, `${name}x`},
		{`cost $5`, `cost $$5`},
		{`a\\b`, `a\b`},
		{`plain`, `plain`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandReplacement(tt.in), tt.in)
	}
}

func TestFileGrepAndFindAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inittab")
	writeHostFile(t, path, "# comment\nid:3:initdefault:\nsi::sysinit:/etc/rc.sysinit\n")

	lines, err := FileGrep(regexp.MustCompile(`initdefault`), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id:3:initdefault:"}, lines)

	levels, err := RegexFindAll(regexp.MustCompile(`(?m)^id:(\d+):initdefault:`), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, levels)

	none, err := FileGrep(regexp.MustCompile(`x`), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Nil(t, none)
}
