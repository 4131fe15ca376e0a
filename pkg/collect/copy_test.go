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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

func newCollector(t *testing.T, opts ...Option) *Collector {
	t.Helper()
	st, err := staging.Make(context.Background(), t.TempDir(), "testhost", staging.WithoutLock())
	require.NoError(t, err)
	return New(st, "demo", opts...)
}

func writeHostFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCopyRegularFile(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	src := filepath.Join(host, "etc", "example.conf")
	writeHostFile(t, src, "x=1\n")
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	require.NoError(t, c.Copy(context.Background(), src))

	dest := c.Staging().MirrorOf(src)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", string(data))

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
	assert.True(t, fi.ModTime().Equal(mtime))

	copies := c.Copies()
	require.Len(t, copies, 1)
	assert.Equal(t, src, copies[0].Source)
	assert.Equal(t, KindFile, copies[0].Kind)
	assert.True(t, strings.HasPrefix(copies[0].Destination, "mirror/"))
	assert.Equal(t, int64(4), copies[0].Size)
}

func TestCopyMissingIsWarning(t *testing.T) {
	c := newCollector(t)
	require.NoError(t, c.Copy(context.Background(), "/no/such/file"))
	assert.Empty(t, c.Copies())
	require.Len(t, c.Warnings(), 1)
	assert.Contains(t, c.Warnings()[0], "/no/such/file")
}

func TestCopyDirectoryRecursive(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	writeHostFile(t, filepath.Join(host, "conf", "a.conf"), "a")
	writeHostFile(t, filepath.Join(host, "conf", "sub", "b.conf"), "b")
	require.NoError(t, os.Chmod(filepath.Join(host, "conf", "sub"), 0o750))

	require.NoError(t, c.Copy(context.Background(), filepath.Join(host, "conf")))

	data, err := os.ReadFile(c.Staging().MirrorOf(filepath.Join(host, "conf", "sub", "b.conf")))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	fi, err := os.Stat(c.Staging().MirrorOf(filepath.Join(host, "conf", "sub")))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), fi.Mode().Perm())

	kinds := map[Kind]int{}
	for _, r := range c.Copies() {
		kinds[r.Kind]++
	}
	assert.Equal(t, 2, kinds[KindFile])
	assert.Equal(t, 2, kinds[KindDirectory])
}

func TestCopySymlinkToCollectedTarget(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	target := filepath.Join(host, "usr", "share", "real.conf")
	link := filepath.Join(host, "etc", "alias.conf")
	writeHostFile(t, target, "real")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, c.Copy(context.Background(), link))

	mlink := c.Staging().MirrorOf(link)
	got, err := os.Readlink(mlink)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(got), "link should be relative, got %q", got)
	assert.Equal(t, "../usr/share/real.conf", got)

	data, err := os.ReadFile(mlink)
	require.NoError(t, err)
	assert.Equal(t, "real", string(data))

	copies := c.Copies()
	require.Len(t, copies, 2)
	assert.Equal(t, target, copies[0].Source)
	assert.Equal(t, KindSymlink, copies[1].Kind)
	assert.Equal(t, target, copies[1].Target)
}

func TestCopyRelativeSymlink(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	writeHostFile(t, filepath.Join(host, "etc", "real"), "r")
	require.NoError(t, os.Symlink("real", filepath.Join(host, "etc", "link")))

	require.NoError(t, c.Copy(context.Background(), filepath.Join(host, "etc", "link")))

	got, err := os.Readlink(c.Staging().MirrorOf(filepath.Join(host, "etc", "link")))
	require.NoError(t, err)
	assert.Equal(t, "real", got)
}

func TestCopySymlinkToUncollectedTarget(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	link := filepath.Join(host, "etc", "dangling")
	missing := filepath.Join(host, "nowhere", "file")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(missing, link))

	require.NoError(t, c.Copy(context.Background(), link))

	got, err := os.Readlink(c.Staging().MirrorOf(link))
	require.NoError(t, err)
	assert.Equal(t, missing, got)
}

func TestCopySymlinkLoop(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	a := filepath.Join(host, "a")
	b := filepath.Join(host, "b")
	require.NoError(t, os.Symlink(b, a))
	require.NoError(t, os.Symlink(a, b))

	require.NoError(t, c.Copy(context.Background(), a))
	assert.Len(t, c.Copies(), 2)
}

func TestForbiddenPath(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	ssl := filepath.Join(host, "etc", "ssl")
	writeHostFile(t, filepath.Join(ssl, "private", "key.pem"), "secret")
	writeHostFile(t, filepath.Join(ssl, "certs", "ca.pem"), "cert")

	c.AddForbidden(filepath.Join(ssl, "private", "*"))
	require.NoError(t, c.Copy(context.Background(), ssl))

	_, err := os.Stat(c.Staging().MirrorOf(filepath.Join(ssl, "private", "key.pem")))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(c.Staging().MirrorOf(filepath.Join(ssl, "certs", "ca.pem")))
	assert.NoError(t, err)

	for _, r := range c.Copies() {
		assert.NotContains(t, r.Source, "key.pem")
	}
}

func TestForbiddenSetSharedAcrossCollectors(t *testing.T) {
	st, err := staging.Make(context.Background(), t.TempDir(), "testhost", staging.WithoutLock())
	require.NoError(t, err)
	set := NewForbiddenSet()
	alpha := New(st, "alpha", WithForbiddenSet(set))
	beta := New(st, "beta", WithForbiddenSet(set))

	host := t.TempDir()
	ssl := filepath.Join(host, "etc", "ssl")
	writeHostFile(t, filepath.Join(ssl, "private", "key.pem"), "secret")
	writeHostFile(t, filepath.Join(ssl, "certs", "ca.pem"), "cert")

	alpha.AddForbidden(filepath.Join(ssl, "private", "*"))
	require.NoError(t, beta.Copy(context.Background(), ssl))

	assert.NoFileExists(t, st.MirrorOf(filepath.Join(ssl, "private", "key.pem")))
	assert.FileExists(t, st.MirrorOf(filepath.Join(ssl, "certs", "ca.pem")))
	assert.True(t, beta.Forbidden(filepath.Join(ssl, "private", "sub", "x.pem")))
	assert.Equal(t, []string{filepath.Join(ssl, "private", "*")}, set.Patterns())
}

func TestForbiddenSetRejectsInvalidPattern(t *testing.T) {
	set := NewForbiddenSet()
	invalid := set.Add("/etc/[", "", "/etc/shadow")
	assert.Equal(t, []string{"/etc/["}, invalid)
	assert.Equal(t, []string{"/etc/shadow"}, set.Patterns())
}

func TestForbiddenAncestor(t *testing.T) {
	c := newCollector(t, WithForbidden("/etc/shadow*", "/root/.ssh", "/etc/ssl/private/*"))
	tests := []struct {
		path string
		want bool
	}{
		{"/etc/shadow", true},
		{"/etc/shadow-", true},
		{"/root/.ssh/id_rsa", true},
		{"/root/.ssh", true},
		{"/root/.bashrc", false},
		{"/etc/passwd", false},
		{"/etc/ssl/private/key.pem", true},
		{"/etc/ssl/private/old/key.pem", true},
		{"/etc/ssl/private/", false},
		{"/etc/ssl/certs/ca.pem", false},
		{"/etc/ssl/privatekeys/key.pem", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Forbidden(tt.path), tt.path)
	}
}

func TestCopySpecGlob(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	writeHostFile(t, filepath.Join(host, "log", "a.log"), "a")
	writeHostFile(t, filepath.Join(host, "log", "b.log"), "b")
	writeHostFile(t, filepath.Join(host, "log", "c.txt"), "c")

	require.NoError(t, c.CopySpec(context.Background(), filepath.Join(host, "log", "*.log")))

	var sources []string
	for _, r := range c.Copies() {
		sources = append(sources, filepath.Base(r.Source))
	}
	assert.Equal(t, []string{"a.log", "b.log"}, sources)
}

func TestCopyCancelled(t *testing.T) {
	c := newCollector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Copy(ctx, "/etc/hosts"), context.Canceled)
}

func TestFixupLinks(t *testing.T) {
	c := newCollector(t)
	host := t.TempDir()
	target := filepath.Join(host, "later", "file")
	link := filepath.Join(host, "etc", "link")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(target, link))

	// The link is collected while its target does not exist yet.
	require.NoError(t, c.Copy(context.Background(), link))
	writeHostFile(t, target, "late")
	other := New(c.Staging(), "other")
	require.NoError(t, other.Copy(context.Background(), target))

	n, err := FixupLinks(context.Background(), c.Staging())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(c.Staging().MirrorOf(link))
	require.NoError(t, err)
	assert.Equal(t, "late", string(data))
}

func TestSizeLimitedHarvest(t *testing.T) {
	c := newCollector(t)
	dir := filepath.Join(t.TempDir(), "var", "log")
	files := []struct {
		name  string
		mb    int
		mtime int64
	}{
		{"a.log", 1, 100},
		{"b.log", 2, 200},
		{"c.log", 5, 150},
	}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		writeHostFile(t, p, strings.Repeat("x", f.mb*int(defaults.BytesPerMB)))
		ts := time.Unix(f.mtime, 0)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}

	require.NoError(t, c.CopyLimited(context.Background(), filepath.Join(dir, "*.log"), 3))

	var got []string
	for _, r := range c.Copies() {
		got = append(got, filepath.Base(r.Source))
	}
	assert.Equal(t, []string{"b.log", "a.log"}, got)
	_, err := os.Stat(c.Staging().MirrorOf(filepath.Join(dir, "c.log")))
	assert.True(t, os.IsNotExist(err))
}

func TestHarvestLimitOverrides(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		limitMB int
		want    int
	}{
		{name: "plugin limit", limitMB: 25, want: 25},
		{name: "unlimited call", limitMB: 0, want: 0},
		{name: "log size lowers", opts: []Option{WithLogSize(5)}, limitMB: 25, want: 5},
		{name: "log size never raises", opts: []Option{WithLogSize(50)}, limitMB: 25, want: 25},
		{name: "log size caps unlimited", opts: []Option{WithLogSize(5)}, limitMB: 0, want: 5},
		{name: "zero log size ignored", opts: []Option{WithLogSize(0)}, limitMB: 25, want: 25},
		{name: "all logs", opts: []Option{WithAllLogs(true)}, limitMB: 25, want: 0},
		{name: "all logs beats log size", opts: []Option{WithLogSize(5), WithAllLogs(true)}, limitMB: 25, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector(t, tt.opts...)
			assert.Equal(t, tt.want, c.harvestLimit(tt.limitMB))
		})
	}
}

func TestSizeLimitedHarvestOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "var", "log")
	for i, name := range []string{"old.log", "mid.log", "new.log"} {
		p := filepath.Join(dir, name)
		writeHostFile(t, p, strings.Repeat("x", int(defaults.BytesPerMB)))
		ts := time.Unix(int64(100*(i+1)), 0)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{name: "plugin limit", want: []string{"new.log", "mid.log"}},
		{name: "log size", opts: []Option{WithLogSize(1)}, want: []string{"new.log"}},
		{name: "all logs", opts: []Option{WithAllLogs(true)}, want: []string{"new.log", "mid.log", "old.log"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector(t, tt.opts...)
			require.NoError(t, c.CopyLimited(context.Background(), filepath.Join(dir, "*.log"), 2))
			var got []string
			for _, r := range c.Copies() {
				got = append(got, filepath.Base(r.Source))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectBySize(t *testing.T) {
	mb := defaults.BytesPerMB
	at := func(s int64) time.Time { return time.Unix(s, 0) }
	tests := []struct {
		name  string
		files []SizedFile
		limit int64
		want  []string
	}{
		{
			name:  "unlimited keeps all newest first",
			files: []SizedFile{{"a", 1, at(1)}, {"b", 1, at(3)}, {"c", 1, at(2)}},
			limit: 0,
			want:  []string{"b", "c", "a"},
		},
		{
			name:  "single overflow taken when nothing else",
			files: []SizedFile{{"big", 10 * mb, at(5)}, {"small", mb, at(1)}},
			limit: 3 * mb,
			want:  []string{"big"},
		},
		{
			name:  "overflow skipped once something taken",
			files: []SizedFile{{"new", mb, at(5)}, {"big", 10 * mb, at(4)}, {"old", mb, at(1)}},
			limit: 3 * mb,
			want:  []string{"new", "old"},
		},
		{
			name:  "exact fit",
			files: []SizedFile{{"a", 2 * mb, at(2)}, {"b", mb, at(1)}},
			limit: 3 * mb,
			want:  []string{"a", "b"},
		},
		{
			name:  "empty",
			files: nil,
			limit: mb,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, f := range SelectBySize(tt.files, tt.limit) {
				got = append(got, f.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
