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

package packager

import (
	"archive/tar"
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/config"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

var testClock = func() time.Time { return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC) }

func newStaging(t *testing.T) *staging.Staging {
	t.Helper()
	st, err := staging.Make(context.Background(), t.TempDir(), "testhost", staging.WithoutLock(), staging.WithClock(testClock))
	require.NoError(t, err)

	conf := filepath.Join(st.Mirror(), "etc", "example.conf")
	require.NoError(t, st.EnsureDir(filepath.Dir(conf)))
	require.NoError(t, st.WriteFile(conf, []byte("x=1\n"), 0o644))
	require.NoError(t, st.WriteFile(filepath.Join(st.Commands(), "demo.hostname"), []byte("testhost"), 0o600))
	_, err = st.RootSymlink("hostname", filepath.Join(st.Commands(), "demo.hostname"))
	require.NoError(t, err)
	return st
}

func readTar(t *testing.T, r io.Reader) map[string]*tar.Header {
	t.Helper()
	entries := make(map[string]*tar.Header)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
	}
	return entries
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"Jörg Müller", "JorgMuller"},
		{"José.García", "Jose.Garcia"},
		{"bob/../../etc", "bob....etc"},
		{"章", ""},
		{"case-123", "case123"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestArchiveBase(t *testing.T) {
	assert.Equal(t, "report-alice-20250115103000", ArchiveBase("alice", "", "20250115103000"))
	assert.Equal(t, "report-alice-42-20250115103000", ArchiveBase("alice", "42", "20250115103000"))
	assert.Equal(t, "report-localhost-20250115103000", ArchiveBase("章", "", "20250115103000"))
}

func TestEncoders(t *testing.T) {
	assert.Equal(t, []string{"xz", "bzip2"}, names(Encoders(config.CompressionAuto)))
	assert.Equal(t, []string{"xz"}, names(Encoders(config.CompressionXZ)))
	assert.Equal(t, []string{"bzip2"}, names(Encoders(config.CompressionBzip2)))
}

func names(encs []Encoder) []string {
	out := make([]string, len(encs))
	for i, e := range encs {
		out[i] = e.Name
	}
	return out
}

func TestPackageXZ(t *testing.T) {
	st := newStaging(t)
	res, err := New(st, WithSubmitter("alice", "42"), WithClock(testClock)).Package(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.CompressionXZ, res.Compression)
	assert.Equal(t, st.Parent(), filepath.Dir(res.Archive))
	assert.Equal(t, "report-alice-42-20250115103000-"+res.MD5[len(res.MD5)-4:]+".tar.xz", filepath.Base(res.Archive))
	assert.Equal(t, res.Archive+".md5", res.Sidecar)

	data, err := os.ReadFile(res.Archive)
	require.NoError(t, err)
	sum := md5.Sum(data) //nolint:gosec
	assert.Equal(t, hex.EncodeToString(sum[:]), res.MD5)

	sidecar, err := os.ReadFile(res.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, res.MD5+"\n", string(sidecar))

	fi, err := os.Stat(res.Archive)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	f, err := os.Open(res.Archive)
	require.NoError(t, err)
	defer f.Close()
	zr, err := xz.NewReader(f)
	require.NoError(t, err)
	entries := readTar(t, zr)

	root := st.Name()
	require.Contains(t, entries, root+"/")
	require.Contains(t, entries, root+"/mirror/etc/example.conf")
	assert.Equal(t, int64(4), entries[root+"/mirror/etc/example.conf"].Size)
	require.Contains(t, entries, root+"/hostname")
	link := entries[root+"/hostname"]
	assert.Equal(t, byte(tar.TypeSymlink), link.Typeflag)
	assert.Equal(t, "commands/demo.hostname", link.Linkname)

	assert.DirExists(t, st.Root(), "packaging leaves the staging root for the caller")
}

func TestPackageBzip2(t *testing.T) {
	st := newStaging(t)
	res, err := New(st, WithCompression(config.CompressionBzip2), WithClock(testClock)).Package(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Archive, ".tar.bz2"))
	assert.Contains(t, filepath.Base(res.Archive), "report-localhost-20250115103000-")

	f, err := os.Open(res.Archive)
	require.NoError(t, err)
	defer f.Close()
	zr, err := bzip2.NewReader(f, nil)
	require.NoError(t, err)
	entries := readTar(t, zr)
	assert.Contains(t, entries, st.Name()+"/commands/demo.hostname")
}

func TestPackageFallsBackWhenXZFails(t *testing.T) {
	st := newStaging(t)
	broken := Encoder{
		Name:      "xz",
		Extension: "tar.xz",
		New: func(io.Writer) (io.WriteCloser, error) {
			return nil, errors.New("no xz here")
		},
	}
	res, err := New(st, WithEncoders(broken, Bzip2), WithClock(testClock)).Package(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.CompressionBzip2, res.Compression)

	leftovers, err := filepath.Glob(filepath.Join(st.Parent(), "*.tar.xz"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPackageNoCompressor(t *testing.T) {
	st := newStaging(t)
	broken := Encoder{
		Name:      "broken",
		Extension: "tar.broken",
		New: func(io.Writer) (io.WriteCloser, error) {
			return nil, errors.New("unavailable")
		},
	}
	_, err := New(st, WithEncoders(broken)).Package(context.Background())
	assert.True(t, cnserrors.HasCode(err, cnserrors.ErrCodePackaging))

	_, err = New(st, WithEncoders()).Package(context.Background())
	assert.True(t, cnserrors.HasCode(err, cnserrors.ErrCodePackaging))
}

func TestPackageUnwritableOutput(t *testing.T) {
	st := newStaging(t)
	_, err := New(st, WithOutputDir(filepath.Join(t.TempDir(), "missing"))).Package(context.Background())
	assert.True(t, cnserrors.HasCode(err, cnserrors.ErrCodePackaging))
}

func TestPackageCancelled(t *testing.T) {
	st := newStaging(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(st, WithClock(testClock)).Package(ctx)
	assert.True(t, cnserrors.HasCode(err, cnserrors.ErrCodeAborted))

	leftovers, err := filepath.Glob(filepath.Join(st.Parent(), "report-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func sampleIndex(st *staging.Staging) *Index {
	return &Index{
		RunID:   "3f1c2a4e-0000-4000-8000-000000000000",
		Version: "v0.1.0",
		Staging: st.Name(),
		Started: testClock(),
		Host:    HostFacts{Hostname: "testhost", Arch: "x86_64", Kernel: "6.1.0", Distro: "9", Runlevel: 3},
		Plugins: []PluginEntry{
			{
				Name:    "demo",
				Options: map[string]string{"verify": "off"},
				Copies: []collect.CopyRecord{{
					Source:      "/etc/example.conf",
					Destination: "mirror/etc/example.conf",
					Kind:        collect.KindFile,
					Mode:        "-rw-r--r--",
					Size:        4,
				}},
				Commands: []collect.CommandRecord{{
					Command:  "hostname",
					Argv:     []string{"/usr/bin/hostname"},
					File:     "commands/demo.hostname",
					ExitCode: 0,
				}},
				Alerts:     []string{"<b>check</b> this"},
				CustomText: "<p>custom</p>",
			},
			{Name: "partial", Partial: true},
		},
		Skipped: []string{"autofs"},
		Errors:  1,
	}
}

func TestWriteIndex(t *testing.T) {
	st := newStaging(t)
	path, err := WriteIndex(st, sampleIndex(st))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(st.Reports(), IndexFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "custom", "custom text stays out of the index")

	idx, err := ReadIndex(data)
	require.NoError(t, err)
	require.Len(t, idx.Plugins, 2)
	assert.Equal(t, "mirror/etc/example.conf", idx.Plugins[0].Copies[0].Destination)
	assert.Equal(t, "commands/demo.hostname", idx.Plugins[0].Commands[0].File)
	assert.True(t, idx.Plugins[1].Partial)
	assert.Equal(t, 1, idx.Errors)

	_, err = WriteIndex(st, sampleIndex(st))
	assert.Error(t, err, "index is written once per run")
}

func TestWriteHTML(t *testing.T) {
	st := newStaging(t)
	path, err := WriteHTML(st, sampleIndex(st))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, `<h2 id="demo">Demo</h2>`)
	assert.Contains(t, html, "1 path copied, 1 command run.")
	assert.Contains(t, html, `<a href="../mirror/etc/example.conf">/etc/example.conf</a>`)
	assert.Contains(t, html, "&lt;b&gt;check&lt;/b&gt; this", "alerts are escaped")
	assert.Contains(t, html, "<p>custom</p>", "custom text is trusted html")
	assert.Contains(t, html, `<a href="#partial">partial</a> (partial)`)
}

func TestWriteXML(t *testing.T) {
	st := newStaging(t)
	path, err := WriteXML(st, sampleIndex(st))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xml.Header))

	var got Index
	require.NoError(t, xml.Unmarshal(data, &got))
	assert.Equal(t, "3f1c2a4e-0000-4000-8000-000000000000", got.RunID)
	require.Len(t, got.Plugins, 2)
	assert.Equal(t, "demo", got.Plugins[0].Name)
	assert.Equal(t, []string{"autofs"}, got.Skipped)
}
