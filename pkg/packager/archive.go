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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"github.com/NVIDIA/hostbundle/pkg/config"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

const stampForm = "20060102150405"

// Encoder is one archive compressor.
type Encoder struct {
	Name      string
	Extension string
	New       func(w io.Writer) (io.WriteCloser, error)
}

// XZ compresses with xz.
var XZ = Encoder{
	Name:      config.CompressionXZ,
	Extension: "tar.xz",
	New: func(w io.Writer) (io.WriteCloser, error) {
		zw, err := xz.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return zw, nil
	},
}

// Bzip2 compresses with bzip2.
var Bzip2 = Encoder{
	Name:      config.CompressionBzip2,
	Extension: "tar.bz2",
	New: func(w io.Writer) (io.WriteCloser, error) {
		zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, err
		}
		return zw, nil
	},
}

// Encoders returns the compressors to try for a compression setting, in
// order.
func Encoders(compression string) []Encoder {
	switch compression {
	case config.CompressionXZ:
		return []Encoder{XZ}
	case config.CompressionBzip2:
		return []Encoder{Bzip2}
	default:
		return []Encoder{XZ, Bzip2}
	}
}

// Result describes a finished archive.
type Result struct {
	Archive     string
	Sidecar     string
	MD5         string
	Compression string
}

// Packager turns a staging root into a checksummed archive.
type Packager struct {
	st       *staging.Staging
	outDir   string
	who      string
	ticket   string
	encoders []Encoder
	now      func() time.Time
}

// Option configures a Packager.
type Option func(*Packager)

// WithOutputDir places the archive somewhere other than the staging parent.
func WithOutputDir(dir string) Option {
	return func(p *Packager) { p.outDir = dir }
}

// WithSubmitter sets the <who> and <ticket> name components.
func WithSubmitter(who, ticket string) Option {
	return func(p *Packager) {
		p.who = who
		p.ticket = ticket
	}
}

// WithCompression selects the compressors by config name.
func WithCompression(name string) Option {
	return func(p *Packager) { p.encoders = Encoders(name) }
}

// WithEncoders sets the compressors explicitly.
func WithEncoders(encoders ...Encoder) Option {
	return func(p *Packager) { p.encoders = encoders }
}

// WithClock overrides the clock used for the archive timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// New returns a Packager for st.
func New(st *staging.Staging, opts ...Option) *Packager {
	p := &Packager{
		st:       st,
		outDir:   st.Parent(),
		encoders: Encoders(config.CompressionAuto),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package writes report-<who>[-<ticket>]-<stamp>-<md5[-4:]>.<ext> and its
// .md5 sidecar. The staging root is left in place.
func (p *Packager) Package(ctx context.Context) (*Result, error) {
	base := ArchiveBase(p.who, p.ticket, p.now().Format(stampForm))

	var lastErr error
	for _, enc := range p.encoders {
		res, err := p.write(ctx, base, enc)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, errEncoderInit) {
			return nil, err
		}
		slog.Warn("compressor unavailable", "compression", enc.Name, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no compressor configured")
	}
	return nil, cnserrors.Wrap(cnserrors.ErrCodePackaging, "no usable compressor", lastErr)
}

var errEncoderInit = errors.New("encoder initialisation failed")

func (p *Packager) write(ctx context.Context, base string, enc Encoder) (*Result, error) {
	tmp := filepath.Join(p.outDir, base+"."+enc.Extension)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodePackaging,
			"cannot create archive", err, map[string]any{"path": tmp})
	}

	fail := func(code cnserrors.ErrorCode, msg string, cause error) (*Result, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, cnserrors.WrapWithContext(code, msg, cause, map[string]any{"path": tmp})
	}

	zw, err := enc.New(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: %s: %w", errEncoderInit, enc.Name, err)
	}

	tw := tar.NewWriter(zw)
	if err := p.addTree(ctx, tw); err != nil {
		if ctx.Err() != nil {
			return fail(cnserrors.ErrCodeAborted, "packaging interrupted", err)
		}
		return fail(cnserrors.ErrCodePackaging, "failed to write archive", err)
	}
	if err := tw.Close(); err != nil {
		return fail(cnserrors.ErrCodePackaging, "failed to finish tar stream", err)
	}
	if err := zw.Close(); err != nil {
		return fail(cnserrors.ErrCodePackaging, "failed to finish compression", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, cnserrors.Wrap(cnserrors.ErrCodePackaging, "failed to close archive", err)
	}

	sum, err := fileMD5(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, cnserrors.Wrap(cnserrors.ErrCodePackaging, "failed to checksum archive", err)
	}

	final := filepath.Join(p.outDir, fmt.Sprintf("%s-%s.%s", base, sum[len(sum)-4:], enc.Extension))
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, cnserrors.Wrap(cnserrors.ErrCodePackaging, "failed to rename archive", err)
	}
	sidecar := final + ".md5"
	if err := os.WriteFile(sidecar, []byte(sum+"\n"), 0o600); err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodePackaging, "failed to write checksum sidecar", err)
	}

	slog.Info("archive created", "path", final, "md5", sum, "compression", enc.Name)
	return &Result{Archive: final, Sidecar: sidecar, MD5: sum, Compression: enc.Name}, nil
}

// addTree writes the staging root into tw, rooted at its base name, with
// symlinks stored as links.
func (p *Packager) addTree(ctx context.Context, tw *tar.Writer) error {
	parent := p.st.Parent()
	return filepath.WalkDir(p.st.Root(), func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !fi.Mode().IsRegular() && !fi.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
