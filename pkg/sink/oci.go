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

package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

const (
	// ArtifactType identifies diagnostic report artifacts.
	ArtifactType = "application/vnd.nvidia.hostbundle.report"

	MediaTypeArchiveXZ    = "application/x-xz"
	MediaTypeArchiveBzip2 = "application/x-bzip2"
	MediaTypeChecksum     = "text/plain"

	// AnnotationArchive names the archive on the manifest. The title
	// annotation belongs to the layer only; the file store rejects a second
	// blob with the same title.
	AnnotationArchive = "com.nvidia.hostbundle.archive"
)

// Sink ships a finished archive and its checksum sidecar somewhere off the
// host and returns where it went.
type Sink interface {
	Name() string
	Ship(ctx context.Context, archive, sidecar string) (string, error)
}

// OCI pushes archives as OCI 1.1 artifacts with one layer for the archive
// and one for the checksum.
type OCI struct {
	ref         *Reference
	plainHTTP   bool
	insecureTLS bool
	version     string
	target      oras.Target
}

// OCIOption configures an OCI sink.
type OCIOption func(*OCI)

// WithPlainHTTP uses HTTP instead of HTTPS for the registry connection.
func WithPlainHTTP(enabled bool) OCIOption {
	return func(o *OCI) { o.plainHTTP = enabled }
}

// WithInsecureTLS skips TLS certificate verification.
func WithInsecureTLS(enabled bool) OCIOption {
	return func(o *OCI) { o.insecureTLS = enabled }
}

// WithVersion records the tool version as a manifest annotation.
func WithVersion(v string) OCIOption {
	return func(o *OCI) { o.version = v }
}

// WithTarget replaces the remote repository, e.g. with a local OCI layout.
func WithTarget(t oras.Target) OCIOption {
	return func(o *OCI) { o.target = t }
}

// NewOCI returns a sink for an oci:// target.
func NewOCI(target string, opts ...OCIOption) (*OCI, error) {
	ref, err := ParseReference(target)
	if err != nil {
		return nil, err
	}
	o := &OCI{ref: ref}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Name implements Sink.
func (o *OCI) Name() string { return "oci" }

// Ship implements Sink. It returns the pushed reference with its digest.
func (o *OCI) Ship(ctx context.Context, archive, sidecar string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaults.SinkPushTimeout)
	defer cancel()

	absArchive, err := filepath.Abs(archive)
	if err != nil {
		return "", cnserrors.Wrap(cnserrors.ErrCodeInternal, "failed to resolve archive path", err)
	}
	absSidecar, err := filepath.Abs(sidecar)
	if err != nil {
		return "", cnserrors.Wrap(cnserrors.ErrCodeInternal, "failed to resolve sidecar path", err)
	}

	tag := o.ref.Tag
	if tag == "" {
		tag = TagFor(absArchive)
	}
	ref := o.ref.WithTag(tag)

	fs, err := file.New(filepath.Dir(absArchive))
	if err != nil {
		return "", fmt.Errorf("failed to create file store: %w", err)
	}
	defer func() { _ = fs.Close() }()

	archiveDesc, err := fs.Add(ctx, filepath.Base(absArchive), mediaTypeFor(absArchive), absArchive)
	if err != nil {
		return "", fmt.Errorf("failed to add archive to store: %w", err)
	}
	sumDesc, err := fs.Add(ctx, filepath.Base(absSidecar), MediaTypeChecksum, absSidecar)
	if err != nil {
		return "", fmt.Errorf("failed to add checksum to store: %w", err)
	}

	packOpts := oras.PackManifestOptions{
		Layers: []ociv1.Descriptor{archiveDesc, sumDesc},
		ManifestAnnotations: map[string]string{
			ociv1.AnnotationVendor: "NVIDIA",
			AnnotationArchive:      filepath.Base(absArchive),
		},
	}
	if o.version != "" {
		packOpts.ManifestAnnotations[ociv1.AnnotationVersion] = o.version
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return "", fmt.Errorf("failed to pack manifest: %w", err)
	}
	if tagErr := fs.Tag(ctx, manifestDesc, tag); tagErr != nil {
		return "", fmt.Errorf("failed to tag manifest in local store: %w", tagErr)
	}

	dst := o.target
	if dst == nil {
		repo, repoErr := remote.NewRepository(fmt.Sprintf("%s/%s", ref.Registry, ref.Repository))
		if repoErr != nil {
			return "", cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "failed to initialize remote repository", repoErr)
		}
		repo.PlainHTTP = o.plainHTTP
		repo.Client = createAuthClient(o.plainHTTP, o.insecureTLS)
		dst = repo
	}

	slog.Info("pushing archive", "reference", ref.ImageReference(), "archive", absArchive)

	desc, err := oras.Copy(ctx, fs, tag, dst, tag, oras.DefaultCopyOptions)
	if err != nil {
		return "", fmt.Errorf("failed to push artifact to registry: %w", err)
	}

	pushed := fmt.Sprintf("%s/%s@%s", ref.Registry, ref.Repository, desc.Digest)
	slog.Info("archive pushed", "reference", pushed)
	return pushed, nil
}

func mediaTypeFor(archive string) string {
	if strings.HasSuffix(archive, ".bz2") {
		return MediaTypeArchiveBzip2
	}
	return MediaTypeArchiveXZ
}

func createAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: defaults.HTTPConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = defaults.HTTPTLSHandshakeTimeout
	transport.ResponseHeaderTimeout = defaults.HTTPResponseHeaderTimeout
	transport.IdleConnTimeout = defaults.HTTPIdleConnTimeout
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	return &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentials.Credential(credStore),
	}
}
