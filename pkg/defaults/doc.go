// Package defaults provides centralized configuration constants for hostbundle.
//
// This package defines timeout values, collection limits and default
// locations used across the codebase.
//
// # Timeout Categories
//
//   - Command timeouts: For external command capture
//   - Plugin timeouts: For the dispatcher's per-plugin cap
//   - Sink timeouts: For shipping the archive to a registry
//   - Staging timeouts: For the run lock on the temp base
//
// # Usage
//
//	import "github.com/NVIDIA/hostbundle/pkg/defaults"
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.CommandTimeout)
//	defer cancel()
package defaults
