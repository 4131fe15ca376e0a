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

package defaults

import "time"

// Command timeouts for external command capture.
const (
	// CommandTimeout is the default per-call limit for a captured command.
	CommandTimeout = 300 * time.Second

	// CommandWaitDelay bounds how long output pipes are drained after the
	// process group has been killed.
	CommandWaitDelay = 2 * time.Second
)

// Plugin timeouts for the dispatcher.
const (
	// PluginTimeout is the default per-plugin wall-clock cap. Zero disables it.
	PluginTimeout time.Duration = 0

	// ProgressLogInterval is the minimum spacing between progress logs while
	// copying large trees.
	ProgressLogInterval = 5 * time.Second
)

// Sink timeouts for shipping the finished archive.
const (
	// SinkPushTimeout is the total timeout for pushing an archive to a registry.
	SinkPushTimeout = 5 * time.Minute

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second
)

// Staging timeouts.
const (
	// StagingLockTimeout is how long a run waits for another run sharing the
	// same temp base to release its lock.
	StagingLockTimeout = 10 * time.Second

	// StagingLockRetry is the polling interval while waiting for the lock.
	StagingLockRetry = 250 * time.Millisecond
)
