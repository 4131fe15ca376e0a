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

// Collection limits.
const (
	// MaxMangledLength caps the mangled argv portion of a command file name.
	MaxMangledLength = 64

	// BytesPerMB converts a size budget in megabytes to bytes.
	BytesPerMB int64 = 1 << 20

	// StagingAttempts is the number of names tried before staging creation
	// gives up on collisions.
	StagingAttempts = 5
)

// Exit codes recorded for commands that did not run to completion.
const (
	// ExitCodeTimeout is recorded when a command exceeded its timeout.
	ExitCodeTimeout = 124

	// ExitCodeNotFound is recorded when a command could not be resolved.
	ExitCodeNotFound = 127
)

// Default locations.
const (
	// ConfigFile is read when no --config-file is given. Absence is not an error.
	ConfigFile = "/etc/hostbundle.conf"

	// TempDir is the default temp base for staging roots.
	TempDir = "/tmp"
)
