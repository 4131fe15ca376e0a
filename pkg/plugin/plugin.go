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

package plugin

import (
	"context"

	"github.com/NVIDIA/hostbundle/pkg/config"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/policy"
)

// Plugin is a collector unit. Implementations embed *Base, which supplies
// every method except Setup.
type Plugin interface {
	Name() string
	Description() string
	Options() option.Schema
	DefaultEnabled() bool

	// CheckEnabled is the gate: whether the plugin applies to this host.
	CheckEnabled(ctx context.Context) (bool, error)

	// Diagnose runs pre-flight checks and may call AddDiagnose.
	Diagnose(ctx context.Context) error

	// Setup declares what to collect. Copies and commands declared here are
	// executed later, in declaration order.
	Setup(ctx context.Context) error

	Analyze(ctx context.Context) error

	// Postproc runs after every plugin has executed its plan and is where
	// redactions belong.
	Postproc(ctx context.Context) error

	// Report returns an HTML fragment for the summary report.
	Report() string

	// Stop asks a running plugin to abandon its remaining plan.
	Stop()

	// Facade returns the embedded Base.
	Facade() *Base
}

// Commons are the run-wide collaborators handed to every plugin at
// construction.
type Commons struct {
	Policy policy.Policy
	Config *config.Config
}

// Factory creates a plugin instance. The name is the registered name and
// must equal the returned plugin's Name.
type Factory func(name string, c *Commons) (Plugin, error)
