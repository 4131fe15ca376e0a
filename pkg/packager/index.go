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
	"encoding/xml"
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

const (
	// IndexFile is the structured list of copies and commands.
	IndexFile = "index"
	// HTMLReportFile and XMLReportFile are the optional summaries.
	HTMLReportFile = "report.html"
	XMLReportFile  = "report.xml"
)

// Index is written to reports/index.
type Index struct {
	XMLName  xml.Name      `json:"-" yaml:"-" xml:"report"`
	RunID    string        `json:"run_id" yaml:"run_id" xml:"run_id,attr"`
	Version  string        `json:"version" yaml:"version" xml:"version,attr"`
	Staging  string        `json:"staging" yaml:"staging" xml:"staging"`
	Started  time.Time     `json:"started" yaml:"started" xml:"started"`
	Finished time.Time     `json:"finished" yaml:"finished" xml:"finished"`
	Host     HostFacts     `json:"host" yaml:"host" xml:"host"`
	Plugins  []PluginEntry `json:"plugins" yaml:"plugins" xml:"plugins>plugin"`
	Skipped  []string      `json:"skipped,omitempty" yaml:"skipped,omitempty" xml:"skipped>plugin,omitempty"`
	Errors   int           `json:"errors" yaml:"errors" xml:"errors"`
}

// HostFacts are the policy facts recorded with a run.
type HostFacts struct {
	Hostname string `json:"hostname" yaml:"hostname" xml:"hostname"`
	Arch     string `json:"arch" yaml:"arch" xml:"arch"`
	Kernel   string `json:"kernel" yaml:"kernel" xml:"kernel"`
	Distro   string `json:"distro_major_version" yaml:"distro_major_version" xml:"distro_major_version"`
	Runlevel int    `json:"default_runlevel" yaml:"default_runlevel" xml:"default_runlevel"`
}

// PluginEntry is one plugin's action log.
type PluginEntry struct {
	Name       string                  `json:"name" yaml:"name" xml:"name,attr"`
	Partial    bool                    `json:"partial,omitempty" yaml:"partial,omitempty" xml:"partial,attr,omitempty"`
	Options    map[string]string       `json:"options,omitempty" yaml:"options,omitempty" xml:"-"`
	Copies     []collect.CopyRecord    `json:"copies,omitempty" yaml:"copies,omitempty" xml:"copies>copy,omitempty"`
	Commands   []collect.CommandRecord `json:"commands,omitempty" yaml:"commands,omitempty" xml:"commands>command,omitempty"`
	Redactions []collect.Redaction     `json:"redactions,omitempty" yaml:"redactions,omitempty" xml:"redactions>redaction,omitempty"`
	Alerts     []string                `json:"alerts,omitempty" yaml:"alerts,omitempty" xml:"alerts>alert,omitempty"`
	Diagnoses  []string                `json:"diagnoses,omitempty" yaml:"diagnoses,omitempty" xml:"diagnoses>diagnose,omitempty"`
	Warnings   []string                `json:"warnings,omitempty" yaml:"warnings,omitempty" xml:"warnings>warning,omitempty"`

	// CustomText is the plugin's HTML fragment; it only feeds the HTML report.
	CustomText string `json:"-" yaml:"-" xml:"-"`
}

// WriteIndex serializes idx as YAML into reports/index.
func WriteIndex(st *staging.Staging, idx *Index) (string, error) {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal index: %w", err)
	}
	path := filepath.Join(st.Reports(), IndexFile)
	if err := st.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write index: %w", err)
	}
	return path, nil
}

// ReadIndex parses an index written by WriteIndex.
func ReadIndex(data []byte) (*Index, error) {
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return &idx, nil
}
