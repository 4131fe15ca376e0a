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

package engine

import (
	"fmt"
	"log/slog"

	"github.com/NVIDIA/hostbundle/pkg/packager"
)

// writeReports writes reports/index, the optional HTML and XML summaries
// and reports/metrics.prom.
func (e *Engine) writeReports() error {
	idx := e.index()

	path, err := packager.WriteIndex(e.st, idx)
	if err != nil {
		return err
	}
	slog.Debug("index written", "path", path)

	if !e.cfg.NoReport() {
		if _, err := packager.WriteHTML(e.st, idx); err != nil {
			return err
		}
		if _, err := packager.WriteXML(e.st, idx); err != nil {
			return err
		}
	}

	for _, p := range e.loaded {
		e.metrics.observeCollector(p.Facade().Collector())
	}
	if err := e.metrics.write(e.st); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func (e *Engine) index() *packager.Index {
	idx := &packager.Index{
		RunID:    e.runID,
		Version:  e.cfg.Version(),
		Staging:  e.st.Name(),
		Started:  e.started,
		Finished: e.now(),
		Host: packager.HostFacts{
			Hostname: e.policy.Hostname(),
			Arch:     e.policy.Arch(),
			Kernel:   e.policy.KernelVersion(),
			Distro:   e.policy.DistroMajorVersion(),
			Runlevel: e.policy.DefaultRunlevel(),
		},
		Errors: e.failures.count(),
	}
	for _, s := range e.skipped {
		idx.Skipped = append(idx.Skipped, s.Name)
	}

	for _, p := range e.loaded {
		b := p.Facade()
		entry := packager.PluginEntry{
			Name:       p.Name(),
			Partial:    b.Partial(),
			Alerts:     b.Alerts(),
			Diagnoses:  b.Diagnoses(),
			CustomText: p.Report(),
		}
		if values := b.OptionValues(); len(values) > 0 {
			entry.Options = make(map[string]string, len(values))
			for k, v := range values {
				entry.Options[k] = v.String()
			}
		}
		if c := b.Collector(); c != nil {
			entry.Copies = c.Copies()
			entry.Commands = c.Commands()
			entry.Redactions = c.Redactions()
			entry.Warnings = c.Warnings()
		}
		idx.Plugins = append(idx.Plugins, entry)
	}
	return idx
}
