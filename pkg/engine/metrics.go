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
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// MetricsFile is written to reports/ at the end of a run.
const MetricsFile = "metrics.prom"

// runMetrics is a per-run registry; nothing is served.
type runMetrics struct {
	reg *prometheus.Registry

	phaseDuration *prometheus.HistogramVec
	hookErrors    *prometheus.CounterVec
	commands      *prometheus.CounterVec
	commandTime   *prometheus.HistogramVec
	copiedPaths   *prometheus.CounterVec
	copiedBytes   *prometheus.CounterVec
	redactions    *prometheus.CounterVec
	plugins       *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &runMetrics{
		reg: reg,
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostbundle_plugin_phase_duration_seconds",
				Help:    "Time spent in each plugin lifecycle phase",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 300},
			},
			[]string{"plugin", "phase"},
		),
		hookErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbundle_plugin_errors_total",
				Help: "Plugin hook failures by phase",
			},
			[]string{"plugin", "phase"},
		),
		commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbundle_commands_total",
				Help: "Captured commands by outcome",
			},
			[]string{"plugin", "result"}, // ok, failed, timeout, not_found
		),
		commandTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostbundle_command_duration_seconds",
				Help:    "Wall-clock runtime of captured commands",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 300},
			},
			[]string{"plugin"},
		),
		copiedPaths: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbundle_copied_paths_total",
				Help: "Host objects placed in the mirror",
			},
			[]string{"plugin", "kind"},
		),
		copiedBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbundle_copied_bytes_total",
				Help: "Bytes of regular files copied into the mirror",
			},
			[]string{"plugin"},
		),
		redactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbundle_redactions_total",
				Help: "Substitutions applied to mirrored files",
			},
			[]string{"plugin"},
		),
		plugins: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostbundle_plugins",
				Help: "Plugins by dispatch state",
			},
			[]string{"state"}, // loaded, skipped
		),
	}
}

func (m *runMetrics) observePhase(plugin, phase string, d time.Duration) {
	m.phaseDuration.WithLabelValues(plugin, phase).Observe(d.Seconds())
}

func (m *runMetrics) hookFailed(plugin, phase string) {
	m.hookErrors.WithLabelValues(plugin, phase).Inc()
}

// observeCollector folds a plugin's action logs into the counters.
func (m *runMetrics) observeCollector(c *collect.Collector) {
	if c == nil {
		return
	}
	name := c.Plugin()
	for _, rec := range c.Copies() {
		m.copiedPaths.WithLabelValues(name, string(rec.Kind)).Inc()
		if rec.Kind == collect.KindFile {
			m.copiedBytes.WithLabelValues(name).Add(float64(rec.Size))
		}
	}
	for _, rec := range c.Commands() {
		m.commands.WithLabelValues(name, commandResult(rec)).Inc()
		m.commandTime.WithLabelValues(name).Observe(rec.RuntimeSeconds)
	}
	for _, r := range c.Redactions() {
		m.redactions.WithLabelValues(name).Add(float64(r.Replacements))
	}
}

func commandResult(rec collect.CommandRecord) string {
	switch {
	case rec.TimedOut:
		return "timeout"
	case rec.File == "" && rec.ExitCode == 127:
		return "not_found"
	case rec.ExitCode != 0:
		return "failed"
	default:
		return "ok"
	}
}

func (m *runMetrics) write(st *staging.Staging) error {
	return prometheus.WriteToTextfile(filepath.Join(st.Reports(), MetricsFile), m.reg)
}
