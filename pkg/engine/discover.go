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
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/NVIDIA/hostbundle/pkg/config"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/option"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

// Skip reasons shown by --list-plugins and recorded in the index.
const (
	reasonSkipped    = "skipped on the command line"
	reasonDisabled   = "disabled in the config file"
	reasonNotOnly    = "not selected by --only"
	reasonGateFailed = "enablement check failed"
	reasonNotHost    = "not applicable to this host"
	reasonDefaultOff = "off by default"
	reasonLoadFailed = "failed to load"
)

// discover instantiates the plugins, resolves their options and splits
// them into loaded and skipped.
func (e *Engine) discover(ctx context.Context, file *config.File) error {
	commons := &plugin.Commons{Policy: e.policy, Config: e.cfg}
	reg, errs := plugin.NewFromFactories(e.factories, commons)
	e.registry = reg
	for _, err := range errs {
		name := loadFailureName(err)
		e.failures.add(failure{plugin: name, phase: phaseLoad, err: err})
		e.skipped = append(e.skipped, Skipped{Name: name, Reason: reasonLoadFailed})
	}

	only := config.SplitLists(e.cfg.Only())
	enable := config.SplitLists(e.cfg.Enable())
	skip := config.SplitLists(e.cfg.Skip())
	if err := e.checkToggles(only, enable, skip, file.Disable); err != nil {
		return err
	}

	schemas := make(map[string]option.Schema, reg.Count())
	for _, p := range reg.Sorted() {
		schemas[p.Name()] = p.Options()
	}
	tunables, flags, err := e.optionsForLoaded(schemas, file.Tunables, e.cfg.Options())
	if err != nil {
		return err
	}
	set, err := option.Resolve(schemas,
		option.DefaultSources(schemas, e.cfg.AllOptions(), tunables, flags)...)
	if err != nil {
		return err
	}

	for _, p := range reg.Sorted() {
		p.Facade().SetOptionValues(set.For(p.Name()))

		reason, err := e.partition(ctx, p, only, enable, skip, file.Disable)
		if err != nil {
			return err
		}
		if reason != "" {
			e.skipped = append(e.skipped, Skipped{Name: p.Name(), Reason: reason})
			continue
		}
		e.loaded = append(e.loaded, p)
	}
	sort.Slice(e.skipped, func(i, j int) bool { return e.skipped[i].Name < e.skipped[j].Name })

	e.metrics.plugins.WithLabelValues("loaded").Set(float64(len(e.loaded)))
	e.metrics.plugins.WithLabelValues("skipped").Set(float64(len(e.skipped)))
	return nil
}

// checkToggles rejects plugin names that no factory provides.
func (e *Engine) checkToggles(lists ...[]string) error {
	var unknown []string
	for _, list := range lists {
		for _, name := range list {
			if _, ok := e.factories[name]; !ok && !slices.Contains(unknown, name) {
				unknown = append(unknown, name)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return cnserrors.NewWithContext(cnserrors.ErrCodeUnknownOption,
		"unknown plugin "+strings.Join(unknown, ", "), map[string]any{"plugins": unknown})
}

// optionsForLoaded rejects option names whose plugin no factory provides
// and drops, with a warning, those naming a plugin that failed to load.
// Malformed flags are passed through for Resolve to report.
func (e *Engine) optionsForLoaded(schemas map[string]option.Schema, tunables map[string]string, flags []string) (map[string]string, []string, error) {
	var plugins []string
	keep := func(name string) bool {
		if _, ok := schemas[name]; ok {
			return true
		}
		if _, ok := e.factories[name]; ok {
			slog.Warn("ignoring option for plugin that failed to load", "plugin", name)
			return false
		}
		plugins = append(plugins, name)
		return true
	}

	kept := make(map[string]string, len(tunables))
	for k, v := range tunables {
		name, _, _ := strings.Cut(strings.TrimSpace(k), ".")
		if keep(name) {
			kept[k] = v
		}
	}
	var keptFlags []string
	for _, f := range flags {
		name, _, _, err := option.ParseAssignment(f)
		if err != nil || keep(name) {
			keptFlags = append(keptFlags, f)
		}
	}
	if err := e.checkToggles(plugins); err != nil {
		return nil, nil, err
	}
	return kept, keptFlags, nil
}

// partition returns why p is skipped, or "" when it runs. Precedence is
// skip, then only, then enable, then the gate, then the default.
func (e *Engine) partition(ctx context.Context, p plugin.Plugin, only, enable, skip, disable []string) (string, error) {
	name := p.Name()
	switch {
	case slices.Contains(skip, name):
		return reasonSkipped, nil
	case slices.Contains(disable, name):
		return reasonDisabled, nil
	case len(only) > 0:
		if slices.Contains(only, name) {
			return "", nil
		}
		return reasonNotOnly, nil
	case slices.Contains(enable, name):
		return "", nil
	}

	var ok bool
	failed := true
	err := e.isolate(ctx, name, phaseGate, cnserrors.ErrCodeGateFailure, func(ctx context.Context) error {
		var err error
		ok, err = p.CheckEnabled(ctx)
		if err == nil {
			failed = false
		}
		return err
	})
	switch {
	case err != nil:
		return "", err
	case failed:
		return reasonGateFailed, nil
	case !ok:
		return reasonNotHost, nil
	case !p.DefaultEnabled():
		return reasonDefaultOff, nil
	}
	return "", nil
}

func loadFailureName(err error) string {
	var se *cnserrors.StructuredError
	if errors.As(err, &se) {
		if name, ok := se.Context["plugin"].(string); ok {
			return name
		}
	}
	return "unknown"
}
