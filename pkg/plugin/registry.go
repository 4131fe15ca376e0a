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
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"slices"
	"sort"
	"sync"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

var validName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Global registry for plugin factories.
// Plugins register themselves via init() functions.
var (
	globalFactories = make(map[string]Factory)
	globalMu        sync.RWMutex
)

// Register registers a plugin factory globally.
// Returns an error if the name is not an identifier or is already taken.
func Register(name string, factory Factory) error {
	if !validName.MatchString(name) {
		return cnserrors.New(cnserrors.ErrCodeInvalidRequest,
			fmt.Sprintf("plugin name %q is not a valid identifier", name))
	}
	if factory == nil {
		return cnserrors.New(cnserrors.ErrCodeInvalidRequest,
			fmt.Sprintf("plugin %s has no factory", name))
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if _, exists := globalFactories[name]; exists {
		return cnserrors.New(cnserrors.ErrCodeInvalidRequest,
			fmt.Sprintf("plugin %s already registered", name))
	}

	globalFactories[name] = factory
	return nil
}

// MustRegister is a convenience function that panics on registration error.
// Use this in init() functions where registration must succeed.
func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// GlobalFactories returns a copy of the globally registered factories.
func GlobalFactories() map[string]Factory {
	globalMu.RLock()
	defer globalMu.RUnlock()

	out := make(map[string]Factory, len(globalFactories))
	for k, v := range globalFactories {
		out[k] = v
	}
	return out
}

// GlobalNames returns all globally registered plugin names, sorted.
func GlobalNames() []string {
	globalMu.RLock()
	defer globalMu.RUnlock()

	names := make([]string, 0, len(globalFactories))
	for n := range globalFactories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewFromGlobal creates a Registry holding one instance of every globally
// registered plugin.
func NewFromGlobal(c *Commons) (*Registry, []error) {
	return NewFromFactories(GlobalFactories(), c)
}

// NewFromFactories instantiates each factory with c. A factory that fails
// or panics is left out of the registry and reported as PLUGIN_LOAD.
func NewFromFactories(factories map[string]Factory, c *Commons) (*Registry, []error) {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)

	reg := NewRegistry()
	var errs []error
	for _, name := range names {
		p, err := instantiate(name, factories[name], c)
		if err != nil {
			slog.Warn("plugin skipped", "plugin", name, "error", err)
			errs = append(errs, err)
			continue
		}
		reg.Register(name, p)
	}
	return reg, errs
}

func instantiate(name string, factory Factory, c *Commons) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cnserrors.NewWithContext(cnserrors.ErrCodePluginLoad,
				fmt.Sprintf("plugin %s panicked during load: %v", name, r),
				map[string]any{"plugin": name, "stack": string(debug.Stack())})
		}
	}()

	p, err = factory(name, c)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodePluginLoad,
			"failed to load plugin "+name, err, map[string]any{"plugin": name})
	}
	if p == nil {
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodePluginLoad,
			"plugin "+name+" factory returned nil", map[string]any{"plugin": name})
	}
	if p.Name() != name {
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodePluginLoad,
			fmt.Sprintf("plugin registered as %s reports name %s", name, p.Name()),
			map[string]any{"plugin": name})
	}
	return p, nil
}

// Registry manages loaded plugin instances with thread-safe operations.
type Registry struct {
	plugins map[string]Plugin
	mu      sync.RWMutex
}

// NewRegistry creates a new empty Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register adds p under name, replacing any previous instance.
func (r *Registry) Register(name string, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Has reports whether name is loaded.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all plugin names in ascending order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Sorted returns all plugins ordered by name.
func (r *Registry) Sorted() []Plugin {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(names))
	for _, n := range names {
		out = append(out, r.plugins[n])
	}
	return out
}

// Unregister removes a plugin from this registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[name]; !ok {
		return cnserrors.New(cnserrors.ErrCodeNotFound, fmt.Sprintf("plugin %s not registered", name))
	}

	delete(r.plugins, name)
	return nil
}

// Count returns the number of loaded plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// IsEmpty returns true if no plugins are loaded.
func (r *Registry) IsEmpty() bool {
	return r.Count() == 0
}
