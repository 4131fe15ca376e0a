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

package option

import (
	"fmt"
	"sort"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Source loads option values into koanf. Sources are loaded in ascending
// priority so higher priorities override lower ones.
//
// Built-in sources and their priorities:
//   - DefaultSource (10): schema defaults
//   - TunableSource (20): [tunables] from the config file
//   - FlagSource (40): -k plugin.key[=value] from the command line
type Source interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource loads every schema default. With AllOptions set, boolean
// options default to true.
type DefaultSource struct {
	Schemas    map[string]Schema
	AllOptions bool
}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	m := make(map[string]any)
	for plugin, schema := range s.Schemas {
		for _, sp := range schema {
			v := sp.Default
			if s.AllOptions && v.Kind() == KindBool {
				v = Bool(true)
			}
			m[plugin+"."+sp.Key] = v.Any()
		}
	}
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("error loading option defaults: %w", err)
	}
	return nil
}

// TunableSource loads plugin.key = value entries from the config file.
// Values are decoded with Parse.
type TunableSource struct {
	Values map[string]string
}

func (s *TunableSource) Name() string  { return "tunables" }
func (s *TunableSource) Priority() int { return 20 }

func (s *TunableSource) Load(k *koanf.Koanf) error {
	m := make(map[string]any, len(s.Values))
	for name, raw := range s.Values {
		plugin, key, v, err := ParseAssignment(name + "=" + raw)
		if err != nil {
			return err
		}
		m[plugin+"."+key] = v.Any()
	}
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("error loading tunables: %w", err)
	}
	return nil
}

// FlagSource loads -k assignments. Later assignments of the same key win.
type FlagSource struct {
	Assignments []string
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	m := make(map[string]any, len(s.Assignments))
	for _, arg := range s.Assignments {
		plugin, key, v, err := ParseAssignment(arg)
		if err != nil {
			return err
		}
		m[plugin+"."+key] = v.Any()
	}
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("error loading command-line options: %w", err)
	}
	return nil
}

// DefaultSources returns the standard sources.
// Order: defaults -> tunables -> flags
func DefaultSources(schemas map[string]Schema, allOptions bool, tunables map[string]string, flags []string) []Source {
	return []Source{
		&DefaultSource{Schemas: schemas, AllOptions: allOptions},
		&TunableSource{Values: tunables},
		&FlagSource{Assignments: flags},
	}
}

func sortSources(sources []Source) []Source {
	out := make([]Source, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}
