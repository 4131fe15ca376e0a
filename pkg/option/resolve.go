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
	"log/slog"
	"sort"
	"strings"

	"github.com/knadh/koanf/v2"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

// Resolve loads sources in priority order and returns the effective value of
// every declared option. A value naming an unknown plugin or key is a fatal
// UNKNOWN_OPTION error; a value that cannot be coerced to the default's kind
// is an INVALID_REQUEST error.
func Resolve(schemas map[string]Schema, sources ...Source) (Set, error) {
	k := koanf.New(".")
	for _, src := range sortSources(sources) {
		if err := src.Load(k); err != nil {
			return nil, cnserrors.WrapWithContext(cnserrors.CodeOrDefault(err, cnserrors.ErrCodeInvalidRequest),
				"failed to load options", err, map[string]any{"source": src.Name()})
		}
		slog.Debug("option source loaded", "source", src.Name(), "priority", src.Priority())
	}

	all := k.All()
	var unknown []string
	for name := range all {
		plugin, key, _ := strings.Cut(name, ".")
		schema, ok := schemas[plugin]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if _, ok := schema.Lookup(key); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodeUnknownOption,
			"unknown option "+strings.Join(unknown, ", "), map[string]any{"options": unknown})
	}

	set := make(Set, len(schemas))
	for plugin, schema := range schemas {
		values := make(map[string]Value, len(schema))
		for _, sp := range schema {
			raw, ok := all[plugin+"."+sp.Key]
			if !ok {
				values[sp.Key] = sp.Default
				continue
			}
			v, err := Coerce(raw, sp.Default.Kind())
			if err != nil {
				return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
					"invalid value for "+plugin+"."+sp.Key, err,
					map[string]any{"plugin": plugin, "key": sp.Key, "want": sp.Default.Kind().String()})
			}
			values[sp.Key] = v
		}
		set[plugin] = values
	}
	return set, nil
}
