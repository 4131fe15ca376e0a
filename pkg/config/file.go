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

package config

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

// Section and key names recognised in the config file.
const (
	SectionPlugins  = "plugins"
	SectionTunables = "tunables"
	KeyDisable      = "disable"
)

// File is the parsed INI config file.
type File struct {
	// Path is where the file was read from, empty when none was read.
	Path string
	// Disable lists plugins to skip, as if given to --skip.
	Disable []string
	// Tunables maps plugin.key to its raw value.
	Tunables map[string]string
}

// LoadFile reads the INI config at path. A missing file yields an empty File
// unless required is set.
func LoadFile(path string, required bool) (*File, error) {
	f := &File{Tunables: map[string]string{}}
	if path == "" {
		return f, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return f, nil
		}
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"cannot read config file", err, map[string]any{"path": path})
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
			"cannot parse config file", err, map[string]any{"path": path})
	}
	f.Path = path

	if sec, err := cfg.GetSection(SectionPlugins); err == nil && sec.HasKey(KeyDisable) {
		f.Disable = SplitList(sec.Key(KeyDisable).String())
	}
	if sec, err := cfg.GetSection(SectionTunables); err == nil {
		for _, key := range sec.Keys() {
			f.Tunables[key.Name()] = key.String()
		}
	}
	return f, nil
}

// TunableNames returns the tunable keys in sorted order.
func (f *File) TunableNames() []string {
	names := make([]string, 0, len(f.Tunables))
	for name := range f.Tunables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitList splits a comma or whitespace separated plugin list, dropping
// empty entries.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// SplitLists applies SplitList to every value and concatenates the results.
func SplitLists(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, SplitList(v)...)
	}
	return out
}
