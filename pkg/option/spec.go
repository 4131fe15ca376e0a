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

// Speed hints how long collecting with an option enabled takes.
type Speed string

const (
	Fast Speed = "fast"
	Slow Speed = "slow"
)

// Spec declares one plugin option.
type Spec struct {
	Key         string
	Description string
	Speed       Speed
	Default     Value
}

// Schema is a plugin's ordered option list.
type Schema []Spec

// Lookup returns the spec for key.
func (s Schema) Lookup(key string) (Spec, bool) {
	for _, sp := range s {
		if sp.Key == key {
			return sp, true
		}
	}
	return Spec{}, false
}

// Set holds resolved option values keyed by plugin then option key.
type Set map[string]map[string]Value

// Get returns the value of plugin.key.
func (s Set) Get(plugin, key string) (Value, bool) {
	v, ok := s[plugin][key]
	return v, ok
}

// For returns a copy of one plugin's values.
func (s Set) For(plugin string) map[string]Value {
	out := make(map[string]Value, len(s[plugin]))
	for k, v := range s[plugin] {
		out[k] = v
	}
	return out
}
