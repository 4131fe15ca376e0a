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
	"strconv"
	"strings"

	"github.com/spf13/cast"

	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
)

// Kind is the type carried by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "string"
	}
}

// Value is a plugin option value: a bool, an int or a string.
type Value struct {
	kind Kind
	b    bool
	i    int
	s    string
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int) Value { return Value{kind: KindInt, i: i} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean held by v. Non-bool values are converted.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	default:
		b, _ := toBool(v.s)
		return b
	}
}

// AsInt returns the integer held by v. Non-int values are converted.
func (v Value) AsInt() int {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	default:
		return cast.ToInt(v.s)
	}
}

// String renders v the way it would be written on the command line.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "on"
		}
		return "off"
	case KindInt:
		return strconv.Itoa(v.i)
	default:
		return v.s
	}
}

// Any returns the underlying Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	default:
		return v.s
	}
}

// Parse decodes a command-line value: off, disable, disabled and false are
// boolean false, a run of digits is an int and anything else is a string.
func Parse(raw string) Value {
	switch strings.ToLower(raw) {
	case "off", "disable", "disabled", "false":
		return Bool(false)
	}
	if raw != "" && strings.Trim(raw, "0123456789") == "" {
		if i, err := strconv.Atoi(raw); err == nil {
			return Int(i)
		}
	}
	return String(raw)
}

// ParseAssignment splits plugin.key[=value]. A bare plugin.key means true.
func ParseAssignment(arg string) (plugin, key string, v Value, err error) {
	name, raw, hasValue := strings.Cut(arg, "=")
	plugin, key, ok := strings.Cut(strings.TrimSpace(name), ".")
	if !ok || plugin == "" || key == "" {
		return "", "", Value{}, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"option must be written as plugin.key[=value]", map[string]any{"option": arg})
	}
	if !hasValue {
		return plugin, key, Bool(true), nil
	}
	return plugin, key, Parse(raw), nil
}

// Coerce converts raw into a Value of the given kind.
func Coerce(raw any, kind Kind) (Value, error) {
	if v, ok := raw.(Value); ok {
		raw = v.Any()
	}
	switch kind {
	case KindBool:
		if s, ok := raw.(string); ok {
			b, err := toBool(s)
			if err != nil {
				return Value{}, err
			}
			return Bool(b), nil
		}
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return Value{}, fmt.Errorf("not a boolean: %w", err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := cast.ToIntE(raw)
		if err != nil {
			return Value{}, fmt.Errorf("not an integer: %w", err)
		}
		return Int(i), nil
	default:
		if b, ok := raw.(bool); ok {
			return String(Bool(b).String()), nil
		}
		s, err := cast.ToStringE(raw)
		if err != nil {
			return Value{}, fmt.Errorf("not a string: %w", err)
		}
		return String(s), nil
	}
}

func toBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disable", "disabled", "false", "no", "0":
		return false, nil
	case "on", "enable", "enabled", "true", "yes", "1", "":
		return true, nil
	}
	return cast.ToBoolE(s)
}
