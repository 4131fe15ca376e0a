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
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const unknownName = "localhost"

// Sanitize transliterates s to ASCII where a decomposition exists, then keeps
// only [A-Za-z0-9.].
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArchiveBase returns report-<who>[-<ticket>]-<stamp> with who and ticket
// sanitized. An empty who becomes localhost.
func ArchiveBase(who, ticket, stamp string) string {
	who = Sanitize(who)
	if who == "" {
		who = unknownName
	}
	parts := []string{"report", who}
	if t := Sanitize(ticket); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, stamp)
	return strings.Join(parts, "-")
}
