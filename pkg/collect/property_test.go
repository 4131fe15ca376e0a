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

package collect

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
)

func TestSelectBySizeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		files := make([]SizedFile, n)
		for i := range files {
			files[i] = SizedFile{
				Path:    rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "path"),
				Size:    rapid.Int64Range(0, 8*defaults.BytesPerMB).Draw(t, "size"),
				ModTime: time.Unix(rapid.Int64Range(0, 1000).Draw(t, "mtime"), 0),
			}
		}
		limitMB := rapid.IntRange(-1, 10).Draw(t, "limit")
		limit := int64(limitMB) * defaults.BytesPerMB

		got := SelectBySize(files, limit)

		var total int64
		for i, f := range got {
			total += f.Size
			if i > 0 && got[i].ModTime.After(got[i-1].ModTime) {
				t.Fatalf("inclusion order not newest first at %d", i)
			}
		}
		if limit <= 0 {
			if len(got) != n {
				t.Fatalf("unlimited selection dropped files: %d of %d", len(got), n)
			}
			return
		}
		if total > limit && len(got) != 1 {
			t.Fatalf("total %d exceeds limit %d with %d files", total, limit, len(got))
		}
		if n > 0 && len(got) == 0 {
			t.Fatal("at least one file must be taken when candidates exist")
		}
	})
}

func TestMangleProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.String().Draw(t, "command")
		out := Mangle(in)

		if out == "" {
			t.Fatal("mangled name must not be empty")
		}
		if len(out) > defaults.MaxMangledLength {
			t.Fatalf("mangled name too long: %d", len(out))
		}
		if strings.ContainsAny(out, " /\t\n;#$|%\"'`{}") {
			t.Fatalf("unsafe character left in %q", out)
		}
		if out != "command" && (strings.HasPrefix(out, "_") || strings.HasPrefix(out, "-") || strings.HasPrefix(out, ".")) {
			t.Fatalf("leading separator left in %q", out)
		}
	})
}
