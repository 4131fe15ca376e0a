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
	"context"
	"os"
	"sort"
	"time"

	"github.com/NVIDIA/hostbundle/pkg/defaults"
)

// SizedFile is a harvest candidate.
type SizedFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// SelectBySize orders files newest first and greedily takes them while the
// running total stays within limit bytes. A file that alone overflows the
// budget is taken only when nothing has been taken yet. A limit of zero or
// less means unlimited.
func SelectBySize(files []SizedFile, limit int64) []SizedFile {
	ordered := make([]SizedFile, len(files))
	copy(ordered, files)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ModTime.Equal(ordered[j].ModTime) {
			return ordered[i].ModTime.After(ordered[j].ModTime)
		}
		return ordered[i].Path < ordered[j].Path
	})
	if limit <= 0 {
		return ordered
	}

	var (
		taken []SizedFile
		total int64
	)
	for _, f := range ordered {
		switch {
		case total+f.Size <= limit:
			taken = append(taken, f)
			total += f.Size
		case len(taken) == 0:
			taken = append(taken, f)
			total += f.Size
		}
	}
	return taken
}

// CopyLimited copies the newest files matching glob up to limitMB megabytes.
// A run-wide log size lowers the limit; all-logs removes it. Directories
// among the matches are ignored.
func (c *Collector) CopyLimited(ctx context.Context, glob string, limitMB int) error {
	matches, err := Expand(glob)
	if err != nil {
		c.warn("%v", err)
		return nil
	}

	candidates := make([]SizedFile, 0, len(matches))
	for _, m := range matches {
		if c.Forbidden(m) {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil {
			if !HasMeta(glob) {
				c.warn("%s not found", m)
			}
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, SizedFile{Path: m, Size: fi.Size(), ModTime: fi.ModTime()})
	}

	for _, f := range SelectBySize(candidates, int64(c.harvestLimit(limitMB))*defaults.BytesPerMB) {
		if err := c.Copy(ctx, f.Path); err != nil {
			return err
		}
	}
	return nil
}

// harvestLimit applies the run-wide overrides to a per-call limit in MB.
// Zero means unlimited.
func (c *Collector) harvestLimit(limitMB int) int {
	switch {
	case c.allLogs:
		return 0
	case c.logSizeMB > 0 && (limitMB <= 0 || c.logSizeMB < limitMB):
		return c.logSizeMB
	case limitMB < 0:
		return 0
	default:
		return limitMB
	}
}
