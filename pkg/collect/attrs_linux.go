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

//go:build linux

package collect

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type attrs struct {
	uid, gid int
	atime    time.Time
	mtime    time.Time
}

func attrsOf(fi fs.FileInfo) attrs {
	a := attrs{uid: -1, gid: -1, atime: fi.ModTime(), mtime: fi.ModTime()}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.uid = int(st.Uid)
		a.gid = int(st.Gid)
		a.atime = time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)) //nolint:unconvert
	}
	return a
}

// setLinkTimes sets the timestamps of a symlink itself.
func setLinkTimes(path string, a attrs) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(a.atime.UnixNano()),
		unix.NsecToTimespec(a.mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}
