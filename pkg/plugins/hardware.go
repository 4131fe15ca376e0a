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

package plugins

import (
	"context"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("hardware", newHardware)
}

type hardware struct {
	*plugin.Base
}

func newHardware(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &hardware{Base: plugin.NewBase(name, c, plugin.Meta{
		Description: "hardware related information",
	})}, nil
}

func (h *hardware) Setup(context.Context) error {
	h.AddCopySpec(
		"/proc/partitions",
		"/proc/cpuinfo",
		"/proc/meminfo",
		"/proc/ioports",
		"/proc/interrupts",
		"/proc/scsi",
		"/proc/dma",
		"/proc/devices",
		"/proc/rtc",
		"/proc/ide",
		"/proc/bus",
		"/etc/stinit.def",
		"/etc/sysconfig/hwconf",
		"/proc/chandev",
		"/proc/dasd",
		"/proc/s390dbf/tape",
	)
	h.CollectExtOutput("lspci -vvn")
	h.CollectExtOutput("lscpu")
	h.CollectExtOutput("lsblk -a")
	h.CollectExtOutput(`sh -c "dmesg | grep -e 'e820.' -e 'agp.'"`, collect.WithSuggestedName("dmesg_memory_map"))
	h.CollectExtOutput("vgdisplay -vv")
	h.CollectExtOutput("lsusb")
	return nil
}
