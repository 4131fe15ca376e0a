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
	"regexp"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
)

func init() {
	plugin.MustRegister("networking", newNetworking)
}

// ip -o link prints "2: eth0@if3: <...>". The suffix after @ is the peer.
var linkName = regexp.MustCompile(`(?m)^\d+:\s+([^:@\s]+)[@:]`)

type networking struct {
	*plugin.Base
	linkCmd string
}

func newNetworking(name string, c *plugin.Commons) (plugin.Plugin, error) {
	return &networking{
		Base: plugin.NewBase(name, c, plugin.Meta{
			Description: "network related information",
		}),
		linkCmd: "ip -o link show",
	}, nil
}

func (n *networking) Setup(ctx context.Context) error {
	n.AddCopySpec(
		"/etc/nsswitch.conf",
		"/etc/yp.conf",
		"/etc/inetd.conf",
		"/etc/xinetd.conf",
		"/etc/xinetd.d",
		"/etc/host*",
		"/etc/resolv.conf",
		"/etc/sysconfig/network-scripts",
		"/etc/NetworkManager/system-connections",
	)
	n.AddForbiddenPath("/etc/NetworkManager/system-connections/*.nmconnection")

	links, err := n.CollectOutputNow(ctx, n.linkCmd)
	if err != nil {
		return err
	}
	n.CollectExtOutput("ip addr show")
	n.CollectExtOutput("ip route show table all", collect.WithRootSymlink("route"))
	n.CollectExtOutput("iptables -t filter -nvL")
	n.CollectExtOutput("iptables -t nat -nvL")
	n.CollectExtOutput("iptables -t mangle -nvL")
	n.CollectExtOutput("ss -tuanp", collect.WithRootSymlink("netstat"))
	for _, ifc := range interfaceNames(links.Output) {
		n.CollectExtOutput("ethtool " + ifc)
	}
	return nil
}

// interfaceNames returns the non-loopback interfaces in ip -o link output.
func interfaceNames(out string) []string {
	var names []string
	for _, m := range linkName.FindAllStringSubmatch(out, -1) {
		if m[1] != "lo" {
			names = append(names, m[1])
		}
	}
	return names
}
