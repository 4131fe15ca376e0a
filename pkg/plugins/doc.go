// Package plugins holds the built-in collectors. Each registers itself with
// plugin.MustRegister from init, so importing the package for its side
// effects makes them available to the engine:
//
//	import _ "github.com/NVIDIA/hostbundle/pkg/plugins"
//
// The collectors are:
//
//	general     release files, system logs and basic identity commands
//	kernel      kernel release, modules, boot parameters and SysRq dumps
//	hardware    /proc hardware tables and bus listings
//	networking  name service config, addresses, routes and firewall rules
//	autofs      automounter maps, only when autofs starts by default
//	services    init and systemd unit state
package plugins
