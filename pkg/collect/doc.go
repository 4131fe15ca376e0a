// Package collect implements the collection primitives used by plugins:
// symlink-aware copy into the mirror, size-limited log harvest, external
// command capture and regex redaction of mirrored files.
//
// A Collector is bound to one plugin and one staging root. It records every
// action so the packager can build the archive index:
//
//	c := collect.New(st, "networking")
//	c.AddForbidden("/etc/ssl/private/*")
//	_ = c.CopySpec(ctx, "/etc/sysconfig/network-scripts/ifcfg-*")
//	_, _ = c.RunCommand(ctx, "ip addr show", collect.WithRootSymlink("ip_addr"))
//
// Symlinks are copied together with their target. When the target ends up in
// the mirror the mirrored link is made relative; otherwise it keeps pointing
// at the host's absolute path.
//
// Commands run with LC_ALL=C from the staging root's parent, in their own
// process group, with stderr merged into stdout unless WithSeparateStderr is
// given. An unresolvable command is recorded with exit code 127 and writes
// nothing; a timed out command is recorded with exit code 124.
package collect
