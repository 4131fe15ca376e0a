// Package staging owns the per-run staging root: a host-unique directory
// holding the mirror of collected host paths and the adjacent commands,
// logs and reports trees.
//
// All writes under the root go through a Staging value. Paths are checked
// lexically and, for existing components, by resolving symlinks, so a link
// already present in the mirror can never redirect a write outside the root.
//
//	st, err := staging.Make(ctx, "/var/tmp", policy.Hostname())
//	if err != nil {
//	    return err
//	}
//	dest, err := st.MirrorPath("/etc/hosts") // <root>/mirror/etc/hosts
//
// A run lock on the temp base keeps concurrent runs from sharing it.
package staging
