// Package cli implements the hostbundle command line.
//
// # Usage
//
//	hostbundle [flags]
//
// With no flags every plugin whose enablement check passes on this host
// runs, the operator is asked for a name and case number, and the archive
// is written to the temp base:
//
//	/tmp/report-<name>[-<case>]-<YYYYMMDDHHMMSS>-<md5 suffix>.tar.xz
//	/tmp/report-...tar.xz.md5
//
// # Plugin Selection
//
//	--list-plugins, -l      list plugins, why they are skipped, and their options
//	                        (alias --list)
//	--only, -o LIST         run only these plugins
//	--enable, -e LIST       force-enable plugins the host check would refuse
//	--skip, -n LIST         never run these plugins
//	-k plugin.key[=value]   set an option; a bare key turns a boolean on
//	--all-options, -a       turn on every boolean option
//
// Lists are comma separated and the flags repeat. --skip beats --only,
// which beats --enable. Unknown plugin or option names are fatal before
// anything is collected.
//
// # Run Control
//
//	--batch                 never prompt
//	--build                 keep the staging tree, do not package
//	--tmp-dir DIR           staging and archive base (default /tmp)
//	--config-file FILE      INI config (default /etc/hostbundle.conf if present)
//	--command-timeout D     per-command limit (default 5m)
//	--plugin-timeout D      per-plugin collection limit (default none)
//	--compression NAME      auto, xz or bzip2
//	--no-report             skip the HTML and XML reports
//	--log-size MB           cap size-limited log harvests (0 keeps plugin limits)
//	--all-logs              collect logs without size limits
//	--upload oci://REF      push the archive as an OCI artifact
//	--verbose, -v           more logging, repeatable
//	--debug                 plugin failures are fatal
//
// # Environment Variables
//
//	LOG_LEVEL              overrides -v (debug, info, warn, error)
//	HOSTBUNDLE_TMP_DIR     default for --tmp-dir
//	HOSTBUNDLE_UPLOAD      default for --upload
//
// # Exit Codes
//
//	0        success
//	1        fatal error (bad option, no plugins, privilege, packaging)
//	128+N    stopped by signal N
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/hostbundle/pkg/cli.version=1.0.0'"
package cli
