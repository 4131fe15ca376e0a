// Package option implements typed plugin options and their resolution.
//
// Values come from layered sources loaded into koanf in priority order:
// schema defaults, then [tunables] from the config file, then -k flags from
// the command line. The effective value of plugin.key is therefore the flag
// value if present, else the tunable, else the schema default.
//
//	set, err := option.Resolve(schemas, option.DefaultSources(schemas, allOpts, tunables, flags)...)
//	size, _ := set.Get("general", "syslogsize")
package option
