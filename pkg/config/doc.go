// Package config provides the run configuration and the INI config file.
//
// The run Config is immutable after construction and built with functional
// options:
//
//	cfg := config.NewConfig(
//	    config.WithBatch(true),
//	    config.WithOnly("general", "networking"),
//	    config.WithTicket("12345"),
//	)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// The config file recognises two sections:
//
//	[plugins]
//	disable = autofs, hardware
//
//	[tunables]
//	general.syslogsize = 30
//
// The default file /etc/hostbundle.conf is silently ignored when absent; a
// file given with --config-file must exist.
package config
