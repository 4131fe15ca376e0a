// Package engine drives one collection run.
//
// A run discovers the registered plugins, resolves their options from
// defaults, the config file and -k flags, and partitions them into loaded
// and skipped using the toggle precedence skip, only, enable, gate,
// default. The loaded plugins then pass through diagnose, setup, collect,
// analyze and postproc in name order against a fresh staging root. Each
// hook call is isolated: an error or panic is appended with its stack to
// logs/plugin-errors.txt and the run continues, unless debug mode is set.
//
// After the hooks, the engine writes reports/index, the optional HTML and
// XML reports and reports/metrics.prom, packages the tree into a compressed
// tar with an MD5 sidecar, removes the staging root and hands the archive
// to the configured sinks.
//
// Usage:
//
//	cfg := config.NewConfig(config.WithBatch(true), config.WithOnly("general"))
//	res, err := engine.New(cfg).Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Archive, res.MD5)
package engine
