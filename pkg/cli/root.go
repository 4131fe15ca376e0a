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

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/hostbundle/pkg/config"
	"github.com/NVIDIA/hostbundle/pkg/defaults"
	"github.com/NVIDIA/hostbundle/pkg/engine"
	"github.com/NVIDIA/hostbundle/pkg/interview"
	"github.com/NVIDIA/hostbundle/pkg/logging"
	_ "github.com/NVIDIA/hostbundle/pkg/plugins"
)

const (
	name           = "hostbundle"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

func init() {
	// -v counts verbosity, so --version has no short form.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version and exit"}
}

// Execute runs the CLI with the process arguments and exits. A run stopped
// by SIGINT or SIGTERM exits with 128 plus the signal number.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	caught := make(chan os.Signal, 1)
	go func() {
		sig := <-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		caught <- sig
		cancel()
	}()

	err := newRootCmd(os.Stdout, os.Stderr, nil).Run(ctx, os.Args)
	signal.Stop(sigCh)

	var sig os.Signal
	select {
	case sig = <-caught:
	default:
	}
	os.Exit(exitCode(os.Stderr, err, sig))
}

// exitCode maps the run outcome onto the process exit status.
func exitCode(w io.Writer, err error, sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(w, err)
	return 1
}

// newRootCmd builds the command. Extra engine options are appended to the
// defaults, so tests can swap collaborators.
func newRootCmd(stdout, stderr io.Writer, extra []engine.Option) *cli.Command {
	var verbosity int
	return &cli.Command{
		Name:                   name,
		Version:                fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Usage:                  "Collect host diagnostics into a compressed report",
		UseShortOptionHandling: true,
		Writer:                 stdout,
		ErrWriter:              stderr,
		Description: `Runs every applicable collector plugin against this host, copies the
configuration and logs they name into a private staging tree, captures the
output of diagnostic commands, redacts secrets and packages the result into a
tar.xz (or tar.bz2) archive with an MD5 sidecar.

# Examples

List plugins and their options:
  hostbundle -l

Run two plugins without prompting:
  hostbundle --batch --only general,kernel

Keep the staging tree instead of packaging it:
  hostbundle --batch --build --tmp-dir /var/tmp

Set a plugin option and push the archive to a registry:
  hostbundle --batch -k general.syslogsize=50 --upload oci://ghcr.io/acme/reports`,
		Flags: rootFlags(&verbosity),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() > 0 {
				return fmt.Errorf("unexpected arguments: %v", cmd.Args().Slice())
			}
			cfg := configFromCmd(cmd, verbosity)
			setupLogging(cfg)

			opts := []engine.Option{
				engine.WithInterviewer(interview.NewConsole()),
				engine.WithOutput(stdout, stderr),
			}
			_, err := engine.New(cfg, append(opts, extra...)...).Run(ctx)
			return err
		},
	}
}

func rootFlags(verbosity *int) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "list-plugins",
			Aliases: []string{"l", "list"},
			Usage:   "list plugins, their state and options, then exit",
		},
		&cli.StringSliceFlag{
			Name:    "only",
			Aliases: []string{"o"},
			Usage:   "run only these plugins (comma separated, repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "enable",
			Aliases: []string{"e"},
			Usage:   "force-enable these plugins",
		},
		&cli.StringSliceFlag{
			Name:    "skip",
			Aliases: []string{"n"},
			Usage:   "skip these plugins",
		},
		&cli.StringSliceFlag{
			Name:  "k",
			Usage: "set a plugin option as plugin.key[=value]; a bare key turns it on",
		},
		&cli.BoolFlag{
			Name:    "all-options",
			Aliases: []string{"a"},
			Usage:   "turn on every boolean plugin option",
		},
		&cli.BoolFlag{
			Name:  "batch",
			Usage: "never prompt; use defaults for every question",
		},
		&cli.BoolFlag{
			Name:  "build",
			Usage: "keep the staging tree and skip packaging",
		},
		&cli.StringFlag{
			Name:    "tmp-dir",
			Usage:   "base directory for staging and the archive",
			Value:   defaults.TempDir,
			Sources: cli.EnvVars("HOSTBUNDLE_TMP_DIR"),
		},
		&cli.StringFlag{
			Name:  "config-file",
			Usage: "INI config file (default " + defaults.ConfigFile + ", which may be absent)",
		},
		&cli.StringFlag{
			Name:  "ticket-number",
			Usage: "support case number recorded in the archive name",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "submitter name recorded in the archive name",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "raise log verbosity (repeatable)",
			Config:  cli.BoolConfig{Count: verbosity},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "treat plugin hook failures as fatal",
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "archive compression: auto, xz or bzip2",
			Value: config.CompressionAuto,
		},
		&cli.DurationFlag{
			Name:  "command-timeout",
			Usage: "time limit for each captured command",
			Value: defaults.CommandTimeout,
		},
		&cli.DurationFlag{
			Name:  "plugin-timeout",
			Usage: "wall-clock limit per plugin collection (0 disables)",
			Value: defaults.PluginTimeout,
		},
		&cli.BoolFlag{
			Name:  "no-report",
			Usage: "skip the HTML and XML reports",
		},
		&cli.IntFlag{
			Name:  "log-size",
			Usage: "cap every size-limited log harvest at this many MB (0 keeps plugin limits)",
		},
		&cli.BoolFlag{
			Name:  "all-logs",
			Usage: "collect logs without size limits",
		},
		&cli.StringFlag{
			Name:    "upload",
			Usage:   "push the archive to an OCI registry, e.g. oci://ghcr.io/acme/reports:tag",
			Sources: cli.EnvVars("HOSTBUNDLE_UPLOAD"),
		},
		&cli.BoolFlag{
			Name:  "upload-plain-http",
			Usage: "use plain HTTP for the registry",
		},
		&cli.BoolFlag{
			Name:  "upload-insecure-tls",
			Usage: "skip TLS verification for the registry",
		},
	}
}

// configFromCmd turns parsed flags into the immutable run config.
func configFromCmd(cmd *cli.Command, verbosity int) *config.Config {
	return config.NewConfig(
		config.WithListPlugins(cmd.Bool("list-plugins")),
		config.WithOnly(config.SplitLists(cmd.StringSlice("only"))...),
		config.WithEnable(config.SplitLists(cmd.StringSlice("enable"))...),
		config.WithSkip(config.SplitLists(cmd.StringSlice("skip"))...),
		config.WithOptions(cmd.StringSlice("k")...),
		config.WithAllOptions(cmd.Bool("all-options")),
		config.WithBatch(cmd.Bool("batch")),
		config.WithBuild(cmd.Bool("build")),
		config.WithTmpDir(cmd.String("tmp-dir")),
		config.WithConfigFile(cmd.String("config-file")),
		config.WithTicket(cmd.String("ticket-number")),
		config.WithName(cmd.String("name")),
		config.WithVerbosity(verbosity),
		config.WithDebug(cmd.Bool("debug")),
		config.WithCompression(cmd.String("compression")),
		config.WithCommandTimeout(cmd.Duration("command-timeout")),
		config.WithPluginTimeout(cmd.Duration("plugin-timeout")),
		config.WithNoReport(cmd.Bool("no-report")),
		config.WithLogSize(cmd.Int("log-size")),
		config.WithAllLogs(cmd.Bool("all-logs")),
		config.WithUpload(cmd.String("upload"), cmd.Bool("upload-plain-http"), cmd.Bool("upload-insecure-tls")),
		config.WithVersion(version),
	)
}

// setupLogging installs the stderr JSON logger. LOG_LEVEL wins over -v.
func setupLogging(cfg *config.Config) {
	level := os.Getenv(logging.EnvLogLevel)
	if level == "" {
		level = logging.LevelForVerbosity(cfg.Verbosity())
	}
	logging.SetDefaultStructuredLoggerWithLevel(name, version, level)
	log.SetFlags(0)
	log.SetOutput(logging.NewLogLogger(logging.ParseLogLevel(level), false).Writer())

	slog.Info("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
		"logLevel", level)
}
