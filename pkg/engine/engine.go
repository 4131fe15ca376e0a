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

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/NVIDIA/hostbundle/pkg/collect"
	"github.com/NVIDIA/hostbundle/pkg/config"
	cnserrors "github.com/NVIDIA/hostbundle/pkg/errors"
	"github.com/NVIDIA/hostbundle/pkg/interview"
	"github.com/NVIDIA/hostbundle/pkg/logging"
	"github.com/NVIDIA/hostbundle/pkg/packager"
	"github.com/NVIDIA/hostbundle/pkg/plugin"
	"github.com/NVIDIA/hostbundle/pkg/policy"
	"github.com/NVIDIA/hostbundle/pkg/sink"
	"github.com/NVIDIA/hostbundle/pkg/staging"
)

// LogFile receives a JSON copy of the log records once staging exists.
const LogFile = "engine.log"

const (
	phaseDiagnose = "diagnose"
	phaseSetup    = "setup"
	phaseCollect  = "collect"
	phaseAnalyze  = "analyze"
	phasePostproc = "postproc"
	phaseGate     = "gate"
	phaseLoad     = "load"
)

// Result summarizes a run.
type Result struct {
	RunID string

	Loaded  []string
	Skipped []Skipped

	// Staging is the staging root path; it no longer exists after a
	// successful packaged run.
	Staging string

	Archive string
	Sidecar string
	MD5     string

	// Shipped lists where sinks delivered the archive.
	Shipped []string

	Errors         int
	TimedOut       int
	PartialPlugins []string

	// Listed is set when the run only listed plugins.
	Listed bool
}

// Skipped is a plugin left out of the run.
type Skipped struct {
	Name   string
	Reason string
}

// Engine owns one run: the loaded plugins, the staging root and the
// failures recorded along the way.
type Engine struct {
	cfg       *config.Config
	policy    policy.Policy
	factories map[string]plugin.Factory
	interview interview.Interviewer
	privilege func() error
	sinks     []sink.Sink
	stdout    io.Writer
	stderr    io.Writer
	now       func() time.Time

	stagingOpts  []staging.Option
	packagerOpts []packager.Option

	registry *plugin.Registry
	loaded   []plugin.Plugin
	skipped  []Skipped
	st       *staging.Staging
	failures *failureLog
	metrics  *runMetrics
	runID    string
	started  time.Time
	who      string
	ticket   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the host policy. The default is policy.NewLinux().
func WithPolicy(p policy.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithFactories replaces the globally registered plugins.
func WithFactories(f map[string]plugin.Factory) Option {
	return func(e *Engine) { e.factories = f }
}

// WithInterviewer sets the prompt collaborator. Batch mode always uses
// interview.Batch.
func WithInterviewer(i interview.Interviewer) Option {
	return func(e *Engine) { e.interview = i }
}

// WithPrivilegeCheck replaces the effective-uid check.
func WithPrivilegeCheck(fn func() error) Option {
	return func(e *Engine) { e.privilege = fn }
}

// WithSinks replaces the sinks derived from the config.
func WithSinks(s ...sink.Sink) Option {
	return func(e *Engine) { e.sinks = s }
}

// WithOutput sets where results (stdout) and progress (stderr) go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Engine) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithClock overrides the clock for the run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStagingOptions passes options to staging.Make.
func WithStagingOptions(opts ...staging.Option) Option {
	return func(e *Engine) { e.stagingOpts = append(e.stagingOpts, opts...) }
}

// WithPackagerOptions passes options to packager.New.
func WithPackagerOptions(opts ...packager.Option) Option {
	return func(e *Engine) { e.packagerOpts = append(e.packagerOpts, opts...) }
}

// New returns an Engine for cfg.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		privilege: requireRoot,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		now:       time.Now,
		failures:  &failureLog{},
		metrics:   newRunMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = policy.NewLinux()
	}
	if e.factories == nil {
		e.factories = plugin.GlobalFactories()
	}
	if e.interview == nil || cfg.Batch() {
		e.interview = interview.Batch{}
	}
	return e
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return cnserrors.New(cnserrors.ErrCodePrivilege, "this command must be run with root privileges")
	}
	return nil
}

// Run executes the whole pipeline. Fatal conditions are returned as
// structured errors; everything else is counted in the Result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.started = e.now()
	e.runID = uuid.NewString()

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	file, err := config.LoadFile(e.cfg.ConfigFile(), e.cfg.ConfigRequired())
	if err != nil {
		return nil, err
	}

	if err := e.discover(ctx, file); err != nil {
		return nil, err
	}
	res := e.result()

	if e.cfg.ListPlugins() {
		e.list()
		res.Listed = true
		return res, nil
	}
	if len(e.loaded) == 0 {
		return nil, cnserrors.New(cnserrors.ErrCodeInvalidRequest, "no valid plugins were enabled")
	}
	if err := e.privilege(); err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodePrivilege, "insufficient privileges", err)
	}
	if err := e.ask(); err != nil {
		return nil, err
	}

	st, err := staging.Make(ctx, e.cfg.TmpDir(), e.policy.Hostname(), e.stagingOpts...)
	if err != nil {
		return nil, err
	}
	e.st = st
	res.Staging = st.Root()

	if err := e.collect(ctx); err != nil {
		return e.fail(ctx, res, err)
	}
	e.summarize(res)

	if e.cfg.Build() {
		st.Close()
		fmt.Fprintf(e.stdout, "%s\n", st.Root())
		return res, nil
	}

	pk, err := packager.New(st, e.packagerOptions()...).Package(ctx)
	if err != nil {
		return e.fail(ctx, res, err)
	}
	res.Archive, res.Sidecar, res.MD5 = pk.Archive, pk.Sidecar, pk.MD5
	if err := st.SafeRemove(); err != nil {
		slog.Warn("staging root not removed", "root", st.Root(), "error", err)
		st.Close()
	}

	e.ship(ctx, res)
	e.printResult(res)
	return res, nil
}

// collect runs the plugin phases on the staging root and writes the
// reports. Only fatal conditions are returned.
func (e *Engine) collect(ctx context.Context) error {
	logFile, err := e.st.Create(filepath.Join(e.st.Logs(), LogFile), 0o600)
	if err != nil {
		return err
	}
	restore := logging.Install(logging.WithFile(logging.Console(), logFile, "hostbundle", e.cfg.Version()))
	defer func() {
		restore()
		_ = logFile.Close()
	}()
	defer e.failures.close()
	if err := e.failures.open(e.st); err != nil {
		return err
	}

	slog.Info("run started", "run_id", e.runID, "staging", e.st.Root(), "plugins", len(e.loaded))

	forbidden := collect.NewForbiddenSet()
	for _, p := range e.loaded {
		p.Facade().Bind(e.st,
			collect.WithCommandTimeout(e.cfg.CommandTimeout()),
			collect.WithLogSize(e.cfg.LogSize()),
			collect.WithAllLogs(e.cfg.AllLogs()),
			collect.WithForbiddenSet(forbidden))
	}

	if err := e.diagnose(ctx); err != nil {
		return err
	}
	if err := e.eachPlugin(ctx, phaseSetup, cnserrors.ErrCodeSetup, plugin.Plugin.Setup); err != nil {
		return err
	}
	if err := e.execute(ctx); err != nil {
		return err
	}
	if err := e.eachPlugin(ctx, phaseAnalyze, cnserrors.ErrCodeAnalyze, plugin.Plugin.Analyze); err != nil {
		return err
	}
	if err := e.eachPlugin(ctx, phasePostproc, cnserrors.ErrCodePostproc, plugin.Plugin.Postproc); err != nil {
		return err
	}

	if n, err := collect.FixupLinks(ctx, e.st); err != nil {
		return err
	} else if n > 0 {
		slog.Debug("mirror links relativized", "count", n)
	}

	return e.writeReports()
}

func (e *Engine) diagnose(ctx context.Context) error {
	if err := e.eachPlugin(ctx, phaseDiagnose, cnserrors.ErrCodeDiagnose, plugin.Plugin.Diagnose); err != nil {
		return err
	}

	var findings []string
	for _, p := range e.loaded {
		for _, d := range p.Facade().Diagnoses() {
			findings = append(findings, fmt.Sprintf("%s: %s", p.Name(), d))
		}
	}
	if len(findings) == 0 {
		return nil
	}

	fmt.Fprintln(e.stderr, "One or more plugins have detected a problem in your configuration:")
	for _, f := range findings {
		fmt.Fprintf(e.stderr, "  %s\n", f)
	}
	ok, err := e.interview.Confirm("Do you want to continue anyway?")
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeAborted, "prompt failed", err)
	}
	if !ok {
		return cnserrors.New(cnserrors.ErrCodeAborted, "stopped after diagnose findings")
	}
	return nil
}

// eachPlugin calls hook on every loaded plugin in name order.
func (e *Engine) eachPlugin(ctx context.Context, phase string, code cnserrors.ErrorCode,
	hook func(plugin.Plugin, context.Context) error) error {
	for _, p := range e.loaded {
		if err := ctx.Err(); err != nil {
			return abortErr(err)
		}
		if err := e.isolate(ctx, p.Name(), phase, code, func(ctx context.Context) error {
			return hook(p, ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

var progress = color.New(color.Bold)

func (e *Engine) execute(ctx context.Context) error {
	total := len(e.loaded)
	for i, p := range e.loaded {
		if err := ctx.Err(); err != nil {
			return abortErr(err)
		}
		progress.Fprintf(e.stderr, "Running %d/%d: %s...\n", i+1, total, p.Name()) //nolint:errcheck

		pctx, cancel := ctx, context.CancelFunc(func() {})
		if d := e.cfg.PluginTimeout(); d > 0 {
			pctx, cancel = context.WithTimeout(ctx, d)
		}
		stop := context.AfterFunc(pctx, p.Stop)

		err := e.isolate(pctx, p.Name(), phaseCollect, cnserrors.ErrCodeInternal, func(ctx context.Context) error {
			err := p.Facade().Execute(ctx)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				slog.Warn("plugin time limit reached", "plugin", p.Name(), "dropped", p.Facade().Dropped())
				return nil
			}
			if cnserrors.HasCode(err, cnserrors.ErrCodeAborted) && ctx.Err() != nil {
				return nil
			}
			return err
		})
		stop()
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) packagerOptions() []packager.Option {
	opts := []packager.Option{
		packager.WithSubmitter(e.who, e.ticket),
		packager.WithCompression(e.cfg.Compression()),
	}
	return append(opts, e.packagerOpts...)
}

// ask fills in the submitter name and ticket for the archive name.
func (e *Engine) ask() error {
	e.who, e.ticket = e.cfg.Name(), e.cfg.Ticket()
	if e.who == "" {
		e.who = strings.SplitN(e.policy.Hostname(), ".", 2)[0]
	}
	if e.cfg.Build() {
		return nil
	}
	who, err := e.interview.Ask("Please enter your first initial and last name", e.who)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeAborted, "prompt failed", err)
	}
	ticket, err := e.interview.Ask("Please enter the case number that you are generating this report for", e.ticket)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeAborted, "prompt failed", err)
	}
	e.who, e.ticket = who, ticket
	return nil
}

func (e *Engine) ship(ctx context.Context, res *Result) {
	sinks := e.sinks
	if sinks == nil && e.cfg.Upload() != "" {
		s, err := sink.NewOCI(e.cfg.Upload(),
			sink.WithPlainHTTP(e.cfg.UploadPlainHTTP()),
			sink.WithInsecureTLS(e.cfg.UploadInsecureTLS()),
			sink.WithVersion(e.cfg.Version()))
		if err != nil {
			slog.Error("upload target rejected", "target", e.cfg.Upload(), "error", err)
			res.Errors++
			return
		}
		sinks = []sink.Sink{s}
	}
	for _, s := range sinks {
		where, err := s.Ship(ctx, res.Archive, res.Sidecar)
		if err != nil {
			slog.Error("archive upload failed", "sink", s.Name(), "error", err)
			res.Errors++
			continue
		}
		res.Shipped = append(res.Shipped, where)
	}
}

// fail handles a fatal error after staging exists. An aborted run removes
// the staging root; anything else keeps it for recovery.
func (e *Engine) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	if ctx.Err() != nil || cnserrors.HasCode(err, cnserrors.ErrCodeAborted) {
		if rmErr := e.st.SafeRemove(); rmErr != nil {
			slog.Warn("staging root not removed", "root", e.st.Root(), "error", rmErr)
			e.st.Close()
		}
		if !cnserrors.HasCode(err, cnserrors.ErrCodeAborted) {
			err = abortErr(err)
		}
		return res, err
	}
	e.st.Close()
	fmt.Fprintf(e.stderr, "Collected material is kept in %s\n", e.st.Root())
	return res, err
}

func abortErr(err error) error {
	return cnserrors.Wrap(cnserrors.ErrCodeAborted, "run interrupted", err)
}

func (e *Engine) result() *Result {
	res := &Result{RunID: e.runID, Skipped: e.skipped}
	for _, p := range e.loaded {
		res.Loaded = append(res.Loaded, p.Name())
	}
	return res
}

func (e *Engine) summarize(res *Result) {
	res.Errors = e.failures.count()
	for _, p := range e.loaded {
		b := p.Facade()
		if b.Partial() {
			res.PartialPlugins = append(res.PartialPlugins, p.Name())
		}
		if c := b.Collector(); c != nil {
			for _, rec := range c.Commands() {
				if rec.TimedOut {
					res.TimedOut++
				}
			}
		}
	}
	if res.TimedOut > 0 {
		slog.Warn("commands timed out", "count", res.TimedOut,
			"code", string(cnserrors.ErrCodeCommandTimeout))
	}
}

var emphasis = color.New(color.FgGreen, color.Bold)

func (e *Engine) printResult(res *Result) {
	fmt.Fprintln(e.stdout)
	fmt.Fprintln(e.stdout, "Your report has been generated and saved in:")
	emphasis.Fprintf(e.stdout, "  %s\n", res.Archive) //nolint:errcheck
	fmt.Fprintln(e.stdout)
	fmt.Fprintf(e.stdout, "The md5sum is: %s\n", res.MD5)
	for _, where := range res.Shipped {
		fmt.Fprintf(e.stdout, "Uploaded to: %s\n", where)
	}
	if res.Errors > 0 || res.TimedOut > 0 || len(res.PartialPlugins) > 0 {
		fmt.Fprintf(e.stderr, "%d plugin errors, %d commands timed out, %d partial plugins (see logs/plugin-errors.txt)\n",
			res.Errors, res.TimedOut, len(res.PartialPlugins))
	}
}
