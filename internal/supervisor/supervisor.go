// Package supervisor drives the three entry modes of the launcher: the
// one-shot patch run, the normal launch that becomes the wrapped CLI, and
// the monitor child.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"codepatch/internal/config"
	"codepatch/internal/elfedit"
	"codepatch/internal/layout"
	"codepatch/internal/logging"
	"codepatch/internal/manifest"
	"codepatch/internal/model"
	"codepatch/internal/monitor"
	"codepatch/internal/patch"
	"codepatch/internal/report"
)

// ExitFailure is the exit status of every setup error.
const ExitFailure = 1

// MonitorFlag is the hidden argument that starts the monitor child.
const MonitorFlag = "--monitor"

// Supervisor holds what every mode needs. It is built once in main.
type Supervisor struct {
	layout   *layout.Layout
	settings config.Settings
	log      *logging.Logger
	editor   elfedit.Editor
	self     string
	stdout   io.Writer
	stderr   io.Writer
	styled   bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOutput sets where the wrapped CLI output and the one-shot summary go.
// styled selects a colored summary.
func WithOutput(stdout, stderr io.Writer, styled bool) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
		s.styled = styled
	}
}

// New creates a Supervisor for the bundle described by l.
func New(l *layout.Layout, settings config.Settings, log *logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		layout:   l,
		settings: settings,
		log:      log,
		editor:   elfedit.New(settings.Patchelf),
		self:     l.Dir + "/" + l.Name,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		styled:   report.Styled(os.Stderr.Fd()),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Supervisor) patcher(force bool) *patch.Patcher {
	return patch.New(s.layout, s.editor, patch.WithLogger(s.log), patch.WithForce(force))
}

// patchBundle patches the CLI, the server tree and every extension, in
// that order, stopping at the first fatal error.
func (s *Supervisor) patchBundle(p *patch.Patcher) (model.Report, error) {
	var rep model.Report

	stats, err := p.PatchFile(s.layout.CLI)
	rep.Add(model.Target{Kind: "cli", Path: s.layout.CLI, Stats: stats, Err: err})
	if err != nil {
		return rep, fmt.Errorf("patch cli: %w", err)
	}

	stats, err = p.PatchTree(s.layout.ServerDir)
	rep.Add(model.Target{Kind: "server", Path: s.layout.ServerDir, Stats: stats, Err: err})
	if err != nil {
		return rep, fmt.Errorf("patch server: %w", err)
	}

	targets, err := manifest.PatchExtensions(p, s.layout.Extensions, s.layout.Manifest, s.log)
	if err != nil {
		return rep, fmt.Errorf("patch extensions: %w", err)
	}
	for _, t := range targets {
		rep.Add(t)
	}

	return rep, nil
}

func (s *Supervisor) touchSentinel() error {
	f, err := os.OpenFile(s.settings.Sentinel, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// prepare runs every step shared by the one-shot and normal modes.
func (s *Supervisor) prepare(force bool) (model.Report, bool) {
	rep, err := s.patchBundle(s.patcher(force))
	if err != nil {
		s.log.Error("patch failed", "err", err)
		return rep, false
	}

	if err := s.touchSentinel(); err != nil {
		s.log.Error("cannot create sentinel", "path", s.settings.Sentinel, "err", err)
		return rep, false
	}

	return rep, true
}

// OneShot re-verifies every target ignoring markers, then runs the wrapped
// CLI with --version and waits for it. A failing CLI is logged; the run
// still succeeds.
func (s *Supervisor) OneShot(ctx context.Context) int {
	rep, ok := s.prepare(true)
	if !ok {
		return ExitFailure
	}

	cmd := exec.CommandContext(ctx, s.layout.CLI, "--version")
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			s.log.Error("Failure: cli failed with exit code " + strconv.Itoa(code))
		} else {
			s.log.Error("Failure: cli exited with " + exitErr.ProcessState.String())
		}
	case err != nil:
		s.log.Error("Failure: cannot run cli", "path", s.layout.CLI, "err", err)
	}

	s.log.Info("Success")
	fmt.Fprint(s.stderr, report.Render(rep, s.styled))
	return 0
}

// Launch patches the bundle, starts the monitor child and replaces the
// current process with the wrapped CLI. It returns only if that fails, or
// once the CLI exits on platforms that cannot replace the process image.
func (s *Supervisor) Launch(args []string) int {
	for i, arg := range args {
		s.log.Info(fmt.Sprintf("ARG[%d] = %s", i, arg))
	}

	if _, ok := s.prepare(false); !ok {
		return ExitFailure
	}

	keepalive, err := s.startMonitor()
	if err != nil {
		s.log.Error("cannot start monitor", "err", err)
		return ExitFailure
	}
	defer keepalive.Close()

	code, err := become(s.layout.CLI, args, os.Environ())
	if err != nil {
		s.log.Error("cannot exec cli", "path", s.layout.CLI, "err", err)
	}
	return code
}

// startMonitor starts the monitor child with the read end of the liveness
// pipe as fd 3. The returned write end stays open across the exec into the
// CLI; the monitor sees end of file once the CLI is gone.
func (s *Supervisor) startMonitor() (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cmd := exec.Command(s.self, MonitorFlag)
	cmd.ExtraFiles = []*os.File{r}
	cmd.SysProcAttr = detached()

	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, err
	}
	s.log.Info("monitor started", "child", cmd.Process.Pid)
	cmd.Process.Release()

	if err := inherit(w); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Monitor runs the monitor child until the launcher's liveness pipe closes.
func (s *Supervisor) Monitor(ctx context.Context, live *monitor.Liveness) int {
	p := s.patcher(false)

	rescan := func() {
		targets, err := manifest.PatchExtensions(p, s.layout.Extensions, s.layout.Manifest, s.log)
		if err != nil {
			s.log.Error("rescan failed", "path", s.layout.Manifest, "err", err)
			return
		}
		s.log.Info("extensions rescanned", "count", len(targets))
	}

	m := monitor.New(s.layout.Manifest, rescan,
		monitor.WithDebounce(s.settings.Debounce),
		monitor.WithLogger(s.log))

	if err := m.Run(ctx, live); err != nil {
		s.log.Error("monitor failed", "err", err)
		return ExitFailure
	}
	return 0
}
