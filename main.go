package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"codepatch/internal/config"
	"codepatch/internal/layout"
	"codepatch/internal/logging"
	"codepatch/internal/monitor"
	"codepatch/internal/supervisor"
)

type mode int

const (
	modeLaunch mode = iota
	modePatchNow
	modeMonitor
)

// livenessFD is where the monitor child finds the read end of the pipe.
const livenessFD = 3

// parseMode picks the entry mode. Only a lone --patch-now or --monitor is
// ours; any other argument vector belongs to the wrapped CLI untouched.
func parseMode(args []string) mode {
	if len(args) != 2 {
		return modeLaunch
	}

	fs := pflag.NewFlagSet("code", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	patchNow := fs.Bool("patch-now", false, "Patch the CLI, server and extensions, then run the CLI once")
	monitorChild := fs.Bool(supervisor.MonitorFlag[2:], false, "Run the extensions monitor")
	_ = fs.MarkHidden(supervisor.MonitorFlag[2:])

	if err := fs.Parse(args[1:]); err != nil || fs.NArg() > 0 {
		return modeLaunch
	}

	switch {
	case *patchNow && args[1] == "--patch-now":
		return modePatchNow
	case *monitorChild && args[1] == supervisor.MonitorFlag:
		return modeMonitor
	default:
		return modeLaunch
	}
}

func run(args []string) int {
	l, err := layout.Resolve()
	if err != nil {
		logging.New(os.Stderr, logging.Config{}).Error("cannot resolve layout", "err", err)
		return supervisor.ExitFailure
	}

	settings := config.Load()
	m := parseMode(args)

	// The one-shot run reports to the terminal of whoever invoked it.
	cfg := logging.Config{Path: l.LogFile, Debug: settings.Debug}
	if m == modePatchNow {
		cfg.Path = ""
	}

	log, err := logging.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", cfg.Path, err)
		return supervisor.ExitFailure
	}
	defer log.Close()

	sup := supervisor.New(l, settings, log)

	switch m {
	case modePatchNow:
		return sup.OneShot(context.Background())

	case modeMonitor:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		live := monitor.NewLiveness(os.NewFile(livenessFD, "liveness"))
		defer live.Close()

		return sup.Monitor(ctx, live)

	default:
		return sup.Launch(args)
	}
}

func main() {
	os.Exit(run(os.Args))
}
