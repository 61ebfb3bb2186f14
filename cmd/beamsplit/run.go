package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/beamsplit/internal/config"
	"github.com/bamsammich/beamsplit/internal/copytool"
	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/event"
	"github.com/bamsammich/beamsplit/internal/mount"
	"github.com/bamsammich/beamsplit/internal/snapshot"
	"github.com/bamsammich/beamsplit/internal/stats"
	"github.com/bamsammich/beamsplit/internal/ui"
)

// runFlags override run settings when explicitly set.
type runFlags struct {
	statusAddr    string
	copyTool      string
	logDir        string
	severity      string
	maxJobs       int
	maxRetries    int
	bwLimit       float64
	launchRate    float64
	awaitOperator time.Duration
	noCheckpoint  bool
	noProgress    bool
}

func (f *runFlags) register(fl *pflag.FlagSet) {
	fl.IntVarP(&f.maxJobs, "jobs", "j", config.DefaultMaxConcurrentJobs, "maximum concurrent copy processes")
	fl.IntVar(&f.maxRetries, "max-retries", config.DefaultMaxRetries, "automatic retries per failed chunk")
	fl.Float64Var(&f.bwLimit, "bwlimit", 0, "total bandwidth limit in Mbps shared by running copies (0 = unlimited)")
	fl.Float64Var(&f.launchRate, "launch-rate", 0, "maximum copy launches per second (0 = unlimited)")
	fl.StringVar(&f.statusAddr, "status-addr", "", "serve status and operator actions on ADDR (e.g. 127.0.0.1:7780)")
	fl.StringVar(&f.copyTool, "copy-tool", config.DefaultCopyTool, "copy program to run for each chunk")
	fl.StringVar(&f.logDir, "log-dir", "", "directory for per-chunk copy logs (default: temp dir)")
	fl.StringVar(&f.severity, "mismatch-severity", "", "how mismatches are treated: success, warning or error")
	fl.DurationVar(&f.awaitOperator, "await-operator", 0, "keep running this long for operator retries when chunks fail")
	fl.BoolVar(&f.noCheckpoint, "no-checkpoint", false, "do not record or resume completed chunks")
	fl.BoolVar(&f.noProgress, "no-progress", false, "disable progress display")
}

// apply copies explicitly set flags over s.
func (f *runFlags) apply(fl *pflag.FlagSet, s *config.Settings) {
	if fl.Changed("jobs") {
		s.MaxConcurrentJobs = f.maxJobs
	}
	if fl.Changed("max-retries") {
		s.MaxRetries = f.maxRetries
	}
	if fl.Changed("bwlimit") {
		s.BandwidthLimitMbps = f.bwLimit
	}
	if fl.Changed("launch-rate") {
		s.LaunchesPerSecond = f.launchRate
	}
	if fl.Changed("status-addr") {
		s.StatusAddr = f.statusAddr
	}
	if fl.Changed("copy-tool") {
		s.CopyTool = f.copyTool
	}
	if fl.Changed("log-dir") {
		s.LogDir = f.logDir
	}
	if fl.Changed("mismatch-severity") {
		s.MismatchSeverity = f.severity
	}
	if fl.Changed("await-operator") {
		s.AwaitOperator = f.awaitOperator
	}
	if f.noCheckpoint {
		s.Checkpoint = false
	}
}

func newRunCmd(gf *globalFlags) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [profile...]",
		Short: "Copy every enabled profile, or the named ones in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadConfig(gf)
			if err != nil {
				return err
			}
			rf.apply(cmd.Flags(), &settings)
			if err := settings.Validate(); err != nil {
				return usageError(err)
			}
			profiles, err := cfg.Select(args)
			if err != nil {
				return usageError(err)
			}
			if len(profiles) == 0 {
				return usageError(config.ErrNoProfiles)
			}
			return runProfiles(cmd.Context(), gf, rf, settings, profiles)
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

// newRunner wires the copy tool, snapshot and mount helpers into a Runner.
func newRunner(s config.Settings, logger *slog.Logger, events chan<- event.Event, collector *stats.Collector) (*engine.Runner, error) {
	severity, err := engine.ParseSeverity(s.MismatchSeverity)
	if err != nil {
		return nil, err
	}
	copier := &copytool.Robocopy{
		Logger:    logger.With("component", "copytool"),
		Program:   s.CopyTool,
		LogDir:    s.LogDir,
		ExtraArgs: s.CopyArgs,
	}
	orch := engine.NewOrchestrator(copier, engine.Config{
		Events:             events,
		Stats:              collector,
		Logger:             logger,
		Policy:             engine.RetryPolicy{Retries: s.CopyRetries, WaitSeconds: s.CopyRetryWait},
		MaxConcurrentJobs:  s.MaxConcurrentJobs,
		MaxRetries:         s.MaxRetries,
		BandwidthLimitMbps: s.BandwidthLimitMbps,
		LaunchesPerSecond:  s.LaunchesPerSecond,
		MismatchSeverity:   severity,
		AwaitOperator:      s.AwaitOperator,
	})
	runner := &engine.Runner{
		Orchestrator: orch,
		Lister:       copier,
		Logger:       logger,
		Interval:     s.TickInterval,
		Checkpoint:   s.Checkpoint,
	}
	if len(s.Snapshot.Create) > 0 {
		runner.Snapshots = &snapshot.Command{
			Logger: logger.With("component", "snapshot"),
			Create: s.Snapshot.Create,
			Delete: s.Snapshot.Delete,
		}
	}
	if len(s.Mount.Mount) > 0 {
		runner.Mounts = mount.NewPool(
			mount.Command{MountArgs: s.Mount.Mount, UnmountArgs: s.Mount.Unmount},
			s.Mount.Points,
			logger.With("component", "mount"),
		)
	}
	return runner, nil
}

//nolint:gocyclo,revive // cognitive-complexity: wires runner, presenter, status server and signals
func runProfiles(ctx context.Context, gf *globalFlags, rf runFlags, s config.Settings, profiles []config.Profile) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := slog.Default()
	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	runner, err := newRunner(s, logger, events, collector)
	if err != nil {
		return usageError(err)
	}
	orch := runner.Orchestrator

	// When --log is set, tee events through a logging goroutine
	// that writes structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if gf.logFile != "" {
		presenterEvents = teeEvents(events)
	}

	isTTY := ui.IsTTY(os.Stderr.Fd())
	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		IsTTY:      isTTY,
		Quiet:      gf.quiet,
		Verbose:    gf.verbose,
		NoProgress: rf.noProgress,
		Stats:      collector,
		Status:     orch.Snapshot,
		Workers:    s.MaxConcurrentJobs,
	})

	var g errgroup.Group
	g.Go(func() error {
		return presenter.Run(presenterEvents)
	})

	var srv *http.Server
	if s.StatusAddr != "" {
		ln, err := net.Listen("tcp", s.StatusAddr)
		if err != nil {
			close(events)
			_ = g.Wait() //nolint:errcheck // presenter error is non-fatal
			return usageError(fmt.Errorf("status server: %w", err))
		}
		srv = &http.Server{
			Handler:           ui.NewStatusMux(orch, logger.With("component", "status")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("status server listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("status server failed", "error", err)
			}
			return nil
		})
	}

	stopSignals := watchSignals(ctx, orch, cancel, logger)

	result := runner.Run(ctx, profiles)

	stopSignals()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx) //nolint:errcheck // shutdown on exit is best-effort
		done()
	}
	close(events)
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
	}

	if !gf.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
		fmt.Fprintln(os.Stderr, ui.ResultSummary(result))
	}

	if err := result.Err(); err != nil {
		slog.Error("run failed", "error", err)
		return &exitError{code: 1}
	}
	return nil
}

// teeEvents logs every event as a beamsplit.event record and forwards it.
func teeEvents(events <-chan event.Event) <-chan event.Event {
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("profile", ev.Profile),
				slog.String("path", ev.Path),
				slog.Int64("chunk", ev.ChunkID),
				slog.Int64("size", ev.Size),
				slog.Int("exit_code", ev.ExitCode),
			}
			if ev.Message != "" {
				attrs = append(attrs, slog.String("message", ev.Message))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelDebug, "beamsplit.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}
