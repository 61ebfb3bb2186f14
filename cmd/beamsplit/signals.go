package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bamsammich/beamsplit/internal/ui"
)

type signalAction int

const (
	actionNone signalAction = iota
	actionStop
	actionRetryFailed
	actionDumpStatus
)

// watchSignals routes operator signals to o until the returned function is
// called. The first interrupt stops the run gracefully; a second one
// cancels it.
func watchSignals(ctx context.Context, o ui.Operator, cancel context.CancelFunc, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, operatorSignals...)
	done := make(chan struct{})
	go func() {
		handleSignals(ctx, sigs, done, o, cancel, logger)
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func handleSignals(
	ctx context.Context,
	sigs <-chan os.Signal,
	done <-chan struct{},
	o ui.Operator,
	cancel context.CancelFunc,
	logger *slog.Logger,
) {
	stopping := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case sig := <-sigs:
			switch signalActionFor(sig) {
			case actionStop:
				if stopping {
					logger.Warn("second interrupt, cancelling", "signal", sig.String())
					cancel()
					continue
				}
				stopping = true
				logger.Warn("stopping: running copies will be killed", "signal", sig.String())
				o.Stop()
			case actionRetryFailed:
				n := o.RetryAllFailed()
				logger.Info("retrying failed chunks on signal", "signal", sig.String(), "count", n)
			case actionDumpStatus:
				st := o.Snapshot()
				logger.Info(ui.ProgressLine(st),
					"phase", st.Phase.String(),
					"profile", st.Profile,
					"active", len(st.Active),
					"pending", st.Pending,
					"failed", len(st.Failed),
					"skipped", st.Skipped,
				)
			case actionNone:
			}
		}
	}
}
