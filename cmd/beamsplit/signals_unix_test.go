//go:build unix

package main

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalActionFor(t *testing.T) {
	assert.Equal(t, actionStop, signalActionFor(os.Interrupt))
	assert.Equal(t, actionStop, signalActionFor(syscall.SIGTERM))
	assert.Equal(t, actionRetryFailed, signalActionFor(syscall.SIGUSR1))
	assert.Equal(t, actionDumpStatus, signalActionFor(syscall.SIGUSR2))
	assert.Equal(t, actionNone, signalActionFor(syscall.SIGHUP))
}

func TestHandleSignalsOperatorActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := &fakeOperator{}
	sigs := make(chan os.Signal)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		handleSignals(ctx, sigs, done, op, cancel, discardLogger())
		close(finished)
	}()

	sigs <- syscall.SIGUSR1
	sigs <- syscall.SIGUSR2
	sigs <- syscall.SIGHUP
	close(done)
	<-finished

	op.mu.Lock()
	defer op.mu.Unlock()
	assert.Equal(t, 1, op.retries)
	assert.Equal(t, 1, op.snaps)
	assert.Equal(t, 0, op.stops)
	assert.NoError(t, ctx.Err())
}
