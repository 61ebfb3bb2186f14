//go:build unix

package main

import (
	"os"
	"syscall"
)

var operatorSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2}

func signalActionFor(sig os.Signal) signalAction {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return actionStop
	case syscall.SIGUSR1:
		return actionRetryFailed
	case syscall.SIGUSR2:
		return actionDumpStatus
	}
	return actionNone
}
