//go:build !unix

package main

import (
	"os"
	"syscall"
)

// Without SIGUSR1/2, operator retries go through the status server.
var operatorSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func signalActionFor(sig os.Signal) signalAction {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return actionStop
	}
	return actionNone
}
