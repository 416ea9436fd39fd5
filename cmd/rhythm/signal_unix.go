//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals start a graceful shutdown: stop learning, drain requests, close the store.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
