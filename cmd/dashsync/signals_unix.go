//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// SIGUSR1 sends the process to the background, SIGUSR2 brings it back.
var (
	backgroundSignal os.Signal = syscall.SIGUSR1
	foregroundSignal os.Signal = syscall.SIGUSR2
)

func notifyLifecycle(c chan<- os.Signal) {
	signal.Notify(c, backgroundSignal, foregroundSignal)
}
