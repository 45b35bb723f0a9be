//go:build !unix

package main

import "os"

// No lifecycle signals outside unix; the process stays in the foreground.
var (
	backgroundSignal os.Signal
	foregroundSignal os.Signal
)

func notifyLifecycle(chan<- os.Signal) {}
