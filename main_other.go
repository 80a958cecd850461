//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// Global hotkeys on macOS and Windows must be serviced from the main
// thread, so the app runs on a secondary one.
func main() {
	mainthread.Init(run)
}
