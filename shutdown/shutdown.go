// Package shutdown delivers the signals that should stop voxkey.
package shutdown

import (
	"os"
	"os/signal"
)

// Notify returns a channel that receives the first termination signal.
func Notify() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	return ch
}
