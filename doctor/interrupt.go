package doctor

import (
	"os"

	"voxkey/shutdown"
)

func setupInterruptHandler() {
	sigs := shutdown.Notify()
	go func() {
		<-sigs
		println("\nInterrupted")
		os.Exit(1)
	}()
}
