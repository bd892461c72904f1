package jnplugin

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// installSignalCancel calls cancel (cancelling the handler's context)
// when the process receives SIGINT or SIGTERM, so a handler mid-read can
// unwind instead of the executor resorting to SIGKILL after its grace
// period.
func installSignalCancel(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
}
