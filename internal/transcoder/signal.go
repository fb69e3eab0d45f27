package transcoder

import (
	"os"
	"syscall"
)

// terminateSignal is the graceful-shutdown signal sent to the child
// transcoder process before the grace window elapses and Stop falls
// back to Kill.
func terminateSignal() os.Signal {
	return syscall.SIGTERM
}
