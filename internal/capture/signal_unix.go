//go:build !windows

package capture

import (
	"os"
	"syscall"
)

// processTerminateSignal returns the signal used to request graceful
// shutdown of a capture subprocess.
func processTerminateSignal() os.Signal {
	return syscall.SIGTERM
}
