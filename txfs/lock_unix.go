//go:build unix

package txfs

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// flockWithDeadline takes an OS-level advisory lock on f using flock(2),
// polling at a fixed interval (matching the Lock Manager's fixed-interval
// retry contract) until it succeeds or deadline passes.
func flockWithDeadline(f *os.File, exclusive bool, deadline time.Time) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			return newUnderlyingIOError(f.Name(), err)
		}
		if time.Now().After(deadline) {
			return NewLockTimeoutError(f.Name(), deadline.String())
		}
		<-ticker.C
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
