//go:build !unix

package txfs

import (
	"os"
	"time"
)

// flockWithDeadline on non-unix platforms falls back to the in-process
// gate alone (already held by the caller before this runs); there is no
// portable advisory file lock here, so cross-process correctness on these
// platforms is not provided. This mirrors the teacher's practice of
// isolating POSIX-only syscalls behind a build tag and giving other
// platforms a reduced-functionality fallback (see stat_windows.go).
func flockWithDeadline(f *os.File, exclusive bool, deadline time.Time) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
