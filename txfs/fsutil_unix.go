//go:build unix

package txfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isCrossDeviceError(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
