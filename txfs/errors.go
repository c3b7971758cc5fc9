package txfs

import (
	"fmt"

	"emperror.dev/errors"
)

// ErrCode identifies the kind of failure a txfs operation surfaced, without
// tying callers to a specific wrapped error type.
type ErrCode int

const (
	ErrCodeUnknown ErrCode = iota
	// ErrCodePathOutsideBase is returned when a caller-supplied path
	// normalizes to a location outside the managed base directory.
	ErrCodePathOutsideBase
	// ErrCodeSourceMissing is returned when rename/copy/snapshot is asked
	// to operate on a path that does not exist.
	ErrCodeSourceMissing
	// ErrCodeTargetMissing is returned when an operation expects an
	// existing target and does not find one.
	ErrCodeTargetMissing
	// ErrCodeIsDirectory is returned when a file-only operation is given a
	// directory.
	ErrCodeIsDirectory
	// ErrCodeLockTimeout is returned when lock acquisition does not
	// succeed before the configured timeout elapses.
	ErrCodeLockTimeout
	// ErrCodeJournalCorrupt marks a journal record that could not be
	// parsed; it is logged and treated as absent, never returned to a
	// transaction caller.
	ErrCodeJournalCorrupt
	// ErrCodeStagingMissing marks the fatal, unrecoverable-locally
	// condition where a PREPARED transaction's staging artifact vanished
	// before execute could consume it.
	ErrCodeStagingMissing
	// ErrCodeUnderlyingIO wraps an error surfaced by the host filesystem
	// that doesn't fit one of the more specific codes above.
	ErrCodeUnderlyingIO
)

func (c ErrCode) String() string {
	switch c {
	case ErrCodePathOutsideBase:
		return "path outside base"
	case ErrCodeSourceMissing:
		return "source missing"
	case ErrCodeTargetMissing:
		return "target missing"
	case ErrCodeIsDirectory:
		return "is a directory"
	case ErrCodeLockTimeout:
		return "lock timeout"
	case ErrCodeJournalCorrupt:
		return "journal corrupt"
	case ErrCodeStagingMissing:
		return "staging missing"
	case ErrCodeUnderlyingIO:
		return "underlying io error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every txfs operation that
// fails for a reason a caller might want to branch on. Use IsErrorCode (or
// errors.Is/errors.As via emperror.dev/errors) to inspect it.
type Error struct {
	code     ErrCode
	path     string
	resolved string
	cause    error
}

func (e *Error) Error() string {
	switch {
	case e.path != "" && e.resolved != "":
		return fmt.Sprintf("txfs: %s: %s (resolved: %s)", e.code, e.path, e.resolved)
	case e.path != "":
		return fmt.Sprintf("txfs: %s: %s", e.code, e.path)
	case e.cause != nil:
		return fmt.Sprintf("txfs: %s: %s", e.code, e.cause.Error())
	default:
		return fmt.Sprintf("txfs: %s", e.code)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the ErrCode classifying this error.
func (e *Error) Code() ErrCode {
	return e.code
}

// IsErrorCode reports whether err is, or wraps, a *txfs.Error carrying code.
func IsErrorCode(err error, code ErrCode) bool {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.code == code
	}
	return false
}

// NewPathOutsideBaseError builds the error returned by the Path Guard when
// a caller path resolves (or would resolve) outside the base directory.
func NewPathOutsideBaseError(path, resolved string) error {
	r := resolved
	if r == "" {
		r = "<empty>"
	}
	return errors.WithStack(&Error{
		code:     ErrCodePathOutsideBase,
		path:     path,
		resolved: r,
	})
}

// NewSourceMissingError builds the error returned when an operation's
// source path does not exist, transaction-aware.
func NewSourceMissingError(path string) error {
	return errors.WithStack(&Error{code: ErrCodeSourceMissing, path: path})
}

// NewTargetMissingError builds the error returned when an operation's
// target path is required to already exist and does not.
func NewTargetMissingError(path string) error {
	return errors.WithStack(&Error{code: ErrCodeTargetMissing, path: path})
}

// NewIsDirectoryError builds the error returned when a file-only operation
// is handed a directory.
func NewIsDirectoryError(path string) error {
	return errors.WithStack(&Error{code: ErrCodeIsDirectory, path: path})
}

// NewLockTimeoutError builds the error returned when a lock could not be
// acquired before the configured timeout elapsed.
func NewLockTimeoutError(resource string, timeout string) error {
	return errors.WithStack(&Error{
		code: ErrCodeLockTimeout,
		path: resource,
		cause: fmt.Errorf("timed out after %s waiting for lock on %q", timeout, resource),
	})
}

// newUnderlyingIOError wraps a host-filesystem error that doesn't warrant a
// more specific code.
func newUnderlyingIOError(path string, cause error) error {
	return errors.WithStack(&Error{code: ErrCodeUnderlyingIO, path: path, cause: cause})
}

// newStagingMissingError is fatal: it marks an internal consistency
// violation discovered mid-execute, after the prepare barrier.
func newStagingMissingError(txID, path string) error {
	return errors.WithStack(&Error{
		code: ErrCodeStagingMissing,
		path: path,
		cause: fmt.Errorf("transaction %s: staging artifact missing for %q during commit execute", txID, path),
	})
}
