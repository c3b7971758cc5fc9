package txfs

import "github.com/google/uuid"

// newTxID generates a fresh 128-bit transaction id, textually encoded in
// the standard UUID form (hex digits and dashes only, safe as a filename
// segment).
func newTxID() string {
	return uuid.New().String()
}
