// Package txfs provides ACID transactions over a region of a filesystem
// rooted at a caller-chosen base directory.
//
// A Manager owns a base directory and a metadata root beneath it
// (".tx" by default) containing a journal, a staging area, and a lock
// directory. Callers open transactions through Manager.Run, which begins a
// transaction, invokes the supplied scope with a *Tx handle, and commits or
// rolls back depending on whether the scope returns an error. Committed
// changes survive process crashes; a crash before the transaction reaches
// its prepare barrier leaves the base directory untouched once Manager.
// Initialize has run its recovery pass.
package txfs
