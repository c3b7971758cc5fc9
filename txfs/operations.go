package txfs

import "syscall"

// Write stages data as the new content of p, journaling a WRITE op the
// first time p is written in this transaction. A later write to the same
// p within the same transaction reuses that journal entry; the staging
// content is simply overwritten, since the single WRITE entry already
// covers whatever is current in staging when commit executes.
func (tx *Tx) Write(p string, data []byte) error {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return err
	}

	exists, _, err := statExistsIsDir(tx.basePath(rel))
	if err != nil {
		return err
	}
	if exists {
		if err := tx.lock(rel, lockExclusive); err != nil {
			return err
		}
	} else {
		if err := tx.lock(parentOf(rel), lockExclusive); err != nil {
			return err
		}
	}

	if err := tx.staging.writeFile(rel, data); err != nil {
		return newUnderlyingIOError(rel, err)
	}

	if tx.record.hasOp(OpWrite, rel) {
		return nil
	}
	return tx.appendOp(Operation{Kind: OpWrite, Path: rel})
}

// Append concatenates data onto p's current content (staging if present,
// otherwise base, otherwise empty) and stages the result, journaling
// exactly as Write does. The journal cannot distinguish an append from a
// plain write after the fact: two transactions racing to append to the
// same path serialize correctly under the exclusive lock, but the result
// is read-committed last-writer-wins, not a concatenation of both — see
// DESIGN.md.
func (tx *Tx) Append(p string, data []byte) error {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return err
	}

	if err := tx.lock(rel, lockExclusive); err != nil {
		return err
	}

	current, err := tx.readCurrent(rel)
	if err != nil && !IsErrorCode(err, ErrCodeSourceMissing) {
		return err
	}

	combined := append(append([]byte{}, current...), data...)
	if err := tx.staging.writeFile(rel, combined); err != nil {
		return newUnderlyingIOError(rel, err)
	}

	if tx.record.hasOp(OpWrite, rel) {
		return nil
	}
	return tx.appendOp(Operation{Kind: OpWrite, Path: rel})
}

// Read returns p's transaction-local content: staging if present,
// otherwise base. It fails with ErrCodeSourceMissing if neither exists,
// regardless of any RM or RENAME-away journaled for p in this transaction
// — a read always sees the staging file if one is there.
func (tx *Tx) Read(p string) ([]byte, error) {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return nil, err
	}
	if err := tx.lock(rel, lockShared); err != nil {
		return nil, err
	}
	return tx.readCurrent(rel)
}

func (tx *Tx) readCurrent(rel string) ([]byte, error) {
	if tx.staging.exists(rel) {
		b, err := tx.staging.readFile(rel)
		if err != nil {
			return nil, newUnderlyingIOError(rel, err)
		}
		return b, nil
	}
	exists, isDir, err := statExistsIsDir(tx.basePath(rel))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewSourceMissingError(rel)
	}
	if isDir {
		return nil, NewIsDirectoryError(rel)
	}
	b, err := readFileAt(tx.basePath(rel))
	if err != nil {
		return nil, newUnderlyingIOError(rel, err)
	}
	return b, nil
}

// Remove journals the deletion of p. It is idempotent within a
// transaction and mutates no on-disk state under the base directory until
// commit executes. If p is a directory and recursive is false, Remove
// fails with ErrCodeIsDirectory rather than silently removing the whole
// tree at commit time, mirroring Mkdir's recursive flag; commit execute
// itself always removes the op's path recursively once admitted, since a
// non-empty directory has no meaningful non-recursive removal on disk.
func (tx *Tx) Remove(p string, recursive bool) error {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return err
	}
	if err := tx.lock(parentOf(rel), lockExclusive); err != nil {
		return err
	}
	if !recursive && tx.existsTxAware(rel) {
		isDir, err := tx.isDirTxAware(rel)
		if err != nil {
			return err
		}
		if isDir {
			return NewIsDirectoryError(rel)
		}
	}
	if tx.record.hasOp(OpRemove, rel) {
		return nil
	}
	return tx.appendOp(Operation{Kind: OpRemove, Path: rel})
}

// Mkdir stages creation of p as a directory, journaling a MKDIR op the
// first time p is created in this transaction.
func (tx *Tx) Mkdir(p string, recursive bool) error {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return err
	}
	if err := tx.lock(parentOf(rel), lockExclusive); err != nil {
		return err
	}
	if err := tx.staging.mkdir(rel, recursive); err != nil {
		return newUnderlyingIOError(rel, err)
	}
	if tx.record.hasOp(OpMkdir, rel) {
		return nil
	}
	return tx.appendOp(Operation{Kind: OpMkdir, Path: rel})
}

// Exists is a pure transaction-aware existence check; it acquires no
// locks.
func (tx *Tx) Exists(p string) (bool, error) {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return false, err
	}
	return tx.existsTxAware(rel), nil
}

// Rename moves old to new within the transaction's view. If new already
// exists (transaction-aware), the original base-directory content of new
// is snapshotted first so rollback can restore it.
func (tx *Tx) Rename(oldp, newp string) error {
	rels, err := tx.guard.resolveMany(oldp, newp)
	if err != nil {
		return err
	}
	oldRel, newRel := rels[0], rels[1]

	if err := tx.lockSorted(parentOf(oldRel), parentOf(newRel)); err != nil {
		return err
	}

	if !tx.existsTxAware(oldRel) {
		return NewSourceMissingError(oldRel)
	}

	if err := tx.snapshotOverwriteTarget(newRel); err != nil {
		return err
	}

	if tx.staging.exists(oldRel) {
		if err := tx.staging.copyWithin(oldRel, newRel); err != nil {
			return newUnderlyingIOError(newRel, err)
		}
	} else {
		if err := tx.staging.copyFromInto(tx.basePath(oldRel), newRel); err != nil {
			return newUnderlyingIOError(newRel, err)
		}
	}

	return tx.appendOp(Operation{Kind: OpRename, From: oldRel, To: newRel})
}

// Copy stages dst as a copy of src, preferring src's staging content if
// present. src is left intact. If src is a directory and recursive is
// false, Copy fails with ErrCodeIsDirectory rather than silently copying
// the whole tree, mirroring Mkdir's recursive flag.
func (tx *Tx) Copy(src, dst string, recursive bool) error {
	rels, err := tx.guard.resolveMany(src, dst)
	if err != nil {
		return err
	}
	srcRel, dstRel := rels[0], rels[1]

	if err := tx.lock(srcRel, lockShared); err != nil {
		return err
	}
	if err := tx.lock(parentOf(dstRel), lockExclusive); err != nil {
		return err
	}

	if !tx.existsTxAware(srcRel) {
		return NewSourceMissingError(srcRel)
	}

	if !recursive {
		isDir, err := tx.isDirTxAware(srcRel)
		if err != nil {
			return err
		}
		if isDir {
			return NewIsDirectoryError(srcRel)
		}
	}

	if err := tx.snapshotOverwriteTarget(dstRel); err != nil {
		return err
	}

	if tx.staging.exists(srcRel) {
		if err := tx.staging.copyWithin(srcRel, dstRel); err != nil {
			return newUnderlyingIOError(dstRel, err)
		}
	} else {
		if err := tx.staging.copyFromInto(tx.basePath(srcRel), dstRel); err != nil {
			return newUnderlyingIOError(dstRel, err)
		}
	}

	return tx.appendOp(Operation{Kind: OpCopy, From: srcRel, To: dstRel})
}

// SnapshotDir records an explicit rollback checkpoint for an existing
// directory, without journaling any operation: a rollback will restore it
// even though the transaction never otherwise modified it through
// journaled operations. This is intentional (see DESIGN.md).
func (tx *Tx) SnapshotDir(p string) error {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return err
	}
	if err := tx.lock(rel, lockShared); err != nil {
		return err
	}

	exists, isDir, err := statExistsIsDir(tx.basePath(rel))
	if err != nil {
		return err
	}
	if !exists {
		return NewSourceMissingError(rel)
	}
	if !isDir {
		return newUnderlyingIOError(rel, syscall.ENOTDIR)
	}

	snap, err := tx.staging.snapshot(tx.basePath(rel), rel)
	if err != nil {
		return newUnderlyingIOError(rel, err)
	}
	tx.record.Snapshots[rel] = snap
	return tx.persist()
}

// snapshotOverwriteTarget backs up rel's current base-directory content
// if rel exists (transaction-aware) and has no snapshot recorded yet.
func (tx *Tx) snapshotOverwriteTarget(rel string) error {
	if !tx.existsTxAware(rel) {
		return nil
	}
	if _, already := tx.record.Snapshots[rel]; already {
		return nil
	}
	exists, _, err := statExistsIsDir(tx.basePath(rel))
	if err != nil {
		return err
	}
	if !exists {
		// Exists only in staging/journal so far (created earlier in this
		// same transaction): there is no pre-transaction base content to
		// protect.
		return nil
	}
	snap, err := tx.staging.snapshot(tx.basePath(rel), rel)
	if err != nil {
		return newUnderlyingIOError(rel, err)
	}
	tx.record.Snapshots[rel] = snap
	return tx.persist()
}
