package txfs

// begin opens a new transaction: it allocates an id, creates the
// transaction's staging directory, and persists the initial IN_PROGRESS
// record with a plain (non-durable) journal write before returning the
// handle. A crash after this point and before prepare leaves at most an
// IN_PROGRESS journal, which recovery discards.
func (m *Manager) begin() (*Tx, error) {
	id := newTxID()
	logger := m.logger.WithField("tx", id)

	staging := newStagingArea(m.stagingPath(id))
	if err := staging.ensure(); err != nil {
		return nil, newUnderlyingIOError(staging.root, err)
	}

	rec := newRecord(id)
	if err := m.journal.Write(rec, false); err != nil {
		_ = staging.remove()
		return nil, err
	}

	tx := &Tx{
		id:      id,
		mgr:     m,
		guard:   m.guard,
		staging: staging,
		store:   m.journal,
		record:  rec,
		logger:  logger,
		locks:   map[string]*heldLock{},
	}
	return tx, nil
}

// commit runs the transaction's two-phase commit: prepare durably flips
// the journal to PREPARED (the barrier past which recovery rolls forward
// instead of discarding), then execute applies every journaled operation
// to the base directory in recorded order.
func (tx *Tx) commit() error {
	if err := tx.prepare(); err != nil {
		return err
	}
	return tx.execute()
}

func (tx *Tx) prepare() error {
	tx.record.Status = StatusPrepared
	if err := tx.store.Write(tx.record, true); err != nil {
		tx.record.Status = StatusInProgress
		return err
	}
	return nil
}

// execute applies the prepared record's operations to the base directory
// as part of a live commit. A missing staging source here is fatal: once
// PREPARED, the staging artifact backing a WRITE/RENAME/CP must exist, or
// the installation has a bug or was tampered with. Recovery's
// roll-forward of a PREPARED transaction found at startup uses the
// separate, lenient executeLenient instead, since a crash may have
// happened partway through a commit that already consumed some of them.
func (tx *Tx) execute() error {
	for _, op := range tx.record.Operations {
		if err := tx.applyOp(op); err != nil {
			tx.logger.WithField("op", string(op.Kind)).WithField("error", err).
				Error("txfs: commit execute failed; transaction stays PREPARED for recovery to roll forward")
			return err
		}
	}

	tx.record.Status = StatusCommitted
	if err := tx.store.Write(tx.record, false); err != nil {
		return err
	}

	for _, p := range tx.temporaryResources {
		_ = removeAllIgnoreMissing(p)
	}

	_ = tx.staging.remove()
	_ = tx.store.Delete(tx.id)
	tx.mgr.locks.releaseAll(tx.lockSlice())
	return nil
}

func (tx *Tx) applyOp(op Operation) error {
	switch op.Kind {
	case OpWrite:
		return tx.applyWrite(op.Path)
	case OpMkdir:
		return tx.applyMkdir(op.Path)
	case OpRemove:
		return removeAllIgnoreMissing(tx.basePath(op.Path))
	case OpRename:
		return tx.applyRename(op.From, op.To)
	case OpCopy:
		return tx.applyCopy(op.To)
	default:
		return nil
	}
}

func (tx *Tx) applyWrite(rel string) error {
	src := tx.staging.path(rel)
	if !pathExists(src) {
		return newStagingMissingError(tx.id, rel)
	}
	return moveInto(src, tx.basePath(rel))
}

func (tx *Tx) applyMkdir(rel string) error {
	return mkdirAllIgnoreExists(tx.basePath(rel))
}

// applyRename moves staging/<id>/<to> into place, replacing whatever is at
// <B>/<to>, and removes <B>/<from>, mirroring a rename: the staging
// artifact is consumed.
func (tx *Tx) applyRename(fromRel, toRel string) error {
	src := tx.staging.path(toRel)
	if !pathExists(src) {
		return newStagingMissingError(tx.id, toRel)
	}
	dst := tx.basePath(toRel)
	if err := removeAllIgnoreMissing(dst); err != nil {
		return err
	}
	if err := moveInto(src, dst); err != nil {
		return err
	}
	return removeAllIgnoreMissing(tx.basePath(fromRel))
}

// applyCopy copies staging/<id>/<to> into place without consuming it: the
// source of a CP is <to>'s staged artifact, not <from> on base (which may
// itself have moved since this transaction journaled the copy), and
// staging is left intact in case another staged artifact under the same
// subtree still references it during this same execute pass.
func (tx *Tx) applyCopy(toRel string) error {
	src := tx.staging.path(toRel)
	if !pathExists(src) {
		return newStagingMissingError(tx.id, toRel)
	}
	dst := tx.basePath(toRel)
	if err := removeAllIgnoreMissing(dst); err != nil {
		return err
	}
	return copyTree(src, dst)
}

// executeLenient is recovery's roll-forward path for a PREPARED transaction
// found at startup. Unlike execute, it tolerates a missing staging source
// per operation: the crash that left this journal behind may have happened
// partway through a real commit-execute, after some operations already
// consumed their staging artifacts and mutated the base directory. Rather
// than abort and leave the transaction stuck in PREPARED forever, each
// op is applied best-effort and any failure is logged and skipped so the
// rest of the pass still runs.
func (tx *Tx) executeLenient() {
	for _, op := range tx.record.Operations {
		if err := tx.applyOp(op); err != nil {
			tx.logger.WithField("op", string(op.Kind)).WithField("error", err).
				Warn("txfs: recovery: skipping operation during roll-forward")
		}
	}
}

// rollback undoes a transaction that never reached the prepare barrier:
// restore any snapshotted overwrite targets, remove any resources this
// transaction tracked in temporaryResources, release its locks, and
// discard its staging area and journal record.
func (tx *Tx) rollback() {
	for rel, snapPath := range tx.record.Snapshots {
		dst := tx.basePath(rel)
		_ = removeAllIgnoreMissing(dst)
		if err := moveInto(snapPath, dst); err != nil {
			tx.logger.WithField("path", rel).WithField("error", err).
				Warn("txfs: rollback: failed to restore snapshot")
		}
	}

	for _, p := range tx.temporaryResources {
		_ = removeAllIgnoreMissing(p)
	}

	tx.mgr.locks.releaseAll(tx.lockSlice())
	_ = tx.staging.remove()

	tx.record.Status = StatusRolledBack
	_ = tx.store.Write(tx.record, false)
	_ = tx.store.Delete(tx.id)
}

func (tx *Tx) lockSlice() []*heldLock {
	out := make([]*heldLock, 0, len(tx.locks))
	for _, hl := range tx.locks {
		out = append(out, hl)
	}
	return out
}

// recover scans every journal record left behind at startup (by a prior
// process that crashed, was killed, or exited without running commit or
// rollback to completion) and reconciles each one according to its
// status: IN_PROGRESS records never reached the prepare barrier and are
// discarded; PREPARED records are rolled forward leniently, skipping any
// operation whose staging source a prior crash already consumed; COMMITTED
// and ROLLED_BACK records are terminal and only need their
// staging/journal remnants garbage collected.
func (m *Manager) recover() {
	ids, err := m.journal.List()
	if err != nil {
		m.logger.WithField("error", err).Warn("txfs: recovery: failed to list journal")
		return
	}

	for _, id := range ids {
		rec, ok, err := m.journal.Read(id)
		if err != nil {
			m.logger.WithField("tx", id).WithField("error", err).Warn("txfs: recovery: failed to read journal")
			continue
		}
		if !ok {
			_ = m.journal.Delete(id)
			continue
		}
		m.recoverOne(rec)
	}
}

func (m *Manager) recoverOne(rec *Record) {
	logger := m.logger.WithField("tx", rec.ID).WithField("status", string(rec.Status))
	staging := newStagingArea(m.stagingPath(rec.ID))

	switch rec.Status {
	case StatusInProgress:
		logger.Info("txfs: recovery: discarding in-progress transaction")
		_ = staging.remove()
		_ = m.journal.Delete(rec.ID)

	case StatusPrepared:
		logger.Info("txfs: recovery: rolling forward prepared transaction")
		tx := &Tx{
			id:      rec.ID,
			mgr:     m,
			guard:   m.guard,
			staging: staging,
			store:   m.journal,
			record:  rec,
			logger:  logger,
			locks:   map[string]*heldLock{},
		}
		tx.executeLenient()
		_ = staging.remove()
		_ = m.journal.Delete(rec.ID)

	case StatusCommitted, StatusRolledBack:
		logger.Info("txfs: recovery: garbage collecting terminal transaction")
		_ = staging.remove()
		_ = m.journal.Delete(rec.ID)

	default:
		logger.Warn("txfs: recovery: unknown status, leaving journal in place")
	}
}
