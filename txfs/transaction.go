package txfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
)

// Tx is a handle to an open transaction. Every method is relative to the
// owning Manager's base directory and confined to it by the Path Guard.
// A Tx is created by Manager.Run and must not be used after the scope
// that received it returns.
type Tx struct {
	id      string
	mgr     *Manager
	guard   *guard
	staging *stagingArea
	store   *journalStore
	record  *Record
	logger  *log.Entry

	locks              map[string]*heldLock
	temporaryResources []string
}

// ID returns the transaction's identifier.
func (tx *Tx) ID() string {
	return tx.id
}

func (tx *Tx) persist() error {
	return tx.store.Write(tx.record, false)
}

func (tx *Tx) appendOp(op Operation) error {
	tx.record.Operations = append(tx.record.Operations, op)
	return tx.persist()
}

// lock acquires a lock of the given kind on resource on behalf of this
// transaction, upgrading a held shared lock to exclusive if necessary, and
// is a no-op if the transaction already holds a sufficient lock. Resources
// are tracked for release at cleanup time (commit or rollback), never
// before: a transaction holds its locks from first acquisition to the end
// of its lifetime.
func (tx *Tx) lock(resource string, kind lockKind) error {
	if existing, ok := tx.locks[resource]; ok {
		if existing.kind == lockExclusive || existing.kind == kind {
			return nil
		}
		if err := tx.mgr.locks.release(existing); err != nil {
			return err
		}
		delete(tx.locks, resource)
	}

	var hl *heldLock
	var tempResource string
	var err error
	if kind == lockExclusive {
		hl, tempResource, err = tx.mgr.locks.acquireExclusive(resource)
	} else {
		hl, tempResource, err = tx.mgr.locks.acquireShared(resource)
	}
	if err != nil {
		return err
	}

	tx.locks[resource] = hl
	if tempResource != "" {
		tx.temporaryResources = append(tx.temporaryResources, tempResource)
	}
	return nil
}

// lockSorted acquires exclusive locks on resources in sorted order, so that
// two operations requiring overlapping multi-resource locks can never
// deadlock against each other.
func (tx *Tx) lockSorted(resources ...string) error {
	sorted := append([]string{}, resources...)
	sort.Strings(sorted)
	seen := map[string]bool{}
	for _, r := range sorted {
		if seen[r] {
			continue
		}
		seen[r] = true
		if err := tx.lock(r, lockExclusive); err != nil {
			return err
		}
	}
	return nil
}

func parentOf(rel string) string {
	if rel == "" {
		return ""
	}
	idx := -1
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	return rel[:idx]
}

// existsTxAware resolves transaction-aware existence for rel: the journal's
// operations list, scanned most-recent-first, overrides the staging tree,
// which overrides the base directory. Scanning most-recent-first (rather
// than stopping at the first matching entry in recorded order) is this
// rewrite's resolution of an open question in the existence algorithm: a
// transaction that removes then re-creates the same path within its own
// scope must see the re-creation, not the removal.
func (tx *Tx) existsTxAware(rel string) bool {
	for i := len(tx.record.Operations) - 1; i >= 0; i-- {
		op := tx.record.Operations[i]
		switch op.Kind {
		case OpRemove:
			if op.Path == rel {
				return false
			}
		case OpRename:
			if op.From == rel {
				return false
			}
			if op.To == rel {
				return true
			}
		case OpWrite:
			if op.Path == rel {
				return true
			}
		case OpCopy:
			if op.To == rel {
				return true
			}
		case OpMkdir:
			if op.Path == rel {
				return true
			}
		}
	}
	if tx.staging.exists(rel) {
		return true
	}
	return pathExists(tx.basePath(rel))
}

// isDirTxAware reports whether rel, resolved transaction-aware (staging
// takes priority over base), names a directory. It assumes rel already
// exists; callers check existsTxAware first.
func (tx *Tx) isDirTxAware(rel string) (bool, error) {
	if tx.staging.exists(rel) {
		info, err := os.Stat(tx.staging.path(rel))
		if err != nil {
			return false, newUnderlyingIOError(rel, err)
		}
		return info.IsDir(), nil
	}
	_, isDir, err := statExistsIsDir(tx.basePath(rel))
	if err != nil {
		return false, err
	}
	return isDir, nil
}

func (tx *Tx) basePath(rel string) string {
	if rel == "" {
		return tx.guard.base
	}
	return filepath.Join(tx.guard.base, rel)
}
