package txfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
)

// Status is the lifecycle state of a transaction's journal record.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusPrepared   Status = "PREPARED"
	StatusCommitted  Status = "COMMITTED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// OpKind tags the five operation records a transaction can journal.
type OpKind string

const (
	OpWrite  OpKind = "WRITE"
	OpMkdir  OpKind = "MKDIR"
	OpRemove OpKind = "RM"
	OpRename OpKind = "RENAME"
	OpCopy   OpKind = "CP"
)

// Operation is one journaled intent. Only the fields relevant to Kind are
// populated: Path for WRITE/MKDIR/RM, From/To for RENAME/CP.
type Operation struct {
	Kind OpKind `json:"kind"`
	Path string `json:"path,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Record is the durable, self-delimited representation of a transaction:
// its status, the ordered list of operations it intends to apply, and the
// map of overwrite-target snapshots that make rollback possible.
type Record struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Operations []Operation       `json:"operations"`
	Snapshots  map[string]string `json:"snapshots"`
}

func newRecord(id string) *Record {
	return &Record{
		ID:        id,
		Status:    StatusInProgress,
		Snapshots: map[string]string{},
	}
}

// hasOp reports whether an operation of the given kind targeting path
// already appears in the record (WRITE/MKDIR/RM use Path; callers pass the
// same value used when the op was journaled).
func (r *Record) hasOp(kind OpKind, path string) bool {
	for _, op := range r.Operations {
		if op.Kind == kind && op.Path == path {
			return true
		}
	}
	return false
}

// journalStore is the durable read/write/list/delete layer for journal
// records, keyed by transaction id. It never blocks recovery on a single
// corrupt record: reads of unparsable files return (nil, false, nil) after
// logging a warning.
type journalStore struct {
	dir    string
	logger *log.Entry
}

func newJournalStore(dir string, logger *log.Entry) *journalStore {
	return &journalStore{dir: dir, logger: logger}
}

func (s *journalStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Write persists rec. When durable is true the write goes through a
// temp-file-then-fsync-then-rename sequence so that, once Write returns,
// the record is guaranteed to survive a crash; durable writes additionally
// fsync the containing directory so the rename itself is durable. When
// durable is false a plain write suffices — this path is used for the
// initial IN_PROGRESS record, for the IN_PROGRESS updates made as
// operations and snapshots are journaled, and for terminal status
// bookkeeping; only the PREPARED write is durable.
func (s *journalStore) Write(rec *Record, durable bool) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return newUnderlyingIOError(s.dir, err)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "txfs: journal: failed to encode record")
	}

	write := func() error {
		if !durable {
			return os.WriteFile(s.path(rec.ID), b, 0o644)
		}
		return writeFileDurable(s.path(rec.ID), b)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	err = backoff.Retry(func() error {
		werr := write()
		if werr == nil {
			return nil
		}
		if isTransientPermissionError(werr) {
			return werr
		}
		// Non-transient: stop retrying and surface immediately.
		return backoff.Permanent(werr)
	}, bo)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return newUnderlyingIOError(s.path(rec.ID), perm.Err)
		}
		return newUnderlyingIOError(s.path(rec.ID), err)
	}
	return nil
}

// Read loads the record for id. A missing or unparsable file is reported as
// (nil, false, nil): the caller (recovery, primarily) is expected to treat
// "absent" and "corrupt" identically rather than fail outright.
func (s *journalStore) Read(id string) (*Record, bool, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, newUnderlyingIOError(s.path(id), err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		s.logger.WithField("id", id).WithField("error", err).Warn("txfs: journal: ignoring unparsable record")
		return nil, false, nil
	}
	return &rec, true, nil
}

// List returns the transaction ids with a journal file on disk.
func (s *journalStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, newUnderlyingIOError(s.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Delete removes the journal file for id. Absence is not an error.
func (s *journalStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newUnderlyingIOError(s.path(id), err)
	}
	return nil
}

func writeFileDurable(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if dfd, err := os.Open(dir); err == nil {
		_ = dfd.Sync()
		_ = dfd.Close()
	}
	return nil
}

// isTransientPermissionError reports whether err looks like a transient
// host-filesystem permission hiccup worth retrying, as opposed to a durable
// permission denial.
func isTransientPermissionError(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
