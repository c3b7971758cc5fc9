package txfs

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/apex/log"
)

const (
	defaultMetadataDirName = ".tx"
	defaultLockTimeout     = 10 * time.Second
)

// Manager owns a base directory and the metadata tree (.tx by default)
// that makes transactions against it durable and crash-recoverable. A
// Manager must be Initialized before Run is called.
type Manager struct {
	baseDir  string
	metaName string
	timeout  time.Duration
	logger   *log.Entry

	guard   *guard
	journal *journalStore
	locks   *lockManager

	initOnce sync.Once
	initErr  error
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the apex/log entry used for this Manager's
// diagnostic output. The default logs through log.Log with a
// component=txfs field.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetadataDirName overrides the name of the reserved child directory
// (default ".tx") that holds journals, staging areas, and lockfiles.
func WithMetadataDirName(name string) Option {
	return func(m *Manager) { m.metaName = name }
}

// WithLockTimeout overrides how long a transaction waits to acquire a
// contended path lock before failing with ErrCodeLockTimeout (default 10s).
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// NewManager constructs a Manager rooted at baseDir. The directory must
// already exist; Manager does not create it.
func NewManager(baseDir string, opts ...Option) *Manager {
	m := &Manager{
		baseDir:  filepath.Clean(baseDir),
		metaName: defaultMetadataDirName,
		timeout:  defaultLockTimeout,
		logger:   log.WithField("component", "txfs"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) metaPath() string {
	return filepath.Join(m.baseDir, m.metaName)
}

func (m *Manager) journalPath() string {
	return filepath.Join(m.metaPath(), "journal")
}

func (m *Manager) stagingRoot() string {
	return filepath.Join(m.metaPath(), "staging")
}

func (m *Manager) stagingPath(txID string) string {
	return filepath.Join(m.stagingRoot(), txID)
}

func (m *Manager) locksPath() string {
	return filepath.Join(m.metaPath(), "locks")
}

// Initialize prepares the metadata tree (creating journal/staging/locks
// directories as needed) and runs crash recovery over any journal records
// left behind by a prior process. It is idempotent and safe to call more
// than once; only the first call does work.
func (m *Manager) Initialize() error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize()
	})
	return m.initErr
}

func (m *Manager) initialize() error {
	if info, err := os.Stat(m.baseDir); err != nil || !info.IsDir() {
		if err != nil {
			return newUnderlyingIOError(m.baseDir, err)
		}
		return newUnderlyingIOError(m.baseDir, syscall.ENOTDIR)
	}

	for _, dir := range []string{m.journalPath(), m.stagingRoot(), m.locksPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newUnderlyingIOError(dir, err)
		}
	}

	m.guard = newGuard(m.baseDir)
	m.journal = newJournalStore(m.journalPath(), m.logger)
	m.locks = newLockManager(m.baseDir, m.locksPath(), m.timeout)

	m.recover()
	return nil
}

// Scope is the caller-supplied function Run invokes with an open
// transaction handle. A nil return commits the transaction; any non-nil
// error triggers rollback and is returned unchanged from Run.
type Scope func(tx *Tx) error

// Run executes scope inside a new transaction: begin, then scope, then
// commit on success or rollback on any error (whether returned by scope
// or raised by an operation called during it). The scope function must
// not retain tx past its own return.
func (m *Manager) Run(scope Scope) error {
	if err := m.Initialize(); err != nil {
		return err
	}

	tx, err := m.begin()
	if err != nil {
		return err
	}

	if err := runScope(tx, scope); err != nil {
		tx.rollback()
		return err
	}

	return tx.commit()
}

// Close releases any resources Initialize acquired. The current
// implementation holds nothing beyond open lockfiles, which are always
// closed by the transaction that opened them, so Close is a no-op kept for
// symmetry with the teacher's resource-owner types.
func (m *Manager) Close() error {
	return nil
}

// runScope isolates the scope invocation so a panic inside it still drives
// rollback rather than leaking an orphaned, locked transaction; the panic
// itself is re-raised after cleanup runs.
func runScope(tx *Tx, scope Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	return scope(tx)
}
