package txfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/franela/goblin"
)

func newTestManager(t *testing.T) (*Manager, string) {
	base := t.TempDir()
	m := NewManager(base)
	if err := m.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return m, base
}

func TestManagerEndToEnd(t *testing.T) {
	g := Goblin(t)

	g.Describe("basic write", func() {
		g.It("commits and leaves no journal or staging residue", func() {
			m, base := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				return tx.Write("a.txt", []byte("hi"))
			})
			g.Assert(err).IsNil()

			got, rerr := os.ReadFile(filepath.Join(base, "a.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(got)).Equal("hi")

			journalEntries, _ := os.ReadDir(m.journalPath())
			g.Assert(len(journalEntries)).Equal(0)
			stagingEntries, _ := os.ReadDir(m.stagingRoot())
			g.Assert(len(stagingEntries)).Equal(0)
		})
	})

	g.Describe("rollback on exception", func() {
		g.It("leaves the pre-transaction content untouched", func() {
			m, base := newTestManager(t)
			g.Assert(os.WriteFile(filepath.Join(base, "a.txt"), []byte("one"), 0o644)).IsNil()

			boom := errors.New("E")
			err := m.Run(func(tx *Tx) error {
				if werr := tx.Write("a.txt", []byte("two")); werr != nil {
					return werr
				}
				return boom
			})
			g.Assert(err).Equal(boom)

			got, rerr := os.ReadFile(filepath.Join(base, "a.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(got)).Equal("one")
		})
	})

	g.Describe("overwrite rename then rollback", func() {
		g.It("leaves both source and destination unchanged", func() {
			m, base := newTestManager(t)
			g.Assert(os.WriteFile(filepath.Join(base, "src"), []byte("s"), 0o644)).IsNil()
			g.Assert(os.WriteFile(filepath.Join(base, "dst"), []byte("d"), 0o644)).IsNil()

			boom := errors.New("E")
			err := m.Run(func(tx *Tx) error {
				if rerr := tx.Rename("src", "dst"); rerr != nil {
					return rerr
				}
				return boom
			})
			g.Assert(err).Equal(boom)

			src, _ := os.ReadFile(filepath.Join(base, "src"))
			dst, _ := os.ReadFile(filepath.Join(base, "dst"))
			g.Assert(string(src)).Equal("s")
			g.Assert(string(dst)).Equal("d")
		})
	})

	g.Describe("crash after prepare", func() {
		g.It("rolls the transaction forward on the next initialize", func() {
			base := t.TempDir()
			m := NewManager(base)
			g.Assert(m.Initialize()).IsNil()

			tx, err := m.begin()
			g.Assert(err).IsNil()
			g.Assert(tx.Write("new.txt", []byte("applied"))).IsNil()
			g.Assert(tx.prepare()).IsNil()
			// Simulate a crash here: no execute, no cleanup, process just stops.

			recovered := NewManager(base)
			g.Assert(recovered.Initialize()).IsNil()

			got, rerr := os.ReadFile(filepath.Join(base, "new.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(got)).Equal("applied")

			journalEntries, _ := os.ReadDir(recovered.journalPath())
			g.Assert(len(journalEntries)).Equal(0)
		})
	})

	g.Describe("crash partway through execute on a prepared transaction", func() {
		g.It("finishes the remaining operations and cleans up on the next initialize", func() {
			base := t.TempDir()
			m := NewManager(base)
			g.Assert(m.Initialize()).IsNil()

			tx, err := m.begin()
			g.Assert(err).IsNil()
			g.Assert(tx.Write("a.txt", []byte("A"))).IsNil()
			g.Assert(tx.Write("b.txt", []byte("B"))).IsNil()
			g.Assert(tx.prepare()).IsNil()

			// Simulate a crash after a real execute already applied a.txt's
			// WRITE (moving its staging artifact into place) but before it
			// reached b.txt's.
			g.Assert(os.WriteFile(filepath.Join(base, "a.txt"), []byte("A"), 0o644)).IsNil()
			g.Assert(os.Remove(tx.staging.path("a.txt"))).IsNil()

			recovered := NewManager(base)
			g.Assert(recovered.Initialize()).IsNil()

			gotA, rerr := os.ReadFile(filepath.Join(base, "a.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(gotA)).Equal("A")

			gotB, rerr := os.ReadFile(filepath.Join(base, "b.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(gotB)).Equal("B")

			journalEntries, _ := os.ReadDir(recovered.journalPath())
			g.Assert(len(journalEntries)).Equal(0)
			stagingEntries, _ := os.ReadDir(recovered.stagingRoot())
			g.Assert(len(stagingEntries)).Equal(0)
		})
	})

	g.Describe("crash while in progress", func() {
		g.It("discards the transaction without touching the base directory", func() {
			base := t.TempDir()
			m := NewManager(base)
			g.Assert(m.Initialize()).IsNil()

			tx, err := m.begin()
			g.Assert(err).IsNil()
			g.Assert(tx.Write("new.txt", []byte("staged-only"))).IsNil()
			// Never prepared: simulate a crash while still IN_PROGRESS.

			recovered := NewManager(base)
			g.Assert(recovered.Initialize()).IsNil()

			_, statErr := os.Stat(filepath.Join(base, "new.txt"))
			g.Assert(os.IsNotExist(statErr)).IsTrue()

			journalEntries, _ := os.ReadDir(recovered.journalPath())
			g.Assert(len(journalEntries)).Equal(0)
		})
	})

	g.Describe("concurrent non-conflicting writes", func() {
		g.It("commits both transactions with their respective content", func() {
			m, base := newTestManager(t)

			errs := make(chan error, 2)
			go func() {
				errs <- m.Run(func(tx *Tx) error { return tx.Write("a.txt", []byte("A")) })
			}()
			go func() {
				errs <- m.Run(func(tx *Tx) error { return tx.Write("b.txt", []byte("B")) })
			}()

			g.Assert(<-errs).IsNil()
			g.Assert(<-errs).IsNil()

			a, _ := os.ReadFile(filepath.Join(base, "a.txt"))
			b, _ := os.ReadFile(filepath.Join(base, "b.txt"))
			g.Assert(string(a)).Equal("A")
			g.Assert(string(b)).Equal("B")
		})
	})

	g.Describe("concurrent conflicting writes", func() {
		g.It("serializes both and leaves the last committer's value", func() {
			m, base := newTestManager(t)

			errs := make(chan error, 2)
			go func() {
				errs <- m.Run(func(tx *Tx) error { return tx.Write("c.txt", []byte("first")) })
			}()
			go func() {
				errs <- m.Run(func(tx *Tx) error { return tx.Write("c.txt", []byte("second")) })
			}()

			g.Assert(<-errs).IsNil()
			g.Assert(<-errs).IsNil()

			got, _ := os.ReadFile(filepath.Join(base, "c.txt"))
			g.Assert(string(got) == "first" || string(got) == "second").IsTrue()
		})
	})
}

func TestRoundTripLaws(t *testing.T) {
	g := Goblin(t)

	g.Describe("write then read within the same transaction", func() {
		g.It("returns the written value", func() {
			m, _ := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				if werr := tx.Write("p.txt", []byte("x")); werr != nil {
					return werr
				}
				got, rerr := tx.Read("p.txt")
				if rerr != nil {
					return rerr
				}
				g.Assert(string(got)).Equal("x")
				return nil
			})
			g.Assert(err).IsNil()
		})
	})

	g.Describe("write then write then commit", func() {
		g.It("externally observes only the last value", func() {
			m, base := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				if werr := tx.Write("p.txt", []byte("x")); werr != nil {
					return werr
				}
				return tx.Write("p.txt", []byte("y"))
			})
			g.Assert(err).IsNil()

			got, _ := os.ReadFile(filepath.Join(base, "p.txt"))
			g.Assert(string(got)).Equal("y")
		})
	})

	g.Describe("mkdir twice", func() {
		g.It("is a no-op after the first", func() {
			m, _ := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				if merr := tx.Mkdir("d", true); merr != nil {
					return merr
				}
				return tx.Mkdir("d", true)
			})
			g.Assert(err).IsNil()
		})
	})

	g.Describe("remove twice", func() {
		g.It("is a no-op after the first", func() {
			m, base := newTestManager(t)
			g.Assert(os.WriteFile(filepath.Join(base, "r.txt"), []byte("x"), 0o644)).IsNil()

			err := m.Run(func(tx *Tx) error {
				if rerr := tx.Remove("r.txt", false); rerr != nil {
					return rerr
				}
				return tx.Remove("r.txt", false)
			})
			g.Assert(err).IsNil()

			_, statErr := os.Stat(filepath.Join(base, "r.txt"))
			g.Assert(os.IsNotExist(statErr)).IsTrue()
		})
	})

	g.Describe("initialize twice", func() {
		g.It("has the same effect as once", func() {
			base := t.TempDir()
			m := NewManager(base)
			g.Assert(m.Initialize()).IsNil()
			g.Assert(m.Initialize()).IsNil()
		})
	})

	g.Describe("read a path that was never written anywhere", func() {
		g.It("fails with source-missing and leaves no trace in the base directory", func() {
			m, base := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				_, rerr := tx.Read("never-existed.txt")
				return rerr
			})
			g.Assert(IsErrorCode(err, ErrCodeSourceMissing)).IsTrue()

			_, statErr := os.Stat(filepath.Join(base, "never-existed.txt"))
			g.Assert(os.IsNotExist(statErr)).IsTrue()
		})
	})

	g.Describe("remove a directory without recursive", func() {
		g.It("fails with is-directory instead of journaling the removal", func() {
			m, base := newTestManager(t)
			g.Assert(os.Mkdir(filepath.Join(base, "d"), 0o755)).IsNil()

			err := m.Run(func(tx *Tx) error {
				return tx.Remove("d", false)
			})
			g.Assert(IsErrorCode(err, ErrCodeIsDirectory)).IsTrue()

			_, statErr := os.Stat(filepath.Join(base, "d"))
			g.Assert(statErr).IsNil()
		})
	})

	g.Describe("copy a directory without recursive", func() {
		g.It("fails with is-directory instead of copying the whole tree", func() {
			m, base := newTestManager(t)
			g.Assert(os.Mkdir(filepath.Join(base, "src"), 0o755)).IsNil()
			g.Assert(os.WriteFile(filepath.Join(base, "src", "f.txt"), []byte("x"), 0o644)).IsNil()

			err := m.Run(func(tx *Tx) error {
				return tx.Copy("src", "dst", false)
			})
			g.Assert(IsErrorCode(err, ErrCodeIsDirectory)).IsTrue()

			_, statErr := os.Stat(filepath.Join(base, "dst"))
			g.Assert(os.IsNotExist(statErr)).IsTrue()
		})
	})

	g.Describe("copy a directory with recursive", func() {
		g.It("duplicates the whole tree", func() {
			m, base := newTestManager(t)
			g.Assert(os.Mkdir(filepath.Join(base, "src"), 0o755)).IsNil()
			g.Assert(os.WriteFile(filepath.Join(base, "src", "f.txt"), []byte("x"), 0o644)).IsNil()

			err := m.Run(func(tx *Tx) error {
				return tx.Copy("src", "dst", true)
			})
			g.Assert(err).IsNil()

			got, rerr := os.ReadFile(filepath.Join(base, "dst", "f.txt"))
			g.Assert(rerr).IsNil()
			g.Assert(string(got)).Equal("x")
		})
	})
}

func TestPathGuardRejectsEscapes(t *testing.T) {
	g := Goblin(t)

	g.Describe("operations on an escaping path", func() {
		g.It("fail with PathOutsideBase instead of touching disk", func() {
			m, _ := newTestManager(t)

			err := m.Run(func(tx *Tx) error {
				return tx.Write("../escape.txt", []byte("x"))
			})
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodePathOutsideBase)).IsTrue()
		})
	})
}
