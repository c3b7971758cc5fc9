package txfs

import (
	"os"
	"testing"

	. "github.com/franela/goblin"
)

func TestStagingArea(t *testing.T) {
	g := Goblin(t)

	g.Describe("writeFile/readFile/exists", func() {
		g.It("mirrors a nested relative path under the staging root", func() {
			dir := t.TempDir()
			s := newStagingArea(dir)
			g.Assert(s.ensure()).IsNil()

			g.Assert(s.exists("a/b.txt")).IsFalse()
			g.Assert(s.writeFile("a/b.txt", []byte("hi"))).IsNil()
			g.Assert(s.exists("a/b.txt")).IsTrue()

			got, err := s.readFile("a/b.txt")
			g.Assert(err).IsNil()
			g.Assert(string(got)).Equal("hi")
		})
	})

	g.Describe("snapshot", func() {
		g.It("copies a base path into the snapshot tree and returns its path", func() {
			base := t.TempDir()
			g.Assert(os.WriteFile(base+"/original.txt", []byte("before"), 0o644)).IsNil()

			dir := t.TempDir()
			s := newStagingArea(dir)
			g.Assert(s.ensure()).IsNil()

			snapPath, err := s.snapshot(base+"/original.txt", "original.txt")
			g.Assert(err).IsNil()

			got, err := os.ReadFile(snapPath)
			g.Assert(err).IsNil()
			g.Assert(string(got)).Equal("before")
		})
	})

	g.Describe("copyWithin", func() {
		g.It("duplicates one staging path into another", func() {
			dir := t.TempDir()
			s := newStagingArea(dir)
			g.Assert(s.ensure()).IsNil()
			g.Assert(s.writeFile("src.txt", []byte("content"))).IsNil()

			g.Assert(s.copyWithin("src.txt", "dst.txt")).IsNil()

			got, err := s.readFile("dst.txt")
			g.Assert(err).IsNil()
			g.Assert(string(got)).Equal("content")
		})
	})
}

