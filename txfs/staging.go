package txfs

import (
	"os"
	"path/filepath"
)

// snapshotsDirName is the reserved child of a staging directory that holds
// pre-transaction backups of overwrite targets, indexed by the caller-
// relative path they back up.
const snapshotsDirName = "_snapshots"

// stagingArea is the per-transaction scratch directory that mirrors
// caller-relative paths. It is read or written only by its owning
// transaction; the Lock Manager and the per-id subdirectory together
// enforce that.
type stagingArea struct {
	root string
}

func newStagingArea(root string) *stagingArea {
	return &stagingArea{root: root}
}

func (s *stagingArea) ensure() error {
	return os.MkdirAll(s.root, 0o755)
}

func (s *stagingArea) remove() error {
	return removeAllIgnoreMissing(s.root)
}

func (s *stagingArea) path(rel string) string {
	if rel == "" {
		return s.root
	}
	return filepath.Join(s.root, rel)
}

func (s *stagingArea) snapshotPath(rel string) string {
	return filepath.Join(s.root, snapshotsDirName, rel)
}

func (s *stagingArea) exists(rel string) bool {
	return pathExists(s.path(rel))
}

func (s *stagingArea) writeFile(rel string, data []byte) error {
	p := s.path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *stagingArea) readFile(rel string) ([]byte, error) {
	return os.ReadFile(s.path(rel))
}

// mkdir creates the staging mirror of rel. recursive controls whether
// intermediate components are created (mkdir -p) or whether a missing
// parent is an error.
func (s *stagingArea) mkdir(rel string, recursive bool) error {
	p := s.path(rel)
	if recursive {
		return mkdirAllIgnoreExists(p)
	}
	if err := os.Mkdir(p, 0o755); err != nil {
		if pathExists(p) {
			return nil
		}
		return err
	}
	return nil
}

// copyFromInto copies src (an absolute path outside staging) into the
// staging mirror of rel.
func (s *stagingArea) copyFromInto(src, rel string) error {
	dst := s.path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyTree(src, dst)
}

// copyWithin duplicates the staging mirror of fromRel into toRel, used
// when rename/copy materializes staging content that already exists in
// staging from an earlier operation in the same transaction.
func (s *stagingArea) copyWithin(fromRel, toRel string) error {
	return s.copyFromInto(s.path(fromRel), toRel)
}

// snapshot copies src (an absolute base-directory path) into the snapshot
// tree under _snapshots/rel, returning the snapshot's absolute path.
func (s *stagingArea) snapshot(src, rel string) (string, error) {
	dst := s.snapshotPath(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := copyTree(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}
