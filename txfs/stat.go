package txfs

import "os"

// Stat is a trimmed view over os.FileInfo for callers of Tx.Stat who want
// more than Exists's boolean: just enough to branch on directory-ness and
// size without reaching past the base directory boundary for it.
type Stat struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime int64
}

// Stat resolves p transaction-aware (staging overrides base) and returns a
// Stat view of it. It fails with ErrCodeSourceMissing if p does not exist.
func (tx *Tx) Stat(p string) (Stat, error) {
	rel, err := tx.guard.toRel(p)
	if err != nil {
		return Stat{}, err
	}
	if err := tx.lock(rel, lockShared); err != nil {
		return Stat{}, err
	}

	target := tx.basePath(rel)
	if tx.staging.exists(rel) {
		target = tx.staging.path(rel)
	} else if !pathExists(target) {
		return Stat{}, NewSourceMissingError(rel)
	}

	info, err := os.Stat(target)
	if err != nil {
		return Stat{}, newUnderlyingIOError(rel, err)
	}
	return Stat{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime().Unix(),
	}, nil
}
