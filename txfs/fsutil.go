package txfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"emperror.dev/errors"
)

// moveInto relocates src to dst, preferring an atomic same-filesystem
// rename. On EXDEV or EPERM — a cross-device move, or a filesystem that
// disallows renaming regular files in place — it falls back to copying the
// tree and removing the source. The errno classification reuses the
// teacher's internal/ufs unix backend's idiom; the copy+delete fallback
// itself is this package's own addition, since staging and base can live
// on different filesystems here.
func moveInto(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDeviceOrPermError(err) {
		return err
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func isCrossDeviceOrPermError(err error) bool {
	return errors.Is(err, fs.ErrPermission) || isCrossDeviceError(err)
}

// copyTree recursively copies src to dst, which may be a regular file or a
// directory. Symlinks are skipped: the system makes no promise to preserve
// them across commit (see Non-goals).
func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// removeAllIgnoreMissing removes path recursively; a path that does not
// exist is treated as already-removed rather than an error, matching the
// commit-execute contract for RM.
func removeAllIgnoreMissing(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// mkdirAllIgnoreExists creates path and its parents, treating an existing
// directory as success.
func mkdirAllIgnoreExists(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

// pathExists reports whether path is present on disk (file, directory, or
// anything else os.Lstat can see), without following a terminal symlink.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// readFileAt reads the full contents of an absolute base-directory path.
func readFileAt(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// statExistsIsDir reports whether path exists and, if so, whether it is a
// directory.
func statExistsIsDir(path string) (exists, isDir bool, err error) {
	info, serr := os.Stat(path)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) {
			return false, false, nil
		}
		return false, false, serr
	}
	return true, info.IsDir(), nil
}
