// Package fsutil holds the small filesystem helpers shared by the cache
// and transcript stores.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default permissions for created directories and files.
const (
	DirPerm  os.FileMode = 0o755
	FilePerm os.FileMode = 0o644
)

// tempMarker separates the target name from the random part of in-flight
// temp files. Watchers use IsTemp to ignore them.
const tempMarker = ".tmp."

// WriteAtomic writes data to a temp file next to path, syncs it and
// renames it over path. A crash or error leaves either the old file or
// the new one, never a partial write.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return fmt.Errorf("path is required")
	}
	if perm == 0 {
		perm = FilePerm
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}

// IsTemp reports whether name looks like a WriteAtomic temp file.
func IsTemp(name string) bool {
	return strings.Contains(filepath.Base(name), tempMarker)
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
