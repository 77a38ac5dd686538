package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempInfix separates a destination name from the unique suffix of its
// temporary write file: <dest>.tmp.<uuid>.
const TempInfix = ".tmp."

// writeTemp writes the payload into the temporary file. Tests replace it to
// inject faults mid-write.
var writeTemp = func(f *os.File, data []byte) error {
	_, err := f.Write(data)
	return err
}

// WriteFileAtomic writes data to dest so that dest is either untouched or
// fully replaced: exclusive-create temp file → fsync → rename. The temp file
// is removed on every failure path. An existing file keeps its permissions.
func WriteFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(dest); err == nil {
		perm = info.Mode().Perm()
	}

	tmpName := dest + TempInfix + uuid.NewString()
	tmp, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeTemp(tmp, data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
