package storage

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// Exists stats an absolute path. A missing path, or one whose parent is a
// regular file, yields (false, nil); any other failure, such as permission
// denied, is returned as is.
func Exists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
