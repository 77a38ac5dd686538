package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/starford/obsidian-mcp/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root     string // absolute path to vault directory
	realRoot string // root with symlinks resolved
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &FS{root: abs, realRoot: resolved}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string {
	return f.root
}

// Resolve joins rel onto the vault root and rejects any result that escapes
// it. Unlike ValidateName it applies no naming policy.
func (f *FS) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", &apperr.ValidationError{Name: rel, Reason: ReasonNameRequired}
	}
	if isAbsolute(rel) {
		return "", &apperr.ValidationError{Name: rel, Reason: ReasonMustBeRelative}
	}
	abs, ok := withinRoot(f.root, filepath.Clean(rel))
	if !ok {
		return "", &apperr.ValidationError{Name: rel, Reason: ReasonOutsideRoot}
	}
	return abs, nil
}

// resolveWrite is Resolve plus a check on the real location: the deepest
// existing ancestor of the target's directory, with symlinks followed, must
// still be inside the vault. Reads may follow links out of the vault, writes
// may not.
func (f *FS) resolveWrite(rel string) (string, error) {
	abs, err := f.Resolve(rel)
	if err != nil {
		return "", err
	}
	dir, err := realAncestor(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("storage: resolve %s: %w", rel, err)
	}
	if !isWithin(f.realRoot, dir) {
		return "", &apperr.ValidationError{Name: rel, Reason: ReasonOutsideRoot}
	}
	return abs, nil
}

// realAncestor walks up from p to the first path that exists and returns it
// with symlinks resolved.
func realAncestor(p string) (string, error) {
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		p = parent
	}
}

// Exists reports whether the vault path exists.
func (f *FS) Exists(path string) (bool, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return false, err
	}
	return Exists(abs)
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically replaces the file at path with content.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolveWrite(path)
	if err != nil {
		return err
	}
	return WriteFileAtomic(abs, content)
}

// Create writes content to a new file with exclusive-create semantics, so a
// concurrent creator of the same path loses with apperr.ErrAlreadyExists.
// A failed write removes the partially written file.
func (f *FS) Create(path string, content []byte) error {
	abs, err := f.resolveWrite(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	file, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", path, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		_ = os.Remove(abs)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(abs)
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	return nil
}

// withinRoot resolves a cleaned relative path against root and reports whether
// the result is still a descendant of root.
func withinRoot(root, cleaned string) (string, bool) {
	abs := filepath.Join(root, cleaned)
	if !isWithin(root, abs) {
		return "", false
	}
	return abs, true
}

// isWithin reports whether the absolute path p is root or one of its
// descendants.
func isWithin(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
