// Package storage implements the vault file layer: name policy, root
// confinement, markdown enumeration and crash-safe writes.
package storage

import "context"

// Provider is the interface for vault file operations. Every path argument is
// relative to the vault root.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// ValidateName applies the note naming policy without touching the disk.
	ValidateName(name string) error
	// Exists reports whether path exists. Absence is not an error.
	Exists(path string) (bool, error)
	// ListMarkdown returns the forward-slash paths of every markdown file,
	// skipping entries matched by ignore.
	ListMarkdown(ctx context.Context, ignore []string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces (or creates) the file at path.
	Write(path string, content []byte) error
	// Create writes a new file at path and fails if it already exists.
	Create(path string, content []byte) error
}

var _ Provider = (*FS)(nil)
