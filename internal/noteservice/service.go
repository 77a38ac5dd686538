// Package noteservice implements the vault operations exposed to callers:
// list, read, create and the confirmation-gated edit.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/starford/obsidian-mcp/internal/apperr"
	"github.com/starford/obsidian-mcp/internal/storage"
)

// Outcome is the result class of an edit.
type Outcome string

// Edit outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	// OutcomePending means nothing was written; the caller must resubmit the
	// same request with confirmed set.
	OutcomePending Outcome = "pending"
)

// EditResult reports what an edit did.
type EditResult struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
}

// Service coordinates the storage components for each vault operation.
// It holds no per-request state.
type Service struct {
	store  storage.Provider
	ignore []string
}

// NewService creates a new note service. extraIgnore is appended to
// storage.DefaultIgnore for every listing.
func NewService(store storage.Provider, extraIgnore ...string) *Service {
	ignore := make([]string, 0, len(storage.DefaultIgnore)+len(extraIgnore))
	ignore = append(ignore, storage.DefaultIgnore...)
	ignore = append(ignore, extraIgnore...)
	return &Service{store: store, ignore: ignore}
}

// IgnorePatterns returns the patterns every listing applies.
func (s *Service) IgnorePatterns() []string {
	return append([]string(nil), s.ignore...)
}

// ListNotes returns every markdown note path, optionally filtered by a
// case-insensitive substring query. ignore adds patterns for this call only.
func (s *Service) ListNotes(ctx context.Context, query string, ignore ...string) ([]string, error) {
	patterns := s.ignore
	if len(ignore) > 0 {
		patterns = append(s.IgnorePatterns(), ignore...)
	}
	notes, err := s.store.ListMarkdown(ctx, patterns)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nonNilSlice(notes), nil
	}
	filtered := make([]string, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n), q) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// ReadNote returns the raw content of any file under the vault root.
func (s *Service) ReadNote(_ context.Context, name string) ([]byte, error) {
	data, err := s.store.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("note %q: %w", name, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// CreateNote writes content verbatim to a new path. An existing file is left
// untouched and apperr.ErrAlreadyExists is returned.
func (s *Service) CreateNote(_ context.Context, name, content string) error {
	exists, err := s.store.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("note %q: %w", name, apperr.ErrAlreadyExists)
	}
	return s.store.Create(name, []byte(content))
}

// EditNote creates or overwrites a note. Without confirmed it only reports
// what would happen. Content is normalised before the atomic write.
func (s *Service) EditNote(_ context.Context, name, content string, confirmed bool) (*EditResult, error) {
	if err := s.store.ValidateName(name); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(name)
	if err != nil {
		return nil, translateWriteErr(err)
	}

	if !confirmed {
		msg := fmt.Sprintf("Confirmation required to create %q: the note does not exist. "+
			"Re-run edit_note with confirmed=true to proceed.", name)
		if exists {
			msg = fmt.Sprintf("Confirmation required to overwrite %q: the note already exists. "+
				"Re-run edit_note with confirmed=true to proceed.", name)
		}
		return &EditResult{Outcome: OutcomePending, Message: msg}, nil
	}

	if err := s.store.Write(name, []byte(storage.NormalizeEOL(content))); err != nil {
		return nil, translateWriteErr(err)
	}

	if exists {
		return &EditResult{Outcome: OutcomeUpdated, Message: fmt.Sprintf("Note %q updated successfully.", name)}, nil
	}
	return &EditResult{Outcome: OutcomeCreated, Message: fmt.Sprintf("Note %q created successfully.", name)}, nil
}

// translateWriteErr maps permission-class failures to apperr.ErrReadOnly.
func translateWriteErr(err error) error {
	if isPermission(err) {
		return fmt.Errorf("%w: %v", apperr.ErrReadOnly, err)
	}
	return err
}

// isPermission covers EACCES and EPERM (both match fs.ErrPermission) and a
// read-only file system.
func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
