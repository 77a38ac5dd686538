package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// DefaultIgnore is applied by every vault listing.
var DefaultIgnore = []string{".trash"}

// MaxWalkers bounds how many directories are read concurrently.
const MaxWalkers = 16

// IsMarkdown reports whether name has a .md or .markdown extension,
// ignoring case.
func IsMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// ValidatePatterns checks ignore globs before they are used.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("storage: invalid ignore pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return nil
}

// MatchIgnore reports whether the forward-slash relative path rel matches
// any of the patterns.
func MatchIgnore(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// ListMarkdown walks the vault and returns the relative, forward-slash path of
// every markdown file. Entries matching an ignore pattern are skipped together
// with their subtree. Symbolic links are followed; a directory that is already
// an ancestor in the current traversal chain is not entered again.
// The result is sorted.
func (f *FS) ListMarkdown(ctx context.Context, ignore []string) ([]string, error) {
	if err := ValidatePatterns(ignore); err != nil {
		return nil, err
	}
	rootInfo, err := os.Stat(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxWalkers)
	w := &walker{root: f.root, ignore: ignore, g: g, ctx: gctx}

	g.Go(func() error {
		return w.walkDir(f.root, []os.FileInfo{rootInfo})
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}

	sort.Strings(w.out)
	return w.out, nil
}

type walker struct {
	root   string
	ignore []string
	g      *errgroup.Group
	ctx    context.Context

	mu  sync.Mutex
	out []string
}

func (w *walker) walkDir(dir string, ancestors []os.FileInfo) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if MatchIgnore(w.ignore, rel) {
			continue
		}

		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					// Dangling link.
					continue
				}
				return err
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if err := w.descend(p, ancestors); err != nil {
				return err
			}
		case mode.IsRegular():
			if IsMarkdown(entry.Name()) {
				w.add(rel)
			}
		}
	}
	return nil
}

// descend schedules dir on the worker pool, or walks it inline when the pool
// is saturated.
func (w *walker) descend(dir string, ancestors []os.FileInfo) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return nil
		}
	}
	chain := append(ancestors[:len(ancestors):len(ancestors)], info)

	if w.g.TryGo(func() error { return w.walkDir(dir, chain) }) {
		return nil
	}
	return w.walkDir(dir, chain)
}

func (w *walker) add(rel string) {
	w.mu.Lock()
	w.out = append(w.out, rel)
	w.mu.Unlock()
}
