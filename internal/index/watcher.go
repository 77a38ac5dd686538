package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/obsidian-mcp/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

// reconcileDelay debounces the full pass scheduled after renames.
const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each index mutation.
//
// Directories matching an ignore pattern are never watched. New directories
// created at runtime are added to the watch list. Rename events trigger a
// debounced reconciliation pass that removes stale entries.
func Watch(ctx context.Context, db *DB, store storage.Provider, ignore []string, logger *slog.Logger, cb EventCallback) error {
	if err := storage.ValidatePatterns(ignore); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	x := &watcher{
		w:      w,
		db:     db,
		store:  store,
		root:   store.Root(),
		ignore: ignore,
		logger: logger,
		cb:     cb,
	}
	if err := x.addDirs(x.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", x.root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			x.reconcile(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if x.handle(ev) {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

type watcher struct {
	w      *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	ignore []string
	logger *slog.Logger
	cb     EventCallback
}

// handle applies one event and reports whether a reconciliation is needed.
func (x *watcher) handle(ev fsnotify.Event) bool {
	rel, ok := x.rel(ev.Name)
	if !ok || storage.MatchIgnore(x.ignore, rel) {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := x.addDirs(ev.Name); err != nil {
				x.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
			// Files moved in with the directory produce no events of their own.
			return true
		}
	}

	// Atomic-write temp files and other non-notes are skipped here.
	if !storage.IsMarkdown(ev.Name) {
		return false
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		x.index(rel)
	case ev.Op&fsnotify.Remove != 0:
		x.remove(rel)
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as Create
		// when it stays inside a watched directory.
		x.remove(rel)
		return true
	}
	return false
}

func (x *watcher) index(rel string) {
	data, err := x.store.Read(rel)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			x.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return
	}
	prev, err := x.db.GetChecksum(rel)
	if err != nil {
		x.logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if prev == Checksum(data) {
		return
	}
	if err := indexFile(x.db, rel, data); err != nil {
		x.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	kind := KindUpdated
	if prev == "" {
		kind = KindCreated
	}
	x.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	x.notify(kind, rel)
}

func (x *watcher) remove(rel string) {
	prev, err := x.db.GetChecksum(rel)
	if err != nil || prev == "" {
		return
	}
	if err := x.db.DeleteNote(rel); err != nil {
		x.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	x.logger.Debug("watcher: deleted", slog.String("path", rel))
	x.notify(KindDeleted, rel)
}

// reconcile compares the index with a fresh listing of the vault.
func (x *watcher) reconcile(ctx context.Context) {
	checksums, err := x.db.AllChecksums()
	if err != nil {
		x.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	paths, err := x.store.ListMarkdown(ctx, x.ignore)
	if err != nil {
		x.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		disk[p] = struct{}{}
		x.index(p)
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			x.remove(p)
		}
	}
}

func (x *watcher) notify(kind, rel string) {
	if x.cb != nil {
		x.cb(kind, rel)
	}
}

func (x *watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(x.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDirs adds dir and its non-ignored subdirectories to the watcher.
func (x *watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := x.rel(p); ok && storage.MatchIgnore(x.ignore, rel) {
			return filepath.SkipDir
		}
		return x.w.Add(p)
	})
}
