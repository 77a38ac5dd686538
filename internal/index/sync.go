package index

import (
	"context"
	"log/slog"

	"github.com/starford/obsidian-mcp/internal/parser"
	"github.com/starford/obsidian-mcp/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are parsed and upserted
//   - notes removed from disk (or now ignored) are deleted from the index
func Sync(ctx context.Context, db *DB, store storage.Provider, ignore []string, logger *slog.Logger) error {
	paths, err := store.ListMarkdown(ctx, ignore)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		disk[p] = struct{}{}

		data, err := store.Read(p)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if checksums[p] == Checksum(data) {
			continue
		}
		if err := indexFile(db, p, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", p))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, path string, data []byte) error {
	res, err := parser.Parse(path, data)
	if err != nil {
		return err
	}
	row := NoteRow{
		Path:     path,
		Title:    res.Title,
		Checksum: Checksum(data),
		Tags:     res.Tags,
	}
	return db.UpsertNote(row, res.Body)
}
