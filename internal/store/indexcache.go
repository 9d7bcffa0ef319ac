package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"chatgpt-export-corpus/internal/mediaindex"
	"chatgpt-export-corpus/internal/models"
)

// IndexCache persists a MediaIndex and resolver strategy counts to a
// SQLite database so the rematch-media subcommand can reload a prior
// run's index instead of re-walking the extraction tree, per
// SPEC_FULL.md §9.1. Pure-Go driver, no cgo, matching this module's
// zero-cgo posture.
type IndexCache struct {
	db *sql.DB
}

// NewIndexCache opens (creating if absent) a cache database at path.
func NewIndexCache(path string) (*IndexCache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index cache: %w", err)
	}
	c := &IndexCache{db: db}
	if err := c.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *IndexCache) Close() error {
	return c.db.Close()
}

func (c *IndexCache) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media_files (
			path TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			file_id TEXT,
			content_hash TEXT,
			conversation_id TEXT,
			mime TEXT,
			from_recovery INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_credits (
			strategy TEXT PRIMARY KEY,
			credited INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate index cache: %w", err)
		}
	}
	return nil
}

// Save replaces the cache's contents with idx's files and the given
// strategy credit tallies, in one transaction.
func (c *IndexCache) Save(ctx context.Context, idx *mediaindex.Index, credited map[string]int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_files`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM strategy_credits`); err != nil {
		return err
	}

	insertFile, err := tx.PrepareContext(ctx, `INSERT INTO media_files
		(path, name, size, file_id, content_hash, conversation_id, mime, from_recovery)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertFile.Close()

	for _, f := range idx.Files {
		fromRecovery := 0
		if f.FromRecovery {
			fromRecovery = 1
		}
		if _, err := insertFile.ExecContext(ctx, f.Path, f.Name, f.Size, f.FileID, f.ContentHash, f.ConversationID, string(f.MIME), fromRecovery); err != nil {
			return fmt.Errorf("insert media file %s: %w", f.Path, err)
		}
	}

	insertCredit, err := tx.PrepareContext(ctx, `INSERT INTO strategy_credits (strategy, credited) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insertCredit.Close()

	for strategy, count := range credited {
		if _, err := insertCredit.ExecContext(ctx, strategy, count); err != nil {
			return fmt.Errorf("insert strategy credit %s: %w", strategy, err)
		}
	}

	return tx.Commit()
}

// LoadFiles reconstructs the MediaFile list from the cache, in path
// lexicographic order (not insertion order), ready to rebuild a
// mediaindex.Index via mediaindex.NewForTest without re-walking disk.
func (c *IndexCache) LoadFiles(ctx context.Context) ([]models.MediaFile, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, name, size, file_id, content_hash, conversation_id, mime, from_recovery
		FROM media_files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.MediaFile
	for rows.Next() {
		var f models.MediaFile
		var mime string
		var fromRecovery int
		if err := rows.Scan(&f.Path, &f.Name, &f.Size, &f.FileID, &f.ContentHash, &f.ConversationID, &mime, &fromRecovery); err != nil {
			return nil, err
		}
		f.MIME = models.MIMEClass(mime)
		f.FromRecovery = fromRecovery != 0
		files = append(files, f)
	}
	return files, rows.Err()
}

// LoadStrategyCredits returns the last-saved per-strategy resolution
// counts.
func (c *IndexCache) LoadStrategyCredits(ctx context.Context) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT strategy, credited FROM strategy_credits`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, err
		}
		out[strategy] = count
	}
	return out, rows.Err()
}
