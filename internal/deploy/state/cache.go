package state

import (
	"context"
	"fmt"
)

// CacheEntry is the last digest computed for a file under a deploy root.
type CacheEntry struct {
	Root         string
	RelativePath string
	Size         int64
	ModTimeNs    int64
	Algorithm    string
	Digest       string
}

// ListCache returns the cached digests for root keyed by relative path.
func (d *DB) ListCache(ctx context.Context, root string) (map[string]CacheEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT relative_path, size, mtime_ns, algorithm, digest
FROM digest_cache WHERE root = ?`, root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]CacheEntry)
	for rows.Next() {
		e := CacheEntry{Root: root}
		if err := rows.Scan(&e.RelativePath, &e.Size, &e.ModTimeNs, &e.Algorithm, &e.Digest); err != nil {
			return nil, err
		}
		out[e.RelativePath] = e
	}
	return out, rows.Err()
}

// ReplaceCache swaps the cached entries for root in one transaction, so
// files that vanished from the tree leave the cache too.
func (d *DB) ReplaceCache(ctx context.Context, root string, entries []CacheEntry) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM digest_cache WHERE root = ?`, root); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO digest_cache (root, relative_path, size, mtime_ns, algorithm, digest)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, root, e.RelativePath, e.Size, e.ModTimeNs, e.Algorithm, e.Digest); err != nil {
			return fmt.Errorf("cache %s: %w", e.RelativePath, err)
		}
	}
	return tx.Commit()
}

// ClearCache drops every cached digest for root.
func (d *DB) ClearCache(ctx context.Context, root string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM digest_cache WHERE root = ?`, root)
	return err
}
