// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"fsfscore/lib/sqlitepool"
)

// RepCache is the rep-sharing index of spec.md §4.4: a SQLite
// database mapping a representation's content digest to the
// (revision, offset, size) of the most recently recorded rep that
// stored that content, so later commits of identical content reuse the existing
// representation instead of writing a duplicate.
type RepCache struct {
	pool *sqlitepool.Pool
}

// CacheEntry is one row of the rep-cache: the location and digests of
// a representation already committed to revs/.
type CacheEntry struct {
	Revision     Rev
	Offset       int64
	Size         int64
	ExpandedSize int64
	MD5          [16]byte
	SHA1         [20]byte
}

const repCacheSchema = `
CREATE TABLE IF NOT EXISTS rep_cache (
	hash          TEXT PRIMARY KEY,
	revision      INTEGER NOT NULL,
	offset        INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	expanded_size INTEGER NOT NULL,
	md5           BLOB NOT NULL
);
`

// OpenRepCache opens (creating if absent) the rep-cache database at
// layout.RepCachePath().
func OpenRepCache(ctx context.Context, layout Layout) (*RepCache, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     layout.RepCachePath(),
		PoolSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("fsfs: opening rep-cache: %w", err)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("fsfs: opening rep-cache: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, repCacheSchema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("fsfs: creating rep-cache schema: %w", err)
	}

	return &RepCache{pool: pool}, nil
}

// Close releases the rep-cache's connection pool.
func (c *RepCache) Close() error {
	return c.pool.Close()
}

// Lookup returns the cached location of a representation keyed by
// sha1Hex, or ok=false if no rep with that digest has been recorded.
// A lookup against a hash recorded at a revision beyond youngest is itself a corruption signal (spec.md §12 item 3: the
// rep-cache must never point forward of the youngest committed
// revision) and is reported via ErrCorrupt rather than silently
// treated as a miss.
func (c *RepCache) Lookup(ctx context.Context, sha1Hex string, youngest Rev) (entry CacheEntry, ok bool, err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("fsfs: rep-cache lookup: %w", err)
	}
	defer c.pool.Put(conn)

	found := false
	queryErr := sqlitex.Execute(conn, "SELECT revision, offset, size, expanded_size, md5 FROM rep_cache WHERE hash = ?",
		&sqlitex.ExecOptions{
			Args: []any{sha1Hex},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				entry.Revision = Rev(stmt.ColumnInt64(0))
				entry.Offset = stmt.ColumnInt64(1)
				entry.Size = stmt.ColumnInt64(2)
				entry.ExpandedSize = stmt.ColumnInt64(3)
				md5Len := stmt.ColumnLen(4)
				if md5Len != len(entry.MD5) {
					return fmt.Errorf("fsfs: rep-cache row for %s has malformed md5 (%d bytes): %w", sha1Hex, md5Len, ErrCorrupt)
				}
				stmt.ColumnBytes(4, entry.MD5[:])
				return nil
			},
		})
	if queryErr != nil {
		return CacheEntry{}, false, fmt.Errorf("fsfs: rep-cache lookup: %w", queryErr)
	}
	if !found {
		return CacheEntry{}, false, nil
	}
	if entry.Revision > youngest {
		return CacheEntry{}, false, fmt.Errorf("fsfs: rep-cache entry for %s points at r%d beyond youngest r%d: %w",
			sha1Hex, entry.Revision, youngest, ErrCorrupt)
	}
	return entry, true, nil
}

// Insert records (or overwrites, per spec.md §4.4's "last write wins"
// rule for duplicate digests within one commit) a representation's
// cache entry. It runs in its own IMMEDIATE transaction.
func (c *RepCache) Insert(ctx context.Context, sha1Hex string, entry CacheEntry) (err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("fsfs: rep-cache insert: %w", err)
	}
	defer c.pool.Put(conn)

	endTxn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("fsfs: rep-cache insert: begin transaction: %w", err)
	}
	defer endTxn(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO rep_cache (hash, revision, offset, size, expanded_size, md5) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET revision=excluded.revision, offset=excluded.offset,
			size=excluded.size, expanded_size=excluded.expanded_size, md5=excluded.md5`,
		&sqlitex.ExecOptions{
			Args: []any{sha1Hex, int64(entry.Revision), entry.Offset, entry.Size, entry.ExpandedSize, entry.MD5[:]},
		})
	if err != nil {
		return fmt.Errorf("fsfs: rep-cache insert: %w", err)
	}
	return nil
}

// InsertBatch records every entry in entries, all within one
// IMMEDIATE transaction — used at the end of a commit to publish
// every representation finalized during the tree walk in one atomic
// step (spec.md §4.7 step 9).
func (c *RepCache) InsertBatch(ctx context.Context, entries map[string]CacheEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("fsfs: rep-cache batch insert: %w", err)
	}
	defer c.pool.Put(conn)

	endTxn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("fsfs: rep-cache batch insert: begin transaction: %w", err)
	}
	defer endTxn(&err)

	for sha1Hex, entry := range entries {
		execErr := sqlitex.Execute(conn,
			`INSERT INTO rep_cache (hash, revision, offset, size, expanded_size, md5) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(hash) DO UPDATE SET revision=excluded.revision, offset=excluded.offset,
				size=excluded.size, expanded_size=excluded.expanded_size, md5=excluded.md5`,
			&sqlitex.ExecOptions{
				Args: []any{sha1Hex, int64(entry.Revision), entry.Offset, entry.Size, entry.ExpandedSize, entry.MD5[:]},
			})
		if execErr != nil {
			err = fmt.Errorf("fsfs: rep-cache batch insert %s: %w", sha1Hex, execErr)
			return err
		}
	}
	return nil
}
