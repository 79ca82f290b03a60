package stackexchange

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const cacheSchema = `
CREATE TABLE IF NOT EXISTS responses (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	key         TEXT NOT NULL UNIQUE,
	value       BLOB NOT NULL,
	inserted_at INTEGER NOT NULL
);
`

// Cache stores successful response bodies keyed by request signature.
// It is bounded by entry count with strict FIFO-by-insertion eviction
// and a fixed TTL checked lazily at read time — a hit does not refresh
// an entry's position or lifetime.
//
// The backing store is an in-memory SQLite database on a single
// connection, which both serializes concurrent access from the queue
// workers and guarantees the cache resets with the process.
type Cache struct {
	db      *sql.DB
	maxSize int
	ttl     time.Duration
}

// CacheStats is a snapshot of cache occupancy.
type CacheStats struct {
	TotalEntries int     `json:"total_entries"`
	ValidEntries int     `json:"valid_entries"`
	MaxSize      int     `json:"max_size"`
	TTLSeconds   float64 `json:"ttl_seconds"`
}

// NewCache opens the in-memory store and creates the schema.
func NewCache(maxSize int, ttl time.Duration) (*Cache, error) {
	db, err := openDB("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	// One connection: every sql.Conn against :memory: would otherwise
	// see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &Cache{db: db, maxSize: maxSize, ttl: ttl}, nil
}

// Get returns the cached value for key, or ok=false on a miss or when
// the entry has outlived the TTL. Expired entries are removed on read.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	var value []byte
	var insertedAt int64
	err := c.db.QueryRow(
		`SELECT value, inserted_at FROM responses WHERE key = ?`, key,
	).Scan(&value, &insertedAt)
	if err != nil {
		return nil, false
	}

	if timeNow().UnixMilli()-insertedAt > c.ttl.Milliseconds() {
		_, _ = c.db.Exec(`DELETE FROM responses WHERE key = ?`, key)
		return nil, false
	}
	return value, true
}

// Set stores value under key. Re-setting an existing key counts as a
// fresh insertion for eviction ordering. When the cache is full and
// the key is new, the single oldest-inserted entry is evicted first.
func (c *Cache) Set(key string, value json.RawMessage) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM responses WHERE key = ?`, key,
	).Scan(&existing); err != nil {
		return fmt.Errorf("cache: lookup: %w", err)
	}

	if existing == 0 {
		var total int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&total); err != nil {
			return fmt.Errorf("cache: count: %w", err)
		}
		if total >= c.maxSize {
			if _, err := tx.Exec(
				`DELETE FROM responses WHERE seq = (SELECT MIN(seq) FROM responses)`,
			); err != nil {
				return fmt.Errorf("cache: evict: %w", err)
			}
		}
	} else {
		// Delete and re-insert so the entry gets a new seq.
		if _, err := tx.Exec(`DELETE FROM responses WHERE key = ?`, key); err != nil {
			return fmt.Errorf("cache: replace: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO responses (key, value, inserted_at) VALUES (?, ?, ?)`,
		key, []byte(value), timeNow().UnixMilli(),
	); err != nil {
		return fmt.Errorf("cache: insert: %w", err)
	}
	return tx.Commit()
}

// Stats counts entries lazily: total rows and the subset still within
// TTL. Expired rows linger until read or evicted by size, so the two
// numbers can differ.
func (c *Cache) Stats() CacheStats {
	st := CacheStats{MaxSize: c.maxSize, TTLSeconds: c.ttl.Seconds()}

	_ = c.db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&st.TotalEntries)
	// Same boundary as Get: an entry whose age equals the TTL is still
	// servable, so it counts as valid.
	cutoff := timeNow().UnixMilli() - c.ttl.Milliseconds()
	_ = c.db.QueryRow(
		`SELECT COUNT(*) FROM responses WHERE inserted_at >= ?`, cutoff,
	).Scan(&st.ValidEntries)
	return st
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
