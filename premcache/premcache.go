// Package premcache persists extracted premium records to SQLite.
// Writes are asynchronous: records are queued on a buffered channel and
// flushed in batched transactions, so a long extraction pass never
// stalls on disk. Reads (Load, Count) see whatever has been flushed;
// call Sync first when freshness matters.
package premcache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

const schema = `
CREATE TABLE IF NOT EXISTS premiums (
	region TEXT NOT NULL,
	parent TEXT NOT NULL,
	year INTEGER NOT NULL,
	age INTEGER NOT NULL,
	metal TEXT NOT NULL,
	individual REAL,
	small_group REAL,
	difference REAL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (region, parent, year, age, metal)
);
CREATE INDEX IF NOT EXISTS idx_premiums_filter ON premiums(year, age, metal);
`

const batchSize = 64

// Cache is an async SQLite-backed record store.
type Cache struct {
	db     *sql.DB
	ch     chan premium.Premium
	syncCh chan chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Open opens (creating if needed) the cache database at path and starts
// the flush loop. Pass ":memory:" for an ephemeral cache.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("premcache: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("premcache: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("premcache: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("premcache: schema: %w", err)
	}

	c := &Cache{
		db:     db,
		ch:     make(chan premium.Premium, 1024),
		syncCh: make(chan chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.flushLoop()
	return c, nil
}

// Put queues a record for persistence. Blocks only when the buffer is
// full, which backpressures the extraction loop rather than losing data.
func (c *Cache) Put(rec premium.Premium) {
	c.ch <- rec
}

// PutAll queues a batch of records.
func (c *Cache) PutAll(records []premium.Premium) {
	for _, rec := range records {
		c.ch <- rec
	}
}

// Sync flushes everything queued so far and returns when it is durable.
func (c *Cache) Sync() {
	ack := make(chan struct{})
	select {
	case c.syncCh <- ack:
		<-ack
	case <-c.done:
	}
}

// Close drains the buffer, stops the flush loop and closes the database.
func (c *Cache) Close() error {
	c.once.Do(func() {
		close(c.ch)
		<-c.done
	})
	return c.db.Close()
}

func (c *Cache) flushLoop() {
	defer close(c.done)

	batch := make([]premium.Premium, 0, batchSize)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-c.ch:
			if !ok {
				c.flushBatch(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				c.flushBatch(batch)
				batch = batch[:0]
			}
		case ack := <-c.syncCh:
			batch = drain(c.ch, batch)
			c.flushBatch(batch)
			batch = batch[:0]
			close(ack)
		case <-ticker.C:
			if len(batch) > 0 {
				c.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func drain(ch <-chan premium.Premium, batch []premium.Premium) []premium.Premium {
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

// flushBatch upserts a batch in one transaction. Last write wins on the
// region+filter primary key, matching the store's KeepLatest policy.
func (c *Cache) flushBatch(batch []premium.Premium) {
	if len(batch) == 0 {
		return
	}

	tx, err := c.db.Begin()
	if err != nil {
		c.logger.Error("premcache: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO premiums
		(region, parent, year, age, metal, individual, small_group, difference, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		c.logger.Error("premcache: prepare", "error", err)
		return
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, rec := range batch {
		_, err := stmt.Exec(
			rec.Key.Region, rec.Key.Parent,
			rec.Filter.Year, rec.Filter.Age, rec.Filter.Metal,
			nullable(rec.Individual), nullable(rec.SmallGroup), nullable(rec.Difference),
			now)
		if err != nil {
			c.logger.Error("premcache: insert", "region", rec.Key.Region, "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		c.logger.Error("premcache: commit", "error", err)
	}
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Load returns all cached records for a filter selection, sorted by
// parent then region.
func (c *Cache) Load(sel premium.FilterSelection) ([]premium.Premium, error) {
	rows, err := c.db.Query(`SELECT region, parent, individual, small_group, difference
		FROM premiums WHERE year = ? AND age = ? AND metal = ?
		ORDER BY parent, region`,
		sel.Year, sel.Age, sel.Metal)
	if err != nil {
		return nil, fmt.Errorf("premcache: load %s: %w", sel.String(), err)
	}
	defer rows.Close()

	var records []premium.Premium
	for rows.Next() {
		var rec premium.Premium
		var ind, grp, diff sql.NullFloat64
		if err := rows.Scan(&rec.Key.Region, &rec.Key.Parent, &ind, &grp, &diff); err != nil {
			return nil, fmt.Errorf("premcache: scan: %w", err)
		}
		rec.Filter = sel
		rec.Individual = fromNull(ind)
		rec.SmallGroup = fromNull(grp)
		rec.Difference = fromNull(diff)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("premcache: load %s: %w", sel.String(), err)
	}
	return records, nil
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Count reports the number of cached records across all filters.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM premiums`).Scan(&n); err != nil {
		return 0, fmt.Errorf("premcache: count: %w", err)
	}
	return n, nil
}
