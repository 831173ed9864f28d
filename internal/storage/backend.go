package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purgelog"
)

// MemoryBackend keeps every partition in memory.
type MemoryBackend struct {
	Retention time.Duration
	LogSize   int

	mu     sync.Mutex
	opened map[string]model.OriginAttributes
}

func NewMemoryBackend(retention time.Duration, logSize int) *MemoryBackend {
	return &MemoryBackend{Retention: retention, LogSize: logSize}
}

func (b *MemoryBackend) Open(_ context.Context, attrs model.OriginAttributes) (Store, purgelog.Log, error) {
	if !attrs.IsPrivate() {
		b.mu.Lock()
		if b.opened == nil {
			b.opened = make(map[string]model.OriginAttributes)
		}
		b.opened[attrs.Key()] = attrs
		b.mu.Unlock()
	}

	return NewMemoryStore(b.Retention), purgelog.NewRing(b.LogSize), nil
}

// Partitions lists every non-private partition opened so far. Private
// partitions end with their session and are never listed.
func (b *MemoryBackend) Partitions(_ context.Context) ([]model.OriginAttributes, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.OriginAttributes, 0, len(b.opened))
	for _, attrs := range b.opened {
		out = append(out, attrs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// SQLiteBackend persists non-private partitions in one SQLite database.
// Private-browsing partitions are always served from memory.
type SQLiteBackend struct {
	db        *sql.DB
	retention time.Duration
	logSize   int

	mu     sync.Mutex
	stores []*SQLiteStore
}

// OpenSQLiteBackend opens (creating if needed) the database at path and
// migrates it.
func OpenSQLiteBackend(ctx context.Context, path, journalMode string, retention time.Duration, logSize int) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// Writers take the lock at BEGIN; a deferred read-then-write
	// transaction cannot wait out a concurrent writer.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := NewMigrationRunner(db).WithJournalMode(journalMode).RunContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return NewSQLiteBackend(db, retention, logSize), nil
}

// NewSQLiteBackend wraps an already-migrated database.
func NewSQLiteBackend(db *sql.DB, retention time.Duration, logSize int) *SQLiteBackend {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLiteBackend{db: db, retention: retention, logSize: logSize}
}

// DB exposes the underlying handle for exemptions and stats.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

func (b *SQLiteBackend) Open(_ context.Context, attrs model.OriginAttributes) (Store, purgelog.Log, error) {
	if attrs.IsPrivate() {
		return NewMemoryStore(b.retention), purgelog.NewRing(b.logSize), nil
	}

	store, err := NewSQLiteStore(b.db, attrs, b.retention)
	if err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	b.stores = append(b.stores, store)
	b.mu.Unlock()

	return store, NewSQLitePurgeLog(b.db, attrs, b.logSize), nil
}

func (b *SQLiteBackend) Partitions(ctx context.Context) ([]model.OriginAttributes, error) {
	keys, err := ListPartitions(ctx, b.db)
	if err != nil {
		return nil, err
	}
	out := make([]model.OriginAttributes, 0, len(keys))
	for _, key := range keys {
		attrs, err := model.ParseOriginAttributes(key)
		if err != nil {
			continue
		}
		out = append(out, attrs)
	}
	return out, nil
}

// Stats summarizes the persisted partitions.
func (b *SQLiteBackend) Stats(ctx context.Context, now time.Time) ([]PartitionStats, error) {
	return GetStats(ctx, b.db, now, b.retention)
}

// Close releases every store's statements and closes the database.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	for _, s := range b.stores {
		s.Close()
	}
	b.stores = nil
	b.mu.Unlock()
	return b.db.Close()
}
