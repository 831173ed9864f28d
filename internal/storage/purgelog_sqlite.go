package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purgelog"
)

// SQLitePurgeLog is a purgelog.Log persisted in the purge_log table. Each
// append trims the partition back to its capacity, dropping the oldest rows.
type SQLitePurgeLog struct {
	db        *sql.DB
	partition string
	capacity  int
}

var _ purgelog.Log = (*SQLitePurgeLog)(nil)

func NewSQLitePurgeLog(db *sql.DB, attrs model.OriginAttributes, capacity int) *SQLitePurgeLog {
	if capacity <= 0 {
		capacity = purgelog.DefaultCapacity
	}
	return &SQLitePurgeLog{db: db, partition: attrs.Key(), capacity: capacity}
}

func (l *SQLitePurgeLog) Append(ctx context.Context, entry model.PurgeLogEntry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO purge_log (partition, host, bounce_ts, purge_ts) VALUES (?, ?, ?, ?)",
		l.partition, string(entry.Host), toMicros(entry.BounceTime), toMicros(entry.PurgeTime),
	); err != nil {
		return fmt.Errorf("insert purge log entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purge_log WHERE partition = ? AND id NOT IN (
			SELECT id FROM purge_log WHERE partition = ? ORDER BY id DESC LIMIT ?
		)
	`, l.partition, l.partition, l.capacity); err != nil {
		return fmt.Errorf("trim purge log: %w", err)
	}
	return tx.Commit()
}

func (l *SQLitePurgeLog) Entries(ctx context.Context) ([]model.PurgeLogEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT host, bounce_ts, purge_ts FROM purge_log WHERE partition = ? ORDER BY id",
		l.partition,
	)
	if err != nil {
		return nil, fmt.Errorf("query purge log: %w", err)
	}
	defer rows.Close()

	entries := []model.PurgeLogEntry{}
	for rows.Next() {
		var host string
		var bounce, purged int64
		if err := rows.Scan(&host, &bounce, &purged); err != nil {
			return nil, fmt.Errorf("scan purge log entry: %w", err)
		}
		entries = append(entries, model.PurgeLogEntry{
			Host:       model.Host(host),
			BounceTime: fromMicros(bounce),
			PurgeTime:  fromMicros(purged),
		})
	}
	return entries, rows.Err()
}

func (l *SQLitePurgeLog) Clear(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "DELETE FROM purge_log WHERE partition = ?", l.partition)
	if err != nil {
		return fmt.Errorf("clear purge log: %w", err)
	}
	return nil
}
