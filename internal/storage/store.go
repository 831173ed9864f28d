package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
)

// SQLiteStore implements Store for one partition of a shared SQLite
// database. Rows of every partition live in the same tables, keyed by the
// partition key.
type SQLiteStore struct {
	db        *sql.DB
	partition string
	retention time.Duration

	upsertCandidate  *sql.Stmt
	upsertActivation *sql.Stmt
	listCandidates   *sql.Stmt
	listActivations  *sql.Stmt
}

// NewSQLiteStore creates a store for attrs on an already-migrated database.
func NewSQLiteStore(db *sql.DB, attrs model.OriginAttributes, retention time.Duration) (*SQLiteStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &SQLiteStore{db: db, partition: attrs.Key(), retention: retention}

	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsertCandidate, err = s.db.Prepare(`
		INSERT INTO bounce_candidates (partition, host, ts) VALUES (?, ?, ?)
		ON CONFLICT(partition, host) DO UPDATE SET ts = MAX(ts, excluded.ts), updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	s.upsertActivation, err = s.db.Prepare(`
		INSERT INTO user_activations (partition, host, ts) VALUES (?, ?, ?)
		ON CONFLICT(partition, host) DO UPDATE SET ts = MAX(ts, excluded.ts), updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	s.listCandidates, err = s.db.Prepare(`
		SELECT host, ts FROM bounce_candidates
		WHERE partition = ? AND ts >= ?
		ORDER BY ts, host
	`)
	if err != nil {
		return err
	}

	s.listActivations, err = s.db.Prepare(`
		SELECT host, ts FROM user_activations
		WHERE partition = ? AND ts >= ?
		ORDER BY ts, host
	`)
	return err
}

// Partition returns the partition key this store is bound to.
func (s *SQLiteStore) Partition() string {
	return s.partition
}

func (s *SQLiteStore) RecordCandidate(ctx context.Context, host model.Host, ts time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var actMicros int64
	err = tx.QueryRowContext(ctx,
		"SELECT ts FROM user_activations WHERE partition = ? AND host = ?",
		s.partition, string(host),
	).Scan(&actMicros)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, fmt.Errorf("lookup activation: %w", err)
	case !expired(fromMicros(actMicros), ts, s.retention):
		return false, nil
	default:
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM user_activations WHERE partition = ? AND host = ?",
			s.partition, string(host),
		); err != nil {
			return false, fmt.Errorf("drop expired activation: %w", err)
		}
	}

	if _, err := tx.StmtContext(ctx, s.upsertCandidate).ExecContext(ctx, s.partition, string(host), toMicros(ts)); err != nil {
		return false, fmt.Errorf("upsert candidate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit candidate: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordActivation(ctx context.Context, host model.Host, ts time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.StmtContext(ctx, s.upsertActivation).ExecContext(ctx, s.partition, string(host), toMicros(ts)); err != nil {
		return fmt.Errorf("upsert activation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM bounce_candidates WHERE partition = ? AND host = ?",
		s.partition, string(host),
	); err != nil {
		return fmt.Errorf("drop candidate: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Candidates(ctx context.Context, now time.Time) ([]model.HostRecord, error) {
	return s.scanRecords(ctx, s.listCandidates, now)
}

func (s *SQLiteStore) Activations(ctx context.Context, now time.Time) ([]model.HostRecord, error) {
	return s.scanRecords(ctx, s.listActivations, now)
}

func (s *SQLiteStore) RemoveCandidate(ctx context.Context, host model.Host, notAfter time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM bounce_candidates WHERE partition = ? AND host = ? AND ts <= ?",
		s.partition, string(host), toMicros(notAfter),
	)
	if err != nil {
		return false, fmt.Errorf("remove candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) RemoveHost(ctx context.Context, host model.Host) error {
	for _, table := range []string{"bounce_candidates", "user_activations"} {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE partition = ? AND host = ?",
			s.partition, string(host),
		); err != nil {
			return fmt.Errorf("remove host from %s: %w", table, err)
		}
	}
	return nil
}

// Sweep deletes expired rows of this partition.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := toMicros(now.Add(-s.retention))

	var total int64
	for _, table := range []string{"bounce_candidates", "user_activations"} {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE partition = ? AND ts < ?",
			s.partition, cutoff,
		)
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"bounce_candidates", "user_activations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE partition = ?", s.partition); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CheckConsistency(ctx context.Context, now time.Time) ([]model.Host, error) {
	cutoff := toMicros(now.Add(-s.retention))

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.host FROM bounce_candidates c
		JOIN user_activations a ON a.partition = c.partition AND a.host = c.host
		WHERE c.partition = ? AND c.ts >= ? AND a.ts >= ?
		ORDER BY c.host
	`, s.partition, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find conflicts: %w", err)
	}

	var conflicts []model.Host
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, model.Host(host))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, host := range conflicts {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM bounce_candidates WHERE partition = ? AND host = ?",
			s.partition, string(host),
		); err != nil {
			return conflicts, fmt.Errorf("resolve conflict for %s: %w", host, err)
		}
	}
	return conflicts, nil
}

func (s *SQLiteStore) scanRecords(ctx context.Context, stmt *sql.Stmt, now time.Time) ([]model.HostRecord, error) {
	rows, err := stmt.QueryContext(ctx, s.partition, toMicros(now.Add(-s.retention)))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []model.HostRecord{}
	for rows.Next() {
		var host string
		var micros int64
		if err := rows.Scan(&host, &micros); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, model.HostRecord{Host: model.Host(host), Timestamp: fromMicros(micros)})
	}
	return records, rows.Err()
}

// Close releases the prepared statements. The *sql.DB stays open; it is
// shared by every partition and owned by the caller.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.upsertCandidate, s.upsertActivation, s.listCandidates, s.listActivations}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// ListPartitions returns every partition key with persisted records.
func ListPartitions(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT partition FROM bounce_candidates
		UNION SELECT partition FROM user_activations
		UNION SELECT partition FROM purge_log
		ORDER BY partition
	`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetStats summarizes every persisted partition. Expired rows are not
// counted.
func GetStats(ctx context.Context, db *sql.DB, now time.Time, retention time.Duration) ([]PartitionStats, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	keys, err := ListPartitions(ctx, db)
	if err != nil {
		return nil, err
	}
	cutoff := toMicros(now.Add(-retention))

	stats := make([]PartitionStats, 0, len(keys))
	for _, key := range keys {
		ps := PartitionStats{Partition: key}

		var oldest, newest sql.NullInt64
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*), MIN(ts), MAX(ts) FROM bounce_candidates WHERE partition = ? AND ts >= ?",
			key, cutoff,
		).Scan(&ps.Candidates, &oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("count candidates: %w", err)
		}
		if oldest.Valid {
			ps.OldestCandidate = fromMicros(oldest.Int64)
			ps.NewestCandidate = fromMicros(newest.Int64)
		}

		err = db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM user_activations WHERE partition = ? AND ts >= ?",
			key, cutoff,
		).Scan(&ps.Activations)
		if err != nil {
			return nil, fmt.Errorf("count activations: %w", err)
		}

		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purge_log WHERE partition = ?", key).Scan(&ps.Purged)
		if err != nil {
			return nil, fmt.Errorf("count purge log: %w", err)
		}
		stats = append(stats, ps)
	}
	return stats, nil
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
