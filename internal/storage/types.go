package storage

import (
	"context"
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purgelog"
)

// DefaultRetention is how long candidate and activation records live.
const DefaultRetention = 45 * 24 * time.Hour

// Store holds the bounce tracker candidates and user activations of one
// partition. Implementations are safe for concurrent use.
//
// A record expires when now - timestamp > retention. Expired records are
// invisible to reads and physically removed by later writes or Sweep.
type Store interface {
	// RecordCandidate upserts a candidate unless the host holds an
	// activation that has not expired at ts. It reports whether the
	// candidate was stored.
	RecordCandidate(ctx context.Context, host model.Host, ts time.Time) (bool, error)
	// RecordActivation upserts an activation and drops any candidate
	// record for the host.
	RecordActivation(ctx context.Context, host model.Host, ts time.Time) error
	Candidates(ctx context.Context, now time.Time) ([]model.HostRecord, error)
	Activations(ctx context.Context, now time.Time) ([]model.HostRecord, error)
	// RemoveCandidate drops the candidate only if its timestamp is not
	// after notAfter, so a bounce recorded while a purge ran survives.
	RemoveCandidate(ctx context.Context, host model.Host, notAfter time.Time) (bool, error)
	// RemoveHost drops every record for host.
	RemoveHost(ctx context.Context, host model.Host) error
	Sweep(ctx context.Context, now time.Time) (int64, error)
	ClearAll(ctx context.Context) error
	// CheckConsistency finds hosts holding both a live candidate and a
	// live activation, removes the candidates and returns the hosts.
	CheckConsistency(ctx context.Context, now time.Time) ([]model.Host, error)
}

// Backend opens the per-partition store and purge log.
type Backend interface {
	Open(ctx context.Context, attrs model.OriginAttributes) (Store, purgelog.Log, error)
	// Partitions lists partitions with persisted state.
	Partitions(ctx context.Context) ([]model.OriginAttributes, error)
}

// PartitionStats summarizes one partition's persisted state.
type PartitionStats struct {
	Partition       string
	Candidates      int64
	Activations     int64
	Purged          int64
	OldestCandidate time.Time
	NewestCandidate time.Time
}

func expired(ts, now time.Time, retention time.Duration) bool {
	return now.Sub(ts) > retention
}
