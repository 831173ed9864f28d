package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
)

// MemoryStore keeps a partition's records in maps. Private partitions use
// it so nothing reaches disk.
type MemoryStore struct {
	retention time.Duration

	mu          sync.Mutex
	candidates  map[model.Host]time.Time
	activations map[model.Host]time.Time
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		retention:   retention,
		candidates:  make(map[model.Host]time.Time),
		activations: make(map[model.Host]time.Time),
	}
}

func (s *MemoryStore) RecordCandidate(_ context.Context, host model.Host, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act, ok := s.activations[host]; ok {
		if !expired(act, ts, s.retention) {
			return false, nil
		}
		delete(s.activations, host)
	}
	if prev, ok := s.candidates[host]; !ok || ts.After(prev) {
		s.candidates[host] = ts
	}
	return true, nil
}

func (s *MemoryStore) RecordActivation(_ context.Context, host model.Host, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.activations[host]; !ok || ts.After(prev) {
		s.activations[host] = ts
	}
	delete(s.candidates, host)
	return nil
}

func (s *MemoryStore) Candidates(_ context.Context, now time.Time) ([]model.HostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(s.candidates, now), nil
}

func (s *MemoryStore) Activations(_ context.Context, now time.Time) ([]model.HostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(s.activations, now), nil
}

func (s *MemoryStore) RemoveCandidate(_ context.Context, host model.Host, notAfter time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.candidates[host]
	if !ok || ts.After(notAfter) {
		return false, nil
	}
	delete(s.candidates, host)
	return true, nil
}

func (s *MemoryStore) RemoveHost(_ context.Context, host model.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.candidates, host)
	delete(s.activations, host)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range []map[model.Host]time.Time{s.candidates, s.activations} {
		for host, ts := range m {
			if expired(ts, now, s.retention) {
				delete(m, host)
				n++
			}
		}
	}
	return n, nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidates = make(map[model.Host]time.Time)
	s.activations = make(map[model.Host]time.Time)
	return nil
}

func (s *MemoryStore) CheckConsistency(_ context.Context, now time.Time) ([]model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []model.Host
	for host, ts := range s.candidates {
		act, ok := s.activations[host]
		if !ok || expired(ts, now, s.retention) || expired(act, now, s.retention) {
			continue
		}
		delete(s.candidates, host)
		conflicts = append(conflicts, host)
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
	return conflicts, nil
}

// live returns the non-expired records ordered by time, then host.
func (s *MemoryStore) live(m map[model.Host]time.Time, now time.Time) []model.HostRecord {
	out := []model.HostRecord{}
	for host, ts := range m {
		if expired(ts, now, s.retention) {
			continue
		}
		out = append(out, model.HostRecord{Host: host, Timestamp: ts})
	}
	sortRecords(out)
	return out
}

func sortRecords(records []model.HostRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].Host < records[j].Host
	})
}
