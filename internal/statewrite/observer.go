// Package statewrite remembers which hosts set state and when, for as long
// as open redirect chains may still ask about it.
package statewrite

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/bounceguard/internal/model"
)

// Write is one observed storage-setting operation.
type Write struct {
	Kind          model.WriteKind
	At            time.Time
	InIframe      bool
	SameSiteToTop bool
}

// Observer indexes state writes by host, each list ordered by time.
// It is owned by a single partition and not safe for concurrent use.
type Observer struct {
	logger *zap.Logger
	writes map[model.Host][]Write
	latest time.Time
	count  int
}

func NewObserver(logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		logger: logger,
		writes: make(map[model.Host][]Write),
	}
}

// RecordStateWrite stores a write. Writes made from a sub-frame must be
// passed with the sub-frame's host.
func (o *Observer) RecordStateWrite(host model.Host, kind model.WriteKind, ts time.Time, inIframe, sameSiteToTop bool) {
	w := Write{Kind: kind, At: ts, InIframe: inIframe, SameSiteToTop: sameSiteToTop}

	list := o.writes[host]
	i := sort.Search(len(list), func(i int) bool { return list[i].At.After(ts) })
	list = append(list, Write{})
	copy(list[i+1:], list[i:])
	list[i] = w
	o.writes[host] = list
	o.count++

	if ts.After(o.latest) {
		o.latest = ts
	}
	if inIframe {
		o.logger.Debug("State write from sub-frame",
			zap.String("host", string(host)),
			zap.Stringer("kind", kind),
			zap.Bool("same_site_to_top", sameSiteToTop))
	}
}

// HasStateWrite reports whether host wrote state within [since, until].
func (o *Observer) HasStateWrite(host model.Host, since, until time.Time) bool {
	list := o.writes[host]
	i := sort.Search(len(list), func(i int) bool { return !list[i].At.Before(since) })
	return i < len(list) && !list[i].At.After(until)
}

// Writes returns a copy of the retained writes of host.
func (o *Observer) Writes(host model.Host) []Write {
	list := o.writes[host]
	out := make([]Write, len(list))
	copy(out, list)
	return out
}

// Prune drops writes older than cutoff and returns how many were removed.
func (o *Observer) Prune(cutoff time.Time) int {
	removed := 0
	for host, list := range o.writes {
		i := sort.Search(len(list), func(i int) bool { return !list[i].At.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(list) {
			delete(o.writes, host)
			continue
		}
		o.writes[host] = append(list[:0:0], list[i:]...)
	}
	o.count -= removed
	return removed
}

// Latest returns the newest write time seen.
func (o *Observer) Latest() time.Time {
	return o.latest
}

// Len returns the number of retained writes.
func (o *Observer) Len() int {
	return o.count
}

func (o *Observer) Reset() {
	o.writes = make(map[model.Host][]Write)
	o.latest = time.Time{}
	o.count = 0
}
