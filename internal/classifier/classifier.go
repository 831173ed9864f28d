// Package classifier turns a closed extended navigation into bounce
// tracker candidates and user activations.
package classifier

import (
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
)

// StateWriteChecker answers whether a host set state within a window.
type StateWriteChecker interface {
	HasStateWrite(host model.Host, since, until time.Time) bool
}

// Result is what one extended navigation contributes to the store.
type Result struct {
	Candidates  []model.HostRecord
	Activations []model.HostRecord
}

func (r Result) Empty() bool {
	return len(r.Candidates) == 0 && len(r.Activations) == 0
}

// Classify inspects a closed navigation. The initial host earns an
// activation at the chain start; the final host earns one when the chain
// closed through interaction. Hops strictly between the first and last
// position become candidates when their host wrote state while it was the
// active hop, unless the host is also the initial or final host. A chain
// that returns to the site it started on yields no candidates.
func Classify(nav *model.ExtendedNavigation, writes StateWriteChecker) Result {
	var res Result
	if nav == nil || len(nav.Hops) == 0 {
		return res
	}

	first := nav.Hops[0]
	last := nav.Hops[len(nav.Hops)-1]

	if nav.StartedByUserActivation {
		res.Activations = addActivation(res.Activations, first.Host, first.Timestamp)
	}
	if nav.CloseReason == model.CloseInteraction {
		at := nav.InteractionAt
		if at.IsZero() {
			at = nav.EndedAt
		}
		res.Activations = addActivation(res.Activations, last.Host, at)
	}

	if len(nav.Hops) < 3 || writes == nil || first.Host == last.Host {
		return res
	}

	seen := make(map[model.Host]bool)
	for i := 1; i < len(nav.Hops)-1; i++ {
		hop := nav.Hops[i]
		if hop.Host == first.Host || hop.Host == last.Host || seen[hop.Host] {
			continue
		}
		if !writes.HasStateWrite(hop.Host, hop.Timestamp, nav.Hops[i+1].Timestamp) {
			continue
		}
		seen[hop.Host] = true
		res.Candidates = append(res.Candidates, model.HostRecord{Host: hop.Host, Timestamp: hop.Timestamp})
	}
	return res
}

// addActivation keeps one record per host, the latest one.
func addActivation(list []model.HostRecord, host model.Host, at time.Time) []model.HostRecord {
	for i := range list {
		if list[i].Host == host {
			if at.After(list[i].Timestamp) {
				list[i].Timestamp = at
			}
			return list
		}
	}
	return append(list, model.HostRecord{Host: host, Timestamp: at})
}
