// Package navigation tracks extended navigations: redirect chains that
// start with a user-activated navigation in a top-level browsing context.
package navigation

import (
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/bounceguard/internal/model"
)

// DefaultClientRedirectTimeout is how long a chain may sit on its last hop
// before it is considered settled.
const DefaultClientRedirectTimeout = 2500 * time.Millisecond

// MaxTrackedContexts bounds how many browsing contexts without an open
// chain keep their committed host. The least recently navigated one is
// forgotten first.
const MaxTrackedContexts = 1024

var (
	ErrNoOpenNavigation = errors.New("no open extended navigation for browsing context")
	ErrNotUserActivated = errors.New("navigation was not user activated")
)

// Recorder holds the open extended navigations of one partition. It is not
// safe for concurrent use; the owning partition serializes all calls.
type Recorder struct {
	timeout time.Duration
	logger  *zap.Logger

	open    map[uint64]*model.ExtendedNavigation
	current map[uint64]committed
}

// committed is the last navigation of a browsing context.
type committed struct {
	host model.Host
	at   time.Time
}

// NewRecorder returns a Recorder closing idle chains after timeout.
func NewRecorder(timeout time.Duration, logger *zap.Logger) *Recorder {
	if timeout <= 0 {
		timeout = DefaultClientRedirectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		timeout: timeout,
		logger:  logger,
		open:    make(map[uint64]*model.ExtendedNavigation),
		current: make(map[uint64]committed),
	}
}

// Timeout returns the client redirect timeout in effect.
func (r *Recorder) Timeout() time.Duration {
	return r.timeout
}

// Begin starts a new extended navigation for bcID. Only user-activated
// navigations start one. A chain already open for the context is closed as
// superseded and returned so the caller can classify it.
func (r *Recorder) Begin(bcID uint64, host model.Host, userActivated bool, ts time.Time) (*model.ExtendedNavigation, error) {
	if !userActivated {
		return nil, ErrNotUserActivated
	}

	prev := r.close(bcID, model.CloseSuperseded, ts)

	r.commit(bcID, host, ts)
	r.open[bcID] = &model.ExtendedNavigation{
		BrowsingContextID:       bcID,
		StartedByUserActivation: true,
		Hops: []model.NavigationHop{{
			Host:          host,
			Type:          model.HopClient,
			Timestamp:     ts,
			IsInitialHost: true,
		}},
	}
	return prev, nil
}

// RecordHop appends a redirect hop to the open chain of bcID.
func (r *Recorder) RecordHop(bcID uint64, host model.Host, hopType model.HopType, ts time.Time) error {
	r.commit(bcID, host, ts)

	nav, ok := r.open[bcID]
	if !ok {
		return ErrNoOpenNavigation
	}

	if last := nav.LastHopAt(); ts.Before(last) {
		r.logger.Debug("Clamping out-of-order hop",
			zap.Uint64("browsing_context", bcID),
			zap.String("host", string(host)),
			zap.Time("hop_time", ts),
			zap.Time("last_hop_time", last))
		ts = last
	}

	nav.Hops = append(nav.Hops, model.NavigationHop{
		Host:      host,
		Type:      hopType,
		Timestamp: ts,
	})
	return nil
}

// RecordInteraction closes the chain of bcID when the user interacts with
// its final page. Every navigation committed while a chain is open is one
// of its hops, so the page shown is always the chain's final host.
func (r *Recorder) RecordInteraction(bcID uint64, ts time.Time) (*model.ExtendedNavigation, error) {
	nav, ok := r.open[bcID]
	if !ok {
		return nil, ErrNoOpenNavigation
	}
	nav.InteractionAt = ts
	return r.close(bcID, model.CloseInteraction, ts), nil
}

// Tick closes every chain whose last hop is at least the client redirect
// timeout older than now. Closed chains are returned ordered by context id.
func (r *Recorder) Tick(now time.Time) []*model.ExtendedNavigation {
	var due []uint64
	for id, nav := range r.open {
		if now.Sub(nav.LastHopAt()) >= r.timeout {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	closed := make([]*model.ExtendedNavigation, 0, len(due))
	for _, id := range due {
		closed = append(closed, r.close(id, model.CloseTimeout, now))
	}
	return closed
}

// CloseForDestroyedContext closes the chain of a browsing context that
// went away and forgets the context.
func (r *Recorder) CloseForDestroyedContext(bcID uint64, ts time.Time) (*model.ExtendedNavigation, error) {
	delete(r.current, bcID)
	nav := r.close(bcID, model.CloseContextDestroyed, ts)
	if nav == nil {
		return nil, ErrNoOpenNavigation
	}
	return nav, nil
}

// OldestOpenStart returns the start time of the oldest open chain.
func (r *Recorder) OldestOpenStart() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, nav := range r.open {
		start := nav.StartedAt()
		if !found || start.Before(oldest) {
			oldest = start
			found = true
		}
	}
	return oldest, found
}

// Current returns the host last committed in bcID, whether or not a chain
// is open for it.
func (r *Recorder) Current(bcID uint64) (model.Host, bool) {
	c, ok := r.current[bcID]
	return c.host, ok
}

// Tracked returns the number of browsing contexts with a known host.
func (r *Recorder) Tracked() int {
	return len(r.current)
}

func (r *Recorder) commit(bcID uint64, host model.Host, ts time.Time) {
	r.current[bcID] = committed{host: host, at: ts}
	if len(r.current) <= MaxTrackedContexts+len(r.open) {
		return
	}

	var (
		oldest   uint64
		oldestAt time.Time
		found    bool
	)
	for id, c := range r.current {
		if _, open := r.open[id]; open || id == bcID {
			continue
		}
		if !found || c.at.Before(oldestAt) || (c.at.Equal(oldestAt) && id < oldest) {
			oldest, oldestAt, found = id, c.at, true
		}
	}
	if found {
		delete(r.current, oldest)
		r.logger.Debug("Forgetting idle browsing context", zap.Uint64("browsing_context", oldest))
	}
}

// Open returns the number of open chains.
func (r *Recorder) Open() int {
	return len(r.open)
}

func (r *Recorder) close(bcID uint64, reason model.CloseReason, ts time.Time) *model.ExtendedNavigation {
	nav, ok := r.open[bcID]
	if !ok {
		return nil
	}
	delete(r.open, bcID)

	nav.CloseReason = reason
	nav.EndedAt = ts
	return nav
}
