// Package purge runs the periodic cycle that clears the storage of bounce
// tracker candidates.
package purge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purgelog"
	"github.com/runnerr0/bounceguard/internal/storage"
)

// ErrDisabled is returned for cycles requested while the feature is off.
var ErrDisabled = errors.New("bounce tracking protection is disabled")

// Sink deletes all data stored for a site in one partition. It must return
// nil when there is nothing to delete.
type Sink interface {
	PurgeSite(ctx context.Context, host model.Host, attrs model.OriginAttributes) error
}

// AllowList names hosts that are never purged.
type AllowList interface {
	IsExempt(host model.Host) bool
}

// State is the phase of a partition's purge cycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StatePurging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StatePurging:
		return "purging"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Partition  string
	Mode       model.Mode
	StartedAt  time.Time
	FinishedAt time.Time
	// Purged holds the hosts whose data was deleted, sorted.
	Purged []model.Host
	// WouldPurge holds the hosts a dry-run cycle selected.
	WouldPurge []model.Host
	Failed     map[model.Host]error
	Exempt     []model.Host
	// Discarded holds purged hosts whose bookkeeping was dropped because
	// the partition was cleared while the sink call ran.
	Discarded []model.Host
}

// RunnerConfig wires a Runner to one partition.
type RunnerConfig struct {
	Attrs model.OriginAttributes
	Store storage.Store
	Log   purgelog.Log
	Sink  Sink
	Allow AllowList
	// Mode is read at the start of every cycle.
	Mode func() model.Mode
	Now  func() time.Time
	// Concurrency bounds parallel sink calls; values below 1 mean sequential.
	Concurrency int
	// Limiter paces sink calls when set.
	Limiter    *rate.Limiter
	Logger     *zap.Logger
	OnFinished func(*CycleResult)
}

// Runner executes purge cycles for a single partition. At most one cycle
// is in flight; concurrent Run calls share its result.
type Runner struct {
	cfg    RunnerConfig
	logger *zap.Logger

	group singleflight.Group
	state atomic.Int32

	// applyMu orders per-host bookkeeping against Invalidate.
	applyMu    sync.Mutex
	generation uint64
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mode == nil {
		cfg.Mode = func() model.Mode { return model.ModeEnabled }
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.Named("purge").With(zap.String("partition", cfg.Attrs.String())),
	}
}

func (r *Runner) Attrs() model.OriginAttributes {
	return r.cfg.Attrs
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run performs a cycle now, or joins the one already in flight.
func (r *Runner) Run(ctx context.Context) (*CycleResult, error) {
	if r.cfg.Mode() == model.ModeDisabled {
		return nil, ErrDisabled
	}
	v, err, shared := r.group.Do("cycle", func() (any, error) {
		return r.cycle(ctx)
	})
	if shared {
		r.logger.Debug("joined in-flight purge cycle")
	}
	if err != nil {
		return nil, err
	}
	return v.(*CycleResult), nil
}

// Invalidate runs clear while no purge result is being applied and makes
// results of sink calls still in flight be discarded.
func (r *Runner) Invalidate(ctx context.Context, clear func(ctx context.Context) error) error {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.generation++
	if clear == nil {
		return nil
	}
	return clear(ctx)
}

func (r *Runner) cycle(ctx context.Context) (*CycleResult, error) {
	mode := r.cfg.Mode()
	if mode == model.ModeDisabled {
		return nil, ErrDisabled
	}

	r.applyMu.Lock()
	gen := r.generation
	r.applyMu.Unlock()

	now := r.cfg.Now()
	res := &CycleResult{
		Partition: r.cfg.Attrs.Key(),
		Mode:      mode,
		StartedAt: now,
		Purged:    []model.Host{},
		Failed:    make(map[model.Host]error),
	}

	r.state.Store(int32(StateScanning))
	defer r.state.Store(int32(StateIdle))

	toPurge, err := r.scan(ctx, now, res)
	if err != nil {
		return nil, err
	}

	if mode == model.ModeDryRun {
		for _, rec := range toPurge {
			res.WouldPurge = append(res.WouldPurge, rec.Host)
		}
		r.logger.Info("dry-run purge cycle", zap.Int("would_purge", len(res.WouldPurge)))
	} else if len(toPurge) > 0 {
		r.state.Store(int32(StatePurging))
		r.purge(ctx, gen, toPurge, res)
	}

	res.FinishedAt = r.cfg.Now()
	sortHosts(res.Purged)
	sortHosts(res.Discarded)
	r.logger.Debug("purge cycle finished",
		zap.String("mode", mode.String()),
		zap.Int("purged", len(res.Purged)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("exempt", len(res.Exempt)),
	)
	if r.cfg.OnFinished != nil {
		r.cfg.OnFinished(res)
	}
	return res, nil
}

// scan sweeps expired rows, drops candidates that conflict with
// activations and returns the candidates eligible for purging.
func (r *Runner) scan(ctx context.Context, now time.Time, res *CycleResult) ([]model.HostRecord, error) {
	if n, err := r.cfg.Store.Sweep(ctx, now); err != nil {
		r.logger.Warn("sweep expired records", zap.Error(err))
	} else if n > 0 {
		r.logger.Debug("swept expired records", zap.Int64("count", n))
	}

	conflicts, err := r.cfg.Store.CheckConsistency(ctx, now)
	if err != nil {
		r.logger.Warn("consistency check", zap.Error(err))
	}
	for _, host := range conflicts {
		r.logger.Error("host held both a candidate and an activation; candidate dropped",
			zap.String("host", string(host)))
	}

	candidates, err := r.cfg.Store.Candidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	activations, err := r.cfg.Store.Activations(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	active := make(map[model.Host]struct{}, len(activations))
	for _, a := range activations {
		active[a.Host] = struct{}{}
	}

	var out []model.HostRecord
	for _, c := range candidates {
		if _, ok := active[c.Host]; ok {
			continue
		}
		if r.cfg.Allow != nil && r.cfg.Allow.IsExempt(c.Host) {
			res.Exempt = append(res.Exempt, c.Host)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Runner) purge(ctx context.Context, gen uint64, toPurge []model.HostRecord, res *CycleResult) {
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	var g errgroup.Group

	for i, rec := range toPurge {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			for _, rest := range toPurge[i:] {
				res.Failed[rest.Host] = err
			}
			mu.Unlock()
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r.purgeOne(ctx, gen, rec, res, &mu)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) purgeOne(ctx context.Context, gen uint64, rec model.HostRecord, res *CycleResult, mu *sync.Mutex) {
	fail := func(err error) {
		r.logger.Warn("purge failed; will retry next cycle",
			zap.String("host", string(rec.Host)), zap.Error(err))
		mu.Lock()
		res.Failed[rec.Host] = err
		mu.Unlock()
	}

	if r.cfg.Limiter != nil {
		if err := r.cfg.Limiter.Wait(ctx); err != nil {
			fail(err)
			return
		}
	}
	if err := r.cfg.Sink.PurgeSite(ctx, rec.Host, r.cfg.Attrs); err != nil {
		fail(err)
		return
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	if r.generation != gen {
		r.logger.Debug("partition cleared during purge; result discarded",
			zap.String("host", string(rec.Host)))
		mu.Lock()
		res.Discarded = append(res.Discarded, rec.Host)
		mu.Unlock()
		return
	}

	if _, err := r.cfg.Store.RemoveCandidate(ctx, rec.Host, rec.Timestamp); err != nil {
		fail(fmt.Errorf("remove candidate: %w", err))
		return
	}
	entry := model.PurgeLogEntry{Host: rec.Host, BounceTime: rec.Timestamp, PurgeTime: r.cfg.Now()}
	if r.cfg.Log != nil {
		if err := r.cfg.Log.Append(ctx, entry); err != nil {
			r.logger.Warn("append purge log", zap.String("host", string(rec.Host)), zap.Error(err))
		}
	}
	r.logger.Info("purged bounce tracker",
		zap.String("host", string(rec.Host)),
		zap.Time("bounce_time", rec.Timestamp),
	)

	mu.Lock()
	res.Purged = append(res.Purged, rec.Host)
	mu.Unlock()
}

func sortHosts(hosts []model.Host) {
	sort.Slice(hosts, func(i, j int) bool { return hosts[i] < hosts[j] })
}
