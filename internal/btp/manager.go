// Package btp ties the bounce tracking protection components together: one
// actor per origin-attributes partition consumes navigation, state-write
// and interaction events in order, classifies closed redirect chains and
// feeds the purge cycle.
package btp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/runnerr0/bounceguard/internal/events"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/navigation"
	"github.com/runnerr0/bounceguard/internal/purge"
	"github.com/runnerr0/bounceguard/internal/statewrite"
	"github.com/runnerr0/bounceguard/internal/storage"
)

var (
	// ErrDisabled is returned by administrative calls that need the feature
	// on while the mode is ModeDisabled.
	ErrDisabled = purge.ErrDisabled
	ErrClosed   = errors.New("bounce tracking manager closed")
	ErrNoSink   = errors.New("no purge sink configured")
)

// Options carries the collaborators of a Manager. Only Sink is needed for
// purging; everything else has a default.
type Options struct {
	Backend   storage.Backend
	Sink      purge.Sink
	AllowList purge.AllowList
	Publisher *events.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// Manager is the single entry point of the subsystem. It is safe for
// concurrent use.
type Manager struct {
	settings Settings
	opts     Options
	logger   *zap.Logger
	mode     atomic.Int32
	limiter  *rate.Limiter

	mu         sync.Mutex
	partitions map[string]*partition
	closed     bool

	scheduler *purge.Scheduler
	startOnce sync.Once
	stopTick  context.CancelFunc
	tickDone  chan struct{}
}

func NewManager(settings Settings, opts Options) *Manager {
	settings = settings.withDefaults()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Backend == nil {
		opts.Backend = storage.NewMemoryBackend(settings.RetentionWindow, settings.PurgeLogSize)
	}
	if opts.Sink == nil {
		opts.Sink = missingSink{}
	}

	m := &Manager{
		settings:   settings,
		opts:       opts,
		logger:     opts.Logger.Named("btp"),
		partitions: make(map[string]*partition),
	}
	m.mode.Store(int32(settings.Mode))
	if settings.PurgeRatePerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(settings.PurgeRatePerSecond), 1)
	}
	m.scheduler = purge.NewScheduler(settings.PurgeCycleInterval, m.runners, m.logger)
	return m
}

// Start launches the timeout ticker and the periodic purge scheduler.
// Partitions with persisted state are opened so they are purged even
// without new events.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		var attrs []model.OriginAttributes
		attrs, err = m.opts.Backend.Partitions(ctx)
		if err != nil {
			err = fmt.Errorf("list partitions: %w", err)
			return
		}
		for _, a := range attrs {
			if a.IsPrivate() {
				continue
			}
			if _, err = m.partition(a, true); err != nil {
				return
			}
		}

		tickCtx, cancel := context.WithCancel(context.Background())
		m.stopTick = cancel
		m.tickDone = make(chan struct{})
		go m.tickLoop(tickCtx, m.tickDone)
		m.scheduler.Start(context.Background())

		m.logger.Info("bounce tracking protection started",
			zap.Stringer("mode", m.Mode()),
			zap.Int("partitions", len(attrs)),
			zap.Duration("purge_interval", m.settings.PurgeCycleInterval))
	})
	return err
}

func (m *Manager) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.settings.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(m.opts.Now())
		}
	}
}

// Close stops the background loops, applies every queued event and stops
// the partitions. The backend is left open.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	parts := make([]*partition, 0, len(m.partitions))
	for _, p := range m.partitions {
		parts = append(parts, p)
	}
	m.partitions = make(map[string]*partition)
	m.mu.Unlock()

	if m.stopTick != nil {
		m.stopTick()
		<-m.tickDone
	}
	m.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range parts {
		if err := p.flush(ctx); err != nil {
			m.logger.Warn("flush partition on close", zap.String("partition", p.attrs.String()), zap.Error(err))
		}
		p.shutdown()
	}
	return nil
}

func (m *Manager) Mode() model.Mode {
	return model.Mode(m.mode.Load())
}

// SetMode switches the operating mode. Switching to ModeDisabled also
// forgets open navigations and buffered state writes.
func (m *Manager) SetMode(mode model.Mode) {
	prev := model.Mode(m.mode.Swap(int32(mode)))
	if prev == mode {
		return
	}
	m.logger.Info("mode changed", zap.Stringer("from", prev), zap.Stringer("to", mode))
	if mode == model.ModeDisabled {
		for _, p := range m.openPartitions() {
			_ = p.enqueue(resetItem{})
		}
	}
}

func (m *Manager) Settings() Settings {
	return m.settings
}

// partition returns the actor for attrs, opening it when create is set.
// It returns (nil, nil) for a missing partition when create is false.
func (m *Manager) partition(attrs model.OriginAttributes, create bool) (*partition, error) {
	key := attrs.Key()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if p, ok := m.partitions[key]; ok {
		return p, nil
	}
	if !create {
		return nil, nil
	}

	store, log, err := m.opts.Backend.Open(context.Background(), attrs)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", attrs, err)
	}
	logger := m.logger.With(zap.String("partition", attrs.String()))
	p := &partition{
		attrs:     attrs,
		lookback:  m.settings.StateWriteLookback,
		logger:    logger,
		publisher: m.opts.Publisher,
		recorder:  navigation.NewRecorder(m.settings.ClientRedirectTimeout, logger.Named("recorder")),
		observer:  statewrite.NewObserver(logger.Named("observer")),
		store:     store,
		log:       log,
		queue:     make(chan any, m.settings.EventBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.runner = purge.NewRunner(purge.RunnerConfig{
		Attrs:       attrs,
		Store:       store,
		Log:         log,
		Sink:        m.opts.Sink,
		Allow:       m.opts.AllowList,
		Mode:        m.Mode,
		Now:         m.opts.Now,
		Concurrency: m.settings.PurgeConcurrency,
		Limiter:     m.limiter,
		Logger:      m.logger,
		OnFinished:  m.publishCycle,
	})
	m.partitions[key] = p
	p.start()

	m.logger.Debug("partition opened", zap.String("partition", attrs.String()))
	return p, nil
}

func (m *Manager) openPartitions() []*partition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*partition, 0, len(m.partitions))
	for _, p := range m.partitions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].attrs.Key() < out[j].attrs.Key() })
	return out
}

func (m *Manager) runners() []*purge.Runner {
	parts := m.openPartitions()
	out := make([]*purge.Runner, len(parts))
	for i, p := range parts {
		out[i] = p.runner
	}
	return out
}

func (m *Manager) publishCycle(res *purge.CycleResult) {
	failed := make([]string, 0, len(res.Failed))
	for h := range res.Failed {
		failed = append(failed, string(h))
	}
	sort.Strings(failed)

	err := m.opts.Publisher.PurgeCycleFinished(events.PurgeCycleFinished{
		Partition:  res.Partition,
		Mode:       res.Mode.String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Purged:     hostStrings(res.Purged),
		WouldPurge: hostStrings(res.WouldPurge),
		Failed:     failed,
		Exempt:     hostStrings(res.Exempt),
		Discarded:  hostStrings(res.Discarded),
	})
	if err != nil {
		m.logger.Warn("publish purge cycle finished", zap.Error(err))
	}
}

func hostStrings(hosts []model.Host) []string {
	if len(hosts) == 0 {
		return nil
	}
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = string(h)
	}
	return out
}

type missingSink struct{}

func (missingSink) PurgeSite(context.Context, model.Host, model.OriginAttributes) error {
	return ErrNoSink
}
