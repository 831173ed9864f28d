package purge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the time between periodic cycles.
const DefaultInterval = time.Hour

// Scheduler triggers a cycle on every runner returned by Runners at a fixed
// interval. Partitions are cycled concurrently.
type Scheduler struct {
	interval time.Duration
	runners  func() []*Runner
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(interval time.Duration, runners func() []*Runner, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{interval: interval, runners: runners, logger: logger.Named("scheduler")}
}

// Start launches the ticker loop. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-progress round to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce cycles every partition and waits for all of them.
func (s *Scheduler) RunOnce(ctx context.Context) {
	var g errgroup.Group
	for _, r := range s.runners() {
		g.Go(func() error {
			_, err := r.Run(ctx)
			switch {
			case err == nil, errors.Is(err, ErrDisabled):
			case errors.Is(err, context.Canceled):
			default:
				s.logger.Warn("scheduled purge cycle failed",
					zap.String("partition", r.Attrs().String()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
