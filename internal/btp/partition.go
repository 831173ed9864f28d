package btp

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/bounceguard/internal/classifier"
	"github.com/runnerr0/bounceguard/internal/events"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/navigation"
	"github.com/runnerr0/bounceguard/internal/purge"
	"github.com/runnerr0/bounceguard/internal/purgelog"
	"github.com/runnerr0/bounceguard/internal/statewrite"
	"github.com/runnerr0/bounceguard/internal/storage"
)

var errPartitionClosed = errors.New("partition closed")

// partition owns the state of one origin-attributes partition. The
// recorder and observer are touched only by the actor goroutine; the store
// and log are also read by admin calls and the purge runner.
type partition struct {
	attrs     model.OriginAttributes
	lookback  time.Duration
	logger    *zap.Logger
	publisher *events.Publisher

	recorder *navigation.Recorder
	observer *statewrite.Observer
	store    storage.Store
	log      purgelog.Log
	runner   *purge.Runner

	queue chan any
	stop  chan struct{}
	done  chan struct{}
}

func (p *partition) start() {
	go p.run()
}

func (p *partition) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case item := <-p.queue:
			p.handle(item)
		}
	}
}

// enqueue hands an item to the actor, blocking while the queue is full.
func (p *partition) enqueue(item any) error {
	select {
	case <-p.stop:
		return errPartitionClosed
	default:
	}
	select {
	case p.queue <- item:
		return nil
	case <-p.stop:
		return errPartitionClosed
	}
}

// call runs fn on the actor goroutine after every item queued before it.
func (p *partition) call(ctx context.Context, fn func() error) error {
	item := callItem{fn: fn, done: make(chan error, 1)}
	if err := p.enqueue(item); err != nil {
		return err
	}
	select {
	case err := <-item.done:
		return err
	case <-p.stop:
		return errPartitionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *partition) flush(ctx context.Context) error {
	return p.call(ctx, func() error { return nil })
}

// shutdown stops the actor and waits for it to exit. Queued items are
// dropped.
func (p *partition) shutdown() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

func (p *partition) handle(item any) {
	switch it := item.(type) {
	case hopItem:
		p.onHop(it)
	case writeItem:
		p.observer.RecordStateWrite(it.host, it.kind, it.at, it.inIframe, it.sameSiteToTop)
	case interactionItem:
		p.onInteraction(it)
	case destroyItem:
		nav, err := p.recorder.CloseForDestroyedContext(it.bcID, it.at)
		if err != nil {
			p.logger.Debug("context destroyed without open navigation", zap.Uint64("browsing_context", it.bcID))
		} else {
			p.finish(nav)
		}
	case tickItem:
		for _, nav := range p.recorder.Tick(it.now) {
			p.finish(nav)
		}
	case resetItem:
		p.recorder = navigation.NewRecorder(p.recorder.Timeout(), p.logger.Named("recorder"))
		p.observer.Reset()
	case callItem:
		it.done <- it.fn()
		return
	default:
		p.logger.Error("unknown queue item", zap.Any("item", item))
		return
	}
	p.prune()
}

func (p *partition) onHop(it hopItem) {
	if it.userActivated {
		prev, err := p.recorder.Begin(it.bcID, it.host, true, it.at)
		if err != nil {
			p.logger.Warn("begin navigation", zap.Error(err))
			return
		}
		if prev != nil {
			p.finish(prev)
		}
		return
	}
	if err := p.recorder.RecordHop(it.bcID, it.host, it.hopType, it.at); err != nil {
		p.logger.Debug("hop outside extended navigation",
			zap.Uint64("browsing_context", it.bcID),
			zap.String("host", string(it.host)),
			zap.Error(err))
	}
}

// onInteraction closes the chain through its final page. With no open
// chain the interaction still counts as an activation of the committed
// host.
func (p *partition) onInteraction(it interactionItem) {
	nav, err := p.recorder.RecordInteraction(it.bcID, it.at)
	if err == nil {
		p.finish(nav)
		return
	}
	if !errors.Is(err, navigation.ErrNoOpenNavigation) {
		p.logger.Debug("interaction ignored", zap.Uint64("browsing_context", it.bcID), zap.Error(err))
		return
	}

	host, ok := p.recorder.Current(it.bcID)
	if !ok {
		p.logger.Debug("interaction in unknown browsing context", zap.Uint64("browsing_context", it.bcID))
		return
	}
	if err := p.store.RecordActivation(context.Background(), host, it.at); err != nil {
		p.logger.Warn("record activation", zap.String("host", string(host)), zap.Error(err))
	}
}

// finish classifies a closed chain and merges the result into the store,
// activations first.
func (p *partition) finish(nav *model.ExtendedNavigation) {
	ctx := context.Background()
	res := classifier.Classify(nav, p.observer)

	activations := make([]string, 0, len(res.Activations))
	for _, a := range res.Activations {
		if err := p.store.RecordActivation(ctx, a.Host, a.Timestamp); err != nil {
			p.logger.Warn("record activation", zap.String("host", string(a.Host)), zap.Error(err))
			continue
		}
		activations = append(activations, string(a.Host))
	}

	candidates := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		stored, err := p.store.RecordCandidate(ctx, c.Host, c.Timestamp)
		switch {
		case err != nil:
			p.logger.Warn("record bounce candidate", zap.String("host", string(c.Host)), zap.Error(err))
		case !stored:
			p.logger.Debug("candidate has user activation", zap.String("host", string(c.Host)))
		default:
			p.logger.Info("bounce tracker candidate",
				zap.String("host", string(c.Host)),
				zap.Time("bounce_time", c.Timestamp),
				zap.Uint64("browsing_context", nav.BrowsingContextID))
			candidates = append(candidates, string(c.Host))
		}
	}

	p.logger.Debug("extended navigation classified",
		zap.Uint64("browsing_context", nav.BrowsingContextID),
		zap.Stringer("reason", nav.CloseReason),
		zap.Int("hops", len(nav.Hops)),
		zap.Int("candidates", len(candidates)))

	err := p.publisher.RecordBouncesFinished(events.RecordBouncesFinished{
		Partition:         p.attrs.Key(),
		BrowsingContextID: nav.BrowsingContextID,
		CloseReason:       nav.CloseReason.String(),
		InitialHost:       string(nav.InitialHost()),
		FinalHost:         string(nav.FinalHost()),
		Hops:              len(nav.Hops),
		Candidates:        candidates,
		Activations:       activations,
		ClosedAt:          nav.EndedAt,
	})
	if err != nil {
		p.logger.Warn("publish record bounces finished", zap.Error(err))
	}
}

// prune drops state writes no open chain can still ask about.
func (p *partition) prune() {
	if p.observer.Len() == 0 {
		return
	}
	cutoff := p.observer.Latest().Add(-p.lookback)
	if oldest, ok := p.recorder.OldestOpenStart(); ok && oldest.Before(cutoff) {
		cutoff = oldest
	}
	p.observer.Prune(cutoff)
}
