package btp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purge"
)

// The On* methods feed events into the partition's queue. They never fail
// the caller: malformed input and events arriving while disabled or after
// Close are logged and dropped. They block only while the queue is full.

func (m *Manager) OnHop(ev HopEvent) {
	host, ok := m.admit(ev.Attrs, ev.Host, "hop")
	if !ok {
		return
	}
	m.submit(ev.Attrs, hopItem{
		bcID:          ev.BrowsingContextID,
		host:          host,
		hopType:       ev.Type,
		at:            m.at(ev.At),
		userActivated: ev.UserActivated,
	})
}

func (m *Manager) OnStateWrite(ev StateWriteEvent) {
	host, ok := m.admit(ev.Attrs, ev.Host, "state write")
	if !ok {
		return
	}
	m.submit(ev.Attrs, writeItem{
		host:          host,
		kind:          ev.Kind,
		at:            m.at(ev.At),
		inIframe:      ev.InIframe,
		sameSiteToTop: ev.SameSiteToTop,
	})
}

func (m *Manager) OnInteraction(ev InteractionEvent) {
	if m.Mode() == model.ModeDisabled {
		return
	}
	m.submit(ev.Attrs, interactionItem{bcID: ev.BrowsingContextID, at: m.at(ev.At)})
}

// OnContextDestroyed closes the context's open navigation immediately,
// cancelling its pending timeout.
func (m *Manager) OnContextDestroyed(ev ContextDestroyedEvent) {
	if m.Mode() == model.ModeDisabled {
		return
	}
	p, err := m.partition(ev.Attrs, false)
	if err != nil || p == nil {
		return
	}
	if err := p.enqueue(destroyItem{bcID: ev.BrowsingContextID, at: m.at(ev.At)}); err != nil {
		m.logger.Debug("drop context destroyed", zap.Error(err))
	}
}

// Tick closes every navigation idle for at least the client redirect
// timeout. Start calls it periodically; tests call it directly.
func (m *Manager) Tick(now time.Time) {
	if m.Mode() == model.ModeDisabled {
		return
	}
	for _, p := range m.openPartitions() {
		_ = p.enqueue(tickItem{now: now})
	}
}

// Flush waits until every event queued for attrs so far has been applied.
func (m *Manager) Flush(ctx context.Context, attrs model.OriginAttributes) error {
	p, err := m.partition(attrs, false)
	if err != nil || p == nil {
		return err
	}
	return p.flush(ctx)
}

// OnPrivateSessionClosed destroys every partition of the private browsing
// session. Purges still in flight for them are discarded.
func (m *Manager) OnPrivateSessionClosed(ctx context.Context, privateBrowsingID uint32) error {
	if privateBrowsingID == 0 {
		return fmt.Errorf("private browsing id must be positive")
	}

	m.mu.Lock()
	var doomed []*partition
	for key, p := range m.partitions {
		if p.attrs.PrivateBrowsingID == privateBrowsingID {
			doomed = append(doomed, p)
			delete(m.partitions, key)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range doomed {
		p.shutdown()
		err := p.runner.Invalidate(ctx, func(ctx context.Context) error {
			return errors.Join(p.store.ClearAll(ctx), p.log.Clear(ctx))
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", p.attrs, err))
		}
		m.logger.Info("private session partition destroyed", zap.String("partition", p.attrs.String()))
	}
	return errors.Join(errs...)
}

// CandidateHosts returns the live bounce tracker candidates of attrs,
// oldest first.
func (m *Manager) CandidateHosts(ctx context.Context, attrs model.OriginAttributes) ([]model.HostRecord, error) {
	p, err := m.settled(ctx, attrs)
	if err != nil || p == nil {
		return []model.HostRecord{}, err
	}
	return p.store.Candidates(ctx, m.opts.Now())
}

// UserActivationHosts returns the live user activations of attrs.
func (m *Manager) UserActivationHosts(ctx context.Context, attrs model.OriginAttributes) ([]model.HostRecord, error) {
	p, err := m.settled(ctx, attrs)
	if err != nil || p == nil {
		return []model.HostRecord{}, err
	}
	return p.store.Activations(ctx, m.opts.Now())
}

// RecentlyPurgedHosts returns the purge log of attrs, oldest first.
func (m *Manager) RecentlyPurgedHosts(ctx context.Context, attrs model.OriginAttributes) ([]model.PurgeLogEntry, error) {
	p, err := m.settled(ctx, attrs)
	if err != nil || p == nil {
		return []model.PurgeLogEntry{}, err
	}
	return p.log.Entries(ctx)
}

// RunPurgeCycleNow runs a purge cycle for attrs and returns the hosts that
// were purged. It fails with ErrDisabled when the feature is off.
func (m *Manager) RunPurgeCycleNow(ctx context.Context, attrs model.OriginAttributes) ([]model.Host, error) {
	res, err := m.RunPurgeCycle(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return res.Purged, nil
}

// RunPurgeCycle is RunPurgeCycleNow with the full cycle report.
func (m *Manager) RunPurgeCycle(ctx context.Context, attrs model.OriginAttributes) (*purge.CycleResult, error) {
	if m.Mode() == model.ModeDisabled {
		return nil, ErrDisabled
	}
	p, err := m.settled(ctx, attrs)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &purge.CycleResult{
			Partition: attrs.Key(),
			Mode:      m.Mode(),
			StartedAt: m.opts.Now(),
			Purged:    []model.Host{},
			Failed:    map[model.Host]error{},
		}, nil
	}
	return p.runner.Run(ctx)
}

// ClearAll drops the candidates, activations and purge log of attrs.
func (m *Manager) ClearAll(ctx context.Context, attrs model.OriginAttributes) error {
	p, err := m.partition(attrs, !attrs.IsPrivate())
	if err != nil || p == nil {
		return err
	}
	return p.call(ctx, func() error {
		return p.runner.Invalidate(ctx, func(ctx context.Context) error {
			return errors.Join(p.store.ClearAll(ctx), p.log.Clear(ctx))
		})
	})
}

// ClearBySiteHost drops every record about host in every partition.
func (m *Manager) ClearBySiteHost(ctx context.Context, rawHost string) error {
	host, err := model.SiteHost(rawHost)
	if err != nil {
		return err
	}
	parts, err := m.allPartitions(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range parts {
		err := p.call(ctx, func() error { return p.store.RemoveHost(ctx, host) })
		if err != nil {
			errs = append(errs, fmt.Errorf("clear %s in %s: %w", host, p.attrs, err))
		}
	}
	return errors.Join(errs...)
}

// AddBounceCandidate records a candidate directly. It reports false when
// the host holds a live user activation.
func (m *Manager) AddBounceCandidate(ctx context.Context, attrs model.OriginAttributes, rawHost string, at time.Time) (bool, error) {
	host, err := model.SiteHost(rawHost)
	if err != nil {
		return false, err
	}
	p, err := m.partition(attrs, true)
	if err != nil {
		return false, err
	}
	var stored bool
	err = p.call(ctx, func() error {
		var err error
		stored, err = p.store.RecordCandidate(ctx, host, m.at(at))
		return err
	})
	return stored, err
}

// AddUserActivation records an activation directly.
func (m *Manager) AddUserActivation(ctx context.Context, attrs model.OriginAttributes, rawHost string, at time.Time) error {
	host, err := model.SiteHost(rawHost)
	if err != nil {
		return err
	}
	p, err := m.partition(attrs, true)
	if err != nil {
		return err
	}
	return p.call(ctx, func() error {
		return p.store.RecordActivation(ctx, host, m.at(at))
	})
}

// Partitions lists the open and persisted partitions ordered by key.
func (m *Manager) Partitions(ctx context.Context) ([]model.OriginAttributes, error) {
	parts, err := m.allPartitions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.OriginAttributes, len(parts))
	for i, p := range parts {
		out[i] = p.attrs
	}
	return out, nil
}

func (m *Manager) allPartitions(ctx context.Context) ([]*partition, error) {
	persisted, err := m.opts.Backend.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	for _, attrs := range persisted {
		// A private partition only exists while its actor does.
		if attrs.IsPrivate() {
			continue
		}
		if _, err := m.partition(attrs, true); err != nil {
			return nil, err
		}
	}
	return m.openPartitions(), nil
}

// admit normalizes host for an event and reports whether it should be
// queued.
func (m *Manager) admit(attrs model.OriginAttributes, raw, what string) (model.Host, bool) {
	if m.Mode() == model.ModeDisabled {
		return "", false
	}
	host, err := model.SiteHost(raw)
	if err != nil {
		m.logger.Debug("drop "+what, zap.String("host", raw), zap.String("partition", attrs.String()), zap.Error(err))
		return "", false
	}
	return host, true
}

func (m *Manager) submit(attrs model.OriginAttributes, item any) {
	p, err := m.partition(attrs, true)
	if err != nil {
		m.logger.Debug("drop event", zap.String("partition", attrs.String()), zap.Error(err))
		return
	}
	if err := p.enqueue(item); err != nil {
		m.logger.Debug("drop event", zap.String("partition", attrs.String()), zap.Error(err))
	}
}

// settled returns the partition after its queue has drained, or nil when
// a private partition does not exist.
func (m *Manager) settled(ctx context.Context, attrs model.OriginAttributes) (*partition, error) {
	p, err := m.partition(attrs, !attrs.IsPrivate())
	if err != nil || p == nil {
		return nil, err
	}
	if err := p.flush(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Manager) at(ts time.Time) time.Time {
	if ts.IsZero() {
		return m.opts.Now()
	}
	return ts
}
