package btp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/runnerr0/bounceguard/internal/events"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type purgeCall struct {
	Host  model.Host
	Attrs model.OriginAttributes
}

type recordingSink struct {
	mu    sync.Mutex
	calls []purgeCall
	gate  chan struct{}
	err   error
}

func (s *recordingSink) PurgeSite(_ context.Context, host model.Host, attrs model.OriginAttributes) error {
	s.mu.Lock()
	s.calls = append(s.calls, purgeCall{host, attrs})
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.err
}

func (s *recordingSink) Calls() []purgeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]purgeCall(nil), s.calls...)
}

type harness struct {
	m     *Manager
	clock *fakeClock
	sink  *recordingSink
}

func newHarness(t *testing.T, mode model.Mode, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{now: t0.Add(time.Minute)}, sink: &recordingSink{}}

	settings := DefaultSettings()
	settings.Mode = mode
	opts := Options{
		Backend: storage.NewMemoryBackend(settings.RetentionWindow, settings.PurgeLogSize),
		Sink:    h.sink,
		Logger:  zaptest.NewLogger(t),
		Now:     h.clock.Now,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.m = NewManager(settings, opts)
	t.Cleanup(func() { require.NoError(t, h.m.Close()) })
	return h
}

// bounce drives A (user activated) -> via (writes a cookie) -> final in
// browsing context bcID, starting at start.
func (h *harness) bounce(attrs model.OriginAttributes, bcID uint64, start time.Time, a, via, final string) {
	h.m.OnHop(HopEvent{Attrs: attrs, BrowsingContextID: bcID, Host: "https://" + a + "/", At: start, UserActivated: true})
	h.m.OnHop(HopEvent{Attrs: attrs, BrowsingContextID: bcID, Host: "https://" + via + "/r?to=" + final, Type: model.HopServer, At: start.Add(100 * time.Millisecond)})
	h.m.OnStateWrite(StateWriteEvent{Attrs: attrs, Host: via, Kind: model.WriteCookie, At: start.Add(150 * time.Millisecond)})
	h.m.OnHop(HopEvent{Attrs: attrs, BrowsingContextID: bcID, Host: "https://" + final + "/", Type: model.HopClient, At: start.Add(time.Second)})
}

func hostsOf(records []model.HostRecord) []model.Host {
	out := []model.Host{}
	for _, r := range records {
		out = append(out, r.Host)
	}
	return out
}

func (h *harness) candidates(t *testing.T, attrs model.OriginAttributes) []model.Host {
	t.Helper()
	recs, err := h.m.CandidateHosts(context.Background(), attrs)
	require.NoError(t, err)
	return hostsOf(recs)
}

func (h *harness) activations(t *testing.T, attrs model.OriginAttributes) []model.HostRecord {
	t.Helper()
	recs, err := h.m.UserActivationHosts(context.Background(), attrs)
	require.NoError(t, err)
	return recs
}

func TestScenario_BasicBounce(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")

	assert.Empty(t, h.candidates(t, def), "nothing is classified before the chain closes")

	h.m.Tick(t0.Add(time.Second + 2500*time.Millisecond))

	recs, err := h.m.CandidateHosts(context.Background(), def)
	require.NoError(t, err)
	want := []model.HostRecord{{Host: "tracker.com", Timestamp: t0.Add(100 * time.Millisecond)}}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	acts := h.activations(t, def)
	assert.Equal(t, []model.Host{"a.com"}, hostsOf(acts), "b.com was never interacted with")
	assert.True(t, acts[0].Timestamp.Equal(t0))
}

func TestScenario_TickBeforeTimeoutKeepsChainOpen(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(time.Second + 2400*time.Millisecond))
	assert.Empty(t, h.candidates(t, def))

	h.m.Tick(t0.Add(time.Second + 2500*time.Millisecond))
	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
}

func TestScenario_OwnSiteExemption(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition
	interaction := t0.Add(2 * time.Second)

	h.bounce(def, 1, t0, "a.com", "tracker.com", "a.com")
	h.m.OnInteraction(InteractionEvent{Attrs: def, BrowsingContextID: 1, At: interaction})

	assert.Empty(t, h.candidates(t, def))
	acts := h.activations(t, def)
	require.Equal(t, []model.Host{"a.com"}, hostsOf(acts))
	assert.True(t, acts[0].Timestamp.Equal(interaction))
}

func TestScenario_InteractionAfterTimeoutStillActivates(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition
	interaction := t0.Add(10 * time.Second)

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))
	h.m.OnInteraction(InteractionEvent{Attrs: def, BrowsingContextID: 1, At: interaction})

	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
	acts := h.activations(t, def)
	require.Equal(t, []model.Host{"a.com", "b.com"}, hostsOf(acts))
	assert.True(t, acts[1].Timestamp.Equal(interaction))
}

func TestScenario_InteractionOnFinalHostProtectsIt(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	// b.com bounces first, then the user interacts with it as a final page.
	h.bounce(def, 1, t0, "a.com", "b.com", "c.com")
	h.m.Tick(t0.Add(5 * time.Second))
	require.Equal(t, []model.Host{"b.com"}, h.candidates(t, def))

	h.m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 2, Host: "x.com", At: t0.Add(10 * time.Second), UserActivated: true})
	h.m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 2, Host: "b.com", At: t0.Add(11 * time.Second)})
	h.m.OnInteraction(InteractionEvent{Attrs: def, BrowsingContextID: 2, At: t0.Add(12 * time.Second)})

	assert.Empty(t, h.candidates(t, def), "activation overrides candidacy")
	_, err := h.m.AddBounceCandidate(context.Background(), def, "b.com", t0.Add(13*time.Second))
	require.NoError(t, err)
	assert.Empty(t, h.candidates(t, def))
}

func TestScenario_SingleHopNeverCandidate(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "a.com", At: t0, UserActivated: true})
	h.m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "a.com", Kind: model.WriteLocalStorage, At: t0})
	h.m.Tick(t0.Add(time.Minute))

	assert.Empty(t, h.candidates(t, def))
	assert.Equal(t, []model.Host{"a.com"}, hostsOf(h.activations(t, def)))
}

func TestScenario_ContextDestroyedClosesImmediately(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.OnContextDestroyed(ContextDestroyedEvent{Attrs: def, BrowsingContextID: 1, At: t0.Add(1200 * time.Millisecond)})

	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
}

func TestScenario_NewUserNavigationSupersedesChain(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "c.com", At: t0.Add(1500 * time.Millisecond), UserActivated: true})

	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
	assert.Equal(t, []model.Host{"a.com"}, hostsOf(h.activations(t, def)), "c.com's chain is still open")
}

func TestScenario_EnabledPurge(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	work := model.OriginAttributes{UserContextID: 2}
	h.clock.Set(t0.Add(time.Hour))

	h.bounce(work, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))

	purged, err := h.m.RunPurgeCycleNow(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, []model.Host{"tracker.com"}, purged)
	assert.Equal(t, []purgeCall{{"tracker.com", work}}, h.sink.Calls())

	assert.Empty(t, h.candidates(t, work))
	log, err := h.m.RecentlyPurgedHosts(context.Background(), work)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, model.Host("tracker.com"), log[0].Host)
	assert.True(t, log[0].BounceTime.Equal(t0.Add(100*time.Millisecond)))
	assert.True(t, log[0].PurgeTime.Equal(t0.Add(time.Hour)))

	purged, err = h.m.RunPurgeCycleNow(context.Background(), model.DefaultPartition)
	require.NoError(t, err)
	assert.Empty(t, purged, "partitions are independent")
}

func TestScenario_DryRun(t *testing.T) {
	h := newHarness(t, model.ModeDryRun)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))

	res, err := h.m.RunPurgeCycle(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, res.Purged)
	assert.Equal(t, []model.Host{"tracker.com"}, res.WouldPurge)
	assert.Empty(t, h.sink.Calls())

	log, err := h.m.RecentlyPurgedHosts(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, log)
	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
}

func TestScenario_PurgeFailureRetried(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition
	h.sink.err = errors.New("disk full")

	_, err := h.m.AddBounceCandidate(context.Background(), def, "tracker.com", t0)
	require.NoError(t, err)

	res, err := h.m.RunPurgeCycle(context.Background(), def)
	require.NoError(t, err, "purge failures are not cycle failures")
	assert.Empty(t, res.Purged)
	assert.Contains(t, res.Failed, model.Host("tracker.com"))
	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
}

func TestScenario_PrivateWindowTeardown(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	priv := model.OriginAttributes{PrivateBrowsingID: 1}
	ctx := context.Background()

	h.bounce(priv, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))
	require.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, priv))
	require.NotEmpty(t, h.activations(t, priv))

	_, err := h.m.AddBounceCandidate(ctx, model.DefaultPartition, "tracker.com", t0)
	require.NoError(t, err)

	require.NoError(t, h.m.OnPrivateSessionClosed(ctx, 1))

	assert.Empty(t, h.candidates(t, priv))
	assert.Empty(t, h.activations(t, priv))
	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, model.DefaultPartition))

	assert.Error(t, h.m.OnPrivateSessionClosed(ctx, 0))
}

func TestScenario_PrivateTeardownIsNotReopened(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	priv := model.OriginAttributes{PrivateBrowsingID: 3}
	ctx := context.Background()

	h.bounce(priv, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))
	require.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, priv))

	require.NoError(t, h.m.OnPrivateSessionClosed(ctx, 3))

	parts, err := h.m.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, parts)
	require.NoError(t, h.m.ClearBySiteHost(ctx, "tracker.com"))
	assert.Empty(t, h.m.runners(), "no actor is left for the destroyed session")
}

func TestScenario_PrivateTeardownDiscardsInFlightPurge(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	priv := model.OriginAttributes{PrivateBrowsingID: 3}
	ctx := context.Background()
	h.sink.gate = make(chan struct{})

	_, err := h.m.AddBounceCandidate(ctx, priv, "tracker.com", t0)
	require.NoError(t, err)

	done := make(chan []model.Host)
	go func() {
		purged, err := h.m.RunPurgeCycleNow(ctx, priv)
		assert.NoError(t, err)
		done <- purged
	}()
	require.Eventually(t, func() bool { return len(h.sink.Calls()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.m.OnPrivateSessionClosed(ctx, 3))
	close(h.sink.gate)

	assert.Empty(t, <-done, "result arriving after teardown is discarded")
	log, err := h.m.RecentlyPurgedHosts(ctx, priv)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestScenario_Disabled(t *testing.T) {
	h := newHarness(t, model.ModeDisabled)
	def := model.DefaultPartition
	ctx := context.Background()

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))

	assert.Empty(t, h.candidates(t, def))
	_, err := h.m.RunPurgeCycleNow(ctx, def)
	assert.ErrorIs(t, err, ErrDisabled)

	h.m.SetMode(model.ModeEnabled)
	assert.Equal(t, model.ModeEnabled, h.m.Mode())
	h.bounce(def, 1, t0.Add(time.Minute), "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(2 * time.Minute))
	assert.Equal(t, []model.Host{"tracker.com"}, h.candidates(t, def))
}

func TestManager_DisablingForgetsOpenChains(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition

	h.bounce(def, 1, t0, "a.com", "tracker.com", "b.com")
	h.m.SetMode(model.ModeDisabled)
	h.m.SetMode(model.ModeEnabled)
	h.m.Tick(t0.Add(time.Minute))

	assert.Empty(t, h.candidates(t, def))
}

func TestManager_ConcurrentPurgeCyclesCoalesce(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition
	ctx := context.Background()
	h.sink.gate = make(chan struct{})

	_, err := h.m.AddBounceCandidate(ctx, def, "tracker.com", t0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.RunPurgeCycleNow(ctx, def)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return len(h.sink.Calls()) == 1 }, time.Second, time.Millisecond)
	close(h.sink.gate)
	wg.Wait()

	assert.Len(t, h.sink.Calls(), 1)
	log, err := h.m.RecentlyPurgedHosts(ctx, def)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestManager_ClearAllAndClearBySiteHost(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	ctx := context.Background()
	def := model.DefaultPartition
	work := model.OriginAttributes{UserContextID: 5}

	for _, attrs := range []model.OriginAttributes{def, work} {
		_, err := h.m.AddBounceCandidate(ctx, attrs, "tracker.com", t0)
		require.NoError(t, err)
		_, err = h.m.AddBounceCandidate(ctx, attrs, "other.com", t0)
		require.NoError(t, err)
	}

	require.NoError(t, h.m.ClearBySiteHost(ctx, "https://cdn.tracker.com/pixel"))
	assert.Equal(t, []model.Host{"other.com"}, h.candidates(t, def))
	assert.Equal(t, []model.Host{"other.com"}, h.candidates(t, work))

	_, err := h.m.RunPurgeCycleNow(ctx, work)
	require.NoError(t, err)
	require.NoError(t, h.m.AddUserActivation(ctx, work, "x.com", t0))
	require.NoError(t, h.m.ClearAll(ctx, work))

	assert.Empty(t, h.candidates(t, work))
	assert.Empty(t, h.activations(t, work))
	log, err := h.m.RecentlyPurgedHosts(ctx, work)
	require.NoError(t, err)
	assert.Empty(t, log)
	assert.Equal(t, []model.Host{"other.com"}, h.candidates(t, def))

	parts, err := h.m.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.OriginAttributes{def, work}, parts)
}

func TestManager_AllowListSkipsPurge(t *testing.T) {
	allow, err := storage.NewExemptions([]string{"okta.com"}, nil)
	require.NoError(t, err)
	h := newHarness(t, model.ModeEnabled, func(o *Options) { o.AllowList = allow })
	ctx := context.Background()

	_, err = h.m.AddBounceCandidate(ctx, model.DefaultPartition, "login.okta.com", t0)
	require.NoError(t, err)

	res, err := h.m.RunPurgeCycle(ctx, model.DefaultPartition)
	require.NoError(t, err)
	assert.Empty(t, res.Purged)
	assert.Equal(t, []model.Host{"okta.com"}, res.Exempt)
	assert.Empty(t, h.sink.Calls())
}

func TestManager_PublishesEvents(t *testing.T) {
	ps := events.NewGoChannel(zaptest.NewLogger(t))
	defer ps.Close()
	ctx := context.Background()

	bounces, err := ps.Subscribe(ctx, events.TopicRecordBouncesFinished)
	require.NoError(t, err)
	cycles, err := ps.Subscribe(ctx, events.TopicPurgeCycleFinished)
	require.NoError(t, err)

	h := newHarness(t, model.ModeEnabled, func(o *Options) {
		o.Publisher = events.NewPublisher(ps, o.Logger)
	})
	work := model.OriginAttributes{UserContextID: 2}

	h.bounce(work, 42, t0, "a.com", "tracker.com", "b.com")
	h.m.Tick(t0.Add(5 * time.Second))

	ev, err := events.Decode[events.RecordBouncesFinished](next(t, bounces))
	require.NoError(t, err)
	assert.Equal(t, "^userContextId=2", ev.Partition)
	assert.Equal(t, uint64(42), ev.BrowsingContextID)
	assert.Equal(t, "timeout", ev.CloseReason)
	assert.Equal(t, []string{"tracker.com"}, ev.Candidates)
	assert.Equal(t, []string{"a.com"}, ev.Activations)

	_, err = h.m.RunPurgeCycleNow(ctx, work)
	require.NoError(t, err)
	cycle, err := events.Decode[events.PurgeCycleFinished](next(t, cycles))
	require.NoError(t, err)
	assert.Equal(t, "^userContextId=2", cycle.Partition)
	assert.Equal(t, []string{"tracker.com"}, cycle.Purged)
}

func next(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestManager_PrunesStateWrites(t *testing.T) {
	h := newHarness(t, model.ModeEnabled)
	def := model.DefaultPartition
	ctx := context.Background()

	h.m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "x.com", Kind: model.WriteCookie, At: t0})
	h.m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "y.com", Kind: model.WriteCookie, At: t0.Add(time.Minute)})

	p, err := h.m.partition(def, false)
	require.NoError(t, err)
	var n int
	require.NoError(t, p.call(ctx, func() error { n = p.observer.Len(); return nil }))
	assert.Equal(t, 1, n, "writes older than the lookback are dropped")

	// An open chain keeps writes since its start.
	h.m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "a.com", At: t0.Add(2 * time.Minute), UserActivated: true})
	h.m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "z.com", Kind: model.WriteCookie, At: t0.Add(2 * time.Minute)})
	h.m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "z.com", Kind: model.WriteCookie, At: t0.Add(10 * time.Minute)})
	require.NoError(t, p.call(ctx, func() error { n = p.observer.Len(); return nil }))
	assert.Equal(t, 2, n)
}

func TestManager_StartRunsTickerAndClose(t *testing.T) {
	clock := &fakeClock{now: t0}
	sink := &recordingSink{}
	settings := DefaultSettings()
	settings.TickInterval = 5 * time.Millisecond
	settings.PurgeCycleInterval = 10 * time.Millisecond
	m := NewManager(settings, Options{Sink: sink, Logger: zaptest.NewLogger(t), Now: clock.Now})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))

	def := model.DefaultPartition
	m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "a.com", At: t0, UserActivated: true})
	m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "tracker.com", At: t0.Add(10 * time.Millisecond)})
	m.OnStateWrite(StateWriteEvent{Attrs: def, Host: "tracker.com", Kind: model.WriteCookie, At: t0.Add(20 * time.Millisecond)})
	m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "b.com", At: t0.Add(30 * time.Millisecond)})
	clock.Set(t0.Add(time.Minute))

	require.Eventually(t, func() bool {
		for _, c := range sink.Calls() {
			if c.Host == "tracker.com" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "ticker closes the chain and the scheduler purges it")

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.CandidateHosts(context.Background(), def)
	assert.ErrorIs(t, err, ErrClosed)
	m.OnHop(HopEvent{Attrs: def, BrowsingContextID: 1, Host: "a.com", UserActivated: true})
}

func TestManager_MissingSinkFailsPurge(t *testing.T) {
	m := NewManager(DefaultSettings(), Options{Logger: zaptest.NewLogger(t), Now: func() time.Time { return t0 }})
	defer m.Close()

	_, err := m.AddBounceCandidate(context.Background(), model.DefaultPartition, "tracker.com", t0)
	require.NoError(t, err)
	res, err := m.RunPurgeCycle(context.Background(), model.DefaultPartition)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Failed["tracker.com"], ErrNoSink)
}
