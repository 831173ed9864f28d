package statewrite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runnerr0/bounceguard/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestHasStateWrite_InclusiveWindow(t *testing.T) {
	o := NewObserver(zaptest.NewLogger(t))
	o.RecordStateWrite("tracker.com", model.WriteCookie, t0.Add(time.Second), false, true)

	assert.True(t, o.HasStateWrite("tracker.com", t0, t0.Add(2*time.Second)))
	assert.True(t, o.HasStateWrite("tracker.com", t0.Add(time.Second), t0.Add(time.Second)))
	assert.False(t, o.HasStateWrite("tracker.com", t0, t0.Add(999*time.Millisecond)))
	assert.False(t, o.HasStateWrite("tracker.com", t0.Add(1001*time.Millisecond), t0.Add(time.Hour)))
	assert.False(t, o.HasStateWrite("other.com", t0, t0.Add(time.Hour)))
}

func TestRecordStateWrite_KeepsOrderForLateArrivals(t *testing.T) {
	o := NewObserver(nil)
	o.RecordStateWrite("tracker.com", model.WriteCookie, t0.Add(3*time.Second), false, true)
	o.RecordStateWrite("tracker.com", model.WriteLocalStorage, t0.Add(time.Second), false, true)
	o.RecordStateWrite("tracker.com", model.WriteIndexedDB, t0.Add(2*time.Second), false, true)

	writes := o.Writes("tracker.com")
	require.Len(t, writes, 3)
	assert.Equal(t, model.WriteLocalStorage, writes[0].Kind)
	assert.Equal(t, model.WriteIndexedDB, writes[1].Kind)
	assert.Equal(t, model.WriteCookie, writes[2].Kind)
	assert.Equal(t, t0.Add(3*time.Second), o.Latest())

	assert.True(t, o.HasStateWrite("tracker.com", t0.Add(1500*time.Millisecond), t0.Add(2500*time.Millisecond)))
}

func TestRecordStateWrite_IframeAttributedToFrameHost(t *testing.T) {
	o := NewObserver(zaptest.NewLogger(t))
	o.RecordStateWrite("embedded-tracker.net", model.WriteCookie, t0, true, false)

	assert.True(t, o.HasStateWrite("embedded-tracker.net", t0, t0))
	writes := o.Writes("embedded-tracker.net")
	require.Len(t, writes, 1)
	assert.True(t, writes[0].InIframe)
	assert.False(t, writes[0].SameSiteToTop)
}

func TestPrune_DropsOlderThanCutoff(t *testing.T) {
	o := NewObserver(nil)
	o.RecordStateWrite("a.com", model.WriteCookie, t0, false, true)
	o.RecordStateWrite("a.com", model.WriteCookie, t0.Add(5*time.Second), false, true)
	o.RecordStateWrite("b.com", model.WriteCookie, t0.Add(time.Second), false, true)
	require.Equal(t, 3, o.Len())

	removed := o.Prune(t0.Add(2 * time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, o.Len())
	assert.Empty(t, o.Writes("b.com"))
	assert.False(t, o.HasStateWrite("a.com", t0, t0.Add(time.Second)))
	assert.True(t, o.HasStateWrite("a.com", t0, t0.Add(10*time.Second)))
}

func TestReset(t *testing.T) {
	o := NewObserver(nil)
	o.RecordStateWrite("a.com", model.WriteCookie, t0, false, true)
	o.Reset()

	assert.Equal(t, 0, o.Len())
	assert.True(t, o.Latest().IsZero())
	assert.False(t, o.HasStateWrite("a.com", t0, t0))
}
