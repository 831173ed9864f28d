package purgelog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/bounceguard/internal/model"
)

func entry(i int) model.PurgeLogEntry {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return model.PurgeLogEntry{
		Host:       model.Host(fmt.Sprintf("tracker%d.com", i)),
		BounceTime: base.Add(time.Duration(i) * time.Minute),
		PurgeTime:  base.Add(time.Duration(i) * time.Hour),
	}
}

func TestRing_AppendAndEntriesInOrder(t *testing.T) {
	ctx := context.Background()
	r := NewRing(5)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Append(ctx, entry(i)))
	}

	got, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PurgeLogEntry{entry(0), entry(1), entry(2)}, got)
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	r := NewRing(3)

	for i := 0; i < 7; i++ {
		require.NoError(t, r.Append(ctx, entry(i)))
	}

	got, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PurgeLogEntry{entry(4), entry(5), entry(6)}, got)
	assert.Equal(t, 3, r.Len())
}

func TestRing_Clear(t *testing.T) {
	ctx := context.Background()
	r := NewRing(2)
	require.NoError(t, r.Append(ctx, entry(1)))
	require.NoError(t, r.Clear(ctx))

	got, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, r.Append(ctx, entry(2)))
	got, _ = r.Entries(ctx)
	assert.Equal(t, []model.PurgeLogEntry{entry(2)}, got)
}

func TestRing_DefaultCapacity(t *testing.T) {
	ctx := context.Background()
	r := NewRing(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		require.NoError(t, r.Append(ctx, entry(i)))
	}
	assert.Equal(t, DefaultCapacity, r.Len())
}

func TestRing_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	r := NewRing(50)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Append(ctx, entry(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
