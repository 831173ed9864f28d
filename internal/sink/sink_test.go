package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runnerr0/bounceguard/internal/model"
)

func TestNewCommand_RequiresArgv(t *testing.T) {
	_, err := NewCommand(nil, 0, nil)
	assert.ErrorIs(t, err, ErrNoCommand)
	_, err = NewCommand([]string{" "}, 0, nil)
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestCommand_Args(t *testing.T) {
	c, err := NewCommand([]string{"purge-site", "--site={host}", "--partition", "{partition}"}, 0, nil)
	require.NoError(t, err)

	got := c.Args("tracker.com", model.OriginAttributes{UserContextID: 2})
	assert.Equal(t, []string{"purge-site", "--site=tracker.com", "--partition", "^userContextId=2"}, got)
}

func TestCommand_PurgeSite(t *testing.T) {
	ok, err := NewCommand([]string{"sh", "-c", `test "$0" = tracker.com`, "{host}"}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, ok.PurgeSite(context.Background(), "tracker.com", model.DefaultPartition))

	fail, err := NewCommand([]string{"sh", "-c", "echo locked >&2; exit 3"}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	err = fail.PurgeSite(context.Background(), "tracker.com", model.DefaultPartition)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Contains(t, err.Error(), "tracker.com")
}

func TestCommand_Timeout(t *testing.T) {
	c, err := NewCommand([]string{"sleep", "5"}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Error(t, c.PurgeSite(context.Background(), "a.com", model.DefaultPartition))
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	var got model.Host
	f := Func(func(_ context.Context, host model.Host, _ model.OriginAttributes) error {
		got = host
		return boom
	})
	assert.ErrorIs(t, f.PurgeSite(context.Background(), "a.com", model.DefaultPartition), boom)
	assert.Equal(t, model.Host("a.com"), got)
}
