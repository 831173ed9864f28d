package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFlag(t *testing.T) {
	te := newTestEnv(t)

	out, err := te.run("--version")
	assert.NoError(t, err)
	assert.Equal(t, "bounceguard test", strings.TrimSpace(out))
}

func TestVersionAfterDoubleDashIsNotAFlag(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.run("--", "--version")
	assert.Error(t, err)
}

func TestHelpIsNotAnError(t *testing.T) {
	te := newTestEnv(t)

	out, err := te.run("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "bounceguard")
	assert.Contains(t, out, "replay")
}

func TestUnknownSubcommand(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.run("search", "x")
	assert.Error(t, err)
}

func TestSubcommandsRegistered(t *testing.T) {
	parser, _, _ := buildParser("test", newTestEnv(t).environment)
	for _, name := range []string{"status", "candidates", "activations", "purged", "record", "purge", "sweep", "clear", "exempt", "replay"} {
		assert.NotNil(t, parser.Find(name), name)
	}
}

func TestGlobalFlagsParsed(t *testing.T) {
	te := newTestEnv(t)
	parser, globals, _ := buildParser("test", te.environment)

	_, err := parser.ParseArgs([]string{"--json", "--verbose", "--db", "/tmp/x.db", "status"})
	require.NoError(t, err)
	assert.True(t, globals.JSON)
	assert.True(t, globals.Verbose)
	assert.Equal(t, "/tmp/x.db", globals.DB)
}

func TestInvalidPartitionFlag(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.run("candidates", "--partition", "userContextId=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--partition")
}

func TestInvalidConfigRejected(t *testing.T) {
	te := newTestEnv(t)
	te.cfg.BounceTracking.Mode = "sometimes"

	_, err := te.run("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{0: "0", 999: "999", 1000: "1,000", 123456: "123,456", 1234567: "1,234,567"}
	for n, want := range cases {
		assert.Equal(t, want, formatNumber(n), n)
	}
}

func TestFormatDurationHuman(t *testing.T) {
	assert.Equal(t, "45 days", formatDurationHuman(45*24*time.Hour))
	assert.Equal(t, "1 day", formatDurationHuman(24*time.Hour))
	assert.Equal(t, "1 hour", formatDurationHuman(time.Hour))
	assert.Equal(t, "30s", formatDurationHuman(30*time.Second))
}

func TestParseAt(t *testing.T) {
	now := func() time.Time { return t0 }

	got, err := parseAt("", now)
	require.NoError(t, err)
	assert.Equal(t, t0, got)

	got, err = parseAt("2026-02-01T08:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC), got)

	_, err = parseAt("yesterday", now)
	assert.Error(t, err)
}
