package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RequiresExactlyOneHost(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.run("record")
	assert.Error(t, err)
	_, err = te.run("record", "--candidate", "a.com", "--activation", "b.com")
	assert.Error(t, err)
}

func TestRecord_CandidateThenList(t *testing.T) {
	te := newTestEnv(t)

	out := te.mustRun(t, "record", "--candidate", "https://www.tracker.example/pixel")
	assert.Contains(t, out, "Recorded candidate")

	out = te.mustRun(t, "--json", "candidates")
	var got []hostRecordJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []hostRecordJSON{{Host: "tracker.example", Timestamp: "2026-03-01T12:00:00Z"}}, got)

	out = te.mustRun(t, "candidates")
	assert.Contains(t, out, "tracker.example")
}

func TestRecord_ActivationBlocksCandidate(t *testing.T) {
	te := newTestEnv(t)

	te.mustRun(t, "record", "--activation", "news.example", "--at", "2026-02-28T10:00:00Z")

	out := te.mustRun(t, "record", "--candidate", "news.example")
	assert.Contains(t, out, "Not recorded")

	out = te.mustRun(t, "candidates")
	assert.Contains(t, out, "No candidates")

	out = te.mustRun(t, "activations")
	assert.Contains(t, out, "news.example")
	assert.Contains(t, out, "2026-02-28T10:00:00Z")
}

func TestRecord_JSONReportsStored(t *testing.T) {
	te := newTestEnv(t)

	out := te.mustRun(t, "--json", "record", "--candidate", "tracker.example", "--partition", "^userContextId=2")
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "candidate", got["kind"])
	assert.Equal(t, "^userContextId=2", got["partition"])
	assert.Equal(t, true, got["stored"])

	out = te.mustRun(t, "candidates")
	assert.Contains(t, out, "No candidates in partition default")

	out = te.mustRun(t, "candidates", "--partition", "^userContextId=2")
	assert.Contains(t, out, "tracker.example")
}

func TestRecord_InvalidTimestamp(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.run("record", "--candidate", "a.com", "--at", "last tuesday")
	assert.ErrorContains(t, err, "RFC3339")
}

func TestPurged_EmptyLog(t *testing.T) {
	te := newTestEnv(t)

	out := te.mustRun(t, "purged")
	assert.Contains(t, out, "Nothing purged")

	out = te.mustRun(t, "--json", "purged")
	assert.JSONEq(t, `[]`, out)
}
