package cli

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/bounceguard/internal/config"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSink remembers purged hosts and fails for hosts in fail.
type recordingSink struct {
	mu     sync.Mutex
	purged []model.Host
	fail   map[model.Host]error
}

func (s *recordingSink) PurgeSite(_ context.Context, host model.Host, _ model.OriginAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[host]; err != nil {
		return err
	}
	s.purged = append(s.purged, host)
	return nil
}

func (s *recordingSink) hosts() []model.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Host(nil), s.purged...)
}

type testEnv struct {
	*environment
	out  *bytes.Buffer
	errs *bytes.Buffer
	sink *recordingSink
}

// openTestDB creates a migrated in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	te := &testEnv{
		out:  &bytes.Buffer{},
		errs: &bytes.Buffer{},
		sink: &recordingSink{fail: map[model.Host]error{}},
	}
	te.environment = &environment{
		stdout: te.out,
		stderr: te.errs,
		stdin:  strings.NewReader(""),
		now:    func() time.Time { return t0 },
		cfg:    cfg,
		db:     openTestDB(t),
		sink:   te.sink,
	}
	return te
}

// run executes args and returns stdout, resetting it for the next call.
func (te *testEnv) run(args ...string) (string, error) {
	te.out.Reset()
	err := runWithEnv("test", args, te.environment)
	return te.out.String(), err
}

func (te *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := te.run(args...)
	require.NoError(t, err, "stderr: %s", te.errs.String())
	return out
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
