package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/config"
	"github.com/runnerr0/bounceguard/internal/events"
	"github.com/runnerr0/bounceguard/internal/logging"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purge"
	"github.com/runnerr0/bounceguard/internal/sink"
	"github.com/runnerr0/bounceguard/internal/storage"
)

// environment is what a command touches outside the process. Tests
// replace every field.
type environment struct {
	args   []string
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time

	cfg  *config.Config // nil loads --config or the default path
	db   *sql.DB        // nil opens the configured database; injected handles are not closed
	sink purge.Sink     // nil runs the configured purge command
}

func defaultEnvironment() *environment {
	return &environment{
		args:   os.Args[1:],
		stdout: os.Stdout,
		stderr: os.Stderr,
		stdin:  os.Stdin,
		now:    time.Now,
	}
}

// app is the wired subsystem a command runs against.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend *storage.SQLiteBackend
	pubsub  *gochannel.GoChannel
	manager *btp.Manager
	ownDB   bool
}

func (e *environment) loadConfig(g *GlobalFlags) (*config.Config, error) {
	if e.cfg != nil {
		if err := e.cfg.Validate(); err != nil {
			return nil, err
		}
		return e.cfg, nil
	}
	if g.Config != "" {
		path, err := config.ExpandPath(g.Config)
		if err != nil {
			return nil, err
		}
		return config.LoadOrCreateAt(path)
	}
	return config.LoadOrCreate()
}

func (e *environment) newLogger(cfg *config.Config, g *GlobalFlags) (*zap.Logger, error) {
	logCfg := cfg.Logging
	if g.Verbose {
		logCfg.Level = "debug"
	}
	return logging.New(logCfg, zapcore.AddSync(e.stderr))
}

// open loads the config and wires storage, exemptions, the purge sink and
// a manager. The caller must close the app.
func (e *environment) open(ctx context.Context, g *GlobalFlags) (*app, error) {
	cfg, err := e.loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := e.newLogger(cfg, g)
	if err != nil {
		return nil, err
	}

	settings := cfg.Settings()
	a := &app{cfg: cfg, logger: logger}

	if e.db != nil {
		a.backend = storage.NewSQLiteBackend(e.db, settings.RetentionWindow, settings.PurgeLogSize)
	} else {
		path := g.DB
		if path == "" {
			if path, err = cfg.DatabasePath(); err != nil {
				return nil, err
			}
		} else if path, err = config.ExpandPath(path); err != nil {
			return nil, err
		}
		a.backend, err = storage.OpenSQLiteBackend(ctx, path, cfg.Storage.SQLiteJournalMode, settings.RetentionWindow, settings.PurgeLogSize)
		if err != nil {
			return nil, err
		}
		a.ownDB = true
	}

	allow, err := storage.LoadExemptions(ctx, a.backend.DB())
	if err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("load exemptions: %w", err)
	}
	configured, err := storage.NewExemptions(cfg.Allowlist.Domains, cfg.Allowlist.Regex)
	if err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("allowlist: %w", err)
	}
	allow.Merge(configured)

	purgeSink := e.sink
	if purgeSink == nil {
		timeout := time.Duration(cfg.BounceTracking.PurgeCommandTimeoutSecs) * time.Second
		cmd, err := sink.NewCommand(cfg.BounceTracking.PurgeCommand, timeout, logger)
		switch {
		case err == nil:
			purgeSink = cmd
		case !errors.Is(err, sink.ErrNoCommand):
			a.closeBackend()
			return nil, err
		}
	}

	a.pubsub = events.NewGoChannel(logger)
	a.manager = btp.NewManager(settings, btp.Options{
		Backend:   a.backend,
		Sink:      purgeSink,
		AllowList: allow,
		Publisher: events.NewPublisher(a.pubsub, logger),
		Logger:    logger,
		Now:       e.now,
	})
	return a, nil
}

func (a *app) Close() error {
	errs := []error{a.manager.Close(), a.pubsub.Close()}
	if a.ownDB {
		errs = append(errs, a.backend.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) closeBackend() {
	if a.ownDB {
		a.backend.Close()
	}
}

// withApp opens the app, runs fn and closes the app.
func withApp(g *GlobalFlags, env *environment, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := context.Background()
	a, err := env.open(ctx, g)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(ctx, a)
}

func parsePartition(key string) (model.OriginAttributes, error) {
	attrs, err := model.ParseOriginAttributes(key)
	if err != nil {
		return attrs, fmt.Errorf("--partition: %w", err)
	}
	return attrs, nil
}

// parseAt parses an RFC3339 timestamp; empty means now.
func parseAt(s string, now func() time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (use RFC3339, e.g. 2026-03-01T12:00:00Z)", s)
	}
	return t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// formatDurationHuman formats a duration into a human-readable string like "30 days".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
