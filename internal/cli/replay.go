package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/sink"
	"github.com/runnerr0/bounceguard/internal/storage"
)

// traceLine is the envelope of one replayed event. The remaining fields
// are those of the event type named by Type.
type traceLine struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// traceClock reports the time of the latest replayed event.
type traceClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *traceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *traceClock) advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

type replayPartitionJSON struct {
	Partition   string           `json:"partition"`
	Candidates  []hostRecordJSON `json:"candidates"`
	Activations []hostRecordJSON `json:"activations"`
	WouldPurge  []string         `json:"would_purge,omitempty"`
}

type replayJSON struct {
	Events     int                   `json:"events"`
	Partitions []replayPartitionJSON `json:"partitions"`
}

// Execute implements the go-flags Commander interface for ReplayCommand.
// The trace runs against in-memory storage; --purge runs a dry-run cycle
// so replaying never deletes real site data.
func (c *ReplayCommand) Execute(args []string) error {
	if c.File == "" {
		return fmt.Errorf("replay requires --file")
	}
	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	cfg, err := c.env.loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := c.env.newLogger(cfg, c.globals)
	if err != nil {
		return err
	}
	defer logger.Sync()

	allow, err := storage.NewExemptions(cfg.Allowlist.Domains, cfg.Allowlist.Regex)
	if err != nil {
		return fmt.Errorf("allowlist: %w", err)
	}

	settings := cfg.Settings()
	if c.Purge {
		settings.Mode = model.ModeDryRun
	}
	clock := &traceClock{}
	manager := btp.NewManager(settings, btp.Options{
		Backend:   storage.NewMemoryBackend(settings.RetentionWindow, settings.PurgeLogSize),
		Sink:      sink.Func(func(context.Context, model.Host, model.OriginAttributes) error { return nil }),
		AllowList: allow,
		Logger:    logger,
		Now:       clock.Now,
	})
	defer manager.Close()

	count, seen, err := replayTrace(f, manager, clock)
	if err != nil {
		return err
	}

	// Let chains still open at the end of the trace settle.
	end := clock.Now().Add(settings.ClientRedirectTimeout)
	clock.advance(end)
	manager.Tick(end)

	ctx := context.Background()
	out := replayJSON{Events: count, Partitions: make([]replayPartitionJSON, 0, len(seen))}
	for _, attrs := range seen {
		part, err := replayResult(ctx, manager, attrs, c.Purge)
		if err != nil {
			return err
		}
		out.Partitions = append(out.Partitions, part)
	}

	if c.globals.JSON {
		return writeJSON(c.env.stdout, out)
	}
	printReplayHuman(c.env.stdout, out)
	return nil
}

// replayTrace feeds every line of r into m and returns the number of
// events and the partitions they touched, ordered by key.
func replayTrace(r io.Reader, m *btp.Manager, clock *traceClock) (int, []model.OriginAttributes, error) {
	seen := make(map[string]model.OriginAttributes)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	count := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var env traceLine
		if err := json.Unmarshal(line, &env); err != nil {
			return count, nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		clock.advance(env.At)

		attrs, err := dispatch(m, env, line)
		if err != nil {
			return count, nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		seen[attrs.Key()] = attrs
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, nil, fmt.Errorf("read trace: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.OriginAttributes, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return count, out, nil
}

func dispatch(m *btp.Manager, env traceLine, line []byte) (model.OriginAttributes, error) {
	switch env.Type {
	case "hop":
		var ev btp.HopEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return ev.Attrs, err
		}
		m.OnHop(ev)
		return ev.Attrs, nil
	case "state_write":
		var ev btp.StateWriteEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return ev.Attrs, err
		}
		m.OnStateWrite(ev)
		return ev.Attrs, nil
	case "interaction":
		var ev btp.InteractionEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return ev.Attrs, err
		}
		m.OnInteraction(ev)
		return ev.Attrs, nil
	case "context_destroyed":
		var ev btp.ContextDestroyedEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return ev.Attrs, err
		}
		m.OnContextDestroyed(ev)
		return ev.Attrs, nil
	case "tick":
		var ev struct {
			Attrs model.OriginAttributes `json:"partition"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			return ev.Attrs, err
		}
		m.Tick(env.At)
		return ev.Attrs, nil
	default:
		return model.OriginAttributes{}, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func replayResult(ctx context.Context, m *btp.Manager, attrs model.OriginAttributes, runPurge bool) (replayPartitionJSON, error) {
	out := replayPartitionJSON{Partition: attrs.String()}

	candidates, err := m.CandidateHosts(ctx, attrs)
	if err != nil {
		return out, fmt.Errorf("candidates %s: %w", attrs, err)
	}
	activations, err := m.UserActivationHosts(ctx, attrs)
	if err != nil {
		return out, fmt.Errorf("activations %s: %w", attrs, err)
	}
	out.Candidates = toRecordJSON(candidates)
	out.Activations = toRecordJSON(activations)

	if runPurge {
		res, err := m.RunPurgeCycle(ctx, attrs)
		if err != nil {
			return out, fmt.Errorf("purge cycle %s: %w", attrs, err)
		}
		out.WouldPurge = hostList(res.WouldPurge)
	}
	return out, nil
}

func toRecordJSON(records []model.HostRecord) []hostRecordJSON {
	out := make([]hostRecordJSON, len(records))
	for i, r := range records {
		out[i] = hostRecordJSON{Host: string(r.Host), Timestamp: formatTime(r.Timestamp)}
	}
	return out
}

func printReplayHuman(w io.Writer, out replayJSON) {
	fmt.Fprintf(w, "Replayed %d event(s).\n", out.Events)
	for _, p := range out.Partitions {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Partition %s\n", p.Partition)
		fmt.Fprintf(w, "  Candidates:  %s\n", joinHosts(p.Candidates))
		fmt.Fprintf(w, "  Activations: %s\n", joinHosts(p.Activations))
		if p.WouldPurge != nil {
			fmt.Fprintf(w, "  Would purge: %s\n", joinStrings(p.WouldPurge))
		}
	}
}

func joinHosts(records []hostRecordJSON) string {
	hosts := make([]string, len(records))
	for i, r := range records {
		hosts[i] = r.Host
	}
	return joinStrings(hosts)
}

func joinStrings(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(s, ", ")
}
