package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version          string          `json:"version"`
	Mode             string          `json:"mode"`
	RetentionDays    int             `json:"retention_days"`
	PurgeIntervalSec int64           `json:"purge_interval_seconds"`
	RedirectTimeout  string          `json:"client_redirect_timeout"`
	Exemptions       int             `json:"exemptions"`
	PurgeCommand     bool            `json:"purge_command_configured"`
	Partitions       []partitionJSON `json:"partitions"`
}

type partitionJSON struct {
	Partition       string `json:"partition"`
	Candidates      int64  `json:"candidates"`
	Activations     int64  `json:"activations"`
	Purged          int64  `json:"purged"`
	OldestCandidate string `json:"oldest_candidate,omitempty"`
	NewestCandidate string `json:"newest_candidate,omitempty"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		stats, err := a.backend.Stats(ctx, c.env.now())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		exemptions, err := storage.LoadExemptions(ctx, a.backend.DB())
		if err != nil {
			return fmt.Errorf("load exemptions: %w", err)
		}

		settings := a.manager.Settings()
		configured := len(a.cfg.BounceTracking.PurgeCommand) > 0 || c.env.sink != nil
		total := exemptions.Len() + len(a.cfg.Allowlist.Domains) + len(a.cfg.Allowlist.Regex)

		if c.globals.JSON {
			return c.printJSON(a, settings, stats, total, configured)
		}
		return c.printHuman(c.env.stdout, a, settings, stats, total, configured)
	})
}

func (c *StatusCommand) printHuman(w io.Writer, a *app, settings btp.Settings, stats []storage.PartitionStats, exemptions int, configured bool) error {
	fmt.Fprintln(w, "Bounce Tracking Protection")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintf(w, "Version:       %s\n", c.version)
	fmt.Fprintf(w, "Mode:          %s\n", a.manager.Mode())
	fmt.Fprintf(w, "Retention:     %s\n", formatDurationHuman(settings.RetentionWindow))
	fmt.Fprintf(w, "Purge every:   %s\n", formatDurationHuman(settings.PurgeCycleInterval))
	fmt.Fprintf(w, "Redirect wait: %s\n", settings.ClientRedirectTimeout)
	fmt.Fprintf(w, "Exemptions:    %s\n", formatNumber(int64(exemptions)))
	if configured {
		fmt.Fprintln(w, "Purge command: configured")
	} else {
		fmt.Fprintln(w, "Purge command: not configured")
	}

	fmt.Fprintln(w)
	if len(stats) == 0 {
		fmt.Fprintln(w, "No tracking state recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-32s %10s %12s %8s\n", "Partition", "Candidates", "Activations", "Purged")
	for _, s := range stats {
		fmt.Fprintf(w, "%-32s %10s %12s %8s\n", partitionLabel(s.Partition),
			formatNumber(s.Candidates), formatNumber(s.Activations), formatNumber(s.Purged))
	}
	return nil
}

func (c *StatusCommand) printJSON(a *app, settings btp.Settings, stats []storage.PartitionStats, exemptions int, configured bool) error {
	out := statusJSON{
		Version:          c.version,
		Mode:             a.manager.Mode().String(),
		RetentionDays:    int(settings.RetentionWindow.Hours() / 24),
		PurgeIntervalSec: int64(settings.PurgeCycleInterval.Seconds()),
		RedirectTimeout:  settings.ClientRedirectTimeout.String(),
		Exemptions:       exemptions,
		PurgeCommand:     configured,
		Partitions:       make([]partitionJSON, len(stats)),
	}
	for i, s := range stats {
		out.Partitions[i] = partitionJSON{
			Partition:       partitionLabel(s.Partition),
			Candidates:      s.Candidates,
			Activations:     s.Activations,
			Purged:          s.Purged,
			OldestCandidate: formatTime(s.OldestCandidate),
			NewestCandidate: formatTime(s.NewestCandidate),
		}
	}
	return writeJSON(c.env.stdout, out)
}

func partitionLabel(key string) string {
	if key == "" {
		return "default"
	}
	return key
}
