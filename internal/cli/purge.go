package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purge"
)

type purgeJSON struct {
	Partition  string            `json:"partition"`
	Mode       string            `json:"mode"`
	Purged     []string          `json:"purged"`
	WouldPurge []string          `json:"would_purge,omitempty"`
	Exempt     []string          `json:"exempt,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	attrs, err := parsePartition(c.Partition)
	if err != nil {
		return err
	}

	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		if c.DryRun {
			a.manager.SetMode(model.ModeDryRun)
		}

		res, err := a.manager.RunPurgeCycle(ctx, attrs)
		switch {
		case errors.Is(err, btp.ErrDisabled):
			return fmt.Errorf("bounce tracking protection is disabled (set bounce_tracking.mode or use --dry-run)")
		case err != nil:
			return fmt.Errorf("purge cycle: %w", err)
		}

		if c.globals.JSON {
			if err := writeJSON(c.env.stdout, toPurgeJSON(res)); err != nil {
				return err
			}
		} else {
			printPurgeHuman(c, res)
		}

		if len(res.Failed) > 0 {
			return fmt.Errorf("%d site(s) failed to purge", len(res.Failed))
		}
		return nil
	})
}

func printPurgeHuman(c *PurgeCommand, res *purge.CycleResult) {
	w := c.env.stdout
	if res.Mode == model.ModeDryRun {
		if len(res.WouldPurge) == 0 {
			fmt.Fprintln(w, "Dry run: nothing would be purged.")
		}
		for _, h := range res.WouldPurge {
			fmt.Fprintf(w, "would purge  %s\n", h)
		}
	} else {
		if len(res.Purged) == 0 && len(res.Failed) == 0 {
			fmt.Fprintln(w, "Nothing to purge.")
		}
		for _, h := range res.Purged {
			fmt.Fprintf(w, "purged       %s\n", h)
		}
	}
	for _, h := range res.Exempt {
		fmt.Fprintf(w, "exempt       %s\n", h)
	}
	for _, h := range sortedFailed(res.Failed) {
		fmt.Fprintf(w, "failed       %s: %v\n", h, res.Failed[h])
	}
}

func toPurgeJSON(res *purge.CycleResult) purgeJSON {
	out := purgeJSON{
		Partition: partitionLabel(res.Partition),
		Mode:      res.Mode.String(),
		Purged:    hostList(res.Purged),
	}
	if len(res.WouldPurge) > 0 {
		out.WouldPurge = hostList(res.WouldPurge)
	}
	if len(res.Exempt) > 0 {
		out.Exempt = hostList(res.Exempt)
	}
	if len(res.Failed) > 0 {
		out.Failed = make(map[string]string, len(res.Failed))
		for h, err := range res.Failed {
			out.Failed[string(h)] = err.Error()
		}
	}
	return out
}

func hostList(hosts []model.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = string(h)
	}
	return out
}

func sortedFailed(failed map[model.Host]error) []model.Host {
	out := make([]model.Host, 0, len(failed))
	for h := range failed {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
