package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/model"
)

type hostRecordJSON struct {
	Host      string `json:"host"`
	Timestamp string `json:"timestamp"`
}

type purgeEntryJSON struct {
	Host       string `json:"host"`
	BounceTime string `json:"bounce_time"`
	PurgeTime  string `json:"purge_time"`
}

// Execute implements the go-flags Commander interface for CandidatesCommand.
func (c *CandidatesCommand) Execute(args []string) error {
	return listRecords(c.globals, c.env, c.Partition, "candidates", (*btp.Manager).CandidateHosts)
}

// Execute implements the go-flags Commander interface for ActivationsCommand.
func (c *ActivationsCommand) Execute(args []string) error {
	return listRecords(c.globals, c.env, c.Partition, "activations", (*btp.Manager).UserActivationHosts)
}

func listRecords(g *GlobalFlags, env *environment, partition, what string,
	read func(*btp.Manager, context.Context, model.OriginAttributes) ([]model.HostRecord, error)) error {
	attrs, err := parsePartition(partition)
	if err != nil {
		return err
	}
	return withApp(g, env, func(ctx context.Context, a *app) error {
		records, err := read(a.manager, ctx, attrs)
		if err != nil {
			return fmt.Errorf("list %s: %w", what, err)
		}

		if g.JSON {
			out := make([]hostRecordJSON, len(records))
			for i, r := range records {
				out[i] = hostRecordJSON{Host: string(r.Host), Timestamp: formatTime(r.Timestamp)}
			}
			return writeJSON(env.stdout, out)
		}

		if len(records) == 0 {
			fmt.Fprintf(env.stdout, "No %s in partition %s.\n", what, attrs)
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(env.stdout, "%-40s %s\n", r.Host, formatTime(r.Timestamp))
		}
		return nil
	})
}

// Execute implements the go-flags Commander interface for PurgedCommand.
func (c *PurgedCommand) Execute(args []string) error {
	attrs, err := parsePartition(c.Partition)
	if err != nil {
		return err
	}
	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		entries, err := a.manager.RecentlyPurgedHosts(ctx, attrs)
		if err != nil {
			return fmt.Errorf("read purge log: %w", err)
		}

		if c.globals.JSON {
			out := make([]purgeEntryJSON, len(entries))
			for i, e := range entries {
				out[i] = purgeEntryJSON{
					Host:       string(e.Host),
					BounceTime: formatTime(e.BounceTime),
					PurgeTime:  formatTime(e.PurgeTime),
				}
			}
			return writeJSON(c.env.stdout, out)
		}

		if len(entries) == 0 {
			fmt.Fprintf(c.env.stdout, "Nothing purged in partition %s.\n", attrs)
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(c.env.stdout, "%-40s bounced %s  purged %s\n", e.Host, formatTime(e.BounceTime), formatTime(e.PurgeTime))
		}
		return nil
	})
}
