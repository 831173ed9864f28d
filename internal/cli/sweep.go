package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/bounceguard/internal/storage"
)

// Execute implements the go-flags Commander interface for SweepCommand.
func (c *SweepCommand) Execute(args []string) error {
	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		parts, err := a.backend.Partitions(ctx)
		if err != nil {
			return fmt.Errorf("list partitions: %w", err)
		}

		retention := a.manager.Settings().RetentionWindow
		now := c.env.now()
		removed := make(map[string]int64, len(parts))
		var total int64
		for _, attrs := range parts {
			store, err := storage.NewSQLiteStore(a.backend.DB(), attrs, retention)
			if err != nil {
				return err
			}
			n, err := store.Sweep(ctx, now)
			store.Close()
			if err != nil {
				return fmt.Errorf("sweep %s: %w", attrs, err)
			}
			removed[attrs.String()] = n
			total += n
		}

		if c.globals.JSON {
			return writeJSON(c.env.stdout, map[string]any{
				"removed":      total,
				"by_partition": removed,
			})
		}
		fmt.Fprintf(c.env.stdout, "Removed %s expired record(s) older than %s.\n",
			formatNumber(total), formatDurationHuman(retention))
		return nil
	})
}
