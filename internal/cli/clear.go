package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/bounceguard/internal/model"
)

// Execute implements the go-flags Commander interface for ClearCommand.
func (c *ClearCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("clear requires --all flag for safety")
	}

	var only *model.OriginAttributes
	if c.Partition != "" {
		attrs, err := parsePartition(c.Partition)
		if err != nil {
			return err
		}
		only = &attrs
	}

	// Confirmation prompt unless --force
	if !c.Force {
		w := c.env.stdout
		fmt.Fprintln(w, "⚠ WARNING: This will permanently delete bounce tracking state.")
		fmt.Fprintln(w, "  - All bounce tracker candidates")
		fmt.Fprintln(w, "  - All user activations")
		fmt.Fprintln(w, "  - The purge log")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "This action cannot be undone.")
		fmt.Fprintln(w)
		fmt.Fprint(w, `Type "CLEAR" to confirm: `)

		scanner := bufio.NewScanner(c.env.stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "CLEAR" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		parts := []model.OriginAttributes{}
		if only != nil {
			parts = append(parts, *only)
		} else {
			var err error
			if parts, err = a.manager.Partitions(ctx); err != nil {
				return fmt.Errorf("list partitions: %w", err)
			}
		}

		for _, attrs := range parts {
			if err := a.manager.ClearAll(ctx, attrs); err != nil {
				return fmt.Errorf("clear %s: %w", attrs, err)
			}
		}

		if c.globals.JSON {
			return writeJSON(c.env.stdout, map[string]any{
				"cleared":    true,
				"partitions": len(parts),
			})
		}
		fmt.Fprintf(c.env.stdout, "Cleared %d partition(s).\n", len(parts))
		return nil
	})
}
