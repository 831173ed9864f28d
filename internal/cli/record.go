package cli

import (
	"context"
	"fmt"
)

// Execute implements the go-flags Commander interface for RecordCommand.
func (c *RecordCommand) Execute(args []string) error {
	if (c.Candidate == "") == (c.Activation == "") {
		return fmt.Errorf("record requires exactly one of --candidate or --activation")
	}
	attrs, err := parsePartition(c.Partition)
	if err != nil {
		return err
	}
	at, err := parseAt(c.At, c.env.now)
	if err != nil {
		return err
	}

	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		kind, host := "activation", c.Activation
		stored := true
		if c.Candidate != "" {
			kind, host = "candidate", c.Candidate
			if stored, err = a.manager.AddBounceCandidate(ctx, attrs, host, at); err != nil {
				return fmt.Errorf("record candidate: %w", err)
			}
		} else if err := a.manager.AddUserActivation(ctx, attrs, host, at); err != nil {
			return fmt.Errorf("record activation: %w", err)
		}

		if c.globals.JSON {
			return writeJSON(c.env.stdout, map[string]any{
				"kind":      kind,
				"host":      host,
				"partition": attrs.String(),
				"timestamp": formatTime(at),
				"stored":    stored,
			})
		}
		if !stored {
			fmt.Fprintf(c.env.stdout, "Not recorded: %s has a live user activation.\n", host)
			return nil
		}
		fmt.Fprintf(c.env.stdout, "Recorded %s %s in partition %s.\n", kind, host, attrs)
		return nil
	})
}
