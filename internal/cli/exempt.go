package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/bounceguard/internal/storage"
)

// Execute implements the go-flags Commander interface for ExemptCommand.
func (c *ExemptCommand) Execute(args []string) error {
	if (c.Domain == "") == (c.Regex == "") {
		return fmt.Errorf("exempt requires exactly one of --domain or --regex")
	}
	ruleType, value := "domain", c.Domain
	if c.Regex != "" {
		ruleType, value = "regex", c.Regex
	}

	return withApp(c.globals, c.env, func(ctx context.Context, a *app) error {
		if err := storage.AddExemption(ctx, a.backend.DB(), ruleType, value, c.Reason); err != nil {
			return fmt.Errorf("add exemption: %w", err)
		}

		if c.globals.JSON {
			return writeJSON(c.env.stdout, map[string]any{
				"rule_type":  ruleType,
				"rule_value": value,
				"added":      true,
			})
		}
		fmt.Fprintf(c.env.stdout, "Added %s exemption %s.\n", ruleType, value)
		return nil
	})
}
