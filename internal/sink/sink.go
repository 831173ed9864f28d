// Package sink provides purge.Sink implementations for hosts that do not
// embed the subsystem in a browser.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/purge"
)

// Placeholders substituted in command arguments.
const (
	HostPlaceholder      = "{host}"
	PartitionPlaceholder = "{partition}"
)

var ErrNoCommand = errors.New("purge command is empty")

// Func adapts a function to purge.Sink.
type Func func(ctx context.Context, host model.Host, attrs model.OriginAttributes) error

func (f Func) PurgeSite(ctx context.Context, host model.Host, attrs model.OriginAttributes) error {
	return f(ctx, host, attrs)
}

// Command purges a site by running an external program once per host.
// Exit status 0 is success.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *zap.Logger
}

var _ purge.Sink = (*Command)(nil)

// NewCommand validates argv. A zero timeout means no limit beyond ctx.
func NewCommand(argv []string, timeout time.Duration, logger *zap.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{argv: append([]string(nil), argv...), timeout: timeout, logger: logger.Named("sink")}, nil
}

// Args returns the argv that would run for host in attrs.
func (c *Command) Args(host model.Host, attrs model.OriginAttributes) []string {
	r := strings.NewReplacer(HostPlaceholder, string(host), PartitionPlaceholder, attrs.Key())
	out := make([]string, len(c.argv))
	for i, a := range c.argv {
		out[i] = r.Replace(a)
	}
	return out
}

func (c *Command) PurgeSite(ctx context.Context, host model.Host, attrs model.OriginAttributes) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(host, attrs)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("purge %s: %w: %s", host, err, msg)
		}
		return fmt.Errorf("purge %s: %w", host, err)
	}
	c.logger.Debug("purge command finished",
		zap.String("host", string(host)),
		zap.String("partition", attrs.String()),
		zap.Duration("took", time.Since(start)))
	return nil
}
