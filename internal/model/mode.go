package model

import (
	"fmt"
	"strings"
)

// Mode is the operating mode of bounce tracking protection.
type Mode int32

const (
	// ModeDisabled makes the whole subsystem inert.
	ModeDisabled Mode = iota
	// ModeDryRun classifies and scans but never purges or logs purges.
	ModeDryRun
	ModeEnabled
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeDryRun:
		return "dry_run"
	case ModeEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// ParseMode accepts the config spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return ModeDisabled, nil
	case "dry_run", "dry-run", "dryrun":
		return ModeDryRun, nil
	case "enabled", "on":
		return ModeEnabled, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (use enabled, dry_run or disabled)", s)
	}
}
