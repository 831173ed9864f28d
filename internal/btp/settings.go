package btp

import (
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
	"github.com/runnerr0/bounceguard/internal/navigation"
	"github.com/runnerr0/bounceguard/internal/purge"
	"github.com/runnerr0/bounceguard/internal/purgelog"
	"github.com/runnerr0/bounceguard/internal/storage"
)

// Settings enumerates every tunable of the subsystem.
type Settings struct {
	Mode                  model.Mode
	ClientRedirectTimeout time.Duration
	// StateWriteLookback is how far behind the newest write older writes
	// are kept when no open chain needs them.
	StateWriteLookback time.Duration
	RetentionWindow    time.Duration
	PurgeCycleInterval time.Duration
	PurgeLogSize       int
	PurgeConcurrency   int
	// PurgeRatePerSecond paces sink calls; 0 is unlimited.
	PurgeRatePerSecond float64
	// EventBuffer is the queue length of each partition.
	EventBuffer int
	// TickInterval is how often open chains are checked for timeout.
	TickInterval time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Mode:                  model.ModeEnabled,
		ClientRedirectTimeout: navigation.DefaultClientRedirectTimeout,
		StateWriteLookback:    5 * time.Second,
		RetentionWindow:       storage.DefaultRetention,
		PurgeCycleInterval:    purge.DefaultInterval,
		PurgeLogSize:          purgelog.DefaultCapacity,
		PurgeConcurrency:      1,
		EventBuffer:           256,
		TickInterval:          500 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultSettings. Mode is kept as is
// since its zero value is a valid choice.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ClientRedirectTimeout <= 0 {
		s.ClientRedirectTimeout = d.ClientRedirectTimeout
	}
	if s.StateWriteLookback <= 0 {
		s.StateWriteLookback = d.StateWriteLookback
	}
	if s.RetentionWindow <= 0 {
		s.RetentionWindow = d.RetentionWindow
	}
	if s.PurgeCycleInterval <= 0 {
		s.PurgeCycleInterval = d.PurgeCycleInterval
	}
	if s.PurgeLogSize <= 0 {
		s.PurgeLogSize = d.PurgeLogSize
	}
	if s.PurgeConcurrency <= 0 {
		s.PurgeConcurrency = d.PurgeConcurrency
	}
	if s.EventBuffer <= 0 {
		s.EventBuffer = d.EventBuffer
	}
	if s.TickInterval <= 0 {
		s.TickInterval = d.TickInterval
	}
	return s
}
