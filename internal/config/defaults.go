package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		BounceTracking: BounceTrackingConfig{
			Mode:                    "enabled",
			ClientRedirectTimeoutMs: 2500,
			StateWriteLookbackMs:    5000,
			RetentionDays:           45,
			PurgeIntervalHours:      1,
			PurgeLogSize:            100,
			PurgeConcurrency:        1,
			PurgeRatePerSecond:      0,
			EventBuffer:             256,
			PurgeCommand:            []string{},
			PurgeCommandTimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Path:              "~/.config/bounceguard",
			SQLiteFile:        "bounceguard.db",
			SQLiteJournalMode: "wal",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   false,
		},
		Allowlist: AllowlistConfig{
			Domains: DefaultAllowlistDomains(),
			Regex:   []string{},
		},
	}
}
