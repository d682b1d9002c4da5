package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Retention: RetentionConfig{
			Days:                       90,
			MaxEntries:                 10000,
			WatermarkPercent:           80,
			MaintenanceIntervalMinutes: 60,
		},
		Capture: CaptureConfig{
			EnableLogging:           true,
			LogIncognito:            false,
			TrackTime:               true,
			ExcludedSites:           []string{},
			SkipURLPrefixes:         DefaultSkipURLPrefixes(),
			ExcludeSensitiveDomains: false,
		},
		Dedupe: DedupeConfig{
			CooldownMS:       2000,
			OpenedCooldownMS: 1000,
			OpenLoadWindowMS: 1000,
			DedupeNavigated:  true,
			MaxTrackedTabs:   4096,
		},
		Queue: QueueConfig{
			Capacity: 1024,
		},
		Storage: StorageConfig{
			Path:              "~/.config/tablog",
			SQLiteFile:        "tablog.db",
			SQLiteJournalMode: "wal",
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8722,
			MaxRequestSize: 1048576,
		},
		Logging: LoggingConfig{
			Level:    "info",
			File:     "tablog.log",
			Pretty:   false,
			AuditLog: true,
		},
		Query: QueryConfig{
			PageSize:   20,
			TopDomains: 10,
		},
	}
}
