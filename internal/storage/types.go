package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested event or record does not exist.
var ErrNotFound = errors.New("not found")

// SettingsKey is the settings table key holding the user settings record.
const SettingsKey = "userSettings"

// DefaultWatermarkPercent is the share of maxEntries kept after an
// overflow eviction.
const DefaultWatermarkPercent = 80

// Stats holds aggregate statistics about the tablog database.
type Stats struct {
	TotalEvents       int64            `json:"totalEvents"`
	OldestEvent       time.Time        `json:"oldestEvent"`
	NewestEvent       time.Time        `json:"newestEvent"`
	DatabaseSizeBytes int64            `json:"databaseSizeBytes"`
	ByKind            map[string]int64 `json:"byKind"`
	TopDomains        []DomainCount    `json:"topDomains"`
}

// DomainCount pairs a domain with its event count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID     int64
	Action string
	Detail string
	At     time.Time
}
