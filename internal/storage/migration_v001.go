package storage

import "database/sql"

// migrateV001 creates the initial tablog schema: the event log, the
// settings record and the audit trail. Every statement uses IF NOT EXISTS
// for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		// seq preserves arrival order; eviction removes the lowest seq.
		`CREATE TABLE IF NOT EXISTS tab_events (
			seq              INTEGER PRIMARY KEY AUTOINCREMENT,
			id               TEXT NOT NULL UNIQUE,
			tab_id           INTEGER NOT NULL,
			url              TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			domain           TEXT NOT NULL DEFAULT '',
			event            TEXT NOT NULL DEFAULT '',
			ts               INTEGER NOT NULL DEFAULT 0,
			formatted_time   TEXT NOT NULL DEFAULT '',
			session_duration INTEGER,
			previous_url     TEXT,
			session_id       TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			ts     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_tab_events_ts     ON tab_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_tab_events_domain ON tab_events(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_tab_events_event  ON tab_events(event)`,
		`CREATE INDEX IF NOT EXISTS idx_tab_events_tab    ON tab_events(tab_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts      ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_action  ON audit_log(action)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
