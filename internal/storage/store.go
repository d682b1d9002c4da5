package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/runnerr0/tablog/internal/event"
)

// Store defines the interface for tablog data operations.
type Store interface {
	Append(ctx context.Context, e event.TabEvent, maxEntries int) error
	MaintainRetention(ctx context.Context, retentionDays int, now time.Time) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context) ([]event.TabEvent, error)
	GetEvent(ctx context.Context, id string) (*event.TabEvent, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, value []byte) error
	RecordAudit(ctx context.Context, action, detail string) error
	Close() error
}

const dayMillis = int64(24 * time.Hour / time.Millisecond)

var eventColumns = []string{
	"id", "tab_id", "url", "title", "domain", "event", "ts",
	"formatted_time", "session_duration", "previous_url", "session_id",
}

// storedColumns are read back with the arrival sequence first.
var storedColumns = append([]string{"seq"}, eventColumns...)

// rowIDPrefix names stored rows that lack an id, by their sequence number.
const rowIDPrefix = "row-"

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithWatermarkPercent sets the share of maxEntries kept after an overflow
// eviction. Values outside 1..100 are ignored.
func WithWatermarkPercent(p int) Option {
	return func(s *SQLiteStore) {
		if p >= 1 && p <= 100 {
			s.watermarkPercent = p
		}
	}
}

// WithClock sets the clock the store reads its open time from. Rows with
// no timestamp are dated to that time on every read.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAudit records destructive operations in audit_log.
func WithAudit(enabled bool) Option {
	return func(s *SQLiteStore) { s.audit = enabled }
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	watermarkPercent int
	audit            bool
	now              func() time.Time
	repairedAt       time.Time

	// Prepared statements
	getEvent    *sql.Stmt
	countEvents *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, watermarkPercent: DefaultWatermarkPercent, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.repairedAt = s.now()

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getEvent, err = s.db.Prepare(`
		SELECT ` + strings.Join(storedColumns, ", ") + `
		FROM tab_events WHERE id = ? OR (id = '' AND '` + rowIDPrefix + `' || seq = ?)
	`)
	if err != nil {
		return err
	}

	s.countEvents, err = s.db.Prepare(`SELECT COUNT(*) FROM tab_events`)
	if err != nil {
		return err
	}

	return nil
}

// keepAfterOverflow is the lower watermark an overflowing log is trimmed to.
// The newest entry always survives.
func (s *SQLiteStore) keepAfterOverflow(maxEntries int) int64 {
	keep := int64(maxEntries) * int64(s.watermarkPercent) / 100
	if keep < 1 {
		keep = 1
	}
	return keep
}

// Append inserts e at the newest end of the log. When the log then holds
// more than maxEntries rows, the oldest rows are removed until it holds the
// lower watermark. Both steps commit together. maxEntries <= 0 disables
// the bound.
func (s *SQLiteStore) Append(ctx context.Context, e event.TabEvent, maxEntries int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := sq.Insert("tab_events").
		Columns(eventColumns...).
		Values(
			e.ID, e.TabID, e.URL, e.Title, e.Domain, string(e.Kind), e.Timestamp,
			e.FormattedTime, nullInt64(e.SessionDuration), nullString(e.PreviousURL), e.SessionID,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if maxEntries > 0 {
		var count int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tab_events").Scan(&count); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		if count > int64(maxEntries) {
			excess := count - s.keepAfterOverflow(maxEntries)
			query, args, err := sq.Delete("tab_events").
				Where(sq.Expr("seq IN (SELECT seq FROM tab_events ORDER BY seq ASC LIMIT ?)", excess)).
				ToSql()
			if err != nil {
				return fmt.Errorf("build eviction: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("evict oldest: %w", err)
			}
		}
	}

	return tx.Commit()
}

// MaintainRetention deletes entries older than retentionDays relative to
// now and returns how many were removed. retentionDays <= 0 disables the
// sweep.
func (s *SQLiteStore) MaintainRetention(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UnixMilli() - int64(retentionDays)*dayMillis

	query, args, err := sq.Delete("tab_events").Where(sq.Lt{"ts": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build retention: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.auditQuietly(ctx, "retention", fmt.Sprintf("removed %d entries older than %d days", n, retentionDays))
	}
	return n, nil
}

// ClearAll empties the log and returns how many entries were removed.
// Confirmation is the caller's job.
func (s *SQLiteStore) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tab_events")
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	s.auditQuietly(ctx, "clear_all", fmt.Sprintf("removed %d entries", n))
	return n, nil
}

// Snapshot returns the whole log in arrival order. Rows written by older
// builds are repaired on the way out, the same way on every read.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]event.TabEvent, error) {
	query, args, err := sq.Select(storedColumns...).From("tab_events").OrderBy("seq ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []event.TabEvent{}
	for rows.Next() {
		e, err := s.scanStored(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetEvent retrieves a single event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*event.TabEvent, error) {
	e, err := s.scanStored(s.getEvent.QueryRowContext(ctx, id, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.countEvents.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Stats returns aggregate statistics about the database.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: map[string]int64{}}

	var err error
	stats.TotalEvents, err = s.Count(ctx)
	if err != nil {
		return nil, err
	}

	// Oldest and newest (handle empty DB)
	if stats.TotalEvents > 0 {
		var oldest, newest int64
		err = s.db.QueryRowContext(ctx, "SELECT MIN(ts), MAX(ts) FROM tab_events").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("event time range: %w", err)
		}
		stats.OldestEvent = time.UnixMilli(oldest)
		stats.NewestEvent = time.UnixMilli(newest)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	kindRows, err := s.db.QueryContext(ctx, "SELECT event, COUNT(*) FROM tab_events GROUP BY event")
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var kind string
		var n int64
		if err := kindRows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		stats.ByKind[kind] = n
	}
	if err := kindRows.Err(); err != nil {
		return nil, err
	}

	// Top domains
	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, COUNT(*) as cnt FROM tab_events GROUP BY domain ORDER BY cnt DESC, MIN(seq) ASC LIMIT 10",
	)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, err
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}

	return stats, rows.Err()
}

// LoadSettings returns the stored settings record, or ErrNotFound when none
// has been saved yet.
func (s *SQLiteStore) LoadSettings(ctx context.Context) ([]byte, error) {
	query, args, err := sq.Select("value").From("settings").Where(sq.Eq{"key": SettingsKey}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build settings query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return []byte(value), nil
}

// SaveSettings replaces the settings record.
func (s *SQLiteStore) SaveSettings(ctx context.Context, value []byte) error {
	query, args, err := sq.Insert("settings").
		Columns("key", "value").
		Values(SettingsKey, string(value)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP").
		ToSql()
	if err != nil {
		return fmt.Errorf("build settings upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// RecordAudit appends a row to the audit trail when auditing is enabled.
func (s *SQLiteStore) RecordAudit(ctx context.Context, action, detail string) error {
	if !s.audit {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_log (action, detail) VALUES (?, ?)", action, detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// auditQuietly records an audit row; a failure there never fails the
// operation being audited.
func (s *SQLiteStore) auditQuietly(ctx context.Context, action, detail string) {
	_ = s.RecordAudit(ctx, action, detail)
}

// RecentAudit returns up to limit audit rows, newest first.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := sq.Select("id", "action", "detail", "ts").
		From("audit_log").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var tsStr string
		if err := rows.Scan(&a.ID, &a.Action, &a.Detail, &tsStr); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		a.At, _ = parseTimestamp(tsStr)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getEvent, s.countEvents} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStored reads one storedColumns row and repairs it. Missing ids and
// timestamps get stable stand-ins so repeated reads agree.
func (s *SQLiteStore) scanStored(r rowScanner) (event.TabEvent, error) {
	var (
		e        event.TabEvent
		seq      int64
		kind     string
		duration sql.NullInt64
		prevURL  sql.NullString
	)
	err := r.Scan(
		&seq, &e.ID, &e.TabID, &e.URL, &e.Title, &e.Domain, &kind, &e.Timestamp,
		&e.FormattedTime, &duration, &prevURL, &e.SessionID,
	)
	if err != nil {
		return e, err
	}
	e.Kind = event.Kind(kind)
	if duration.Valid {
		d := duration.Int64
		e.SessionDuration = &d
	}
	e.PreviousURL = prevURL.String

	if e.ID == "" {
		e.ID = fmt.Sprintf("%s%d", rowIDPrefix, seq)
	}
	event.Repair(&e, s.repairedAt)
	return e, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}
