package event

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MissingTitle replaces an absent title on a stored or imported record.
const MissingTitle = "No title"

// legacyLayouts are the timestamp renderings older extension builds wrote,
// including the en-US toLocaleString form.
var legacyLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	TimeLayout,
	"1/2/2006, 3:04:05 PM",
	"01/02/2006, 15:04:05",
	"2/1/2006, 15:04:05",
}

// Repair fills fields a record from an older format may lack. Records are
// never rejected: a missing timestamp becomes now, a missing kind becomes
// opened, a missing title becomes MissingTitle and a missing domain is
// derived from the URL.
func Repair(e *TabEvent, now time.Time) {
	if e.Timestamp <= 0 {
		e.Timestamp = now.UnixMilli()
	}
	if e.FormattedTime == "" {
		e.FormattedTime = FormatTime(e.Timestamp)
	}
	if k, err := ParseKind(string(e.Kind)); err == nil {
		e.Kind = k
	} else {
		e.Kind = KindOpened
	}
	if e.Kind != KindClosed && strings.TrimSpace(e.Title) == "" {
		e.Title = MissingTitle
	}
	if e.Domain == "" {
		e.Domain = ExtractDomain(e.URL)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
}

// FromLegacy converts one loosely-typed record (for example an element of
// an exported chrome.storage "loggedTabs" array) into a repaired TabEvent.
func FromLegacy(rec map[string]any, now time.Time) TabEvent {
	e := TabEvent{
		ID:            stringField(rec, "id"),
		URL:           stringField(rec, "url"),
		Title:         stringField(rec, "title"),
		Domain:        stringField(rec, "domain"),
		Kind:          Kind(stringField(rec, "event")),
		FormattedTime: stringField(rec, "formattedTime"),
		PreviousURL:   stringField(rec, "previousUrl"),
		SessionID:     stringField(rec, "sessionId"),
	}
	if id, ok := numberField(rec, "tabId"); ok {
		e.TabID = int(id)
	}
	if d, ok := numberField(rec, "sessionDuration"); ok && d >= 0 {
		ms := int64(d)
		e.SessionDuration = &ms
	}

	e.Timestamp = legacyTimestamp(rec)
	Repair(&e, now)
	return e
}

// legacyTimestamp resolves the first usable timestamp candidate, returning
// zero when none parses.
func legacyTimestamp(rec map[string]any) int64 {
	for _, key := range []string{"timestamp", "timestampMs", "time"} {
		if n, ok := numberField(rec, key); ok && n > 0 {
			return int64(n)
		}
	}
	for _, key := range []string{"formattedTime", "timestampString", "timestamp"} {
		if t, err := parseLegacyTime(stringField(rec, key)); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func parseLegacyTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(rec map[string]any, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
