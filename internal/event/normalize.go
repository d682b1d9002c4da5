package event

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// UnknownDomain is the sentinel domain for URLs that cannot be parsed.
	UnknownDomain = "unknown"

	// PendingTitle is used when a notification arrives before the page title.
	PendingTitle = "Loading..."

	// TimeLayout formats FormattedTime.
	TimeLayout = "2006-01-02 15:04:05"
)

// ExtractDomain returns the hostname of rawURL, or UnknownDomain when the
// URL has no parsable host.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return UnknownDomain
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	return strings.ToLower(u.Hostname())
}

// FormatTime renders a millisecond timestamp for display.
func FormatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format(TimeLayout)
}

// Normalizer converts notifications into candidate TabEvents. One
// Normalizer exists per daemon run; its SessionID tags every event.
type Normalizer struct {
	sessionID string
}

// NewNormalizer creates a Normalizer with a fresh run session id.
func NewNormalizer() *Normalizer {
	return &Normalizer{sessionID: "session_" + uuid.NewString()}
}

// NewNormalizerWithSession creates a Normalizer with a fixed session id.
func NewNormalizerWithSession(sessionID string) *Normalizer {
	return &Normalizer{sessionID: sessionID}
}

// SessionID returns the run identifier stamped onto events.
func (n *Normalizer) SessionID() string {
	return n.sessionID
}

// Candidate builds the candidate event for a notification at now. The
// caller decides whether it is suppressed or stored.
func (n *Normalizer) Candidate(note Notification, now time.Time) (TabEvent, error) {
	kind, err := note.Change.Kind()
	if err != nil {
		return TabEvent{}, err
	}

	title := strings.TrimSpace(note.Title)
	if title == "" {
		title = PendingTitle
	}

	e := TabEvent{
		ID:            uuid.NewString(),
		TabID:         note.TabID,
		URL:           note.URL,
		Title:         title,
		Domain:        ExtractDomain(note.URL),
		Kind:          kind,
		Timestamp:     now.UnixMilli(),
		FormattedTime: FormatTime(now.UnixMilli()),
		SessionID:     n.sessionID,
	}
	if kind == KindNavigated {
		e.PreviousURL = note.PreviousURL
	}
	return e, nil
}

// Closed builds the synthetic closed event for a tab. It carries no URL or
// title because the tab is already gone when removal is reported.
func (n *Normalizer) Closed(tabID int, duration time.Duration, now time.Time) TabEvent {
	ms := duration.Milliseconds()
	return TabEvent{
		ID:              uuid.NewString(),
		TabID:           tabID,
		Domain:          UnknownDomain,
		Kind:            KindClosed,
		Timestamp:       now.UnixMilli(),
		FormattedTime:   FormatTime(now.UnixMilli()),
		SessionDuration: &ms,
		SessionID:       n.sessionID,
	}
}

// WithDuration returns a copy of e annotated with a session duration.
func WithDuration(e TabEvent, d time.Duration) TabEvent {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	e.SessionDuration = &ms
	return e
}
