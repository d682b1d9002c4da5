// Package event defines the tab lifecycle records tablog stores and the
// normalization that turns raw browser notifications into candidates.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the lifecycle transition a TabEvent records.
type Kind string

const (
	KindOpened    Kind = "opened"
	KindLoaded    Kind = "loaded"
	KindNavigated Kind = "navigated"
	KindActivated Kind = "activated"
	KindClosed    Kind = "closed"
)

// Kinds lists every valid Kind in lifecycle order.
var Kinds = []Kind{KindOpened, KindLoaded, KindNavigated, KindActivated, KindClosed}

// ParseKind accepts a Kind name. "focused" is an alias of activated.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opened", "created":
		return KindOpened, nil
	case "loaded":
		return KindLoaded, nil
	case "navigated":
		return KindNavigated, nil
	case "activated", "focused":
		return KindActivated, nil
	case "closed":
		return KindClosed, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

// Change is the raw signal type reported by the event source.
type Change string

const (
	ChangeCreated    Change = "created"
	ChangeCompleted  Change = "completed"
	ChangeURLChanged Change = "url_changed"
	ChangeActivated  Change = "activated"
	ChangeRemoved    Change = "removed"
)

// Kind maps a raw change to the Kind it produces.
func (c Change) Kind() (Kind, error) {
	switch c {
	case ChangeCreated:
		return KindOpened, nil
	case ChangeCompleted:
		return KindLoaded, nil
	case ChangeURLChanged:
		return KindNavigated, nil
	case ChangeActivated:
		return KindActivated, nil
	case ChangeRemoved:
		return KindClosed, nil
	default:
		return "", fmt.Errorf("unknown change %q", string(c))
	}
}

// Notification is one normalized tuple delivered by the event source.
type Notification struct {
	TabID       int       `json:"tabId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Change      Change    `json:"change"`
	PreviousURL string    `json:"previousUrl,omitempty"`
	Incognito   bool      `json:"incognito,omitempty"`
	At          time.Time `json:"-"`
}

// TabEvent is a single logged tab lifecycle event. It is never modified
// once appended.
type TabEvent struct {
	ID              string `json:"id"`
	TabID           int    `json:"tabId"`
	URL             string `json:"url,omitempty"`
	Title           string `json:"title,omitempty"`
	Domain          string `json:"domain"`
	Kind            Kind   `json:"event"`
	Timestamp       int64  `json:"timestamp"`
	FormattedTime   string `json:"formattedTime"`
	SessionDuration *int64 `json:"sessionDuration,omitempty"`
	PreviousURL     string `json:"previousUrl,omitempty"`
	SessionID       string `json:"sessionId"`
}

// Time returns the event timestamp as a time.Time in the local zone.
func (e TabEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Duration returns the session duration, or zero when none was recorded.
func (e TabEvent) Duration() time.Duration {
	if e.SessionDuration == nil {
		return 0
	}
	return time.Duration(*e.SessionDuration) * time.Millisecond
}

// DomainOrFallback returns Domain, deriving it from URL when empty.
func (e TabEvent) DomainOrFallback() string {
	if e.Domain != "" {
		return e.Domain
	}
	return ExtractDomain(e.URL)
}
