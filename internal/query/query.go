// Package query filters, sorts and paginates a snapshot of the event log.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/runnerr0/tablog/internal/event"
)

// DefaultPageSize is used when a page request carries no size.
const DefaultPageSize = 20

// Window restricts results to a recent period.
type Window string

const (
	WindowAll   Window = ""
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow accepts a window name; "" and "all" mean no restriction.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return WindowAll, nil
	case "today":
		return WindowToday, nil
	case "week":
		return WindowWeek, nil
	case "month":
		return WindowMonth, nil
	default:
		return "", fmt.Errorf("unknown time window %q", s)
	}
}

// Cutoff returns the earliest timestamp inside w relative to now, and false
// when w is unbounded.
func (w Window) Cutoff(now time.Time) (time.Time, bool) {
	switch w {
	case WindowToday:
		return StartOfDay(now), true
	case WindowWeek:
		return now.Add(-7 * 24 * time.Hour), true
	case WindowMonth:
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SortKey orders results.
type SortKey string

const (
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
	SortDomain SortKey = "domain"
)

// ParseSort accepts a sort key name; "" means newest.
func ParseSort(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest":
		return SortNewest, nil
	case "oldest":
		return SortOldest, nil
	case "domain":
		return SortDomain, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Filter narrows the snapshot. Zero values match everything.
type Filter struct {
	Search string
	Kind   event.Kind
	Window Window
}

// ParseFilter builds a Filter from user-facing names. An empty kind
// matches every kind.
func ParseFilter(search, kind, window string) (Filter, error) {
	f := Filter{Search: strings.TrimSpace(search)}
	if strings.TrimSpace(kind) != "" {
		k, err := event.ParseKind(kind)
		if err != nil {
			return Filter{}, err
		}
		f.Kind = k
	}
	w, err := ParseWindow(window)
	if err != nil {
		return Filter{}, err
	}
	f.Window = w
	return f, nil
}

// Page requests one page of results, 1-based.
type Page struct {
	Number int
	Size   int
}

// Result is one page of a query.
type Result struct {
	Items      []event.TabEvent `json:"items"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
}

// Run applies search, kind filter and window filter in that order, sorts
// stably and returns the requested page, clamped into range. snapshot is
// not modified.
func Run(snapshot []event.TabEvent, f Filter, key SortKey, p Page, now time.Time) Result {
	matched := make([]event.TabEvent, 0, len(snapshot))
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	cutoff, bounded := f.Window.Cutoff(now)

	for _, e := range snapshot {
		if needle != "" && !containsFold(e, needle) {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if bounded && e.Timestamp < cutoff.UnixMilli() {
			continue
		}
		matched = append(matched, e)
	}

	sortEvents(matched, key)

	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages := (len(matched) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	page := p.Number
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return Result{
		Items:      matched[start:end],
		TotalItems: len(matched),
		TotalPages: totalPages,
		Page:       page,
		PageSize:   size,
	}
}

func containsFold(e event.TabEvent, needle string) bool {
	return strings.Contains(strings.ToLower(e.URL), needle) ||
		strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(e.Domain), needle)
}

func sortEvents(events []event.TabEvent, key SortKey) {
	switch key {
	case SortOldest:
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp < events[j].Timestamp
		})
	case SortDomain:
		sort.SliceStable(events, func(i, j int) bool {
			return strings.ToLower(events[i].Domain) < strings.ToLower(events[j].Domain)
		})
	default:
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp > events[j].Timestamp
		})
	}
}
