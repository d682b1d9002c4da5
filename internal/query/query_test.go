package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tablog/internal/event"
)

var now = time.Date(2025, time.March, 12, 15, 0, 0, 0, time.Local)

func ev(id, url, title, domain string, kind event.Kind, at time.Time) event.TabEvent {
	return event.TabEvent{ID: id, URL: url, Title: title, Domain: domain, Kind: kind, Timestamp: at.UnixMilli()}
}

func ids(events []event.TabEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func sample() []event.TabEvent {
	return []event.TabEvent{
		ev("1", "https://golang.org/doc", "Documentation", "golang.org", event.KindOpened, now.Add(-2*time.Hour)),
		ev("2", "https://news.ycombinator.com", "Hacker News", "news.ycombinator.com", event.KindActivated, now.Add(-30*time.Minute)),
		ev("3", "https://Example.com/Go-Tips", "Tips", "Example.com", event.KindLoaded, now.Add(-3*24*time.Hour)),
		ev("4", "https://beta.org", "Beta", "beta.org", event.KindClosed, now.Add(-20*24*time.Hour)),
		ev("5", "https://alpha.org", "Alpha", "", event.KindOpened, now.Add(-5*time.Minute)),
	}
}

func TestRun_DefaultsNewestFirst(t *testing.T) {
	res := Run(sample(), Filter{}, SortNewest, Page{}, now)

	assert.Equal(t, []string{"5", "2", "1", "3", "4"}, ids(res.Items))
	assert.Equal(t, 5, res.TotalItems)
	assert.Equal(t, 1, res.TotalPages)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPageSize, res.PageSize)
}

func TestRun_SearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	snap := sample()

	assert.Equal(t, []string{"1", "3"}, ids(Run(snap, Filter{Search: "GO"}, SortNewest, Page{}, now).Items), "url match")
	assert.Equal(t, []string{"2"}, ids(Run(snap, Filter{Search: "hacker"}, SortNewest, Page{}, now).Items), "title match")
	assert.Equal(t, []string{"4", "1", "5"}, ids(Run(snap, Filter{Search: ".org"}, SortOldest, Page{}, now).Items), "domain and url match")
}

func TestRun_KindFilterIsExact(t *testing.T) {
	res := Run(sample(), Filter{Kind: event.KindOpened}, SortOldest, Page{}, now)
	assert.Equal(t, []string{"1", "5"}, ids(res.Items))
}

func TestRun_Windows(t *testing.T) {
	snap := sample()

	today := Run(snap, Filter{Window: WindowToday}, SortNewest, Page{}, now)
	assert.Equal(t, []string{"5", "2", "1"}, ids(today.Items))

	week := Run(snap, Filter{Window: WindowWeek}, SortNewest, Page{}, now)
	assert.Equal(t, []string{"5", "2", "1", "3"}, ids(week.Items))

	month := Run(snap, Filter{Window: WindowMonth}, SortNewest, Page{}, now)
	assert.Equal(t, []string{"5", "2", "1", "3"}, ids(month.Items), "20 days ago is in February")
}

func TestRun_FiltersCompose(t *testing.T) {
	res := Run(sample(), Filter{Search: "org", Kind: event.KindOpened, Window: WindowToday}, SortNewest, Page{}, now)
	assert.Equal(t, []string{"5", "1"}, ids(res.Items))
}

func TestRun_DomainSortIsCaseInsensitiveAndStable(t *testing.T) {
	snap := sample()
	snap = append(snap, ev("6", "https://beta.org/2", "Beta 2", "Beta.org", event.KindLoaded, now))

	res := Run(snap, Filter{}, SortDomain, Page{}, now)
	assert.Equal(t, []string{"5", "4", "6", "3", "1", "2"}, ids(res.Items), "missing domain sorts first; ties keep arrival order")
}

func TestRun_PaginationClampsPage(t *testing.T) {
	var snap []event.TabEvent
	for i := 0; i < 45; i++ {
		snap = append(snap, ev(fmt.Sprintf("%02d", i), "https://a.com", "A", "a.com", event.KindOpened, now.Add(time.Duration(i)*time.Second)))
	}

	p2 := Run(snap, Filter{}, SortOldest, Page{Number: 2, Size: 20}, now)
	assert.Equal(t, 3, p2.TotalPages)
	assert.Equal(t, 2, p2.Page)
	require.Len(t, p2.Items, 20)
	assert.Equal(t, "20", p2.Items[0].ID)

	last := Run(snap, Filter{}, SortOldest, Page{Number: 99, Size: 20}, now)
	assert.Equal(t, 3, last.Page)
	assert.Len(t, last.Items, 5)

	first := Run(snap, Filter{}, SortOldest, Page{Number: -3, Size: 20}, now)
	assert.Equal(t, 1, first.Page)
}

func TestRun_ShrinkingFilterClampsInsteadOfEmptyPage(t *testing.T) {
	res := Run(sample(), Filter{Kind: event.KindOpened}, SortNewest, Page{Number: 4, Size: 1}, now)
	assert.Equal(t, 2, res.TotalPages)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, []string{"1"}, ids(res.Items))
}

func TestRun_EmptySnapshot(t *testing.T) {
	res := Run(nil, Filter{Search: "x"}, SortDomain, Page{Number: 3}, now)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.TotalItems)
	assert.Equal(t, 1, res.TotalPages)
	assert.Equal(t, 1, res.Page)
}

func TestRun_DeterministicAndDoesNotMutateInput(t *testing.T) {
	snap := sample()
	before := append([]event.TabEvent(nil), snap...)

	a := Run(snap, Filter{Search: "o"}, SortDomain, Page{Number: 1, Size: 2}, now)
	b := Run(snap, Filter{Search: "o"}, SortDomain, Page{Number: 1, Size: 2}, now)

	assert.Equal(t, a, b)
	assert.Equal(t, before, snap)
}

func TestParseWindowAndSort(t *testing.T) {
	w, err := ParseWindow("Week")
	require.NoError(t, err)
	assert.Equal(t, WindowWeek, w)
	w, err = ParseWindow("all")
	require.NoError(t, err)
	assert.Equal(t, WindowAll, w)
	_, err = ParseWindow("year")
	assert.Error(t, err)

	s, err := ParseSort("")
	require.NoError(t, err)
	assert.Equal(t, SortNewest, s)
	s, err = ParseSort("DOMAIN")
	require.NoError(t, err)
	assert.Equal(t, SortDomain, s)
	_, err = ParseSort("random")
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(now)
	assert.Equal(t, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.Local), got)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("  github ", "focused", "week")
	require.NoError(t, err)
	assert.Equal(t, Filter{Search: "github", Kind: event.KindActivated, Window: WindowWeek}, f)

	f, err = ParseFilter("", "", "")
	require.NoError(t, err)
	assert.Equal(t, Filter{}, f)

	_, err = ParseFilter("", "exploded", "")
	assert.Error(t, err)
	_, err = ParseFilter("", "", "decade")
	assert.Error(t, err)
}
