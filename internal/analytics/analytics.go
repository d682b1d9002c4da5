// Package analytics computes summary statistics over the full event log.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/query"
)

// DefaultTopN is the number of domains reported when none is requested.
const DefaultTopN = 10

const dayMillis = float64(24 * time.Hour / time.Millisecond)

// DomainCount is one row of the domain frequency table.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Result summarizes the log.
type Result struct {
	Total         int           `json:"total"`
	UniqueDomains int           `json:"uniqueDomains"`
	Today         int           `json:"today"`
	AvgPerDay     int           `json:"avgPerDay"`
	TopDomains    []DomainCount `json:"topDomains"`
}

// Aggregate computes Result over snapshot. Entries without a domain count
// under the one derived from their URL. An empty snapshot yields zeros.
func Aggregate(snapshot []event.TabEvent, now time.Time, topN int) Result {
	if topN <= 0 {
		topN = DefaultTopN
	}
	res := Result{Total: len(snapshot), TopDomains: []DomainCount{}}
	if len(snapshot) == 0 {
		return res
	}

	midnight := query.StartOfDay(now).UnixMilli()
	earliest := snapshot[0].Timestamp
	counts := make(map[string]int)
	var order []string

	for _, e := range snapshot {
		d := e.DomainOrFallback()
		if _, seen := counts[d]; !seen {
			order = append(order, d)
		}
		counts[d]++

		if e.Timestamp >= midnight {
			res.Today++
		}
		if e.Timestamp < earliest {
			earliest = e.Timestamp
		}
	}

	res.UniqueDomains = len(counts)

	days := math.Ceil(float64(now.UnixMilli()-earliest) / dayMillis)
	if days < 1 {
		days = 1
	}
	res.AvgPerDay = int(math.Round(float64(res.Total) / days))

	table := make([]DomainCount, len(order))
	for i, d := range order {
		table[i] = DomainCount{Domain: d, Count: counts[d]}
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Count > table[j].Count
	})
	if len(table) > topN {
		table = table[:topN]
	}
	res.TopDomains = table

	return res
}
