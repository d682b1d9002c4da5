package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/query"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e, args)
}

// executeWith runs the search against a prepared env (for testing).
func (c *SearchCommand) executeWith(e *env, args []string) error {
	search := strings.Join(args, " ")

	f, err := query.ParseFilter(search, c.Event, c.Window)
	if err != nil {
		return err
	}
	key, err := query.ParseSort(c.Sort)
	if err != nil {
		return err
	}
	size := c.PageSize
	if size <= 0 {
		size = e.cfg.Query.PageSize
	}

	snap, err := e.store.Snapshot(context.Background())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	res := query.Run(snap, f, key, query.Page{Number: c.Page, Size: size}, time.Now())

	if jsonOutput(c.globals) {
		return c.printJSON(f.Search, res)
	}
	return c.printHuman(f.Search, res)
}

func (c *SearchCommand) printHuman(search string, res query.Result) error {
	if res.TotalItems == 0 {
		if search != "" {
			fmt.Printf("No results found for %q\n", search)
		} else {
			fmt.Println("No results found")
		}
		return nil
	}

	resultWord := "results"
	if res.TotalItems == 1 {
		resultWord = "result"
	}
	if search != "" {
		fmt.Printf("Found %d %s for %q (page %d of %d)\n\n", res.TotalItems, resultWord, search, res.Page, res.TotalPages)
	} else {
		fmt.Printf("Found %d %s (page %d of %d)\n\n", res.TotalItems, resultWord, res.Page, res.TotalPages)
	}

	offset := (res.Page - 1) * res.PageSize
	for i, ev := range res.Items {
		fmt.Printf("%d. [%s] %s", offset+i+1, ev.Kind, displayTitle(ev))
		if ev.Domain != "" && ev.Domain != event.UnknownDomain {
			fmt.Printf(" · %s", ev.Domain)
		}
		fmt.Println()

		if ev.URL != "" {
			fmt.Printf("   %s\n", ev.URL)
		}

		meta := ev.Time().Local().Format("2006-01-02 15:04:05")
		meta += fmt.Sprintf(" · tab %d", ev.TabID)
		if ev.SessionDuration != nil {
			meta += " · " + formatMillis(*ev.SessionDuration)
		}
		fmt.Printf("   %s\n", meta)

		if i < len(res.Items)-1 {
			fmt.Println()
		}
	}

	return nil
}

func displayTitle(ev event.TabEvent) string {
	if ev.Kind == event.KindClosed {
		return "(tab closed)"
	}
	return ev.Title
}

type jsonSearchOutput struct {
	Query      string           `json:"query"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Results    []event.TabEvent `json:"results"`
}

func (c *SearchCommand) printJSON(search string, res query.Result) error {
	items := res.Items
	if items == nil {
		items = []event.TabEvent{}
	}
	return printJSON(jsonSearchOutput{
		Query:      search,
		TotalItems: res.TotalItems,
		TotalPages: res.TotalPages,
		Page:       res.Page,
		PageSize:   res.PageSize,
		Results:    items,
	})
}
