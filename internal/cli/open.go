package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/storage"
)

// Execute implements the go-flags Commander interface for OpenCommand.
func (c *OpenCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for open command")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

func (c *OpenCommand) executeWith(e *env) error {
	ev, err := e.store.GetEvent(context.Background(), c.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("event not found: %s", c.ID)
		}
		return err
	}

	if jsonOutput(c.globals) {
		return printJSON(ev)
	}

	switch c.Format {
	case "json":
		return printJSON(ev)
	case "url":
		fmt.Println(ev.URL)
	case "title":
		fmt.Println(ev.Title)
	case "full", "":
		c.outputFull(ev)
	default:
		return fmt.Errorf("unknown format %q (use full, json, url or title)", c.Format)
	}
	return nil
}

func (c *OpenCommand) outputFull(ev *event.TabEvent) {
	fmt.Println(ev.ID)
	fmt.Printf("Event:     %s\n", ev.Kind)
	fmt.Printf("Tab:       %d\n", ev.TabID)
	if ev.Kind != event.KindClosed {
		fmt.Printf("Title:     %s\n", ev.Title)
		fmt.Printf("URL:       %s\n", ev.URL)
	}
	fmt.Printf("Domain:    %s\n", ev.Domain)
	fmt.Printf("Time:      %s\n", ev.FormattedTime)
	if ev.PreviousURL != "" {
		fmt.Printf("Previous:  %s\n", ev.PreviousURL)
	}
	if ev.SessionDuration != nil {
		fmt.Printf("Duration:  %s\n", formatMillis(*ev.SessionDuration))
	}
	if ev.SessionID != "" {
		fmt.Printf("Session:   %s\n", ev.SessionID)
	}
}
