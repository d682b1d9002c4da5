package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}
	if err := c.confirm(); err != nil {
		return err
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

// confirm asks the user to type PURGE unless --force is set.
func (c *PurgeCommand) confirm() error {
	if c.Force {
		return nil
	}

	fmt.Println("⚠ WARNING: This will permanently delete ALL logged tab events.")
	fmt.Println("Settings are kept.")
	fmt.Println()
	fmt.Println("This action cannot be undone.")
	fmt.Println()
	fmt.Print(`Type "PURGE" to confirm: `)

	var in io.Reader = os.Stdin
	if c.stdin != nil {
		in = c.stdin
	}
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != "PURGE" {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

func (c *PurgeCommand) executeWith(e *env) error {
	removed, err := e.store.ClearAll(context.Background())
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if jsonOutput(c.globals) {
		return printJSON(map[string]interface{}{
			"purged":  true,
			"removed": removed,
			"message": "all events deleted",
		})
	}

	fmt.Printf("Purged %s events. The log is empty.\n", formatNumber(removed))
	return nil
}
