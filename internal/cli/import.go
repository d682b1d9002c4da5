package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/runnerr0/tablog/internal/engine"
)

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	if c.File == "" && len(args) > 0 {
		c.File = args[0]
	}
	if c.File == "" {
		return fmt.Errorf("--file is required for import command")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

func (c *ImportCommand) open() (io.ReadCloser, error) {
	if c.File == "-" {
		if c.stdin != nil {
			return io.NopCloser(c.stdin), nil
		}
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(c.File)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	return f, nil
}

func (c *ImportCommand) executeWith(e *env) error {
	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	records, err := engine.DecodeLegacy(r)
	if err != nil {
		return err
	}

	eng, err := e.newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.Import(context.Background(), records)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if jsonOutput(c.globals) {
		return printJSON(report)
	}
	fmt.Printf("Imported %s records", formatNumber(int64(report.Imported)))
	if report.Failed > 0 {
		fmt.Printf(" (%s failed)", formatNumber(int64(report.Failed)))
	}
	fmt.Println(".")
	return nil
}
