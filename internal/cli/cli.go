package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status   *StatusCommand
	Search   *SearchCommand
	Stats    *StatsCommand
	Open     *OpenCommand
	Add      *AddCommand
	Ingest   *IngestCommand
	Prune    *PruneCommand
	Purge    *PurgeCommand
	Import   *ImportCommand
	Settings *SettingsCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tablog"
	parser.LongDescription = "Local, privacy-preserving log of browser tab lifecycle events."

	cmds := &commands{
		Status:   &StatusCommand{globals: &globals, version: version},
		Search:   &SearchCommand{globals: &globals, version: version},
		Stats:    &StatsCommand{globals: &globals, version: version},
		Open:     &OpenCommand{globals: &globals, version: version},
		Add:      &AddCommand{globals: &globals, version: version},
		Ingest:   &IngestCommand{globals: &globals, version: version},
		Prune:    &PruneCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
		Import:   &ImportCommand{globals: &globals, version: version},
		Settings: &SettingsCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show log statistics and daemon health", "Show log statistics, storage size, settings summary and whether the daemon is running.", cmds.Status)
	parser.AddCommand("search", "Search logged tab events", "Search logged tab events by keyword, with kind and time window filters, sorting and pagination.", cmds.Search)
	parser.AddCommand("stats", "Show domain and activity summary", "Show total events, unique domains, today's events, average per day and the top domains.", cmds.Stats)
	parser.AddCommand("open", "Print one logged event", "Print a single logged event by id.", cmds.Open)
	parser.AddCommand("add", "Record a tab event by hand", "Record a tab event through the same gating and deduplication as the daemon.", cmds.Add)
	parser.AddCommand("ingest", "Start the tablog daemon", "Start the tablog daemon (local HTTP service) and run maintenance until interrupted.", cmds.Ingest)
	parser.AddCommand("prune", "Apply retention pruning", "Remove entries older than the retention period.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL logged events", "Delete ALL logged events. Destructive operation with safety prompt.", cmds.Purge)
	parser.AddCommand("import", "Import an exported log", "Import an exported tab log, repairing records from older formats.", cmds.Import)
	parser.AddCommand("settings", "Show or change user settings", "Show or change retention, capture and exclusion settings.", cmds.Settings)

	return parser, &globals, cmds
}

// Run is the main entry point for the tablog CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tablog %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
