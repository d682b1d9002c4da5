package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DBPath  string `long:"db-path" description:"Override the SQLite database path"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows log statistics and whether the daemon is up.
type StatusCommand struct {
	globals   *GlobalFlags
	version   string
	daemonURL string // overrides the configured daemon address
}

// SearchCommand filters, sorts and pages through logged events.
type SearchCommand struct {
	Event    string `long:"event" description:"Only this event kind: opened | loaded | navigated | activated | closed"`
	Window   string `long:"window" description:"Time window: all | today | week | month" default:"all"`
	Sort     string `long:"sort" description:"Sort order: newest | oldest | domain" default:"newest"`
	Page     int    `long:"page" description:"Page number, 1-based" default:"1"`
	PageSize int    `long:"page-size" description:"Results per page (0 uses the configured size)" default:"0"`

	globals *GlobalFlags
	version string
}

// StatsCommand prints the domain frequency and activity summary.
type StatsCommand struct {
	Top int `long:"top" description:"Number of top domains to show (0 uses the configured count)" default:"0"`

	globals *GlobalFlags
	version string
}

// OpenCommand prints one logged event.
type OpenCommand struct {
	ID     string `long:"id" description:"Event ID (required)"`
	Format string `long:"format" description:"Output format: full | json | url | title" default:"full"`

	globals *GlobalFlags
	version string
}

// AddCommand records a tab event by hand through the normal pipeline.
type AddCommand struct {
	URL   string `long:"url" description:"URL to record (required)"`
	Title string `long:"title" description:"Page title"`
	TabID int    `long:"tab-id" description:"Tab id to attribute the event to" default:"0"`
	Event string `long:"event" description:"Event kind: opened | loaded | navigated | activated" default:"opened"`

	globals *GlobalFlags
	version string
}

// IngestCommand runs the tablog daemon (local HTTP service).
type IngestCommand struct {
	Host     string `long:"host" description:"Override daemon host"`
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level"`
	NoWatch  bool   `long:"no-watch" description:"Do not reload the config file on change"`

	globals *GlobalFlags
	version string
}

// PruneCommand applies retention to remove old events.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Override retention period (e.g., 30d)"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
	version string
}

// PurgeCommand deletes every logged event with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	stdin   io.Reader // nil means os.Stdin
}

// ImportCommand loads an exported log (JSON array or {"loggedTabs": [...]}).
type ImportCommand struct {
	File string `long:"file" description:"Export file to import; - reads stdin (required)"`

	globals *GlobalFlags
	version string
	stdin   io.Reader
}

// SettingsCommand shows or changes the user settings record. Numeric
// flags left at -1 are unchanged.
type SettingsCommand struct {
	RetentionDays int      `long:"retention-days" description:"Days to keep entries (0 keeps forever)" default:"-1"`
	MaxEntries    int      `long:"max-entries" description:"Maximum stored entries (0 is unbounded)" default:"-1"`
	Enable        bool     `long:"enable" description:"Turn logging on"`
	Disable       bool     `long:"disable" description:"Turn logging off"`
	Incognito     string   `long:"incognito" description:"Log incognito tabs: on | off"`
	TrackTime     string   `long:"track-time" description:"Record session durations: on | off"`
	Exclude       []string `long:"exclude" description:"Add an excluded site (repeatable)"`
	Include       []string `long:"include" description:"Remove an excluded site (repeatable)"`

	globals *GlobalFlags
	version string
}
