package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/tablog/internal/daemon"
	"github.com/runnerr0/tablog/internal/logging"
)

// Execute implements the go-flags Commander interface for IngestCommand.
func (c *IngestCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	closeLog, err := c.configureLogging(e)
	if err != nil {
		return err
	}
	defer closeLog()

	return c.run(setupSignalHandler(), e)
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

// configureLogging points the root logger at the configured file (and
// stderr) at the configured level.
func (c *IngestCommand) configureLogging(e *env) (func(), error) {
	level := e.cfg.Logging.Level
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	if c.globals != nil && c.globals.Verbose {
		level = "debug"
	}

	path, err := e.cfg.LogPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		e.logger = logging.Configure(level, e.cfg.Logging.Pretty, os.Stderr)
		return func() {}, nil
	}

	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, err
	}
	e.logger = logging.Configure(level, e.cfg.Logging.Pretty, io.MultiWriter(os.Stderr, f))
	return func() { f.Close() }, nil
}

// run serves the daemon over e until ctx is canceled.
func (c *IngestCommand) run(ctx context.Context, e *env) error {
	if c.Host != "" {
		e.cfg.Daemon.Host = c.Host
	}
	if c.Port != 0 {
		e.cfg.Daemon.Port = c.Port
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	eng, err := e.newEngine()
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			e.logger.Error().Err(err).Msg("drain write queue")
		}
	}()

	watchPath := e.configPath
	if c.NoWatch {
		watchPath = ""
	}
	logger := e.logger.With().Str("component", "daemon").Logger()
	srv, err := daemon.New(daemon.Options{
		Engine:     eng,
		Config:     e.cfg,
		ConfigPath: watchPath,
		Version:    c.version,
		Logger:     &logger,
	})
	if err != nil {
		return err
	}

	if !jsonOutput(c.globals) {
		fmt.Fprintf(os.Stderr, "tablog daemon listening on http://%s (database %s)\n", e.cfg.DaemonAddr(), e.dbPath)
	}
	return srv.Run(ctx)
}
