// Package daemon serves the engine over local HTTP. The browser-side event
// source posts notifications here; the CLI and any viewer read from it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/engine"
	"github.com/runnerr0/tablog/internal/logging"
)

// ConfirmHeader must carry ConfirmClearAll on DELETE /v1/events.
const (
	ConfirmHeader   = "X-Tablog-Confirm"
	ConfirmClearAll = "clear-all"
)

const shutdownTimeout = 5 * time.Second

// Options configure a Server. Engine and Config are required.
type Options struct {
	Engine *engine.Engine
	Config *config.Config
	// ConfigPath, when set, is watched and reloads are pushed into the
	// engine.
	ConfigPath string
	Version    string
	Logger     *zerolog.Logger
}

// Server is the HTTP front of an Engine.
type Server struct {
	engine     *engine.Engine
	cfg        *config.Config
	configPath string
	version    string
	logger     zerolog.Logger
	started    time.Time
	app        *fiber.App
}

// New builds a Server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("daemon: engine is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("daemon: config is required")
	}

	logger := logging.Component("daemon")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Server{
		engine:     opts.Engine,
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		version:    opts.Version,
		logger:     logger,
		started:    time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "tablog",
		BodyLimit:             opts.Config.Daemon.MaxRequestSize,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/status", s.GetStatus)

	v1 := s.app.Group("/v1")
	v1.Post("/events", s.PostEvent)
	v1.Get("/events", s.ListEvents)
	v1.Delete("/events", s.ClearEvents)
	v1.Get("/events/:id", s.GetEvent)
	v1.Post("/tabs/live", s.PostLiveTabs)
	v1.Get("/stats", s.GetStats)
	v1.Get("/settings", s.GetSettings)
	v1.Put("/settings", s.PutSettings)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts maintenance and the config watcher, serves until ctx is
// canceled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.engine.StartMaintenance(s.cfg.MaintenanceInterval())
	defer s.engine.StopMaintenance()

	if s.configPath != "" {
		err := config.Watch(ctx, s.configPath, config.DefaultWatchDebounce, s.logger, func(cfg *config.Config) {
			if err := s.engine.ApplyConfig(ctx, cfg); err != nil {
				s.logger.Error().Err(err).Msg("apply reloaded config")
			}
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("path", s.configPath).Msg("config watch disabled")
		}
	}

	addr := s.cfg.DaemonAddr()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	s.logger.Info().Str("addr", addr).Str("session_id", s.engine.SessionID()).Msg("daemon listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("daemon stopped")
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
