// Package server exposes the doorbell over HTTP and websockets: scan and
// respond endpoints, QR code issuance, the owner notification stream, and
// the video relay transport.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gcswan/ding/internal/config"
	"github.com/gcswan/ding/internal/doorbell"
	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/errors"
	"github.com/gcswan/ding/internal/notify"
	"github.com/gcswan/ding/internal/platform/correlation"
	"github.com/gcswan/ding/internal/relay"
)

// storePinger is the readiness probe against the backing store. Nil means
// in-memory storage with nothing to probe.
type storePinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	doorbell   *doorbell.Service
	dispatcher *notify.Dispatcher
	hub        *relay.Hub
	sinks      domain.SinkRegistry
	pinger     storePinger
	clock      clockwork.Clock
	startTime  time.Time
}

func NewServer(cfg *config.Config, svc *doorbell.Service, dispatcher *notify.Dispatcher, hub *relay.Hub, sinks domain.SinkRegistry, pinger storePinger, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(errors.Middleware())

	srv := &Server{
		echo:       e,
		config:     cfg,
		doorbell:   svc,
		dispatcher: dispatcher,
		hub:        hub,
		sinks:      sinks,
		pinger:     pinger,
		clock:      clock,
		startTime:  clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware stamps each request context with a correlation ID so
// every log line of one request can be tied together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
