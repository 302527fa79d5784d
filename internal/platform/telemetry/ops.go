package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/middleware"
)

// OpsServer serves /health and /metrics over HTTP, plus any routes mounted
// with Group.
type OpsServer struct {
	echo   *echo.Echo
	addr   string
	logger zerolog.Logger
}

// NewOpsServer builds the ops endpoint. It does not listen until Start.
func NewOpsServer(addr string, metrics *Metrics, probes map[string]Probe, logger zerolog.Logger) *OpsServer {
	logger = logger.With().Str("server", "ops").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger, metrics.OpsPanic))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, "/metrics", "/health"))

	e.GET("/health", HealthHandler(probes))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return &OpsServer{echo: e, addr: addr, logger: logger}
}

// Group mounts extra routes under prefix.
func (s *OpsServer) Group(prefix string) *echo.Group { return s.echo.Group(prefix) }

// Handler exposes the router, mainly for tests.
func (s *OpsServer) Handler() http.Handler { return s.echo }

// Start listens on the configured address and serves until Shutdown. A
// clean shutdown returns nil.
func (s *OpsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *OpsServer) Serve(ln net.Listener) error {
	s.echo.Listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
