package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-triage/server/internal/agent/graph"
	logx "github.com/Chative-triage/server/pkg/logger"
)

// AdminKeyHeader carries the request-scoped credential for the external admin agent.
const AdminKeyHeader = "X-Admin-Agent-Key"

// Server represents the API server
type Server struct {
	echo   *echo.Echo
	addr   string
	engine graph.Engine
}

// NewServer creates a new API server. gatherer may be nil to disable /metrics.
func NewServer(addr string, engine graph.Engine, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logx.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logx.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("request_id", v.RequestID).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s := &Server{echo: e, addr: addr, engine: engine}
	s.setupRoutes(gatherer)
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.startRun)
	v1.POST("/runs/:id/resume", s.resumeRun)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/runs/:id/transitions", s.getTransitions)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logx.Info().Msg("shutting down http server")
	return s.echo.Shutdown(shutdownCtx)
}
