// Package server wires the HTTP transport and the background Scheduler
// worker into one process lifecycle, following the teacher's
// echo.New()-plus-middleware bootstrap shape (server/router/frontend).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/taskgraph/engine"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/scheduler"
	"github.com/hrygo/taskgraph/server/httpapi"
	"github.com/hrygo/taskgraph/store"
)

const shutdownTimeout = 10 * time.Second

// Server owns the echo HTTP listener and the Scheduler worker's lifecycle.
type Server struct {
	echo      *echo.Echo
	profile   *profile.Profile
	scheduler *scheduler.Scheduler
	cancelSch context.CancelFunc
}

// NewServer builds the HTTP surface over eng/store and pairs it with sch,
// the Scheduler worker this process runs alongside it.
func NewServer(_ context.Context, p *profile.Profile, s *store.Store, eng *engine.Engine, sch *scheduler.Scheduler, m *metrics.Exporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	httpapi.NewService(eng, s).Register(e)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return &Server{echo: e, profile: p, scheduler: sch}, nil
}

// Start binds the configured listener and begins serving in the
// background, and starts the Scheduler's tick loop. It returns once the
// listener is bound; bind failures (bad address, port in use) are returned
// synchronously, serve-time failures are logged.
func (s *Server) Start(ctx context.Context) error {
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancelSch = cancel
	go s.scheduler.Run(schedCtx)

	if s.profile.UNIXSock != "" {
		ln, err := net.Listen("unix", s.profile.UNIXSock)
		if err != nil {
			return fmt.Errorf("failed to listen on unix socket %s: %w", s.profile.UNIXSock, err)
		}
		s.echo.Listener = ln
	} else {
		addr := fmt.Sprintf(":%d", s.profile.Port)
		if s.profile.Addr != "" {
			addr = fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.echo.Listener = ln
	}

	go func() {
		if err := s.echo.Start(""); err != nil && err != http.ErrServerClosed {
			slog.Error("server: echo serve failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the Scheduler and drains in-flight HTTP requests within
// shutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) {
	if s.cancelSch != nil {
		s.cancelSch()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("server: graceful shutdown failed", "error", err)
	}
}
