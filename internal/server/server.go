// Package server exposes the HTTP surface: the chat SSE relay, document
// ingestion and per-thread history.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"docchat/internal/apperr"
	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/logger"
	"docchat/internal/relay"
	"docchat/internal/session"
	"docchat/internal/store"
	"docchat/internal/upstream"
)

// Server wires the handlers onto an Echo instance.
type Server struct {
	echo     *echo.Echo
	cfg      config.ServerConfig
	registry *session.Registry
	opener   upstream.Opener
	relay    *relay.Relay
	ingest   *ingest.Service
	store    *store.Store
}

// New builds the server and registers all routes.
func New(cfg config.ServerConfig, reg *session.Registry, opener upstream.Opener, rly *relay.Relay, ing *ingest.Service, st *store.Store) *Server {
	s := &Server{
		echo:     echo.New(),
		cfg:      cfg,
		registry: reg,
		opener:   opener,
		relay:    rly,
		ingest:   ing,
		store:    st,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.AllowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogMethod: true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.L.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))

	s.echo.POST("/chat", s.handleChat)
	s.echo.OPTIONS("/chat", s.handlePreflight)
	s.echo.POST("/ingest", s.handleIngest)
	s.echo.GET("/chat/:threadId/history", s.handleHistory)

	return s
}

// Echo exposes the underlying instance, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	logger.L.Info().Str("address", addr).Msg("starting server")
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handlePreflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// respondError renders the JSON error envelope for a classified error.
func (s *Server) respondError(c echo.Context, err *apperr.Error) error {
	return c.JSON(err.Status, map[string]any{
		"success": false,
		"error":   err.Public(s.cfg.DevMode),
		"type":    string(err.Kind),
	})
}

// respondUnexpected renders the 500 envelope for anything unclassified.
func (s *Server) respondUnexpected(c echo.Context, err error) error {
	logger.L.Error().Err(err).Msg("unexpected failure")
	msg := "internal server error"
	if s.cfg.DevMode {
		msg = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   msg,
		"type":    "server_error",
	})
}

func nowMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
