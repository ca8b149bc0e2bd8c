// Package api implements the HTTP surface of memoryd: the echo/v5 server,
// routes, and handlers that expose SessionManager/SessionEngine operations
// to the proxy/plugin layer (spec §6.1), modeled on the teacher's
// pkg/api/server.go.
package api

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/taleweave/memoryd/pkg/channel"
	"github.com/taleweave/memoryd/pkg/sessionmanager"
	"github.com/taleweave/memoryd/pkg/storage"
	"github.com/taleweave/memoryd/pkg/version"
)

// Server is the memoryd HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	manager *sessionmanager.Manager
	ch      *channel.Channel
	storage *storage.Manager
}

// NewServer wires an echo.Echo with every route in spec §6.1 and returns
// the Server ready to Start.
func NewServer(manager *sessionmanager.Manager, ch *channel.Channel, st *storage.Manager) *Server {
	e := echo.New()
	e.HTTPErrorHandler = httpErrorHandler

	s := &Server{echo: e, manager: manager, ch: ch, storage: st}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/system/liveness", s.livenessHandler)
	s.echo.GET("/system/tavern_mode", s.getTavernModeHandler)
	s.echo.POST("/system/tavern_mode", s.setTavernModeHandler)
	s.echo.POST("/system/full_reset", s.fullResetHandler)
	s.echo.GET("/system/quick_reset", s.quickResetHandler)

	s.echo.POST("/initialize", s.initializeHandler)
	s.echo.POST("/initialize_async", s.initializeAsyncHandler)
	s.echo.GET("/initialize_status/:task_id", s.initializeStatusHandler)

	s.echo.POST("/enhance_prompt", s.enhancePromptHandler)
	s.echo.POST("/update_memory", s.updateMemoryHandler)
	s.echo.POST("/process_conversation", s.processConversationHandler)
	s.echo.POST("/sync_conversation", s.syncConversationHandler)

	s.echo.GET("/sessions/:id/stats", s.sessionStatsHandler)
	s.echo.POST("/sessions/:id/reset", s.sessionResetHandler)
	s.echo.POST("/sessions/:id/clear", s.sessionClearHandler)
	s.echo.POST("/sessions/:id/reinitialize", s.sessionReinitializeHandler)

	tavern := s.echo.Group("/tavern", s.requireTavernMode)
	tavern.POST("/sessions/:id/reinitialize_from_plugin", s.reinitFromPluginHandler)
	tavern.POST("/sessions/:id/request_reinitialize", s.requestReinitHandler)
	tavern.POST("/submit_character", s.submitCharacterHandler)
	tavern.GET("/available_characters", s.availableCharactersHandler)
	tavern.GET("/current_session", s.currentSessionHandler)

	s.echo.GET("/ws/tavern/:session_id", s.wsHandler)
}

// requireTavernMode rejects plugin-facing endpoints with 403 when the
// process-wide tavern_mode_active gate is off (spec §6.1 "All plugin-facing
// endpoints... reject with 403").
func (s *Server) requireTavernMode(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if !s.manager.TavernModeActive() {
			return echo.NewHTTPError(http.StatusForbidden, "tavern mode is disabled")
		}
		return next(c)
	}
}

// wsHandler upgrades to a websocket and hands the connection to the
// PluginChannel, gating on tavern mode first (spec §4.13 Gate).
func (s *Server) wsHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	if !s.manager.TavernModeActive() {
		channel.RejectPolicy(conn)
		return nil
	}

	s.manager.RecordTavernSession(sessionID)
	s.ch.HandleConnection(c.Request().Context(), sessionID, conn, s.dispatchSocketRequest)
	return nil
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener runs the HTTP server on a pre-created listener, e.g.
// one bound to a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) livenessHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "version": version.Full()})
}
