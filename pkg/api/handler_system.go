package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taleweave/memoryd/pkg/apierr"
)

// getTavernModeHandler handles GET /system/tavern_mode.
func (s *Server) getTavernModeHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, TavernModeResponse{Active: s.manager.TavernModeActive()})
}

// setTavernModeHandler handles POST /system/tavern_mode.
func (s *Server) setTavernModeHandler(c *echo.Context) error {
	var req SetTavernModeRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}
	s.manager.SetTavernModeActive(req.Active)
	return c.JSON(http.StatusOK, TavernModeResponse{Success: true, Active: req.Active})
}

// fullResetHandler handles POST /system/full_reset.
func (s *Server) fullResetHandler(c *echo.Context) error {
	sessionsDropped, tasksDropped := s.manager.FullReset()
	return c.JSON(http.StatusOK, ResetCountsResponse{SessionsDropped: sessionsDropped, TasksDropped: tasksDropped})
}

// quickResetHandler handles GET /system/quick_reset.
func (s *Server) quickResetHandler(c *echo.Context) error {
	sessionsDropped, tasksDropped := s.manager.QuickReset()
	return c.JSON(http.StatusOK, ResetCountsResponse{SessionsDropped: sessionsDropped, TasksDropped: tasksDropped})
}
