package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taleweave/memoryd/pkg/apierr"
	"github.com/taleweave/memoryd/pkg/sessionmanager"
)

// reinitFromPluginHandler handles POST /tavern/sessions/{id}/reinitialize_from_plugin.
// It starts the same coordinated reinit as request_reinitialize: the bound
// plugin is asked for a fresh character submission and the session is
// reinitialized when it arrives. Earlier stored submissions are not reused.
func (s *Server) reinitFromPluginHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if _, ok := s.manager.Get(sessionID); !ok {
		return apierr.NotFound("unknown session")
	}
	if err := s.manager.CoordinatedReinit(sessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, AckResponse{Message: "request_character_submission sent; reinitialization follows the plugin's submission"})
}

// requestReinitHandler handles POST /tavern/sessions/{id}/request_reinitialize.
func (s *Server) requestReinitHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if _, ok := s.manager.Get(sessionID); !ok {
		return apierr.NotFound("unknown session")
	}
	if err := s.manager.CoordinatedReinit(sessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AckResponse{Message: "request_character_submission sent"})
}

// submitCharacterHandler handles POST /tavern/submit_character.
func (s *Server) submitCharacterHandler(c *echo.Context) error {
	var req SubmitCharacterRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}
	if req.CharacterID == "" && req.CharacterName == "" {
		return apierr.BadRequest("character_id or character_name is required")
	}

	s.manager.SubmitCharacterData(sessionmanager.CharacterSubmission{
		CharacterID:   req.CharacterID,
		CharacterName: req.CharacterName,
		CharacterCard: req.CharacterData.toCard(),
	})

	return c.JSON(http.StatusOK, AckResponse{Message: "character data recorded"})
}

// availableCharactersHandler handles GET /tavern/available_characters.
func (s *Server) availableCharactersHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.ListCharacters())
}

// currentSessionHandler handles GET /tavern/current_session.
func (s *Server) currentSessionHandler(c *echo.Context) error {
	sessionID, ok := s.manager.LastTavernSession()
	if !ok {
		return c.JSON(http.StatusOK, CurrentSessionResponse{HasSession: false})
	}

	e, ok := s.manager.Get(sessionID)
	if !ok {
		return c.JSON(http.StatusOK, CurrentSessionResponse{HasSession: false})
	}

	stats := e.Stats()
	return c.JSON(http.StatusOK, CurrentSessionResponse{
		HasSession: true,
		SessionID:  sessionID,
		GraphNodes: stats.Nodes,
		GraphEdges: stats.Edges,
	})
}
