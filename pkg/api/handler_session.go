package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/taleweave/memoryd/pkg/apierr"
	"github.com/taleweave/memoryd/pkg/coordinator"
)

// initializeHandler handles POST /initialize.
func (s *Server) initializeHandler(c *echo.Context) error {
	var req InitializeRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}
	if req.CharacterCard.Name == "" {
		return apierr.BadRequest("character_card.name is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	e, stats, _ := s.manager.Initialize(c.Request().Context(), sessionID, req.CharacterCard.Name, req.CharacterCard.toCard(), req.WorldInfo, req.IsTest, req.EnableAgent)

	return c.JSON(http.StatusOK, InitializeResponse{
		SessionID: sessionID,
		Message:   bootstrapMessage(stats.Method),
		GraphStats: GraphStatsDTO{
			Nodes: e.Stats().Nodes,
			Edges: e.Stats().Edges,
		},
	})
}

func bootstrapMessage(method string) string {
	switch method {
	case "cached":
		return "session already initialized"
	case "agent":
		return "session initialized via LLM bootstrap"
	default:
		return "session initialized with minimal bootstrap"
	}
}

// initializeAsyncHandler handles POST /initialize_async.
func (s *Server) initializeAsyncHandler(c *echo.Context) error {
	var req InitializeRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}
	if req.CharacterCard.Name == "" {
		return apierr.BadRequest("character_card.name is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	taskID := s.manager.InitializeAsync(sessionID, req.CharacterCard.Name, req.CharacterCard.toCard(), req.WorldInfo, req.IsTest, req.EnableAgent)

	return c.JSON(http.StatusAccepted, InitializeAsyncResponse{
		TaskID:        taskID,
		Message:       "bootstrap queued",
		EstimatedTime: "a few seconds",
	})
}

// initializeStatusHandler handles GET /initialize_status/{task_id}.
func (s *Server) initializeStatusHandler(c *echo.Context) error {
	taskID := c.Param("task_id")
	snap, ok := s.manager.GetTask(taskID)
	if !ok {
		return apierr.NotFound("unknown task id")
	}
	return c.JSON(http.StatusOK, snap)
}

// enhancePromptHandler handles POST /enhance_prompt.
func (s *Server) enhancePromptHandler(c *echo.Context) error {
	var req EnhancePromptRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}

	e, ok := s.manager.Get(req.SessionID)
	if !ok {
		return apierr.NotFound("unknown session")
	}

	recentTurns := req.RecentHistory
	if recentTurns <= 0 {
		recentTurns = 3
	}

	result := e.EnhancePrompt(req.UserInput, req.MaxContextLength, recentTurns)
	return c.JSON(http.StatusOK, EnhancePromptResponse{
		EnhancedContext: result.EnhancedContext,
		EntitiesFound:   result.EntitiesFound,
		ContextStats:    map[string]any{"truncated": result.Truncated},
	})
}

// updateMemoryHandler handles POST /update_memory.
func (s *Server) updateMemoryHandler(c *echo.Context) error {
	var req UpdateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}

	e, ok := s.manager.Get(req.SessionID)
	if !ok {
		return apierr.NotFound("unknown session")
	}

	result := e.ExtractUpdatesFromResponse(c.Request().Context(), req.UserInput, req.LLMResponse)
	return c.JSON(http.StatusOK, UpdateMemoryResponse{
		Message:      "memory updated",
		NodesUpdated: result.NodesUpdated,
		EdgesAdded:   result.EdgesAdded,
		ProcessingStats: map[string]any{
			"nodes_deleted": result.NodesDeleted,
			"edges_deleted": result.EdgesDeleted,
		},
	})
}

// processConversationHandler handles POST /process_conversation.
func (s *Server) processConversationHandler(c *echo.Context) error {
	var req ProcessConversationRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}

	e, ok := s.manager.Get(req.SessionID)
	if !ok {
		return apierr.NotFound("unknown session")
	}

	result, err := e.ProcessConversation(c.Request().Context(), req.UserInput, req.LLMResponse)
	if err != nil {
		return apierr.Internal(err)
	}

	return c.JSON(http.StatusOK, ProcessConversationResponse{
		TurnSequence:    int(result.NewSequence),
		TurnProcessed:   result.TargetProcessed,
		TargetProcessed: result.TargetProcessed,
		WindowSize:      result.Window.Size,
		NodesUpdated:    result.GragUpdates.NodesUpdated,
		EdgesAdded:      result.GragUpdates.EdgesAdded,
	})
}

// syncConversationHandler handles POST /sync_conversation.
func (s *Server) syncConversationHandler(c *echo.Context) error {
	var req SyncConversationRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(err.Error())
	}

	e, ok := s.manager.Get(req.SessionID)
	if !ok {
		return apierr.NotFound("unknown session")
	}

	authoritative := make([]coordinator.AuthoritativeTurn, len(req.TavernHistory))
	for i, t := range req.TavernHistory {
		authoritative[i] = coordinator.AuthoritativeTurn{
			Sequence:          int64(t.Sequence),
			UserText:          t.UserText,
			AssistantText:     t.AssistantText,
			ExternalMessageID: t.ExternalMessageID,
		}
	}

	result := e.Conflict.Sync(authoritative)
	return c.JSON(http.StatusOK, SyncConversationResponse{
		ConflictsDetected: result.ConflictsDetected,
		ConflictsResolved: result.ConflictsResolved,
		WindowSynced:      result.WindowSynced,
	})
}

// sessionStatsHandler handles GET /sessions/{id}/stats.
func (s *Server) sessionStatsHandler(c *echo.Context) error {
	e, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return apierr.NotFound("unknown session")
	}
	stats := e.Stats()
	return c.JSON(http.StatusOK, GraphStatsDTO{Nodes: stats.Nodes, Edges: stats.Edges})
}

// sessionResetHandler handles POST /sessions/{id}/reset.
func (s *Server) sessionResetHandler(c *echo.Context) error {
	e, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return apierr.NotFound("unknown session")
	}

	var req ResetRequest
	_ = c.Bind(&req)

	e.Reset(req.KeepCharacterData)
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// sessionClearHandler handles POST /sessions/{id}/clear.
func (s *Server) sessionClearHandler(c *echo.Context) error {
	e, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return apierr.NotFound("unknown session")
	}
	e.Clear()
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// sessionReinitializeHandler handles POST /sessions/{id}/reinitialize: a
// minimal reinit from the stored character name (spec §6.1 "Minimal, from
// stored character name").
func (s *Server) sessionReinitializeHandler(c *echo.Context) error {
	e, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return apierr.NotFound("unknown session")
	}

	stats := e.ReinitializeMinimal()
	return c.JSON(http.StatusOK, ReinitializeResponse{
		CharacterName: stats.CharacterName,
		NodesCreated:  stats.NodesAdded,
		EdgesCreated:  stats.EdgesAdded,
	})
}
