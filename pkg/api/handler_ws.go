package api

import (
	"context"
	"encoding/json"

	"github.com/taleweave/memoryd/pkg/apierr"
	"github.com/taleweave/memoryd/pkg/coordinator"
	"github.com/taleweave/memoryd/pkg/sessionmanager"
)

// dispatchSocketRequest implements channel.Dispatcher: it routes the
// actions named in spec §4.13 to the same SessionManager/SessionEngine
// operations the HTTP handlers use, so both surfaces share one source of
// truth.
func (s *Server) dispatchSocketRequest(ctx context.Context, sessionID, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "initialize":
		var req InitializeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.BadRequest(err.Error())
		}
		e, stats, _ := s.manager.Initialize(ctx, sessionID, req.CharacterCard.Name, req.CharacterCard.toCard(), req.WorldInfo, req.IsTest, req.EnableAgent)
		return InitializeResponse{
			SessionID:  sessionID,
			Message:    bootstrapMessage(stats.Method),
			GraphStats: GraphStatsDTO{Nodes: e.Stats().Nodes, Edges: e.Stats().Edges},
		}, nil

	case "enhance_prompt":
		var req EnhancePromptRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.BadRequest(err.Error())
		}
		e, ok := s.manager.Get(sessionID)
		if !ok {
			return nil, apierr.NotFound("unknown session")
		}
		recentTurns := req.RecentHistory
		if recentTurns <= 0 {
			recentTurns = 3
		}
		result := e.EnhancePrompt(req.UserInput, req.MaxContextLength, recentTurns)
		return EnhancePromptResponse{
			EnhancedContext: result.EnhancedContext,
			EntitiesFound:   result.EntitiesFound,
			ContextStats:    map[string]any{"truncated": result.Truncated},
		}, nil

	case "process_conversation":
		var req ProcessConversationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.BadRequest(err.Error())
		}
		e, ok := s.manager.Get(sessionID)
		if !ok {
			return nil, apierr.NotFound("unknown session")
		}
		result, err := e.ProcessConversation(ctx, req.UserInput, req.LLMResponse)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if result.TargetProcessed {
			s.ch.Send(sessionID, "graph_updated", map[string]any{
				"nodes_updated": result.GragUpdates.NodesUpdated,
				"edges_added":   result.GragUpdates.EdgesAdded,
			})
		}
		return ProcessConversationResponse{
			TurnSequence:    int(result.NewSequence),
			TurnProcessed:   result.TargetProcessed,
			TargetProcessed: result.TargetProcessed,
			WindowSize:      result.Window.Size,
			NodesUpdated:    result.GragUpdates.NodesUpdated,
			EdgesAdded:      result.GragUpdates.EdgesAdded,
		}, nil

	case "sync_conversation":
		var req SyncConversationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.BadRequest(err.Error())
		}
		e, ok := s.manager.Get(sessionID)
		if !ok {
			return nil, apierr.NotFound("unknown session")
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
		return SyncConversationResponse{
			ConflictsDetected: result.ConflictsDetected,
			ConflictsResolved: result.ConflictsResolved,
			WindowSynced:      result.WindowSynced,
		}, nil

	case "tavern.submit_character":
		var req SubmitCharacterRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.BadRequest(err.Error())
		}
		s.manager.SubmitCharacterData(sessionmanager.CharacterSubmission{
			CharacterID:   req.CharacterID,
			CharacterName: req.CharacterName,
			CharacterCard: req.CharacterData.toCard(),
		})
		return AckResponse{Message: "character data recorded"}, nil

	case "tavern.request_character_data":
		if err := s.manager.CoordinatedReinit(sessionID); err != nil {
			return nil, err
		}
		return AckResponse{Message: "request_character_submission sent"}, nil

	case "tavern.current_session":
		id, ok := s.manager.LastTavernSession()
		if !ok {
			return CurrentSessionResponse{HasSession: false}, nil
		}
		e, ok := s.manager.Get(id)
		if !ok {
			return CurrentSessionResponse{HasSession: false}, nil
		}
		stats := e.Stats()
		return CurrentSessionResponse{HasSession: true, SessionID: id, GraphNodes: stats.Nodes, GraphEdges: stats.Edges}, nil

	case "sessions.stats":
		e, ok := s.manager.Get(sessionID)
		if !ok {
			return nil, apierr.NotFound("unknown session")
		}
		stats := e.Stats()
		return GraphStatsDTO{Nodes: stats.Nodes, Edges: stats.Edges}, nil

	case "health":
		return map[string]any{"ok": true}, nil

	case "system.full_reset":
		sessionsDropped, tasksDropped := s.manager.FullReset()
		return ResetCountsResponse{SessionsDropped: sessionsDropped, TasksDropped: tasksDropped}, nil

	default:
		return nil, apierr.BadRequest("unknown action: " + action)
	}
}
