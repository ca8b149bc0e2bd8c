package api

import "github.com/taleweave/memoryd/pkg/sessionengine"

// InitializeRequest is the body for POST /initialize and /initialize_async
// (spec §6.1).
type InitializeRequest struct {
	SessionID     string           `json:"session_id,omitempty"`
	CharacterCard CharacterCardDTO `json:"character_card"`
	WorldInfo     string           `json:"world_info,omitempty"`
	SessionConfig map[string]any   `json:"session_config,omitempty"`
	IsTest        bool             `json:"is_test,omitempty"`
	EnableAgent   *bool            `json:"enable_agent,omitempty"`
}

// CharacterCardDTO mirrors sessionengine.CharacterCard on the wire.
type CharacterCardDTO struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Personality     string `json:"personality,omitempty"`
	Scenario        string `json:"scenario,omitempty"`
	ExampleDialogue string `json:"example_dialogue,omitempty"`
}

// EnhancePromptRequest is the body for POST /enhance_prompt.
type EnhancePromptRequest struct {
	SessionID        string `json:"session_id"`
	UserInput        string `json:"user_input"`
	RecentHistory    int    `json:"recent_history,omitempty"`
	MaxContextLength int    `json:"max_context_length,omitempty"`
}

// UpdateMemoryRequest is the body for POST /update_memory.
type UpdateMemoryRequest struct {
	SessionID    string `json:"session_id"`
	LLMResponse  string `json:"llm_response"`
	UserInput    string `json:"user_input"`
	Timestamp    string `json:"timestamp,omitempty"`
	ChatID       string `json:"chat_id,omitempty"`
}

// ProcessConversationRequest is the body for POST /process_conversation.
type ProcessConversationRequest struct {
	SessionID   string `json:"session_id"`
	UserInput   string `json:"user_input"`
	LLMResponse string `json:"llm_response"`
}

// AuthoritativeTurnDTO is one entry of tavern_history in
// SyncConversationRequest.
type AuthoritativeTurnDTO struct {
	Sequence          int    `json:"sequence"`
	UserText          string `json:"user_text"`
	AssistantText     string `json:"assistant_text"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
}

// SyncConversationRequest is the body for POST /sync_conversation.
type SyncConversationRequest struct {
	SessionID     string                 `json:"session_id"`
	TavernHistory []AuthoritativeTurnDTO `json:"tavern_history"`
}

// ResetRequest is the body for POST /sessions/{id}/reset.
type ResetRequest struct {
	KeepCharacterData bool `json:"keep_character_data"`
}

// SubmitCharacterRequest is the body for POST /tavern/submit_character.
type SubmitCharacterRequest struct {
	CharacterID   string           `json:"character_id"`
	CharacterName string           `json:"character_name"`
	CharacterData CharacterCardDTO `json:"character_data"`
	Timestamp     string           `json:"timestamp,omitempty"`
}

// SetTavernModeRequest is the body for POST /system/tavern_mode.
type SetTavernModeRequest struct {
	Active bool `json:"active"`
}

func (c CharacterCardDTO) toCard() sessionengine.CharacterCard {
	return sessionengine.CharacterCard{
		Name:            c.Name,
		Description:     c.Description,
		Personality:     c.Personality,
		Scenario:        c.Scenario,
		ExampleDialogue: c.ExampleDialogue,
	}
}
