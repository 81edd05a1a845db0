package chat

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/textjianghu/jianghu-engine/pkg/reftag"
)

const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant"
	ChatRoleSystem = "system"
)

// ChatMessage is a single message in the conversation sent to the LLM,
// structured for the chat-completions wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is a player action submitted to the turn endpoint.
type TurnRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Action    string    `json:"action"`
}

func (tr *TurnRequest) Validate() error {
	if tr.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if tr.Action == "" {
		return fmt.Errorf("action cannot be empty")
	}
	return nil
}

// TurnResponse is the render-ready result of one turn: the cleaned
// narrative as segments plus any warnings raised while mutating state.
type TurnResponse struct {
	SessionID        uuid.UUID        `json:"session_id,omitempty"`
	Segments         []reftag.Segment `json:"segments,omitempty"`
	MutationWarnings []string         `json:"mutation_warnings,omitempty"`
	Error            string           `json:"error,omitempty"`
}
