package services

import (
	"context"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

// LLMService is the boundary to the narrative model. The engine only
// consumes its raw text output; prompt construction lives in
// pkg/prompts and response parsing in pkg/directive and pkg/reftag.
type LLMService interface {
	// Chat sends the conversation and returns the model's raw text.
	Chat(ctx context.Context, messages []chat.ChatMessage) (string, error)
}
