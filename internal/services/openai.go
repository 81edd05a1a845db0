package services

import (
	"context"
	"net/http"
	"time"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"

	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIService implements LLMService against the OpenAI
// chat-completions API. The wire format is shared with DeepSeek.
type OpenAIService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
}

var _ LLMService = (*OpenAIService)(nil)

// NewOpenAIService creates an OpenAI LLM service.
func NewOpenAIService(apiKey string, modelName string) *OpenAIService {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Chat sends the conversation to OpenAI and returns the raw narrative.
func (s *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	return doChatCompletion(ctx, s.httpClient, openAIBaseURL, s.apiKey, ChatCompletionRequest{
		Model:       s.modelName,
		Messages:    messages,
		Temperature: DefaultDeepSeekTemperature,
		MaxTokens:   DefaultDeepSeekMaxTokens,
		Stream:      false,
	})
}
