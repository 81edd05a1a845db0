package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

const (
	deepseekBaseURL = "https://api.deepseek.com"

	DefaultDeepSeekModel       = "deepseek-chat"
	DefaultDeepSeekTemperature = 0.8
	DefaultDeepSeekMaxTokens   = 2048
)

// DeepSeekService implements LLMService against the DeepSeek
// chat-completions API.
type DeepSeekService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
}

var _ LLMService = (*DeepSeekService)(nil)

// ChatCompletionRequest is the chat-completions request body. DeepSeek
// and OpenAI share this wire format.
type ChatCompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream"`
}

// ChatCompletionChoice is a single choice in a chat-completions response.
type ChatCompletionChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// ChatCompletionResponse is the chat-completions response body.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekService creates a DeepSeek LLM service.
func NewDeepSeekService(apiKey string, modelName string) *DeepSeekService {
	if modelName == "" {
		modelName = DefaultDeepSeekModel
	}
	return &DeepSeekService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Chat sends the conversation to DeepSeek and returns the raw narrative.
func (s *DeepSeekService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	return doChatCompletion(ctx, s.httpClient, deepseekBaseURL, s.apiKey, ChatCompletionRequest{
		Model:       s.modelName,
		Messages:    messages,
		Temperature: DefaultDeepSeekTemperature,
		MaxTokens:   DefaultDeepSeekMaxTokens,
		Stream:      false,
	})
}

// doChatCompletion performs one chat-completions round trip. Shared by
// the DeepSeek and OpenAI services, which speak the same protocol.
func doChatCompletion(ctx context.Context, client *http.Client, baseURL, apiKey string, reqBody ChatCompletionRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("failed to parse chat response (status %d): %w", resp.StatusCode, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat API error: %s", completion.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d", resp.StatusCode)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}
