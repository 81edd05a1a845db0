package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

func completionServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *DeepSeekService) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewDeepSeekService("test-key", "deepseek-chat")
	svc.httpClient = server.Client()
	return server, svc
}

func TestChat_Success(t *testing.T) {
	server, svc := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, chat.ChatRoleSystem, req.Messages[0].Role)

		var choice ChatCompletionChoice
		choice.Message.Role = "assistant"
		choice.Message.Content = "The inn falls silent as you enter."
		resp := ChatCompletionResponse{Choices: []ChatCompletionChoice{choice}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "system"},
		{Role: chat.ChatRoleUser, Content: "enter the inn"},
	}

	out, err := doChatCompletion(context.Background(), svc.httpClient, server.URL, svc.apiKey, ChatCompletionRequest{
		Model:    svc.modelName,
		Messages: messages,
	})
	require.NoError(t, err)
	assert.Equal(t, "The inn falls silent as you enter.", out)
}

func TestChat_APIError(t *testing.T) {
	server, svc := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	})

	_, err := doChatCompletion(context.Background(), svc.httpClient, server.URL, svc.apiKey, ChatCompletionRequest{
		Model:    svc.modelName,
		Messages: []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChat_NoChoices(t *testing.T) {
	server, svc := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := doChatCompletion(context.Background(), svc.httpClient, server.URL, svc.apiKey, ChatCompletionRequest{
		Model:    svc.modelName,
		Messages: []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestMockLLMService_QueueOrder(t *testing.T) {
	mock := NewMockLLMService()
	mock.QueueResponse("first")
	mock.QueueResponse("second")

	msgs := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "go"}}

	out, err := mock.Chat(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = mock.Chat(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
	assert.Equal(t, 2, mock.Calls())
}
