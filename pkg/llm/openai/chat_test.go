package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var localOptions = security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}

func TestCompleteMapsRolesAndSystemPrompt(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Listo."}}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 5, "total_tokens": 55}
		}`))
	}))
	defer server.Close()

	client, err := NewClient("sk-test", server.URL, localOptions)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &llm.Request{
		System: "sistema",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hola"},
			{Role: llm.RoleAssistant, Content: "buenas"},
			{Role: llm.RoleUser, Content: "ventas por mes"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, llm.DefaultOpenAIModel, got.Model)
	assert.Equal(t, llm.DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sistema", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)

	assert.Equal(t, "Listo.", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 50, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestCompleteReportsAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "requests"}}`))
	}))
	defer server.Close()

	client, err := NewClient("sk-test", server.URL, localOptions)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCompleteWithoutChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client, err := NewClient("sk-test", server.URL, localOptions)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), &llm.Request{})
	assert.Error(t, err)
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient("sk", "http://localhost:8080/v1", security.OutboundURLOptions{})
	assert.Error(t, err)

	c, err := NewClient("sk", "", security.OutboundURLOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
