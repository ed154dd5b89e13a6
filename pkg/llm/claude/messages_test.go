package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key",
		WithBaseURL(server.URL),
		WithOutboundURLOptions(security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}),
	)
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	var got MessageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "Aqui va.\n` + "```js\\nfig = 1\\n```" + `"}],
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`))
	})

	resp, err := client.Complete(context.Background(), &llm.Request{
		System: "system prompt",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "muéstrame las ventas por mes"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, llm.DefaultClaudeModel, got.Model)
	assert.Equal(t, llm.DefaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "system prompt", got.System)
	assert.False(t, got.Stream)
	assert.Equal(t, []Message{{Role: "user", Content: "muéstrame las ventas por mes"}}, got.Messages)

	assert.Equal(t, "Aqui va.\n```js\nfig = 1\n```", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)
}

func TestCompleteReportsAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})
	_, err := client.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
	assert.Contains(t, err.Error(), "authentication_error")
}

func TestCompleteReportsUndecodableErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})
	_, err := client.Complete(context.Background(), &llm.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCompleteWithoutTextContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": [], "usage": {}}`))
	})
	_, err := client.Complete(context.Background(), &llm.Request{})
	assert.Error(t, err)
}

func TestCompleteRejectsUnsafeBaseURL(t *testing.T) {
	client := NewClient("k", WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Complete(context.Background(), &llm.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid claude base URL")
}

func TestCompleteHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, &llm.Request{})
	assert.Error(t, err)
}
