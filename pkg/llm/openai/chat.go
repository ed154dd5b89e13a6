// Package openai implements llm.Client on OpenAI-compatible chat completions.
package openai

import (
	"context"
	"strings"

	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	client  *go_openai.Client
	baseURL string
}

var _ llm.Client = (*Client)(nil)

// NewClient validates baseURL and builds a go-openai client for it. An empty baseURL
// uses the public endpoint.
func NewClient(apiKey string, baseURL string, urlOptions security.OutboundURLOptions) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if err := security.ValidateOutboundURL(baseURL, urlOptions); err != nil {
		return nil, errors.Wrap(err, "invalid openai base URL")
	}
	config := go_openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &Client{
		client:  go_openai.NewClientWithConfig(config),
		baseURL: baseURL,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := go_openai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		messages = append(messages, go_openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	model := req.Model
	if model == "" {
		model = llm.DefaultOpenAIModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	log.Debug().
		Str("model", model).
		Str("base_url", c.baseURL).
		Int("messages", len(messages)).
		Int("prompt_tokens", req.PromptTokens).
		Msg("sending openai chat completion")

	resp, err := c.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai response has no choices")
	}
	choice := resp.Choices[0]
	return &llm.Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
