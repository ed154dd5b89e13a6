// Package claude implements llm.Client on the Anthropic Messages API.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
)

// MessageRequest is the Messages API request payload.
type MessageRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Stream    bool      `json:"stream"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageResponse is the Messages API response payload.
type MessageResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason,omitempty"`
	Usage      Usage     `json:"usage"`
}

type Content struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	httpClient *http.Client
	apiKey     string
	BaseURL    string
	APIVersion string
	urlOptions security.OutboundURLOptions
}

var _ llm.Client = (*Client)(nil)

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithOutboundURLOptions relaxes base URL validation, e.g. for a local proxy.
func WithOutboundURLOptions(opts security.OutboundURLOptions) ClientOption {
	return func(c *Client) {
		c.urlOptions = opts
	}
}

func NewClient(apiKey string, options ...ClientOption) *Client {
	ret := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		APIVersion: defaultAPIVersion,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// SendMessage posts a Messages API request and decodes the response.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	if err := security.ValidateOutboundURL(c.BaseURL, c.urlOptions); err != nil {
		return nil, errors.Wrap(err, "invalid claude base URL")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	// #nosec G704 -- URL is validated above with ValidateOutboundURL.
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading claude response")
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errorResp); unmarshalErr != nil || errorResp.Error.Message == "" {
			return nil, errors.Errorf("claude API returned %s", resp.Status)
		}
		return nil, errors.Errorf("claude API error (%s): %s", errorResp.Error.Type, errorResp.Error.Message)
	}

	var messageResp MessageResponse
	if err := json.Unmarshal(respBody, &messageResp); err != nil {
		return nil, errors.Wrap(err, "decoding claude response")
	}
	return &messageResp, nil
}

// Complete sends req as a non-streaming message and returns the first text block.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	messages := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	model := req.Model
	if model == "" {
		model = llm.DefaultClaudeModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	log.Debug().
		Str("model", model).
		Int("messages", len(messages)).
		Int("prompt_tokens", req.PromptTokens).
		Msg("sending claude message")

	resp, err := c.SendMessage(ctx, &MessageRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
		System:    req.System,
	})
	if err != nil {
		return nil, err
	}

	text, ok := firstText(resp.Content)
	if !ok {
		return nil, errors.New("claude response has no text content")
	}
	log.Debug().
		Str("model", resp.Model).
		Str("stop_reason", resp.StopReason).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("received claude message")

	return &llm.Response{
		Text:         text,
		Model:        resp.Model,
		StopReason:   resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func firstText(content []Content) (string, bool) {
	for _, c := range content {
		if c.Type == "text" && c.Text != nil {
			return *c.Text, true
		}
	}
	return "", false
}
