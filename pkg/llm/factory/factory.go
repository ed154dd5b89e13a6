// Package factory builds the configured llm.Client.
package factory

import (
	"strings"

	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/llm/claude"
	"github.com/go-go-golems/chartchat/pkg/llm/openai"
	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/pkg/errors"
)

type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

type Settings struct {
	Provider      Provider
	Model         string
	APIKey        string
	ClaudeBaseURL string
	OpenAIBaseURL string
	// AllowLocalBaseURL permits http and local-network base URLs, e.g. a dev proxy.
	AllowLocalBaseURL bool
}

// KeyEnvVar is the environment variable holding the provider's API key.
func (p Provider) KeyEnvVar() string {
	if p == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// DefaultModel is the model used when none is configured.
func (p Provider) DefaultModel() string {
	if p == ProviderOpenAI {
		return llm.DefaultOpenAIModel
	}
	return llm.DefaultClaudeModel
}

func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderClaude, "anthropic":
		return ProviderClaude, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	}
	return "", errors.Errorf("unknown provider %q", s)
}

func NewClient(s Settings) (llm.Client, error) {
	if s.APIKey == "" {
		return nil, errors.Errorf("no API key for %s", s.Provider)
	}
	urlOptions := security.OutboundURLOptions{
		AllowHTTP:          s.AllowLocalBaseURL,
		AllowLocalNetworks: s.AllowLocalBaseURL,
	}
	switch s.Provider {
	case ProviderClaude, "":
		options := []claude.ClientOption{claude.WithOutboundURLOptions(urlOptions)}
		if s.ClaudeBaseURL != "" {
			options = append(options, claude.WithBaseURL(s.ClaudeBaseURL))
		}
		return claude.NewClient(s.APIKey, options...), nil
	case ProviderOpenAI:
		return openai.NewClient(s.APIKey, s.OpenAIBaseURL, urlOptions)
	}
	return nil, errors.Errorf("unknown provider %q", s.Provider)
}
