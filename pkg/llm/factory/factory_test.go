package factory

import (
	"testing"

	"github.com/go-go-golems/chartchat/pkg/llm/claude"
	"github.com/go-go-golems/chartchat/pkg/llm/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{"": ProviderClaude, "Anthropic": ProviderClaude, "claude": ProviderClaude, " openai ": ProviderOpenAI} {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProvider("gemini")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Settings{Provider: ProviderClaude, APIKey: "k", ClaudeBaseURL: "https://proxy.example.com/"})
	require.NoError(t, err)
	cc, ok := c.(*claude.Client)
	require.True(t, ok)
	assert.Equal(t, "https://proxy.example.com", cc.BaseURL)

	c, err = NewClient(Settings{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, c)

	_, err = NewClient(Settings{Provider: ProviderOpenAI, APIKey: "k", OpenAIBaseURL: "http://10.0.0.1"})
	assert.Error(t, err)
	_, err = NewClient(Settings{Provider: ProviderOpenAI, APIKey: "k", OpenAIBaseURL: "http://10.0.0.1", AllowLocalBaseURL: true})
	assert.NoError(t, err)

	_, err = NewClient(Settings{Provider: ProviderClaude})
	assert.Error(t, err)
}

func TestProviderDefaults(t *testing.T) {
	assert.Equal(t, "ANTHROPIC_API_KEY", ProviderClaude.KeyEnvVar())
	assert.Equal(t, "OPENAI_API_KEY", ProviderOpenAI.KeyEnvVar())
	assert.Equal(t, "claude-sonnet-4-5-20250929", ProviderClaude.DefaultModel())
}
