package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transcript(n int) conversation.Conversation {
	var ret conversation.Conversation
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			ret = append(ret, conversation.NewUserTurn(fmt.Sprintf("q%d", i)))
		} else {
			ret = append(ret, conversation.NewAssistantTurn(fmt.Sprintf("d%d", i), fmt.Sprintf("raw%d", i)))
		}
	}
	return ret
}

func sample() *dataset.Dataset {
	return dataset.MustNew(
		dataset.Column{Name: "estacion", Type: dataset.TypeText, Values: []any{"Verano", "Invierno"}},
		dataset.Column{Name: "venta_total", Type: dataset.TypeNumeric, Values: []any{10.0, 20.0}},
	)
}

func TestWindow(t *testing.T) {
	for _, n := range []int{0, 1, 6, 7, 8, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			log := transcript(n)
			msgs := Messages(log, DefaultWindow)
			want := n
			if want > DefaultWindow {
				want = DefaultWindow
			}
			require.Len(t, msgs, want)
			if n == 0 {
				return
			}
			assert.Equal(t, log[n-1].HistoryText(), msgs[len(msgs)-1].Content)
			assert.Equal(t, log[n-want].HistoryText(), msgs[0].Content)
		})
	}
}

func TestAssistantHistoryUsesRawResponse(t *testing.T) {
	log := conversation.Conversation{
		conversation.NewUserTurn("ventas por mes"),
		conversation.NewAssistantTurn("Ventas mensuales", "Ventas mensuales\n```js\nfig = 1\n```"),
		conversation.NewAssistantTurn("solo texto", ""),
	}
	msgs := Messages(log, DefaultWindow)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "ventas por mes"},
		{Role: llm.RoleAssistant, Content: "Ventas mensuales\n```js\nfig = 1\n```"},
		{Role: llm.RoleAssistant, Content: "solo texto"},
	}, msgs)
}

func TestBuildSystemPrompt(t *testing.T) {
	b, err := NewBuilder(WithModel("m"), WithMaxTokens(100))
	require.NoError(t, err)

	ds := sample()
	req, err := b.Build(transcript(3), ds, Page{Key: "ventas", Description: "Ventas diarias"})
	require.NoError(t, err)
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 100, req.MaxTokens)
	assert.Len(t, req.Messages, 3)

	instructions, err := b.Instructions()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.System, instructions+"\n\nAvailable data:\nPage: Ventas diarias\n\n"))
	assert.True(t, strings.HasSuffix(req.System, dataset.Summarize(ds, "ventas")))

	assert.Contains(t, instructions, "Ainara Helados (ice cream shop in Buenos Aires)")
	assert.Contains(t, instructions, "`fig`")
	assert.Contains(t, instructions, "styled_fig(fig, \"Title\")")
	assert.Contains(t, instructions, "COLORS, DARK_BLUE, ORANGE, RED, SAGE_GREEN, TEAL, TEAL_DARK, WHITE")
	assert.Contains(t, instructions, "same language as the user")
	assert.Contains(t, instructions, "simple bar/line chart")
	assert.Greater(t, req.PromptTokens, 0)
}

func TestBuildWithoutDescription(t *testing.T) {
	b, err := NewBuilder(WithBusiness("Heladeria", ""))
	require.NoError(t, err)
	req, err := b.Build(nil, sample(), Page{Key: "sabores"})
	require.NoError(t, err)
	assert.Contains(t, req.System, "Available data:\nDataFrame: `sabores`")
	assert.NotContains(t, req.System, "Page:")
	assert.Contains(t, req.System, "assistant for Heladeria.\n")
	assert.Empty(t, req.Messages)
}

func TestBuilderRejectsBadWindow(t *testing.T) {
	_, err := NewBuilder(WithWindow(0))
	assert.Error(t, err)
}
