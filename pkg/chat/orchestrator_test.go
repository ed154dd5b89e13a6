package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/events"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/llm/factory"
	"github.com/go-go-golems/chartchat/pkg/prompt"
	"github.com/go-go-golems/chartchat/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ventasPage = prompt.Page{Key: "ventas", Description: "Ventas diarias"}

func ventas(rows int) *dataset.Dataset {
	fechas := make([]any, rows)
	totals := make([]any, rows)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		fechas[i] = start.AddDate(0, 0, i)
		totals[i] = float64(1000 + i*10)
	}
	return dataset.MustNew(
		dataset.Column{Name: "fecha", Type: dataset.TypeTemporal, Values: fechas},
		dataset.Column{Name: "venta_total", Type: dataset.TypeNumeric, Values: totals},
	)
}

func answering(text string, requests *[]*llm.Request) llm.Client {
	return llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		if requests != nil {
			*requests = append(*requests, req)
		}
		return &llm.Response{Text: text, Model: "test-model"}, nil
	})
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.TurnEvent
}

func (r *recordingSink) PublishTurn(_ context.Context, e events.TurnEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func newOrchestrator(t *testing.T, client llm.Client, store conversation.Store, options ...OrchestratorOption) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(client, store, options...)
	require.NoError(t, err)
	return o
}

const monthlyAnswer = "Aquí tienes las ventas por mes.\n```javascript\n" +
	"const m = df.assign(\"mes\", r => pd.month(r.fecha)).groupBy(\"mes\").agg({venta_total: \"sum\"});\n" +
	"fig = px.bar(m, {x: \"mes\", y: \"venta_total\"});\n" +
	"fig = styled_fig(fig, \"Ventas por mes\");\n```"

func TestSalesByMonth(t *testing.T) {
	store := conversation.NewMemoryStore()
	var requests []*llm.Request
	sink := &recordingSink{}
	o := newOrchestrator(t, answering(monthlyAnswer, &requests), store, WithSink(sink), WithSessionID("s1"))

	turn, err := o.Submit(context.Background(), ventasPage, ventas(100), "muéstrame las ventas por mes")
	require.NoError(t, err)

	log := store.Get("ventas")
	require.Len(t, log, 2)
	assert.Equal(t, conversation.RoleUser, log[0].Role)
	assert.Equal(t, "muéstrame las ventas por mes", log[0].DisplayText)

	a := log[1]
	assert.Equal(t, turn.ID, a.ID)
	assert.Equal(t, conversation.RoleAssistant, a.Role)
	assert.Equal(t, "Aquí tienes las ventas por mes.", a.DisplayText)
	assert.Equal(t, monthlyAnswer, a.RawResponse)
	assert.Empty(t, a.Error)
	require.NotNil(t, a.Chart)
	assert.Equal(t, "Ventas por mes", a.Chart.Title())
	assert.Len(t, a.Chart.Traces[0].X, 4)
	assert.Equal(t, "test-model", a.Metadata["model"])

	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].System, "Available data:\nPage: Ventas diarias\n\nDataFrame: `ventas`")
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "muéstrame las ventas por mes"}}, requests[0].Messages)

	require.Len(t, sink.events, 2)
	assert.Equal(t, events.OutcomeUser, sink.events[0].Outcome)
	assert.Equal(t, events.OutcomeChart, sink.events[1].Outcome)
	assert.Equal(t, "s1", sink.events[1].Session)
}

func TestOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		display     string
		chart       bool
		errContains string
	}{
		{
			name:    "no code",
			answer:  "Las ventas subieron en enero.",
			display: "Las ventas subieron en enero.",
		},
		{
			name:        "exception",
			answer:      "Gráfico\n```js\nfig = px.bar(df, {x: \"zona\", y: \"venta_total\"});\n```",
			display:     "",
			errContains: `unknown column "zona"`,
		},
		{
			name:        "no figure assigned",
			answer:      "Listo\n```js\nconst total = pd.sum(df.col(\"venta_total\"));\n```",
			display:     "Listo",
			errContains: "no chart produced",
		},
		{
			name:        "not a figure",
			answer:      "Listo\n```\nfig = 42;\n```",
			display:     "Listo",
			errContains: ErrNotAFigure.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := conversation.NewMemoryStore()
			o := newOrchestrator(t, answering(tt.answer, nil), store)
			_, err := o.Submit(context.Background(), ventasPage, ventas(10), "hola")
			require.NoError(t, err)

			log := store.Get("ventas")
			require.Len(t, log, 2)
			a := log[1]
			assert.Equal(t, tt.display, a.DisplayText)
			assert.Equal(t, tt.answer, a.RawResponse)
			assert.Equal(t, tt.chart, a.HasChart())
			if tt.errContains == "" {
				assert.Empty(t, a.Error)
			} else {
				assert.Contains(t, a.Error, tt.errContains)
			}
		})
	}
}

func TestModelErrorIsRecorded(t *testing.T) {
	store := conversation.NewMemoryStore()
	client := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("claude API error (authentication_error): invalid x-api-key")
	})
	o := newOrchestrator(t, client, store)
	_, err := o.Submit(context.Background(), ventasPage, ventas(3), "ventas")
	require.NoError(t, err)

	log := store.Get("ventas")
	require.Len(t, log, 2)
	a := log[1]
	assert.Equal(t, "", a.DisplayText)
	assert.Equal(t, "claude API error (authentication_error): invalid x-api-key", a.Error)
	assert.Equal(t, a.Error, a.RawResponse)
	assert.Nil(t, a.Chart)

	// the failed turn is replayed as history on the next question
	var requests []*llm.Request
	o = newOrchestrator(t, answering("ok", &requests), store)
	_, err = o.Submit(context.Background(), ventasPage, ventas(3), "otra vez")
	require.NoError(t, err)
	require.Len(t, requests[0].Messages, 3)
	assert.Equal(t, a.Error, requests[0].Messages[1].Content)
}

func TestModelTimeout(t *testing.T) {
	store := conversation.NewMemoryStore()
	client := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := newOrchestrator(t, client, store, WithModelTimeout(20*time.Millisecond))
	_, err := o.Submit(context.Background(), ventasPage, ventas(3), "ventas")
	require.NoError(t, err)
	log := store.Get("ventas")
	require.Len(t, log, 2)
	assert.Contains(t, log[1].Error, "timed out")
}

func TestCancellationLeavesOnlyUserTurn(t *testing.T) {
	store := conversation.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	client := llm.ClientFunc(func(callCtx context.Context, req *llm.Request) (*llm.Response, error) {
		cancel()
		<-callCtx.Done()
		return nil, callCtx.Err()
	})
	o := newOrchestrator(t, client, store)
	_, err := o.Submit(ctx, ventasPage, ventas(3), "ventas")
	assert.ErrorIs(t, err, context.Canceled)

	log := store.Get("ventas")
	require.Len(t, log, 1)
	assert.Equal(t, conversation.RoleUser, log[0].Role)
}

func TestWindowOfSeven(t *testing.T) {
	store := conversation.NewMemoryStore()
	var requests []*llm.Request
	o := newOrchestrator(t, answering("texto", &requests), store)
	for i := 0; i < 5; i++ {
		_, err := o.Submit(context.Background(), ventasPage, ventas(3), "pregunta")
		require.NoError(t, err)
	}
	// fifth question sees 8 prior turns plus itself, trimmed to 7
	last := requests[len(requests)-1]
	require.Len(t, last.Messages, 7)
	assert.Equal(t, llm.RoleUser, last.Messages[6].Role)
	assert.Equal(t, "pregunta", last.Messages[6].Content)
	assert.Len(t, store.Get("ventas"), 10)
}

func TestEmptyPrompt(t *testing.T) {
	store := conversation.NewMemoryStore()
	o := newOrchestrator(t, answering("x", nil), store)
	_, err := o.Submit(context.Background(), ventasPage, ventas(1), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, store.Get("ventas"))
}

func TestDisabledAssistant(t *testing.T) {
	a, err := NewAssistantFromSecrets(
		secrets.Chain{secrets.EnvSource{Getenv: func(string) string { return "" }}},
		factory.Settings{Provider: factory.ProviderClaude},
	)
	require.NoError(t, err)
	assert.False(t, a.Enabled())
	assert.Equal(t, "Configura tu ANTHROPIC_API_KEY para usar el asistente AI.", a.DisabledMessage())

	store := conversation.NewMemoryStore()
	_, err = a.Submit(context.Background(), "s1", store, ventasPage, ventas(1), "hola")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, store.Get("ventas"))
}

func TestEnabledAssistant(t *testing.T) {
	a, err := NewAssistantFromSecrets(
		secrets.Chain{secrets.EnvSource{Getenv: func(string) string { return "sk-test" }}},
		factory.Settings{Provider: factory.ProviderClaude},
	)
	require.NoError(t, err)
	assert.True(t, a.Enabled())

	a = NewAssistant(answering("hola", nil), factory.ProviderClaude)
	store := conversation.NewMemoryStore()
	turn, err := a.Submit(context.Background(), "s1", store, ventasPage, ventas(1), "hola")
	require.NoError(t, err)
	assert.Equal(t, "hola", turn.DisplayText)
	assert.Len(t, store.Get("ventas"), 2)
}
