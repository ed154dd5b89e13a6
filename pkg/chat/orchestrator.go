// Package chat runs one chart question end to end: record the question, ask the model,
// split its answer, run the chart code and record the outcome.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/events"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/parse"
	"github.com/go-go-golems/chartchat/pkg/prompt"
	"github.com/go-go-golems/chartchat/pkg/sandbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultModelTimeout bounds the model call.
const DefaultModelTimeout = 60 * time.Second

var ErrEmptyPrompt = errors.New("empty prompt")

// ErrNotAFigure is recorded when the chart code assigned something other than a figure.
var ErrNotAFigure = errors.New("fig is not a figure")

// Orchestrator serves one session. Submit calls must not overlap for the same store.
type Orchestrator struct {
	client       llm.Client
	store        conversation.Store
	builder      *prompt.Builder
	executor     *sandbox.Executor
	sink         events.Sink
	session      string
	model        string
	modelTimeout time.Duration
}

type OrchestratorOption func(*Orchestrator)

func WithBuilder(b *prompt.Builder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.builder = b
	}
}

func WithExecutor(x *sandbox.Executor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.executor = x
	}
}

func WithSink(s events.Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

func WithSessionID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.session = id
	}
}

// WithModelName labels turns and events; the request model comes from the builder.
func WithModelName(model string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.model = model
	}
}

func WithModelTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.modelTimeout = d
	}
}

func NewOrchestrator(client llm.Client, store conversation.Store, options ...OrchestratorOption) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("no model client")
	}
	if store == nil {
		return nil, errors.New("no conversation store")
	}
	o := &Orchestrator{
		client:       client,
		store:        store,
		sink:         events.NopSink{},
		modelTimeout: DefaultModelTimeout,
	}
	for _, option := range options {
		option(o)
	}
	if o.builder == nil {
		b, err := prompt.NewBuilder(prompt.WithModel(o.model))
		if err != nil {
			return nil, err
		}
		o.builder = b
	}
	if o.executor == nil {
		o.executor = sandbox.NewExecutor()
	}
	return o, nil
}

// Submit records text as a user turn on page and appends exactly one assistant turn with
// the outcome, which it returns. Model and script failures are recorded on the turn, not
// returned. When ctx is canceled before the outcome is known, the user turn stays and
// ctx's error is returned.
func (o *Orchestrator) Submit(ctx context.Context, page prompt.Page, ds *dataset.Dataset, text string) (*conversation.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := log.With().Str("page", page.Key).Str("session", o.session).Logger()

	user := conversation.NewUserTurn(text)
	if err := o.store.Append(page.Key, user); err != nil {
		return nil, err
	}
	o.publish(ctx, page, user, 0)

	req, err := o.builder.Build(o.store.Get(page.Key), ds, page)
	if err != nil {
		return o.record(ctx, page, start, failed(err))
	}

	resp, err := o.call(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("chat turn canceled during model call")
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).Msg("model call failed")
		return o.record(ctx, page, start, failed(err))
	}
	meta := map[string]interface{}{
		"model":         resp.Model,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"prompt_tokens": req.PromptTokens,
	}

	parsed := parse.ParseChartResponse(resp.Text)
	if !parsed.HasCode() {
		logger.Debug().Msg("answer has no code")
		return o.record(ctx, page, start,
			conversation.NewAssistantTurn(resp.Text, resp.Text, conversation.WithMetadata(meta)))
	}

	res, err := o.executor.Execute(ctx, parsed.Code, ds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug().Err(err).Str("code", parsed.Code).Msg("chart code failed")
		return o.record(ctx, page, start,
			conversation.NewAssistantTurn("", resp.Text, conversation.WithError(err.Error()), conversation.WithMetadata(meta)))
	}

	switch {
	case res.Chart != nil:
		return o.record(ctx, page, start, conversation.NewAssistantTurn(parsed.DisplayText, resp.Text,
			conversation.WithChart(res.Chart), conversation.WithMetadata(meta)))
	case res.Present:
		return o.record(ctx, page, start, conversation.NewAssistantTurn(parsed.DisplayText, resp.Text,
			conversation.WithError(ErrNotAFigure.Error()), conversation.WithMetadata(meta)))
	default:
		return o.record(ctx, page, start, conversation.NewAssistantTurn(parsed.DisplayText, resp.Text,
			conversation.WithError(sandbox.ErrNoChart.Error()), conversation.WithMetadata(meta)))
	}
}

func (o *Orchestrator) call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if o.modelTimeout <= 0 {
		return o.client.Complete(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()
	resp, err := o.client.Complete(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, errors.Errorf("model call timed out after %s", o.modelTimeout)
	}
	if err == nil && resp == nil {
		return nil, errors.New("model returned no response")
	}
	return resp, err
}

// failed is the assistant turn for an error that happened before any model output.
func failed(err error) *conversation.Turn {
	return conversation.NewAssistantTurn("", err.Error(), conversation.WithError(err.Error()))
}

func (o *Orchestrator) record(ctx context.Context, page prompt.Page, start time.Time, turn *conversation.Turn) (*conversation.Turn, error) {
	if err := o.store.Append(page.Key, turn); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.Debug().
		Str("page", page.Key).
		Str("turn_id", turn.ID.String()).
		Bool("chart", turn.HasChart()).
		Str("error", turn.Error).
		Dur("elapsed", elapsed).
		Msg("chat turn recorded")
	o.publish(ctx, page, turn, elapsed)
	return turn, nil
}

func (o *Orchestrator) publish(ctx context.Context, page prompt.Page, turn *conversation.Turn, elapsed time.Duration) {
	e := events.NewTurnEvent(o.session, page.Key, turn)
	e.Model = o.model
	e.Duration = elapsed
	if err := o.sink.PublishTurn(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Msg("Failed to publish turn event")
	}
}
