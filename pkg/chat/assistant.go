package chat

import (
	"context"
	"fmt"

	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/llm/factory"
	"github.com/go-go-golems/chartchat/pkg/prompt"
	"github.com/go-go-golems/chartchat/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("assistant disabled")

// DisabledMessage is shown in place of the chat when the assistant is disabled.
func DisabledMessage(p factory.Provider) string {
	return fmt.Sprintf("Configura tu %s para usar el asistente AI.", p.KeyEnvVar())
}

// Assistant gates chat sessions on a configured model client.
type Assistant struct {
	client   llm.Client
	provider factory.Provider
	options  []OrchestratorOption
}

// NewAssistant returns a disabled assistant when client is nil.
func NewAssistant(client llm.Client, provider factory.Provider, options ...OrchestratorOption) *Assistant {
	return &Assistant{client: client, provider: provider, options: options}
}

// ResolveClient resolves the provider's key through chain and builds the client. A
// missing key is secrets.ErrNoAPIKey.
func ResolveClient(chain secrets.Chain, s factory.Settings) (llm.Client, error) {
	if s.APIKey == "" {
		key, err := chain.Resolve(s.Provider.KeyEnvVar())
		if err != nil {
			return nil, err
		}
		s.APIKey = key
	}
	return factory.NewClient(s)
}

// NewAssistantFromSecrets is NewAssistant with a resolved client. Only a missing key
// disables the assistant; other errors are returned.
func NewAssistantFromSecrets(chain secrets.Chain, s factory.Settings, options ...OrchestratorOption) (*Assistant, error) {
	client, err := ResolveClient(chain, s)
	if err != nil {
		if errors.Is(err, secrets.ErrNoAPIKey) {
			log.Info().Str("provider", string(s.Provider)).Msg("No API key, assistant disabled")
			return NewAssistant(nil, s.Provider, options...), nil
		}
		return nil, err
	}
	return NewAssistant(client, s.Provider, options...), nil
}

func (a *Assistant) Enabled() bool {
	return a.client != nil
}

func (a *Assistant) DisabledMessage() string {
	return DisabledMessage(a.provider)
}

// Session returns an orchestrator bound to a session's store.
func (a *Assistant) Session(id string, store conversation.Store) (*Orchestrator, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	options := append(append([]OrchestratorOption{}, a.options...), WithSessionID(id))
	return NewOrchestrator(a.client, store, options...)
}

// Submit runs one question for a session. When disabled, the store is left untouched.
func (a *Assistant) Submit(ctx context.Context, session string, store conversation.Store, page prompt.Page, ds *dataset.Dataset, text string) (*conversation.Turn, error) {
	o, err := a.Session(session, store)
	if err != nil {
		return nil, err
	}
	return o.Submit(ctx, page, ds, text)
}
