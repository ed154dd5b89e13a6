// Package cmds holds the chartchat subcommands and the wiring they share.
package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/chartchat/pkg/chat"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/events"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/llm/factory"
	"github.com/go-go-golems/chartchat/pkg/pages"
	"github.com/go-go-golems/chartchat/pkg/prompt"
	"github.com/go-go-golems/chartchat/pkg/sandbox"
	"github.com/go-go-golems/chartchat/pkg/secrets"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AddFlags registers the configuration flags. They are bound to viper by the root command,
// so every key can also come from the config file or a CHARTCHAT_ environment variable.
func AddFlags(flags *pflag.FlagSet) {
	flags.String("data-dir", "data", "Directory with the exported tables (<table>.csv or .xlsx)")
	flags.String("pages-file", "", "Page catalog YAML (default: built-in catalog)")
	flags.String("since", "", "Start of the date window, YYYY-MM-DD (default from the catalog)")
	flags.String("until", "", "End of the date window, YYYY-MM-DD (default from the catalog)")
	flags.Duration("cache-ttl", dataset.DefaultTTL, "How long loaded tables are cached")

	flags.String("provider", "claude", "Model provider (claude, openai)")
	flags.String("model", "", "Model name (default depends on the provider)")
	flags.Int("max-tokens", llm.DefaultMaxTokens, "Maximum output tokens")
	flags.Duration("model-timeout", chat.DefaultModelTimeout, "Timeout for a model call")
	flags.Duration("exec-timeout", sandbox.DefaultTimeout, "Timeout for running chart code")
	flags.String("secrets-file", filepath.Join(".streamlit", "secrets.toml"), "TOML file holding the API key")
	flags.String("env-file", ".env", "dotenv file holding the API key")
	flags.Bool("no-prompt", false, "Never ask for the API key interactively")
	flags.String("claude-base-url", "", "Anthropic API base URL")
	flags.String("openai-base-url", "", "OpenAI API base URL")
	flags.Bool("allow-local-base-url", false, "Allow http and local-network base URLs")
	flags.String("business-name", prompt.DefaultBusiness, "Business name used in the instructions")
	flags.String("business-description", prompt.DefaultBusinessDescription, "Short business description")
}

// App is the wiring shared by the subcommands.
type App struct {
	Catalog   *pages.Catalog
	Loader    *dataset.Loader
	Assistant *chat.Assistant
	Provider  factory.Provider
	Model     string
}

type appOptions struct {
	interactive bool
	sink        events.Sink
	withChat    bool
}

type AppOption func(*appOptions)

// WithInteractiveKey allows asking for the API key on the terminal.
func WithInteractiveKey(interactive bool) AppOption {
	return func(o *appOptions) {
		o.interactive = interactive
	}
}

func WithEventSink(sink events.Sink) AppOption {
	return func(o *appOptions) {
		o.sink = sink
	}
}

func withoutChat() AppOption {
	return func(o *appOptions) {
		o.withChat = false
	}
}

func NewApp(options ...AppOption) (*App, error) {
	opts := &appOptions{withChat: true}
	for _, o := range options {
		o(opts)
	}

	catalog := pages.Default()
	if path := viper.GetString("pages-file"); path != "" {
		c, err := pages.LoadFile(path)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	if err := catalog.SetWindow(viper.GetString("since"), viper.GetString("until")); err != nil {
		return nil, err
	}

	app := &App{
		Catalog: catalog,
		Loader:  dataset.NewLoader(viper.GetString("data-dir"), dataset.WithTTL(viper.GetDuration("cache-ttl"))),
	}
	if !opts.withChat {
		return app, nil
	}

	provider, err := factory.ParseProvider(viper.GetString("provider"))
	if err != nil {
		return nil, err
	}
	app.Provider = provider
	app.Model = viper.GetString("model")
	if app.Model == "" {
		app.Model = provider.DefaultModel()
	}

	business := viper.GetString("business-name")
	if business == "" {
		business = catalog.Business
	}
	builder, err := prompt.NewBuilder(
		prompt.WithBusiness(business, viper.GetString("business-description")),
		prompt.WithModel(app.Model),
		prompt.WithMaxTokens(viper.GetInt("max-tokens")),
	)
	if err != nil {
		return nil, err
	}

	chain := secrets.Chain{
		secrets.FileSource{Path: viper.GetString("secrets-file")},
		secrets.EnvSource{EnvFile: viper.GetString("env-file")},
	}
	if opts.interactive && !viper.GetBool("no-prompt") {
		chain = append(chain, secrets.NewPromptSource())
	}

	chatOptions := []chat.OrchestratorOption{
		chat.WithBuilder(builder),
		chat.WithExecutor(sandbox.NewExecutor(sandbox.WithTimeout(viper.GetDuration("exec-timeout")))),
		chat.WithModelName(app.Model),
		chat.WithModelTimeout(viper.GetDuration("model-timeout")),
	}
	if opts.sink != nil {
		chatOptions = append(chatOptions, chat.WithSink(opts.sink))
	}

	assistant, err := chat.NewAssistantFromSecrets(chain, factory.Settings{
		Provider:          provider,
		Model:             app.Model,
		ClaudeBaseURL:     viper.GetString("claude-base-url"),
		OpenAIBaseURL:     viper.GetString("openai-base-url"),
		AllowLocalBaseURL: viper.GetBool("allow-local-base-url"),
	}, chatOptions...)
	if err != nil {
		return nil, err
	}
	app.Assistant = assistant
	return app, nil
}

// LoadPage loads the page's data and returns it with the prompt page descriptor.
func (a *App) LoadPage(ctx context.Context, key string) (pages.Page, prompt.Page, *dataset.Dataset, error) {
	p, ds, err := a.Catalog.Load(ctx, a.Loader, key)
	if err != nil {
		return pages.Page{}, prompt.Page{}, nil, err
	}
	return p, prompt.Page{Key: p.Key, Description: p.Description}, ds, nil
}

func requirePage(args []string, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) > 0 {
		return args[0], nil
	}
	return "", errors.New("no page given, see `chartchat pages`")
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
