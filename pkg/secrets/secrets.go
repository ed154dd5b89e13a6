// Package secrets resolves the model API key from, in order, a secrets file, the process
// environment (or a .env file) and an interactive prompt.
package secrets

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/chartchat/pkg/security"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
)

var (
	// ErrNotFound is returned by a Source that has no value for the key.
	ErrNotFound = errors.New("secret not found")
	// ErrNoAPIKey is returned by Chain.Resolve when no source has the key.
	ErrNoAPIKey = errors.New("no API key configured")
)

type Source interface {
	Name() string
	Lookup(key string) (string, error)
}

// FileSource reads a TOML secrets file, e.g.
//
//	ANTHROPIC_API_KEY = "sk-ant-..."
type FileSource struct {
	Path string
}

func (f FileSource) Name() string {
	return "file " + f.Path
}

func (f FileSource) Lookup(key string) (string, error) {
	if f.Path == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(f.Path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "checking secrets file %s", f.Path)
	}
	v := viper.New()
	v.SetConfigFile(f.Path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", errors.Wrapf(err, "reading secrets file %s", f.Path)
	}
	return nonEmpty(v.GetString(key))
}

// EnvSource reads the process environment first and then an optional dotenv file. The
// environment wins over the file.
type EnvSource struct {
	EnvFile string
	Getenv  func(string) string
}

func (e EnvSource) Name() string {
	return "environment"
}

func (e EnvSource) Lookup(key string) (string, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if value := strings.TrimSpace(getenv(key)); value != "" {
		return value, nil
	}
	if e.EnvFile == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(e.EnvFile); err != nil {
		return "", ErrNotFound
	}
	v := viper.New()
	v.SetConfigFile(e.EnvFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return "", errors.Wrapf(err, "reading env file %s", e.EnvFile)
	}
	return nonEmpty(v.GetString(key))
}

// PromptSource asks for the key on the terminal. It only prompts when the reader is a
// terminal; otherwise it reports ErrNotFound.
type PromptSource struct {
	Reader io.Reader
	Writer io.Writer
	// Mask hides the typed key. Masking needs Reader to be an *os.File.
	Mask bool
	// IsTerminal overrides terminal detection.
	IsTerminal func() bool
}

func NewPromptSource() PromptSource {
	return PromptSource{
		Reader: os.Stdin,
		Writer: os.Stderr,
		Mask:   true,
	}
}

func (p PromptSource) Name() string {
	return "prompt"
}

func (p PromptSource) interactive() bool {
	if p.IsTerminal != nil {
		return p.IsTerminal()
	}
	f, ok := p.Reader.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p PromptSource) Lookup(key string) (string, error) {
	if p.Reader == nil || !p.interactive() {
		return "", ErrNotFound
	}
	ui := &input.UI{
		Writer: p.Writer,
		Reader: p.Reader,
	}
	answer, err := ui.Ask(key+" (leave empty to disable the assistant)", &input.Options{
		Mask:        p.Mask,
		MaskDefault: true,
		HideOrder:   true,
	})
	if err != nil {
		if errors.Is(err, input.ErrInterrupted) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "reading API key")
	}
	return nonEmpty(answer)
}

// Chain tries its sources in order.
type Chain []Source

// Resolve returns the first non-empty value for key. Sources that fail are logged and
// skipped.
func (c Chain) Resolve(key string) (string, error) {
	for _, s := range c {
		value, err := s.Lookup(key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Warn().Err(err).Str("source", s.Name()).Msg("Secret source failed")
			}
			continue
		}
		log.Debug().Str("source", s.Name()).Str("key", key).Str("value", security.RedactKey(value)).Msg("Resolved secret")
		return value, nil
	}
	return "", errors.Wrap(ErrNoAPIKey, key)
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNotFound
	}
	return s, nil
}
