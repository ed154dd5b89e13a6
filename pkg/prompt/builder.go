// Package prompt assembles the model request for a chart question: the instruction
// template, the page's data summary and the recent conversation.
package prompt

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/sandbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultWindow is how many trailing turns are replayed to the model.
const DefaultWindow = 7

const (
	DefaultBusiness            = "Ainara Helados"
	DefaultBusinessDescription = "ice cream shop in Buenos Aires"
)

//go:embed system.tmpl
var defaultTemplate string

// API lists the script surface described to the model.
var API = []string{
	"df.columns, df.length, df.col(name) -> array, df.records() -> array of row objects",
	"df.filter((row, i) => bool), df.sortBy(name, ascending = true), df.head(n = 5), df.select(...names), df.unique(name)",
	"df.assign(name, row => value | array) -> new frame with the column added",
	"df.groupBy(name | [names]).agg({col: \"sum\"} | {alias: [col, \"mean\"]}); functions: sum, mean, count, min, max, median, nunique, first, last",
	"pd.frame(records), pd.toDate(s), pd.month(d) -> \"YYYY-MM\", pd.year(d), pd.weekday(d) (Monday = 0), pd.sum(arr), pd.mean(arr), pd.round(x, digits)",
	"px.bar|line|area|scatter(frame, {x, y: name | [names], color, orientation, title, labels, barmode})",
	"px.pie(frame, {names, values, hole, title}), px.histogram(frame, {x, nbins, title})",
	"go.Figure({data: [...], layout: {...}}), go.Bar({x, y, name, orientation, marker: {color}}), go.Scatter({x, y, name, mode, fill, line: {color}}), go.Pie({labels, values, hole}), go.Histogram({x, nbinsx})",
	"fig.add_trace(trace), fig.update_layout({...}), fig.update_xaxes({...}), fig.update_yaxes({...}) all return fig",
	"dates in rows are Date objects",
}

// Page identifies the dashboard page a question is asked on.
type Page struct {
	Key         string
	Description string
}

type templateData struct {
	Business            string
	BusinessDescription string
	OutputVariable      string
	StyleFunction       string
	Constants           []string
	Globals             []string
	API                 []string
}

type Builder struct {
	business            string
	businessDescription string
	window              int
	model               string
	maxTokens           int
	tmpl                *template.Template
	codec               tokenizer.Codec
}

type BuilderOption func(*Builder)

func WithBusiness(name, description string) BuilderOption {
	return func(b *Builder) {
		b.business = name
		b.businessDescription = description
	}
}

func WithWindow(n int) BuilderOption {
	return func(b *Builder) {
		b.window = n
	}
}

func WithModel(model string) BuilderOption {
	return func(b *Builder) {
		b.model = model
	}
}

func WithMaxTokens(n int) BuilderOption {
	return func(b *Builder) {
		b.maxTokens = n
	}
}

func NewBuilder(options ...BuilderOption) (*Builder, error) {
	b := &Builder{
		business:            DefaultBusiness,
		businessDescription: DefaultBusinessDescription,
		window:              DefaultWindow,
		maxTokens:           llm.DefaultMaxTokens,
	}
	for _, option := range options {
		option(b)
	}
	if b.window <= 0 {
		return nil, errors.Errorf("window must be positive, got %d", b.window)
	}

	tmpl, err := template.New("system").Funcs(sprig.TxtFuncMap()).Parse(defaultTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parsing system template")
	}
	b.tmpl = tmpl

	codec, err := tokenizer.Get(tokenizer.Encoding("cl100k_base"))
	if err != nil {
		log.Warn().Err(err).Msg("Token counting disabled")
	} else {
		b.codec = codec
	}
	return b, nil
}

// Instructions renders the fixed part of the system prompt.
func (b *Builder) Instructions() (string, error) {
	constants := make([]string, 0, len(chart.ScriptConstants())+1)
	for name := range chart.ScriptConstants() {
		constants = append(constants, name)
	}
	sort.Strings(constants)
	constants = append([]string{"COLORS"}, constants...)

	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, templateData{
		Business:            b.business,
		BusinessDescription: b.businessDescription,
		OutputVariable:      sandbox.OutputVariable,
		StyleFunction:       "styled_fig",
		Constants:           constants,
		Globals:             []string{"df", "pd", "px", "go", "styled_fig"},
		API:                 API,
	})
	if err != nil {
		return "", errors.Wrap(err, "rendering system template")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// DataContext is the data part of the system prompt.
func DataContext(ds *dataset.Dataset, page Page) string {
	summary := dataset.Summarize(ds, page.Key)
	if page.Description != "" {
		return "Page: " + page.Description + "\n\n" + summary
	}
	return summary
}

// Build creates the request for the last turn of transcript, which is normally the user turn
// that was just appended.
func (b *Builder) Build(transcript conversation.Conversation, ds *dataset.Dataset, page Page) (*llm.Request, error) {
	instructions, err := b.Instructions()
	if err != nil {
		return nil, err
	}
	req := &llm.Request{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		System:    instructions + "\n\nAvailable data:\n" + DataContext(ds, page),
		Messages:  Messages(transcript, b.window),
	}
	req.PromptTokens = b.countTokens(req)

	log.Debug().
		Str("page", page.Key).
		Int("messages", len(req.Messages)).
		Int("prompt_tokens", req.PromptTokens).
		Msg("built chart prompt")
	return req, nil
}

// Messages maps the trailing window of transcript to model messages in chronological order.
func Messages(transcript conversation.Conversation, window int) []llm.Message {
	turns := transcript.Last(window)
	ret := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		ret = append(ret, llm.Message{Role: role, Content: t.HistoryText()})
	}
	return ret
}

func (b *Builder) countTokens(req *llm.Request) int {
	if b.codec == nil {
		return 0
	}
	n := 0
	texts := []string{req.System}
	for _, m := range req.Messages {
		texts = append(texts, m.Content)
	}
	for _, s := range texts {
		ids, _, err := b.codec.Encode(s)
		if err != nil {
			return 0
		}
		n += len(ids)
	}
	return n
}
