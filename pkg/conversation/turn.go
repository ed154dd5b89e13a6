// Package conversation keeps the per-page chat transcripts of a dashboard session.
//
// A transcript is an append-only list of turns. User turns carry the text that was typed;
// assistant turns carry the model's raw answer plus what came out of it: a chart, an
// error message, or nothing beyond text.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	Role Role      `json:"role"`

	// DisplayText is the typed text for user turns and the leading prose of the answer
	// for assistant turns.
	DisplayText string `json:"displayText"`
	// RawResponse is the unmodified model output, replayed as history.
	RawResponse string        `json:"rawResponse,omitempty"`
	Chart       *chart.Figure `json:"chart,omitempty"`
	Error       string        `json:"error,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type TurnOption func(*Turn)

func WithTime(t time.Time) TurnOption {
	return func(turn *Turn) {
		turn.Time = t
	}
}

func WithID(id uuid.UUID) TurnOption {
	return func(turn *Turn) {
		turn.ID = id
	}
}

func WithMetadata(metadata map[string]interface{}) TurnOption {
	return func(turn *Turn) {
		turn.Metadata = metadata
	}
}

func WithChart(f *chart.Figure) TurnOption {
	return func(turn *Turn) {
		turn.Chart = f
	}
}

func WithError(msg string) TurnOption {
	return func(turn *Turn) {
		turn.Error = msg
	}
}

func newTurn(role Role, display string, options ...TurnOption) *Turn {
	ret := &Turn{
		ID:          uuid.New(),
		Time:        time.Now(),
		Role:        role,
		DisplayText: display,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func NewUserTurn(text string, options ...TurnOption) *Turn {
	return newTurn(RoleUser, text, options...)
}

func NewAssistantTurn(display string, raw string, options ...TurnOption) *Turn {
	t := newTurn(RoleAssistant, display, options...)
	t.RawResponse = raw
	return t
}

// Validate checks the turn shape: user turns have text and nothing else, assistant turns
// never hold both a chart and an error.
func (t *Turn) Validate() error {
	switch t.Role {
	case RoleUser:
		if strings.TrimSpace(t.DisplayText) == "" {
			return errors.New("user turn has no text")
		}
		if t.Chart != nil || t.Error != "" || t.RawResponse != "" {
			return errors.New("user turn carries assistant fields")
		}
	case RoleAssistant:
		if t.Chart != nil && t.Error != "" {
			return errors.New("assistant turn has both a chart and an error")
		}
	default:
		return errors.Errorf("unknown role %q", t.Role)
	}
	return nil
}

func (t *Turn) HasChart() bool {
	return t.Chart != nil
}

func (t *Turn) HasError() bool {
	return t.Error != ""
}

// HistoryText is what the turn contributes to the model history: the raw model output
// for assistant turns, falling back to the display text.
func (t *Turn) HistoryText() string {
	if t.Role == RoleAssistant && t.RawResponse != "" {
		return t.RawResponse
	}
	return t.DisplayText
}

func (t *Turn) Clone() *Turn {
	return clone.Clone(t).(*Turn)
}

func (t *Turn) String() string {
	text := t.DisplayText
	switch {
	case t.Chart != nil:
		title := t.Chart.Title()
		if title == "" {
			title = "untitled"
		}
		text += fmt.Sprintf(" [chart: %s]", title)
	case t.Error != "":
		text += fmt.Sprintf(" [error: %s]", t.Error)
	}
	return fmt.Sprintf("[%s]: %s", t.Role, strings.TrimRight(text, "\n"))
}

type Conversation []*Turn

// Last returns the trailing n turns, or all of them when there are fewer.
func (c Conversation) Last(n int) Conversation {
	if n < 0 {
		n = 0
	}
	if len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}
