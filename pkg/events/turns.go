package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicTurns receives one message per appended turn.
const TopicTurns = "chartchat.turns"

type TurnOutcome string

const (
	OutcomeText  TurnOutcome = "text"
	OutcomeChart TurnOutcome = "chart"
	OutcomeError TurnOutcome = "error"
	OutcomeUser  TurnOutcome = "user"
)

// TurnEvent is the published view of a turn. The chart itself is left out, only its title
// travels.
type TurnEvent struct {
	Session     string            `json:"session,omitempty"`
	Page        string            `json:"page"`
	TurnID      string            `json:"turnId"`
	Role        conversation.Role `json:"role"`
	Outcome     TurnOutcome       `json:"outcome"`
	DisplayText string            `json:"displayText,omitempty"`
	ChartTitle  string            `json:"chartTitle,omitempty"`
	Error       string            `json:"error,omitempty"`
	Model       string            `json:"model,omitempty"`
	Duration    time.Duration     `json:"duration,omitempty"`
	Time        time.Time         `json:"time"`
}

func NewTurnEvent(session, page string, t *conversation.Turn) TurnEvent {
	ret := TurnEvent{
		Session:     session,
		Page:        page,
		TurnID:      t.ID.String(),
		Role:        t.Role,
		DisplayText: t.DisplayText,
		Error:       t.Error,
		Time:        t.Time,
	}
	switch {
	case t.Role == conversation.RoleUser:
		ret.Outcome = OutcomeUser
	case t.HasChart():
		ret.Outcome = OutcomeChart
		ret.ChartTitle = t.Chart.Title()
	case t.HasError():
		ret.Outcome = OutcomeError
	default:
		ret.Outcome = OutcomeText
	}
	return ret
}

func DecodeTurnEvent(payload []byte) (TurnEvent, error) {
	var ret TurnEvent
	if err := json.Unmarshal(payload, &ret); err != nil {
		return TurnEvent{}, errors.Wrap(err, "decoding turn event")
	}
	return ret, nil
}

// Sink receives turn events.
type Sink interface {
	PublishTurn(ctx context.Context, e TurnEvent) error
}

type NopSink struct{}

func (NopSink) PublishTurn(context.Context, TurnEvent) error { return nil }

var _ Sink = NopSink{}

// WatermillSink publishes turn events as JSON messages.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = TopicTurns
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishTurn(ctx context.Context, e TurnEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding turn event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish turn event")
		return err
	}
	log.Trace().Str("topic", w.topic).Str("turn_id", e.TurnID).Msg("Published turn event")
	return nil
}

var _ Sink = (*WatermillSink)(nil)

// LogTurns is a handler that writes every turn event to the global logger.
func LogTurns(msg *message.Message) error {
	e, err := DecodeTurnEvent(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed turn event")
		return nil
	}
	ev := log.Info().
		Str("session", e.Session).
		Str("page", e.Page).
		Str("turn_id", e.TurnID).
		Str("role", string(e.Role)).
		Str("outcome", string(e.Outcome))
	if e.ChartTitle != "" {
		ev = ev.Str("chart", e.ChartTitle)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error)
	}
	if e.Duration > 0 {
		ev = ev.Dur("duration", e.Duration)
	}
	ev.Msg("turn")
	return nil
}
