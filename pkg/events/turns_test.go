package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnEventOutcome(t *testing.T) {
	f := chart.NewFigure()
	f.Layout.Title = "Ventas"
	tests := []struct {
		name    string
		turn    *conversation.Turn
		outcome TurnOutcome
	}{
		{"user", conversation.NewUserTurn("hola"), OutcomeUser},
		{"text", conversation.NewAssistantTurn("hola", "hola"), OutcomeText},
		{"chart", conversation.NewAssistantTurn("Ventas", "raw", conversation.WithChart(f)), OutcomeChart},
		{"error", conversation.NewAssistantTurn("", "boom", conversation.WithError("boom")), OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTurnEvent("s1", "ventas", tt.turn)
			assert.Equal(t, tt.outcome, e.Outcome)
			assert.Equal(t, tt.turn.ID.String(), e.TurnID)
			assert.Equal(t, "ventas", e.Page)
		})
	}
	assert.Equal(t, "Ventas", NewTurnEvent("", "p", tests[2].turn).ChartTitle)
}

func TestWatermillSinkDelivers(t *testing.T) {
	router, err := NewRouter()
	require.NoError(t, err)

	received := make(chan TurnEvent, 1)
	router.AddHandler("collect", TopicTurns, func(msg *message.Message) error {
		e, err := DecodeTurnEvent(msg.Payload)
		if err != nil {
			return err
		}
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()
	defer func() {
		_ = router.Close()
	}()

	turn := conversation.NewAssistantTurn("", "timeout", conversation.WithError("timeout"))
	sink := NewWatermillSink(router.Publisher, "")
	require.NoError(t, sink.PublishTurn(ctx, NewTurnEvent("s1", "ventas", turn)))

	select {
	case e := <-received:
		assert.Equal(t, OutcomeError, e.Outcome)
		assert.Equal(t, "timeout", e.Error)
		assert.Equal(t, "s1", e.Session)
	case <-time.After(2 * time.Second):
		t.Fatal("turn event not delivered")
	}
}

func TestLogTurnsIgnoresMalformedPayload(t *testing.T) {
	assert.NoError(t, LogTurns(message.NewMessage("1", []byte("{not json"))))
	assert.NoError(t, NopSink{}.PublishTurn(context.Background(), TurnEvent{}))
}
