package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Broadcaster) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, sub *redis.PubSub) (Event, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	return ev, msg.Payload
}

func TestBroadcaster_PublishesToSessionChannel(t *testing.T) {
	_, _, b := setup(t)
	ctx := context.Background()
	id := uuid.New()

	sub := b.Subscribe(ctx, id)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	tests := []struct {
		name    string
		publish func() error
		want    EventType
		step    int
	}{
		{"processing", func() error { return b.PublishTurnProcessing(ctx, id, 2, "Ask what happened") }, EventTypeTurnProcessing, 2},
		{"failed", func() error { return b.PublishTurnFailed(ctx, id, 2, "upstream decision service failed") }, EventTypeTurnFailed, 2},
		{"status", func() error { return b.PublishStatusChanged(ctx, id, 3, state.StatusActive, state.StatusLost) }, EventTypeSessionStatusChange, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.publish())
			ev, _ := receive(t, sub)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, id.String(), ev.SessionID)
			assert.Equal(t, tt.step, ev.Step)
			assert.False(t, ev.Timestamp.IsZero())
		})
	}
}

func TestBroadcaster_TurnCompletedHidesValence(t *testing.T) {
	_, _, b := setup(t)
	ctx := context.Background()

	sess := state.NewSession(state.PlayerProfile{Role: "engineer"}, "m", "s", 100, 5, state.Turn{
		Situation: "Jordan presents your analysis as theirs.",
		TurnOrder: []string{"jordan"},
		Choices: []state.Choice{
			{Label: "Speak up", Valence: state.ValencePositive},
			{Label: "Wait", Valence: state.ValenceNeutral},
			{Label: "Storm out", Valence: state.ValenceNegative},
		},
	}, []state.CharacterInstance{{ID: "jordan", Name: "Jordan", Persona: "secret persona"}})

	sub := b.Subscribe(ctx, sess.ID)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.PublishTurnCompleted(ctx, sess.View()))
	ev, raw := receive(t, sub)
	assert.Equal(t, EventTypeTurnCompleted, ev.Type)
	assert.Equal(t, "active", ev.Data["session_status"])
	assert.Contains(t, raw, "Speak up")
	assert.NotContains(t, raw, "valence")
	assert.NotContains(t, raw, "positive")
	assert.NotContains(t, raw, "secret persona")
}

func TestBroadcaster_PublishFailureReturnsError(t *testing.T) {
	mr, _, b := setup(t)
	mr.Close()
	err := b.PublishTurnFailed(context.Background(), uuid.New(), 1, "boom")
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c1f4e-2a57-4c55-9d6b-000000000001")
	assert.Equal(t, "session-events:6f1c1f4e-2a57-4c55-9d6b-000000000001", Channel(id))
}
