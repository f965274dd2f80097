package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnProcessing      EventType = "turn.processing"
	EventTypeTurnCompleted       EventType = "turn.completed"
	EventTypeTurnFailed          EventType = "turn.failed"
	EventTypeSessionStatusChange EventType = "session.status_changed"
)

// Event is the payload published for every session event. Data never
// carries choice valence; turn payloads are built from state.TurnView.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Step      int            `json:"step"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Channel returns the pub/sub channel for a session.
func Channel(sessionID uuid.UUID) string {
	return "session-events:" + sessionID.String()
}

// Broadcaster publishes session events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Subscribe opens a subscription to one session's events. The caller
// closes the returned PubSub.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}

// PublishTurnProcessing announces that a submitted turn passed input
// validation and is being worked on.
func (b *Broadcaster) PublishTurnProcessing(ctx context.Context, sessionID uuid.UUID, step int, playerChoice string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeTurnProcessing,
		SessionID: sessionID.String(),
		Step:      step,
		Data: map[string]any{
			"status":        "processing",
			"player_choice": playerChoice,
		},
	})
}

// PublishTurnCompleted publishes the committed turn as the player sees it.
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, view state.SessionView) error {
	data := map[string]any{
		"status":         "completed",
		"session_status": view.Status,
		"hp":             view.HP,
		"max_hp":         view.MaxHP,
		"version":        view.Version,
	}
	if view.Current != nil {
		data["turn"] = view.Current
	}
	return b.publish(ctx, Event{
		Type:      EventTypeTurnCompleted,
		SessionID: view.ID.String(),
		Step:      view.Step,
		Data:      data,
	})
}

func (b *Broadcaster) PublishTurnFailed(ctx context.Context, sessionID uuid.UUID, step int, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeTurnFailed,
		SessionID: sessionID.String(),
		Step:      step,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

func (b *Broadcaster) PublishStatusChanged(ctx context.Context, sessionID uuid.UUID, step int, from, to state.Status) error {
	return b.publish(ctx, Event{
		Type:      EventTypeSessionStatusChange,
		SessionID: sessionID.String(),
		Step:      step,
		Data: map[string]any{
			"from": from,
			"to":   to,
		},
	})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	channel := "session-events:" + event.SessionID

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"step", event.Step,
	)
	return nil
}
