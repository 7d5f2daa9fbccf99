package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"

	"github.com/go-redis/redis/v8"
)

type feedEvent struct {
	Type       sessionservice.EventType `json:"type"`
	ChatID     string                   `json:"chatId"`
	Session    model.Session            `json:"session"`
	Message    *model.Message           `json:"message,omitempty"`
	OccurredAt time.Time                `json:"occurredAt"`
}

// Feed publishes session events to the session room and the dashboard room.
// With a redis client the events go through pub/sub so any ws-server
// process can deliver them; otherwise they go straight to the local handler.
type Feed struct {
	handler     *Handler
	redisClient *redis.Client
}

func NewFeed(handler *Handler, redisClient *redis.Client) *Feed {
	return &Feed{handler: handler, redisClient: redisClient}
}

func (f *Feed) Publish(ctx context.Context, event sessionservice.Event) error {
	payload, err := json.Marshal(feedEvent{
		Type:       event.Type,
		ChatID:     event.Session.ID,
		Session:    event.Session,
		Message:    event.Message,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("websocket publish: marshal event: %w", err)
	}

	for _, roomID := range []string{SessionRoom(event.Session.ID), DashboardRoom} {
		if err := f.publish(ctx, roomID, payload); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) publish(ctx context.Context, roomID string, payload []byte) error {
	if f.redisClient != nil {
		if err := f.redisClient.Publish(ctx, channelPrefix+roomID, payload).Err(); err != nil {
			return fmt.Errorf("websocket publish: redis publish: %w", err)
		}
		return nil
	}
	if f.handler != nil {
		f.handler.NotifyRoom(roomID, payload)
	}
	return nil
}
