package session

import (
	"context"
	"log"
	"time"

	"livechat-backend/internal/model"
)

type EventType string

const (
	EventSessionCreated  EventType = "session.created"
	EventMessageCreated  EventType = "message.created"
	EventSessionTakeover EventType = "session.taken_over"
	EventSessionAssigned EventType = "session.assigned"
	EventSessionClosed   EventType = "session.closed"
)

type Event struct {
	Type       EventType      `json:"type"`
	Session    model.Session  `json:"session"`
	Message    *model.Message `json:"message,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publisher fans session changes out to subscribers. Delivery is best
// effort; the store itself never waits on it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func (s *Service) publish(ctx context.Context, eventType EventType, session model.Session, message *model.Message) {
	if s.publisher == nil {
		return
	}
	event := Event{
		Type:       eventType,
		Session:    session,
		Message:    message,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("[session] publish %s for %s: %v", eventType, session.ID, err)
	}
}
