// internal/events/events.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// EventType identifies the lifecycle moment an event describes.
type EventType string

const (
	EventCreated       EventType = "notification.created"
	EventStatusUpdated EventType = "notification.status_updated"
	EventCancelled     EventType = "notification.cancelled"
	EventRead          EventType = "notification.read"
)

// Event is the payload published on every notification lifecycle change.
type Event struct {
	Type           EventType      `json:"type"`
	NotificationID uuid.UUID      `json:"notificationId"`
	TenantID       string         `json:"tenantId"`
	RecipientID    string         `json:"recipientId"`
	Channel        models.Channel `json:"channel"`
	Status         models.Status  `json:"status"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// NewEvent builds an event snapshot from a notification.
func NewEvent(typ EventType, n *models.Notification) Event {
	return Event{
		Type:           typ,
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		Status:         n.Status,
		ErrorMessage:   n.ErrorMessage,
		OccurredAt:     time.Now().UTC(),
	}
}

// Publisher fans lifecycle events out to interested consumers. Publish
// failures must not fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// TenantChannel is the pub/sub channel carrying a tenant's events.
func TenantChannel(tenantID string) string {
	return fmt.Sprintf("notifications.lifecycle.%s", tenantID)
}

// RedisPublisher publishes events over Redis pub/sub, one channel per
// tenant.
type RedisPublisher struct {
	redis  *redis.Client
	logger logger.Logger
}

func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{redis: client, logger: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.redis.Publish(ctx, TenantChannel(event.TenantID), payload).Err(); err != nil {
		p.logger.Warn("event publish failed", map[string]interface{}{
			"event_type":      string(event.Type),
			"notification_id": event.NotificationID.String(),
			"error":           err.Error(),
		})
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NoOpPublisher discards events. Used when no consumer is wired.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(ctx context.Context, event Event) error { return nil }
