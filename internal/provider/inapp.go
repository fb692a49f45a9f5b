// internal/provider/inapp.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// inboxEntry is the JSON record pushed onto a user's inbox list.
type inboxEntry struct {
	NotificationID string                 `json:"notificationId"`
	Subject        string                 `json:"subject,omitempty"`
	Content        string                 `json:"content"`
	Category       string                 `json:"category,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// InAppProvider delivers notifications into a Redis-backed per-user inbox.
// The inbox is a capped list; delivery state lives in the notification
// store, the inbox only feeds client reads.
type InAppProvider struct {
	redis    *redis.Client
	ttl      time.Duration // 0 keeps entries until trimmed
	maxLen   int
	logger   logger.Logger
}

func NewInAppProvider(client *redis.Client, inboxTTL time.Duration, maxInboxLen int, log logger.Logger) *InAppProvider {
	if maxInboxLen <= 0 {
		maxInboxLen = 500
	}
	return &InAppProvider{
		redis:  client,
		ttl:    inboxTTL,
		maxLen: maxInboxLen,
		logger: log,
	}
}

func (p *InAppProvider) Channel() models.Channel {
	return models.ChannelInApp
}

func (p *InAppProvider) Validate(n *models.Notification) error {
	if n.RecipientID == "" {
		return errors.NewValidationError("recipient is required", "recipient_id must not be empty for IN_APP notifications")
	}
	if n.Content == "" {
		return errors.NewValidationError("in-app content is required", "content must not be empty for IN_APP notifications")
	}
	return nil
}

func (p *InAppProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	entry, err := json.Marshal(inboxEntry{
		NotificationID: n.ID.String(),
		Subject:        n.Subject,
		Content:        n.Content,
		Category:       n.Category,
		Metadata:       n.Metadata,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to marshal inbox entry", err)
	}

	key := InboxKey(n.TenantID, n.RecipientID)
	pipe := p.redis.TxPipeline()
	pipe.LPush(ctx, key, entry)
	pipe.LTrim(ctx, key, 0, int64(p.maxLen-1))
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Error("inbox write failed", map[string]interface{}{
			"notification_id": n.ID.String(),
			"inbox_key":       key,
			"error":           err.Error(),
		})
		return nil, errors.NewProviderSendError("inbox write failed", err)
	}

	p.logger.Info("in-app notification delivered", map[string]interface{}{
		"notification_id": n.ID.String(),
		"inbox_key":       key,
	})

	return &models.DeliveryResult{
		Success: true,
		Message: "written to inbox",
	}, nil
}

// InboxKey is the Redis list key holding a user's in-app inbox.
func InboxKey(tenantID, recipientID string) string {
	return fmt.Sprintf("inbox:%s:%s", tenantID, recipientID)
}
