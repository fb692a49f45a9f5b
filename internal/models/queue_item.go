// internal/models/queue_item.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus tracks the schedulable unit, independently of the
// notification's own lifecycle.
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueFailed     QueueStatus = "FAILED"
	QueueCancelled  QueueStatus = "CANCELLED"
)

func (s QueueStatus) IsTerminal() bool {
	return s == QueueCompleted || s == QueueFailed || s == QueueCancelled
}

// QueueItem references a Notification; the Notification remains the
// logically primary record. At most one item per notification may be
// PROCESSING at a time, enforced by the store's atomic claim.
type QueueItem struct {
	ID             uuid.UUID   `json:"id"`
	NotificationID uuid.UUID   `json:"notificationId"`
	TenantID       string      `json:"tenantId"`
	Channel        Channel     `json:"channel"`
	Priority       Priority    `json:"priority"`
	Status         QueueStatus `json:"status"`
	DueAt          time.Time   `json:"dueAt"`
	ClaimedBy      string      `json:"claimedBy,omitempty"` // worker owner token
	ClaimedAt      *time.Time  `json:"claimedAt,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
