// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/models"
)

// NotificationStore persists notifications and enforces the delivery
// state machine. Guarded transitions return an INVALID_STATE error when
// the notification is not in an allowed source state.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Notification, error)

	// State transitions. Each writes the status plus the timestamps the
	// target state owns, and nothing else.
	MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error
	MarkSent(ctx context.Context, tenantID string, id uuid.UUID, externalID string, at time.Time) error
	MarkDelivered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
	MarkRead(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errMsg string) error
	MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID) error
	MarkExpired(ctx context.Context, tenantID string, id uuid.UUID) error

	// Requeue moves a FAILED notification back to QUEUED and increments
	// its retry counter.
	Requeue(ctx context.Context, tenantID string, id uuid.UUID) error

	// MergeTracking folds provider callback data into the notification's
	// delivery tracking map. Existing keys are overwritten.
	MergeTracking(ctx context.Context, tenantID string, id uuid.UUID, data map[string]interface{}) error

	MarkAllRead(ctx context.Context, tenantID, recipientID string, at time.Time) (int64, error)

	ListByRecipient(ctx context.Context, tenantID, recipientID string, limit, offset int) ([]*models.Notification, error)
	ListUnread(ctx context.Context, tenantID, recipientID string, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, tenantID, recipientID string) (int64, error)
	ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]*models.Notification, error)

	// CountAdmittedSince supports rate limiting. It counts notifications
	// accepted for the recipient after the cutoff, whether or not they
	// have been delivered yet. Cancelled and expired rows never consumed
	// the recipient's attention and are excluded.
	CountAdmittedSince(ctx context.Context, tenantID, recipientID string, since time.Time) (int64, error)

	Analytics(ctx context.Context, tenantID string, from, to time.Time) (*models.Analytics, error)
	CampaignAnalytics(ctx context.Context, tenantID, campaignID string) (*models.Analytics, error)
}
