// internal/queue/queue.go
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/models"
)

// ErrNothingDue is returned by Claim when no pending item is due.
var ErrNothingDue = errors.New("queue: nothing due")

// QueueStore schedules delivery attempts. Claim is atomic: a PENDING
// item moves to PROCESSING exactly once even under concurrent workers.
type QueueStore interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error

	// Claim returns the highest-priority due item, earliest due first
	// within a priority. ErrNothingDue when the queue has no due work.
	Claim(ctx context.Context, owner string, now time.Time) (*models.QueueItem, error)

	// Complete, Reschedule and Fail require the owner token the item was
	// claimed with. A stale owner gets an INVALID_STATE error.
	Complete(ctx context.Context, id uuid.UUID, owner string) error
	Reschedule(ctx context.Context, id uuid.UUID, owner string, dueAt time.Time) error
	Fail(ctx context.Context, id uuid.UUID, owner string, errMsg string) error

	// CancelByNotification cancels any pending item for the
	// notification. Items already PROCESSING are left alone.
	CancelByNotification(ctx context.Context, notificationID uuid.UUID) (bool, error)

	// Depth counts PENDING items per channel, for gauges.
	Depth(ctx context.Context, channel models.Channel) (int64, error)

	// ReleaseStale returns items claimed longer ago than maxClaimAge to
	// PENDING so a crashed worker's claims are eventually retried.
	ReleaseStale(ctx context.Context, maxClaimAge time.Duration, now time.Time) (int64, error)
}
