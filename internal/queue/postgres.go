// internal/queue/postgres.go
package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// PostgresQueueStore implements QueueStore on PostgreSQL. The claim uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
type PostgresQueueStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresQueueStore(db *sql.DB, log logger.Logger) *PostgresQueueStore {
	return &PostgresQueueStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "queue_store"}),
	}
}

func (s *PostgresQueueStore) Enqueue(ctx context.Context, item *models.QueueItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_items (
			id, notification_id, tenant_id, channel, priority, status,
			due_at, claimed_by, claimed_at, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '', NULL, '', $8, $8)`,
		item.ID, item.NotificationID, item.TenantID, string(item.Channel),
		int(item.Priority), string(item.Status), item.DueAt, item.CreatedAt,
	)
	if err != nil {
		return stderrors.NewDatabaseError("enqueue item", err)
	}
	return nil
}

func (s *PostgresQueueStore) Claim(ctx context.Context, owner string, now time.Time) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status = 'PROCESSING', claimed_by = $1, claimed_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM queue_items
			WHERE status = 'PENDING' AND due_at <= $2
			ORDER BY priority DESC, due_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, notification_id, tenant_id, channel, priority, status,
		          due_at, claimed_by, claimed_at, error_message, created_at, updated_at`,
		owner, now,
	)

	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNothingDue
	}
	if err != nil {
		return nil, stderrors.NewDatabaseError("claim item", err)
	}
	return item, nil
}

// ownerGuarded runs an update that must match the claiming owner.
func (s *PostgresQueueStore) ownerGuarded(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return stderrors.NewDatabaseError("update queue item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return stderrors.NewDatabaseError("rows affected", err)
	}
	if affected == 0 {
		return stderrors.NewInvalidStateError("queue item not held by owner", id.String())
	}
	return nil
}

func (s *PostgresQueueStore) Complete(ctx context.Context, id uuid.UUID, owner string) error {
	return s.ownerGuarded(ctx, id, `
		UPDATE queue_items
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'PROCESSING'`,
		id, owner,
	)
}

func (s *PostgresQueueStore) Reschedule(ctx context.Context, id uuid.UUID, owner string, dueAt time.Time) error {
	return s.ownerGuarded(ctx, id, `
		UPDATE queue_items
		SET status = 'PENDING', due_at = $3, claimed_by = '', claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'PROCESSING'`,
		id, owner, dueAt,
	)
}

func (s *PostgresQueueStore) Fail(ctx context.Context, id uuid.UUID, owner string, errMsg string) error {
	return s.ownerGuarded(ctx, id, `
		UPDATE queue_items
		SET status = 'FAILED', error_message = $3, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'PROCESSING'`,
		id, owner, errMsg,
	)
}

func (s *PostgresQueueStore) CancelByNotification(ctx context.Context, notificationID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE notification_id = $1 AND status = 'PENDING'`,
		notificationID,
	)
	if err != nil {
		return false, stderrors.NewDatabaseError("cancel queue items", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, stderrors.NewDatabaseError("rows affected", err)
	}
	return affected > 0, nil
}

func (s *PostgresQueueStore) Depth(ctx context.Context, channel models.Channel) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_items
		WHERE channel = $1 AND status = 'PENDING'`,
		string(channel),
	).Scan(&count)
	if err != nil {
		return 0, stderrors.NewDatabaseError("queue depth", err)
	}
	return count, nil
}

func (s *PostgresQueueStore) ReleaseStale(ctx context.Context, maxClaimAge time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-maxClaimAge)
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'PENDING', claimed_by = '', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'PROCESSING' AND claimed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, stderrors.NewDatabaseError("release stale claims", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, stderrors.NewDatabaseError("rows affected", err)
	}
	return affected, nil
}

func scanQueueItem(row *sql.Row) (*models.QueueItem, error) {
	var item models.QueueItem
	var channel, status string
	var priority int

	err := row.Scan(
		&item.ID, &item.NotificationID, &item.TenantID, &channel, &priority, &status,
		&item.DueAt, &item.ClaimedBy, &item.ClaimedAt, &item.ErrorMessage,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Channel = models.Channel(channel)
	item.Priority = models.Priority(priority)
	item.Status = models.QueueStatus(status)
	return &item, nil
}
