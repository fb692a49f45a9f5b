// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

const notificationColumns = `
	id, tenant_id, recipient_id, recipient_contact, channel, status, priority,
	delivery_strategy, subject, content, html_content, template_id, template_version,
	category, campaign_id, correlation_id, external_id,
	scheduled_at, sent_at, delivered_at, read_at, expires_at,
	retry_count, max_retries, error_message,
	template_vars, metadata, channel_config, delivery_tracking,
	created_at, updated_at`

// PostgresNotificationStore implements NotificationStore on PostgreSQL.
type PostgresNotificationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresNotificationStore(db *sql.DB, log logger.Logger) *PostgresNotificationStore {
	return &PostgresNotificationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "notification_store"}),
	}
}

func (s *PostgresNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	templateVars, err := marshalMap(n.TemplateVars)
	if err != nil {
		return stderrors.NewInternalError("marshal template vars", err)
	}
	metadata, err := marshalMap(n.Metadata)
	if err != nil {
		return stderrors.NewInternalError("marshal metadata", err)
	}
	channelConfig, err := marshalMap(n.ChannelConfig)
	if err != nil {
		return stderrors.NewInternalError("marshal channel config", err)
	}
	tracking, err := marshalMap(n.DeliveryTracking)
	if err != nil {
		return stderrors.NewInternalError("marshal delivery tracking", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, tenant_id, recipient_id, recipient_contact, channel, status, priority,
			delivery_strategy, subject, content, html_content, template_id, template_version,
			category, campaign_id, correlation_id, external_id,
			scheduled_at, sent_at, delivered_at, read_at, expires_at,
			retry_count, max_retries, error_message,
			template_vars, metadata, channel_config, delivery_tracking,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $30
		)`,
		n.ID, n.TenantID, n.RecipientID, n.RecipientContact, string(n.Channel),
		string(n.Status), int(n.Priority), string(n.DeliveryStrategy),
		n.Subject, n.Content, n.HTMLContent, n.TemplateID, n.TemplateVersion,
		n.Category, n.CampaignID, n.CorrelationID, n.ExternalID,
		n.ScheduledAt, n.SentAt, n.DeliveredAt, n.ReadAt, n.ExpiresAt,
		n.RetryCount, n.MaxRetries, n.ErrorMessage,
		templateVars, metadata, channelConfig, tracking,
		n.CreatedAt,
	)
	if err != nil {
		return stderrors.NewDatabaseError("insert notification", err)
	}
	return nil
}

func (s *PostgresNotificationStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError(id.String())
	}
	if err != nil {
		return nil, stderrors.NewDatabaseError("get notification", err)
	}
	return n, nil
}

// transition runs a guarded status update. Zero rows means the
// notification was missing or not in an allowed source state.
func (s *PostgresNotificationStore) transition(ctx context.Context, tenantID string, id uuid.UUID, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return stderrors.NewDatabaseError("update notification status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return stderrors.NewDatabaseError("rows affected", err)
	}
	if affected == 0 {
		// Distinguish a bad transition from a missing row.
		if _, getErr := s.Get(ctx, tenantID, id); getErr != nil {
			return getErr
		}
		return stderrors.NewInvalidStateError("transition not allowed from current status", id.String())
	}
	return nil
}

func (s *PostgresNotificationStore) MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'PROCESSING', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'QUEUED'`,
		tenantID, id,
	)
}

func (s *PostgresNotificationStore) MarkSent(ctx context.Context, tenantID string, id uuid.UUID, externalID string, at time.Time) error {
	// sent_at is written once. Retries after a provider-side failure keep
	// the first handoff timestamp.
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'SENT',
		    external_id = CASE WHEN external_id = '' THEN $3 ELSE external_id END,
		    sent_at = COALESCE(sent_at, $4),
		    error_message = '',
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'PROCESSING'`,
		tenantID, id, externalID, at,
	)
}

func (s *PostgresNotificationStore) MarkDelivered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'DELIVERED', delivered_at = COALESCE(delivered_at, $3), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'SENT'`,
		tenantID, id, at,
	)
}

func (s *PostgresNotificationStore) MarkRead(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	// Marking an already-read notification succeeds without moving read_at.
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'READ', read_at = COALESCE(read_at, $3), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status IN ('SENT', 'DELIVERED', 'READ')`,
		tenantID, id, at,
	)
	if err != nil {
		return stderrors.NewDatabaseError("mark read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return stderrors.NewDatabaseError("rows affected", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, tenantID, id); getErr != nil {
			return getErr
		}
		return stderrors.NewInvalidStateError("notification is not readable in its current status", id.String())
	}
	return nil
}

func (s *PostgresNotificationStore) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errMsg string) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'FAILED', error_message = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'PROCESSING'`,
		tenantID, id, errMsg,
	)
}

func (s *PostgresNotificationStore) MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'QUEUED'`,
		tenantID, id,
	)
}

func (s *PostgresNotificationStore) MarkExpired(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status IN ('QUEUED', 'PROCESSING', 'FAILED')`,
		tenantID, id,
	)
}

func (s *PostgresNotificationStore) Requeue(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, `
		UPDATE notifications
		SET status = 'QUEUED', retry_count = retry_count + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'FAILED' AND retry_count < max_retries`,
		tenantID, id,
	)
}

func (s *PostgresNotificationStore) MergeTracking(ctx context.Context, tenantID string, id uuid.UUID, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	payload, err := marshalMap(data)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET delivery_tracking = COALESCE(delivery_tracking, '{}'::jsonb) || $3::jsonb,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, payload,
	)
	if err != nil {
		return stderrors.NewDatabaseError("merge tracking", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return stderrors.NewDatabaseError("merge tracking", err)
	}
	if affected == 0 {
		return stderrors.NewNotFoundError(id.String())
	}
	return nil
}

func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, tenantID, recipientID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'READ', read_at = COALESCE(read_at, $3), updated_at = NOW()
		WHERE tenant_id = $1 AND recipient_id = $2 AND status IN ('SENT', 'DELIVERED')`,
		tenantID, recipientID, at,
	)
	if err != nil {
		return 0, stderrors.NewDatabaseError("mark all read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, stderrors.NewDatabaseError("rows affected", err)
	}
	return affected, nil
}

func (s *PostgresNotificationStore) ListByRecipient(ctx context.Context, tenantID, recipientID string, limit, offset int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1 AND recipient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		tenantID, recipientID, limit, offset,
	)
	if err != nil {
		return nil, stderrors.NewDatabaseError("list by recipient", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresNotificationStore) ListUnread(ctx context.Context, tenantID, recipientID string, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1 AND recipient_id = $2
		  AND status IN ('SENT', 'DELIVERED')
		ORDER BY created_at DESC
		LIMIT $3`,
		tenantID, recipientID, limit,
	)
	if err != nil {
		return nil, stderrors.NewDatabaseError("list unread", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresNotificationStore) CountUnread(ctx context.Context, tenantID, recipientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE tenant_id = $1 AND recipient_id = $2
		  AND status IN ('SENT', 'DELIVERED')`,
		tenantID, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, stderrors.NewDatabaseError("count unread", err)
	}
	return count, nil
}

func (s *PostgresNotificationStore) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1 AND campaign_id = $2
		ORDER BY created_at ASC`,
		tenantID, campaignID,
	)
	if err != nil {
		return nil, stderrors.NewDatabaseError("list by campaign", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresNotificationStore) CountAdmittedSince(ctx context.Context, tenantID, recipientID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE tenant_id = $1 AND recipient_id = $2
		  AND created_at >= $3
		  AND status NOT IN ('CANCELLED', 'EXPIRED')`,
		tenantID, recipientID, since,
	).Scan(&count)
	if err != nil {
		return 0, stderrors.NewDatabaseError("count admitted since", err)
	}
	return count, nil
}

func (s *PostgresNotificationStore) Analytics(ctx context.Context, tenantID string, from, to time.Time) (*models.Analytics, error) {
	return s.analytics(ctx, `
		SELECT channel,
		       COUNT(*) FILTER (WHERE sent_at IS NOT NULL) AS sent,
		       COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'READ')) AS delivered,
		       COUNT(*) FILTER (WHERE status = 'FAILED' AND retry_count >= max_retries) AS failed,
		       COUNT(*) FILTER (WHERE status = 'READ') AS read
		FROM notifications
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY channel`,
		tenantID, from, to,
	)
}

func (s *PostgresNotificationStore) CampaignAnalytics(ctx context.Context, tenantID, campaignID string) (*models.Analytics, error) {
	return s.analytics(ctx, `
		SELECT channel,
		       COUNT(*) FILTER (WHERE sent_at IS NOT NULL) AS sent,
		       COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'READ')) AS delivered,
		       COUNT(*) FILTER (WHERE status = 'FAILED' AND retry_count >= max_retries) AS failed,
		       COUNT(*) FILTER (WHERE status = 'READ') AS read
		FROM notifications
		WHERE tenant_id = $1 AND campaign_id = $2
		GROUP BY channel`,
		tenantID, campaignID,
	)
}

func (s *PostgresNotificationStore) analytics(ctx context.Context, query string, args ...interface{}) (*models.Analytics, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewDatabaseError("analytics query", err)
	}
	defer rows.Close()

	out := &models.Analytics{
		ChannelBreakdown: make(map[models.Channel]int64),
	}
	for rows.Next() {
		var channel string
		var sent, delivered, failed, read int64
		if err := rows.Scan(&channel, &sent, &delivered, &failed, &read); err != nil {
			return nil, stderrors.NewDatabaseError("scan analytics row", err)
		}
		out.TotalSent += sent
		out.TotalDelivered += delivered
		out.TotalFailed += failed
		out.TotalRead += read
		out.ChannelBreakdown[models.Channel(channel)] = sent
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewDatabaseError("iterate analytics rows", err)
	}

	out.ComputeRates()
	return out, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var channel, status, strategy string
	var priority int
	var templateVars, metadata, channelConfig, tracking []byte

	err := row.Scan(
		&n.ID, &n.TenantID, &n.RecipientID, &n.RecipientContact, &channel, &status, &priority,
		&strategy, &n.Subject, &n.Content, &n.HTMLContent, &n.TemplateID, &n.TemplateVersion,
		&n.Category, &n.CampaignID, &n.CorrelationID, &n.ExternalID,
		&n.ScheduledAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.ExpiresAt,
		&n.RetryCount, &n.MaxRetries, &n.ErrorMessage,
		&templateVars, &metadata, &channelConfig, &tracking,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Channel = models.Channel(channel)
	n.Status = models.Status(status)
	n.Priority = models.Priority(priority)
	n.DeliveryStrategy = models.DeliveryStrategy(strategy)

	if n.TemplateVars, err = unmarshalMap(templateVars); err != nil {
		return nil, err
	}
	if n.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	if n.ChannelConfig, err = unmarshalMap(channelConfig); err != nil {
		return nil, err
	}
	if n.DeliveryTracking, err = unmarshalMap(tracking); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, stderrors.NewDatabaseError("scan notification row", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewDatabaseError("iterate notification rows", err)
	}
	return out, nil
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
