// internal/store/postgres_test.go
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newPostgresStore(t *testing.T) (*PostgresNotificationStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	s := NewPostgresNotificationStore(db, logger.NewTestLogger(t))
	return s, mock, func() { db.Close() }
}

func sampleNotification() *models.Notification {
	now := time.Now().UTC()
	return &models.Notification{
		ID:               uuid.New(),
		TenantID:         "acme",
		RecipientID:      "u1",
		RecipientContact: "u1@example.com",
		Channel:          models.ChannelEmail,
		Status:           models.StatusQueued,
		Priority:         models.PriorityNormal,
		DeliveryStrategy: models.StrategySingleChannel,
		Subject:          "Welcome",
		Content:          "Hello there",
		MaxRetries:       3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestPostgresStore_Create_Success(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	n := sampleNotification()
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Create(context.Background(), n)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_DatabaseError(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(errors.New("connection refused"))

	err := s.Create(context.Background(), sampleNotification())

	assert.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeDatabase))
	assert.True(t, stderrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessing_Success(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkProcessing(context.Background(), "acme", id)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessing_InvalidState(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The row exists but is not QUEUED, so the guarded update matched nothing.
	mock.ExpectQuery(`SELECT`).
		WithArgs("acme", id).
		WillReturnRows(notificationRows(id, "acme", "CANCELLED"))

	err := s.MarkProcessing(context.Background(), "acme", id)

	assert.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessing_NotFound(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT`).
		WithArgs("acme", id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := s.MarkProcessing(context.Background(), "acme", id)

	assert.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSent_Success(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", id, "ses-msg-001", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkSent(context.Background(), "acme", id, "ses-msg-001", at)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Requeue_Success(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Requeue(context.Background(), "acme", id)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkAllRead_ReturnsCount(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("acme", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := s.MarkAllRead(context.Background(), "acme", "u1", at)

	assert.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeTracking(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`(?s)UPDATE notifications.+delivery_tracking = COALESCE`).
		WithArgs("acme", id, []byte(`{"bounceType":"soft"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MergeTracking(context.Background(), "acme", id, map[string]interface{}{"bounceType": "soft"})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeTracking_NotFound(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec(`(?s)UPDATE notifications.+delivery_tracking = COALESCE`).
		WithArgs("acme", id, []byte(`{"k":"v"}`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MergeTracking(context.Background(), "acme", id, map[string]interface{}{"k": "v"})

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAdmittedSince(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	since := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery(`(?s)SELECT COUNT.+created_at >= .+status NOT IN`).
		WithArgs("acme", "u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := s.CountAdmittedSince(context.Background(), "acme", "u1", since)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountUnread(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("acme", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := s.CountUnread(context.Background(), "acme", "u1")

	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectQuery(`SELECT`).
		WithArgs("acme", id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n, err := s.Get(context.Background(), "acme", id)

	assert.Error(t, err)
	assert.Nil(t, n)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Success(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	id := uuid.New()
	mock.ExpectQuery(`SELECT`).
		WithArgs("acme", id).
		WillReturnRows(notificationRows(id, "acme", "QUEUED"))

	n, err := s.Get(context.Background(), "acme", id)

	assert.NoError(t, err)
	assert.NotNil(t, n)
	assert.Equal(t, id, n.ID)
	assert.Equal(t, models.StatusQueued, n.Status)
	assert.Equal(t, models.ChannelEmail, n.Channel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Analytics_AggregatesChannels(t *testing.T) {
	s, mock, done := newPostgresStore(t)
	defer done()

	from := time.Now().UTC().Add(-24 * time.Hour)
	to := time.Now().UTC()
	mock.ExpectQuery(`SELECT channel`).
		WithArgs("acme", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"channel", "sent", "delivered", "failed", "read"}).
			AddRow("EMAIL", 100, 80, 5, 40).
			AddRow("SMS", 50, 45, 2, 0))

	a, err := s.Analytics(context.Background(), "acme", from, to)

	assert.NoError(t, err)
	assert.Equal(t, int64(150), a.TotalSent)
	assert.Equal(t, int64(125), a.TotalDelivered)
	assert.Equal(t, int64(7), a.TotalFailed)
	assert.Equal(t, int64(40), a.TotalRead)
	assert.Equal(t, int64(100), a.ChannelBreakdown[models.ChannelEmail])
	assert.Equal(t, int64(50), a.ChannelBreakdown[models.ChannelSMS])
	assert.InDelta(t, 125.0/150.0, a.DeliveryRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Row Fixtures
// ==========================

func notificationColumnsList() []string {
	return []string{
		"id", "tenant_id", "recipient_id", "recipient_contact", "channel", "status", "priority",
		"delivery_strategy", "subject", "content", "html_content", "template_id", "template_version",
		"category", "campaign_id", "correlation_id", "external_id",
		"scheduled_at", "sent_at", "delivered_at", "read_at", "expires_at",
		"retry_count", "max_retries", "error_message",
		"template_vars", "metadata", "channel_config", "delivery_tracking",
		"created_at", "updated_at",
	}
}

func notificationRows(id uuid.UUID, tenantID, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(notificationColumnsList()).AddRow(
		id, tenantID, "u1", "u1@example.com", "EMAIL", status, 50,
		"SINGLE_CHANNEL", "Welcome", "Hello there", "", "", "",
		"transactional", "", "", "",
		nil, nil, nil, nil, nil,
		0, 3, "",
		[]byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`),
		now, now,
	)
}
