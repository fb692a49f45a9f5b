// internal/events/events_test.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

func TestRedisPublisher_PublishesToTenantChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sub := client.Subscribe(context.Background(), TenantChannel("acme"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub := NewRedisPublisher(client, logger.NewNoOpLogger())
	n := &models.Notification{
		ID:          uuid.New(),
		TenantID:    "acme",
		RecipientID: "u1",
		Channel:     models.ChannelEmail,
		Status:      models.StatusSent,
	}
	require.NoError(t, pub.Publish(context.Background(), NewEvent(EventStatusUpdated, n)))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventStatusUpdated, got.Type)
		assert.Equal(t, n.ID, got.NotificationID)
		assert.Equal(t, "acme", got.TenantID)
		assert.Equal(t, models.StatusSent, got.Status)
		assert.False(t, got.OccurredAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisPublisher_TenantIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sub := client.Subscribe(context.Background(), TenantChannel("globex"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub := NewRedisPublisher(client, logger.NewNoOpLogger())
	n := &models.Notification{ID: uuid.New(), TenantID: "acme", Status: models.StatusQueued}
	require.NoError(t, pub.Publish(context.Background(), NewEvent(EventCreated, n)))

	select {
	case msg := <-sub.Channel():
		t.Fatalf("globex subscriber received acme event: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisPublisher_PublishFailureReturnsError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	event := Event{
		Type:           EventCreated,
		NotificationID: uuid.New(),
		TenantID:       "acme",
		Status:         models.StatusQueued,
		OccurredAt:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	mock.ExpectPublish(TenantChannel("acme"), payload).SetErr(errors.New("connection refused"))

	pub := NewRedisPublisher(client, logger.NewNoOpLogger())
	err = pub.Publish(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoOpPublisher(t *testing.T) {
	assert.NoError(t, NoOpPublisher{}.Publish(context.Background(), Event{}))
}
