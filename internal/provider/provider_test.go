// internal/provider/provider_test.go
package provider

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// ==========================
// Test Fixtures
// ==========================

func testNotification(channel models.Channel, contact string) *models.Notification {
	now := time.Now().UTC()
	return &models.Notification{
		ID:               uuid.New(),
		TenantID:         "acme",
		RecipientID:      "u1",
		RecipientContact: contact,
		Channel:          channel,
		Status:           models.StatusProcessing,
		Priority:         models.PriorityNormal,
		DeliveryStrategy: models.StrategySingleChannel,
		Subject:          "Welcome",
		Content:          "Hello there",
		Category:         "transactional",
		MaxRetries:       3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

type stubProvider struct {
	channel models.Channel
}

func (s *stubProvider) Channel() models.Channel { return s.channel }

func (s *stubProvider) Validate(n *models.Notification) error { return nil }

func (s *stubProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	return &models.DeliveryResult{Success: true}, nil
}

// ==========================
// Registry Tests
// ==========================

func TestRegistry_For(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{channel: models.ChannelEmail},
		&stubProvider{channel: models.ChannelSMS},
	)

	p, err := reg.Provider(models.ChannelEmail)
	assert.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, p.Channel())

	p, err = reg.Provider(models.ChannelPush)
	assert.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.HasCode(err, errors.ErrCodeChannelUnknown))
}

func TestRegistry_Register_Replaces(t *testing.T) {
	reg := NewRegistry()
	first := &stubProvider{channel: models.ChannelEmail}
	second := &stubProvider{channel: models.ChannelEmail}

	reg.Register(first)
	reg.Register(second)

	p, err := reg.Provider(models.ChannelEmail)
	assert.NoError(t, err)
	assert.Same(t, second, p.(*stubProvider))
}

func TestRegistry_Channels_StableOrder(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{channel: models.ChannelWebhook},
		&stubProvider{channel: models.ChannelEmail},
		&stubProvider{channel: models.ChannelInApp},
	)

	assert.Equal(t, []models.Channel{
		models.ChannelEmail,
		models.ChannelWebhook,
		models.ChannelInApp,
	}, reg.Channels())
}

var testLogger = logger.NewNoOpLogger()
