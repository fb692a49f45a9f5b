// internal/provider/push.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"notification-engine/internal/common/errors"
	commonhttp "notification-engine/internal/common/http"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"
)

// pushRequest is the payload posted to the push gateway.
type pushRequest struct {
	DeviceToken string                 `json:"deviceToken"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

// PushProvider delivers notifications through an HTTP push gateway
// (FCM/APNs proxy) configured by endpoint and API key.
type PushProvider struct {
	client   *commonhttp.Client
	endpoint string
	apiKey   string
	logger   logger.Logger
}

func NewPushProvider(client *commonhttp.Client, endpoint, apiKey string, log logger.Logger) *PushProvider {
	return &PushProvider{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   log,
	}
}

func (p *PushProvider) Channel() models.Channel {
	return models.ChannelPush
}

func (p *PushProvider) Validate(n *models.Notification) error {
	if !validation.ValidateDeviceToken(n.RecipientContact) {
		return errors.NewValidationError("invalid device token", "recipient_contact must be a device token between 16 and 4096 characters")
	}
	if n.Content == "" {
		return errors.NewValidationError("push body is required", "content must not be empty for PUSH notifications")
	}
	return nil
}

func (p *PushProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	payload, err := json.Marshal(pushRequest{
		DeviceToken: n.RecipientContact,
		Title:       n.Subject,
		Body:        n.Content,
		Data:        n.Metadata,
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to marshal push payload", err)
	}

	resp, err := p.client.PostJSON(ctx, p.endpoint, payload, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return nil, errors.NewProviderSendError("push gateway unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("push gateway rejected send", map[string]interface{}{
			"notification_id": n.ID.String(),
			"status_code":     resp.StatusCode,
		})
		return nil, errors.NewProviderSendError(
			fmt.Sprintf("push gateway returned status %d", resp.StatusCode), nil)
	}

	var parsed pushResponse
	_ = json.Unmarshal(body, &parsed)

	p.logger.Info("push sent", map[string]interface{}{
		"notification_id": n.ID.String(),
		"message_id":      parsed.MessageID,
	})

	return &models.DeliveryResult{
		Success:    true,
		ExternalID: parsed.MessageID,
		Message:    "accepted by push gateway",
	}, nil
}
