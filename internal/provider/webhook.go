// internal/provider/webhook.go
package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"notification-engine/internal/common/errors"
	commonhttp "notification-engine/internal/common/http"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"
)

// webhookPayload is the JSON body posted to the recipient URL.
type webhookPayload struct {
	NotificationID string                 `json:"notificationId"`
	TenantID       string                 `json:"tenantId"`
	Subject        string                 `json:"subject,omitempty"`
	Content        string                 `json:"content"`
	Category       string                 `json:"category,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	SentAt         time.Time              `json:"sentAt"`
}

// WebhookProvider delivers notifications as signed HTTP POSTs.
// Signature format: HMAC-SHA256(secret, timestamp + "." + body), carried
// alongside the timestamp so receivers can reject replays.
type WebhookProvider struct {
	client *commonhttp.Client
	secret string
	logger logger.Logger
	now    func() time.Time
}

func NewWebhookProvider(client *commonhttp.Client, signingSecret string, log logger.Logger) *WebhookProvider {
	return &WebhookProvider{
		client: client,
		secret: signingSecret,
		logger: log,
		now:    time.Now,
	}
}

func (p *WebhookProvider) Channel() models.Channel {
	return models.ChannelWebhook
}

func (p *WebhookProvider) Validate(n *models.Notification) error {
	if !validation.ValidateURL(n.RecipientContact) {
		return errors.NewValidationError("invalid webhook URL", fmt.Sprintf("recipient_contact %q is not an http(s) URL", n.RecipientContact))
	}
	if n.Content == "" {
		return errors.NewValidationError("webhook content is required", "content must not be empty for WEBHOOK notifications")
	}
	return nil
}

func (p *WebhookProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	now := p.now().UTC()
	body, err := json.Marshal(webhookPayload{
		NotificationID: n.ID.String(),
		TenantID:       n.TenantID,
		Subject:        n.Subject,
		Content:        n.Content,
		Category:       n.Category,
		Metadata:       n.Metadata,
		SentAt:         now,
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to marshal webhook payload", err)
	}

	headers := map[string]string{"X-Notification-ID": n.ID.String()}
	if p.secret != "" {
		ts := now.Unix()
		headers["X-Webhook-Timestamp"] = strconv.FormatInt(ts, 10)
		headers["X-Webhook-Signature"] = sign(p.secret, ts, body)
	}

	resp, err := p.client.PostJSON(ctx, n.RecipientContact, body, headers)
	if err != nil {
		return nil, errors.NewProviderSendError("webhook endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("webhook endpoint rejected delivery", map[string]interface{}{
			"notification_id": n.ID.String(),
			"status_code":     resp.StatusCode,
		})
		return nil, errors.NewProviderSendError(
			fmt.Sprintf("webhook endpoint returned status %d", resp.StatusCode), nil)
	}

	p.logger.Info("webhook delivered", map[string]interface{}{
		"notification_id": n.ID.String(),
		"status_code":     resp.StatusCode,
	})

	return &models.DeliveryResult{
		Success: true,
		Message: fmt.Sprintf("endpoint returned status %d", resp.StatusCode),
	}, nil
}

func sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, body)
	return hex.EncodeToString(mac.Sum(nil))
}
