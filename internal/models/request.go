// internal/models/request.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationRequest is the inbound contract from API/UI collaborators.
type NotificationRequest struct {
	TenantID               string                 `json:"tenantId"`
	RecipientID            string                 `json:"recipientId"`
	RecipientContact       string                 `json:"recipientContact"`
	Channel                Channel                `json:"channel"`
	Priority               Priority               `json:"priority,omitempty"`
	DeliveryStrategy       DeliveryStrategy       `json:"deliveryStrategy,omitempty"`
	Subject                string                 `json:"subject"`
	Content                string                 `json:"content"`
	HTMLContent            string                 `json:"htmlContent,omitempty"`
	TemplateID             string                 `json:"templateId,omitempty"`
	TemplateVersion        string                 `json:"templateVersion,omitempty"`
	Category               string                 `json:"category"`
	CampaignID             string                 `json:"campaignId,omitempty"`
	CorrelationID          string                 `json:"correlationId,omitempty"`
	ScheduledAt            *time.Time             `json:"scheduledAt,omitempty"`
	ExpiresAt              *time.Time             `json:"expiresAt,omitempty"`
	MaxRetries             int                    `json:"maxRetries,omitempty"`
	TemplateVariables      map[string]interface{} `json:"templateVariables,omitempty"`
	Metadata               map[string]interface{} `json:"metadata,omitempty"`
	ChannelConfig          map[string]interface{} `json:"channelConfig,omitempty"`
	RespectUserPreferences bool                   `json:"respectUserPreferences"`
}

// Clone returns a deep-enough copy for per-channel fan-out: the maps are
// copied so one channel's mutation cannot leak into another's.
func (r *NotificationRequest) Clone() *NotificationRequest {
	clone := *r
	clone.TemplateVariables = copyMap(r.TemplateVariables)
	clone.Metadata = copyMap(r.Metadata)
	clone.ChannelConfig = copyMap(r.ChannelConfig)
	return &clone
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// BulkRecipient is one target of a bulk send with per-recipient overrides.
type BulkRecipient struct {
	RecipientID       string                 `json:"recipientId"`
	RecipientContact  string                 `json:"recipientContact"`
	TemplateVariables map[string]interface{} `json:"templateVariables,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// BulkNotificationRequest fans one template request out over many recipients.
type BulkNotificationRequest struct {
	Template          NotificationRequest    `json:"template"`
	Recipients        []BulkRecipient        `json:"recipients"`
	BatchSize         int                    `json:"batchSize,omitempty"`
	DeliveryStrategy  DeliveryStrategy       `json:"deliveryStrategy,omitempty"`
	CampaignID        string                 `json:"campaignId,omitempty"`
	GlobalMetadata    map[string]interface{} `json:"globalMetadata,omitempty"`
	RespectRateLimits bool                   `json:"respectRateLimits"`
}

// DeliveryResult is what a channel provider reports for one send attempt.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"externalId,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Receipt is the synchronous answer to a send call: "accepted for
// delivery", never "delivered". Callers poll or subscribe for the outcome.
type Receipt struct {
	NotificationID uuid.UUID  `json:"notificationId"`
	TenantID       string     `json:"tenantId"`
	RecipientID    string     `json:"recipientId"`
	Channel        Channel    `json:"channel"`
	Status         Status     `json:"status"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// StatusUpdate carries provider callback data (delivery/read receipts).
type StatusUpdate struct {
	Status       Status                 `json:"status"`
	Timestamp    *time.Time             `json:"timestamp,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	ProviderData map[string]interface{} `json:"providerData,omitempty"`
}

// DeliveryStatus is the read-model for getDeliveryStatus queries.
type DeliveryStatus struct {
	NotificationID uuid.UUID              `json:"notificationId"`
	Status         Status                 `json:"status"`
	Channel        Channel                `json:"channel"`
	CreatedAt      time.Time              `json:"createdAt"`
	ScheduledAt    *time.Time             `json:"scheduledAt,omitempty"`
	SentAt         *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time             `json:"readAt,omitempty"`
	RetryCount     int                    `json:"retryCount"`
	ErrorMessage   string                 `json:"errorMessage,omitempty"`
	Tracking       map[string]interface{} `json:"deliveryTracking,omitempty"`
}

// Analytics aggregates delivery outcomes for a tenant and date range.
type Analytics struct {
	TotalSent        int64             `json:"totalSent"`
	TotalDelivered   int64             `json:"totalDelivered"`
	TotalFailed      int64             `json:"totalFailed"`
	TotalRead        int64             `json:"totalRead"`
	DeliveryRate     float64           `json:"deliveryRate"`
	ReadRate         float64           `json:"readRate"`
	FailureRate      float64           `json:"failureRate"`
	ChannelBreakdown map[Channel]int64 `json:"channelBreakdown"`
}

// ComputeRates derives the rate fields from the totals. Rates are zero
// when their denominator is zero.
func (a *Analytics) ComputeRates() {
	if a.TotalSent > 0 {
		a.DeliveryRate = float64(a.TotalDelivered) / float64(a.TotalSent)
	}
	if a.TotalDelivered > 0 {
		a.ReadRate = float64(a.TotalRead) / float64(a.TotalDelivered)
	}
	if attempts := a.TotalSent + a.TotalFailed; attempts > 0 {
		a.FailureRate = float64(a.TotalFailed) / float64(attempts)
	}
}
