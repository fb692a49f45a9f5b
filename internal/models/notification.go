// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"
	ChannelSMS     Channel = "SMS"
	ChannelPush    Channel = "PUSH"
	ChannelWebhook Channel = "WEBHOOK"
	ChannelInApp   Channel = "IN_APP"
)

// AllChannels lists every channel the engine can be configured with.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook, ChannelInApp}

// Priority orders queue claims; higher value wins.
type Priority int

const (
	PriorityLow      Priority = 25
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

// Status is the notification lifecycle state machine.
//
// QUEUED -> PROCESSING -> SENT -> DELIVERED -> READ   (success path)
// PROCESSING -> FAILED -> QUEUED                      (retry, while retries remain)
// QUEUED -> CANCELLED / EXPIRED                       (explicit cancel / deadline passed)
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusDelivered  Status = "DELIVERED"
	StatusRead       Status = "READ"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

// IsTerminal reports whether no further delivery work may happen.
// FAILED is terminal only once retries are exhausted; the entity-level
// check lives in Notification.IsTerminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusRead, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// DeliveryStrategy selects how multi-channel sends pick channels.
type DeliveryStrategy string

const (
	StrategySingleChannel DeliveryStrategy = "SINGLE_CHANNEL"
	StrategyFailover      DeliveryStrategy = "FAILOVER"
	StrategyBroadcast     DeliveryStrategy = "BROADCAST"
	StrategySmart         DeliveryStrategy = "SMART"
)

// Notification is one delivery attempt lifecycle for one recipient on one channel.
type Notification struct {
	ID               uuid.UUID              `json:"id"`
	TenantID         string                 `json:"tenantId"`
	RecipientID      string                 `json:"recipientId"`
	RecipientContact string                 `json:"recipientContact"` // email, phone, device token, URL
	Channel          Channel                `json:"channel"`
	Status           Status                 `json:"status"`
	Priority         Priority               `json:"priority"`
	DeliveryStrategy DeliveryStrategy       `json:"deliveryStrategy"`
	Subject          string                 `json:"subject"`
	Content          string                 `json:"content"`
	HTMLContent      string                 `json:"htmlContent,omitempty"`
	TemplateID       string                 `json:"templateId,omitempty"`
	TemplateVersion  string                 `json:"templateVersion,omitempty"`
	Category         string                 `json:"category"`
	CampaignID       string                 `json:"campaignId,omitempty"`
	CorrelationID    string                 `json:"correlationId,omitempty"` // caller-supplied dedup key
	ExternalID       string                 `json:"externalId,omitempty"`    // provider-assigned id after send
	ScheduledAt      *time.Time             `json:"scheduledAt,omitempty"`
	SentAt           *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt      *time.Time             `json:"deliveredAt,omitempty"`
	ReadAt           *time.Time             `json:"readAt,omitempty"`
	ExpiresAt        *time.Time             `json:"expiresAt,omitempty"`
	RetryCount       int                    `json:"retryCount"`
	MaxRetries       int                    `json:"maxRetries"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
	TemplateVars     map[string]interface{} `json:"templateVariables,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	ChannelConfig    map[string]interface{} `json:"channelConfig,omitempty"`
	DeliveryTracking map[string]interface{} `json:"deliveryTracking,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// CanRetry reports whether another delivery attempt is permitted.
func (n *Notification) CanRetry() bool {
	return n.RetryCount < n.MaxRetries
}

// IsExpired reports whether the notification's deadline has passed.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// IsScheduled reports whether dispatch is deferred to a future time.
func (n *Notification) IsScheduled(now time.Time) bool {
	return n.ScheduledAt != nil && now.Before(*n.ScheduledAt)
}

// IsTerminal reports whether the notification can never be attempted again.
func (n *Notification) IsTerminal() bool {
	if n.Status == StatusFailed {
		return !n.CanRetry()
	}
	return n.Status.IsTerminal()
}

// MarkAsSent records a successful provider hand-off. SentAt is written once.
func (n *Notification) MarkAsSent(externalID string, now time.Time) {
	n.Status = StatusSent
	n.ExternalID = externalID
	if n.SentAt == nil {
		n.SentAt = &now
	}
}

// MarkAsDelivered records a provider delivery receipt.
func (n *Notification) MarkAsDelivered(now time.Time) {
	n.Status = StatusDelivered
	if n.DeliveredAt == nil {
		n.DeliveredAt = &now
	}
}

// MarkAsRead is idempotent: a second call leaves ReadAt untouched.
func (n *Notification) MarkAsRead(now time.Time) {
	if n.ReadAt == nil {
		n.ReadAt = &now
	}
	n.Status = StatusRead
}

func (n *Notification) MarkAsFailed(errMsg string) {
	n.Status = StatusFailed
	n.ErrorMessage = errMsg
}

func (n *Notification) AddTrackingData(key string, value interface{}) {
	if n.DeliveryTracking == nil {
		n.DeliveryTracking = make(map[string]interface{})
	}
	n.DeliveryTracking[key] = value
}
