// internal/models/preference.go
package models

import "time"

// NotificationPreference is the per (tenant, user, category) consent record.
// Read-only to the delivery engine; the preference UI owns writes.
type NotificationPreference struct {
	TenantID           string           `json:"tenantId"`
	UserID             string           `json:"userId"`
	Category           string           `json:"category"` // "security", "marketing", "system", ...
	Enabled            bool             `json:"enabled"`
	ChannelPreferences map[Channel]bool `json:"channelPreferences,omitempty"`
	QuietHoursStart    string           `json:"quietHoursStart,omitempty"` // "22:00", local to QuietHoursTimezone
	QuietHoursEnd      string           `json:"quietHoursEnd,omitempty"`   // "06:00"; may wrap past midnight
	QuietHoursTimezone string           `json:"quietHoursTimezone,omitempty"`
	MaxDaily           int              `json:"maxDailyNotifications,omitempty"`  // 0 means unlimited
	MaxHourly          int              `json:"maxHourlyNotifications,omitempty"` // 0 means unlimited
	MarketingConsent   bool             `json:"marketingConsent"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// ChannelEnabled reports whether the user accepts this channel. A channel
// absent from the map is enabled: opt-out is explicit.
func (p *NotificationPreference) ChannelEnabled(channel Channel) bool {
	if p.ChannelPreferences == nil {
		return true
	}
	enabled, ok := p.ChannelPreferences[channel]
	if !ok {
		return true
	}
	return enabled
}

// DefaultPreference is the allow-everything record used when a user has
// never saved preferences for a category.
func DefaultPreference(tenantID, userID, category string) *NotificationPreference {
	return &NotificationPreference{
		TenantID: tenantID,
		UserID:   userID,
		Category: category,
		Enabled:  true,
	}
}
