// internal/preference/guard.go
package preference

import (
	"context"
	"fmt"
	"time"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/models"
)

const marketingCategory = "marketing"

// AdmittedCounter counts notifications accepted for a recipient after a
// cutoff, including rows still waiting in the queue. Counting at
// admission keeps the rate limits bounded while the queue is backlogged.
// NotificationStore satisfies this.
type AdmittedCounter interface {
	CountAdmittedSince(ctx context.Context, tenantID, recipientID string, since time.Time) (int64, error)
}

// Guard decides whether a notification may be delivered to a recipient.
// Checks run cheapest first: category, consent, channel, quiet hours,
// then the counting rate limits.
type Guard struct {
	store   Store
	counter AdmittedCounter
	logger  logger.Logger
}

func NewGuard(store Store, counter AdmittedCounter, log logger.Logger) *Guard {
	return &Guard{
		store:   store,
		counter: counter,
		logger:  log.WithFields(map[string]interface{}{"component": "preference_guard"}),
	}
}

// Admit returns nil when delivery is allowed. A PREFERENCE_BLOCKED or
// RATE_LIMITED error explains the rejection otherwise.
func (g *Guard) Admit(ctx context.Context, n *models.Notification, now time.Time) error {
	pref, err := g.store.Get(ctx, n.TenantID, n.RecipientID, n.Category)
	if err != nil {
		return err
	}

	if !pref.Enabled {
		return g.blocked(n, fmt.Sprintf("category %q disabled", n.Category))
	}

	if n.Category == marketingCategory && !pref.MarketingConsent {
		return g.blocked(n, "no marketing consent")
	}

	if !pref.ChannelEnabled(n.Channel) {
		return g.blocked(n, fmt.Sprintf("channel %s disabled", n.Channel))
	}

	// Critical notifications bypass quiet hours.
	if n.Priority < models.PriorityCritical && g.inQuietHours(pref, now) {
		return g.blocked(n, "quiet hours")
	}

	if pref.MaxHourly > 0 {
		count, err := g.counter.CountAdmittedSince(ctx, n.TenantID, n.RecipientID, now.Add(-time.Hour))
		if err != nil {
			return err
		}
		if count >= int64(pref.MaxHourly) {
			return g.rateLimited(n, fmt.Sprintf("hourly limit %d reached", pref.MaxHourly))
		}
	}

	if pref.MaxDaily > 0 {
		count, err := g.counter.CountAdmittedSince(ctx, n.TenantID, n.RecipientID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if count >= int64(pref.MaxDaily) {
			return g.rateLimited(n, fmt.Sprintf("daily limit %d reached", pref.MaxDaily))
		}
	}

	return nil
}

func (g *Guard) blocked(n *models.Notification, reason string) error {
	metrics.PreferenceBlocks.WithLabelValues(string(n.Channel), "preference").Inc()
	g.logger.Info("notification blocked by preferences", map[string]interface{}{
		"notificationId": n.ID.String(),
		"recipientId":    n.RecipientID,
		"reason":         reason,
	})
	return stderrors.NewPreferenceBlockedError(reason)
}

func (g *Guard) rateLimited(n *models.Notification, reason string) error {
	metrics.PreferenceBlocks.WithLabelValues(string(n.Channel), "rate_limit").Inc()
	g.logger.Info("notification rate limited", map[string]interface{}{
		"notificationId": n.ID.String(),
		"recipientId":    n.RecipientID,
		"reason":         reason,
	})
	return stderrors.NewRateLimitedError(reason)
}

// inQuietHours checks the recipient's local clock against the quiet
// window. A window with start after end wraps around midnight.
func (g *Guard) inQuietHours(pref *models.NotificationPreference, now time.Time) bool {
	if pref.QuietHoursStart == "" || pref.QuietHoursEnd == "" {
		return false
	}

	loc := time.UTC
	if pref.QuietHoursTimezone != "" {
		if l, err := time.LoadLocation(pref.QuietHoursTimezone); err == nil {
			loc = l
		} else {
			g.logger.Warn("invalid quiet hours timezone, using UTC", map[string]interface{}{
				"timezone": pref.QuietHoursTimezone,
				"userId":   pref.UserID,
			})
		}
	}

	start, okStart := parseClock(pref.QuietHoursStart)
	end, okEnd := parseClock(pref.QuietHoursEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	// Wraps midnight, e.g. 22:00 to 07:00.
	return minute >= start || minute < end
}

// parseClock parses "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
