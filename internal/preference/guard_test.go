// internal/preference/guard_test.go
package preference

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
	"notification-engine/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeCounter struct {
	hourly int64
	daily  int64
}

func (f *fakeCounter) CountAdmittedSince(ctx context.Context, tenantID, recipientID string, since time.Time) (int64, error) {
	if time.Since(since) < 2*time.Hour {
		return f.hourly, nil
	}
	return f.daily, nil
}

func newGuard(t *testing.T, store Store, counter AdmittedCounter) *Guard {
	return NewGuard(store, counter, logger.NewTestLogger(t))
}

func guardNotification(category string, channel models.Channel) *models.Notification {
	return &models.Notification{
		ID:          uuid.New(),
		TenantID:    "acme",
		RecipientID: "u1",
		Channel:     channel,
		Category:    category,
		Priority:    models.PriorityNormal,
	}
}

// ==========================
// Admission Tests
// ==========================

func TestGuard_DefaultPreferenceAdmits(t *testing.T) {
	g := newGuard(t, NewMemoryStore(), &fakeCounter{})

	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())

	assert.NoError(t, err)
}

func TestGuard_CategoryDisabled(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "digest")
	pref.Enabled = false
	assert.NoError(t, store.Upsert(context.Background(), pref))

	g := newGuard(t, store, &fakeCounter{})
	err := g.Admit(context.Background(), guardNotification("digest", models.ChannelEmail), time.Now().UTC())

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))
}

func TestGuard_ChannelDisabled(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.ChannelPreferences = map[models.Channel]bool{models.ChannelSMS: false}
	assert.NoError(t, store.Upsert(context.Background(), pref))

	g := newGuard(t, store, &fakeCounter{})

	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelSMS), time.Now().UTC())
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))

	// Channels without an explicit entry stay enabled.
	err = g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())
	assert.NoError(t, err)
}

func TestGuard_MarketingRequiresConsent(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "marketing")
	pref.MarketingConsent = false
	assert.NoError(t, store.Upsert(context.Background(), pref))

	g := newGuard(t, store, &fakeCounter{})
	err := g.Admit(context.Background(), guardNotification("marketing", models.ChannelEmail), time.Now().UTC())

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))

	pref.MarketingConsent = true
	assert.NoError(t, store.Upsert(context.Background(), pref))
	err = g.Admit(context.Background(), guardNotification("marketing", models.ChannelEmail), time.Now().UTC())
	assert.NoError(t, err)
}

// ==========================
// Quiet Hours Tests
// ==========================

func quietPref(start, end, tz string) *models.NotificationPreference {
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.QuietHoursStart = start
	pref.QuietHoursEnd = end
	pref.QuietHoursTimezone = tz
	return pref
}

func TestGuard_QuietHours_SameDayWindow(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Upsert(context.Background(), quietPref("13:00", "15:00", "UTC")))
	g := newGuard(t, store, &fakeCounter{})
	n := guardNotification("transactional", models.ChannelEmail)

	inside := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	err := g.Admit(context.Background(), n, inside)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))

	outside := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	assert.NoError(t, g.Admit(context.Background(), n, outside))
}

func TestGuard_QuietHours_WrapsMidnight(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Upsert(context.Background(), quietPref("22:00", "07:00", "UTC")))
	g := newGuard(t, store, &fakeCounter{})
	n := guardNotification("transactional", models.ChannelEmail)

	lateNight := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	err := g.Admit(context.Background(), n, lateNight)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))

	earlyMorning := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	err = g.Admit(context.Background(), n, earlyMorning)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))

	midday := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, g.Admit(context.Background(), n, midday))
}

func TestGuard_QuietHours_CriticalBypasses(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Upsert(context.Background(), quietPref("22:00", "07:00", "UTC")))
	g := newGuard(t, store, &fakeCounter{})

	n := guardNotification("transactional", models.ChannelEmail)
	n.Priority = models.PriorityCritical

	lateNight := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.NoError(t, g.Admit(context.Background(), n, lateNight))
}

func TestGuard_QuietHours_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Upsert(context.Background(), quietPref("13:00", "15:00", "Not/AZone")))
	g := newGuard(t, store, &fakeCounter{})
	n := guardNotification("transactional", models.ChannelEmail)

	inside := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	err := g.Admit(context.Background(), n, inside)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodePreferenceBlocked))
}

// ==========================
// Rate Limit Tests
// ==========================

func TestGuard_DailyLimit(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.MaxDaily = 5
	assert.NoError(t, store.Upsert(context.Background(), pref))

	// Five already sent today; the sixth must be rejected.
	g := newGuard(t, store, &fakeCounter{daily: 5})
	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeRateLimited))
}

func TestGuard_DailyLimit_UnderLimitAdmits(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.MaxDaily = 5
	assert.NoError(t, store.Upsert(context.Background(), pref))

	g := newGuard(t, store, &fakeCounter{daily: 4})
	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())

	assert.NoError(t, err)
}

func TestGuard_HourlyLimit(t *testing.T) {
	store := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.MaxHourly = 2
	assert.NoError(t, store.Upsert(context.Background(), pref))

	g := newGuard(t, store, &fakeCounter{hourly: 2})
	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeRateLimited))
}

func TestGuard_DailyLimit_CountsQueuedBacklog(t *testing.T) {
	prefs := NewMemoryStore()
	pref := models.DefaultPreference("acme", "u1", "transactional")
	pref.MaxDaily = 5
	assert.NoError(t, prefs.Upsert(context.Background(), pref))

	// Five admitted but still waiting in the queue, none sent yet. A
	// backlogged provider must not reopen the daily limit.
	notifications := store.NewMemoryNotificationStore()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		n := guardNotification("transactional", models.ChannelEmail)
		n.Status = models.StatusQueued
		n.CreatedAt = now.Add(-time.Duration(i) * time.Minute)
		assert.NoError(t, notifications.Create(context.Background(), n))
	}

	g := newGuard(t, prefs, notifications)
	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), now)

	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeRateLimited))
}

func TestGuard_ZeroLimitsMeanUnlimited(t *testing.T) {
	g := newGuard(t, NewMemoryStore(), &fakeCounter{hourly: 1000, daily: 100000})

	err := g.Admit(context.Background(), guardNotification("transactional", models.ChannelEmail), time.Now().UTC())

	assert.NoError(t, err)
}
