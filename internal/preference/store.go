// internal/preference/store.go
package preference

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// Store loads recipient preferences. A recipient without a stored row
// gets the default allow-everything preference.
type Store interface {
	Get(ctx context.Context, tenantID, userID, category string) (*models.NotificationPreference, error)
	Upsert(ctx context.Context, pref *models.NotificationPreference) error
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, userID, category string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	var channelPrefs []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, category, enabled, channel_preferences,
		       quiet_hours_start, quiet_hours_end, quiet_hours_timezone,
		       max_daily, max_hourly, marketing_consent, updated_at
		FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2 AND category = $3`,
		tenantID, userID, category,
	).Scan(
		&pref.TenantID, &pref.UserID, &pref.Category, &pref.Enabled, &channelPrefs,
		&pref.QuietHoursStart, &pref.QuietHoursEnd, &pref.QuietHoursTimezone,
		&pref.MaxDaily, &pref.MaxHourly, &pref.MarketingConsent, &pref.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.DefaultPreference(tenantID, userID, category), nil
	}
	if err != nil {
		return nil, stderrors.NewDatabaseError("get preference", err)
	}

	if len(channelPrefs) > 0 {
		if err := json.Unmarshal(channelPrefs, &pref.ChannelPreferences); err != nil {
			return nil, stderrors.NewInternalError("unmarshal channel preferences", err)
		}
	}
	return &pref, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, pref *models.NotificationPreference) error {
	channelPrefs, err := json.Marshal(pref.ChannelPreferences)
	if err != nil {
		return stderrors.NewInternalError("marshal channel preferences", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (
			tenant_id, user_id, category, enabled, channel_preferences,
			quiet_hours_start, quiet_hours_end, quiet_hours_timezone,
			max_daily, max_hourly, marketing_consent, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (tenant_id, user_id, category) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			channel_preferences = EXCLUDED.channel_preferences,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			quiet_hours_timezone = EXCLUDED.quiet_hours_timezone,
			max_daily = EXCLUDED.max_daily,
			max_hourly = EXCLUDED.max_hourly,
			marketing_consent = EXCLUDED.marketing_consent,
			updated_at = NOW()`,
		pref.TenantID, pref.UserID, pref.Category, pref.Enabled, channelPrefs,
		pref.QuietHoursStart, pref.QuietHoursEnd, pref.QuietHoursTimezone,
		pref.MaxDaily, pref.MaxHourly, pref.MarketingConsent,
	)
	if err != nil {
		return stderrors.NewDatabaseError("upsert preference", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]*models.NotificationPreference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]*models.NotificationPreference)}
}

func prefKey(tenantID, userID, category string) string {
	return tenantID + "/" + userID + "/" + category
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, userID, category string) (*models.NotificationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[prefKey(tenantID, userID, category)]
	if !ok {
		return models.DefaultPreference(tenantID, userID, category), nil
	}
	clone := *pref
	return &clone, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, pref *models.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *pref
	s.prefs[prefKey(pref.TenantID, pref.UserID, pref.Category)] = &clone
	return nil
}
