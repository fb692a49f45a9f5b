// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// MemoryNotificationStore is an in-memory NotificationStore used in tests
// and local development. It enforces the same transition rules as the
// PostgreSQL implementation.
type MemoryNotificationStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*models.Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{
		notifications: make(map[uuid.UUID]*models.Notification),
	}
}

func (s *MemoryNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *n
	s.notifications[n.ID] = &clone
	return nil
}

func (s *MemoryNotificationStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(tenantID, id)
}

func (s *MemoryNotificationStore) getLocked(tenantID string, id uuid.UUID) (*models.Notification, error) {
	n, ok := s.notifications[id]
	if !ok || n.TenantID != tenantID {
		return nil, stderrors.NewNotFoundError(id.String())
	}
	clone := *n
	return &clone, nil
}

func (s *MemoryNotificationStore) mutate(tenantID string, id uuid.UUID, allowed []models.Status, apply func(*models.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.TenantID != tenantID {
		return stderrors.NewNotFoundError(id.String())
	}
	permitted := false
	for _, st := range allowed {
		if n.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return stderrors.NewInvalidStateError("transition not allowed from current status", id.String())
	}
	apply(n)
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryNotificationStore) MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusQueued}, func(n *models.Notification) {
		n.Status = models.StatusProcessing
	})
}

func (s *MemoryNotificationStore) MarkSent(ctx context.Context, tenantID string, id uuid.UUID, externalID string, at time.Time) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusProcessing}, func(n *models.Notification) {
		n.MarkAsSent(externalID, at)
	})
}

func (s *MemoryNotificationStore) MarkDelivered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusSent}, func(n *models.Notification) {
		n.MarkAsDelivered(at)
	})
}

func (s *MemoryNotificationStore) MarkRead(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusSent, models.StatusDelivered, models.StatusRead}, func(n *models.Notification) {
		n.MarkAsRead(at)
	})
}

func (s *MemoryNotificationStore) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errMsg string) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusProcessing}, func(n *models.Notification) {
		n.MarkAsFailed(errMsg)
	})
}

func (s *MemoryNotificationStore) MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusQueued}, func(n *models.Notification) {
		n.Status = models.StatusCancelled
	})
}

func (s *MemoryNotificationStore) MarkExpired(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.mutate(tenantID, id, []models.Status{models.StatusQueued, models.StatusProcessing, models.StatusFailed}, func(n *models.Notification) {
		n.Status = models.StatusExpired
	})
}

func (s *MemoryNotificationStore) Requeue(ctx context.Context, tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.TenantID != tenantID {
		return stderrors.NewNotFoundError(id.String())
	}
	if n.Status != models.StatusFailed || !n.CanRetry() {
		return stderrors.NewInvalidStateError("transition not allowed from current status", id.String())
	}
	n.Status = models.StatusQueued
	n.RetryCount++
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryNotificationStore) MergeTracking(ctx context.Context, tenantID string, id uuid.UUID, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.TenantID != tenantID {
		return stderrors.NewNotFoundError(id.String())
	}
	// Copy before merging so clones handed out by Get stay unchanged.
	merged := make(map[string]interface{}, len(n.DeliveryTracking)+len(data))
	for key, value := range n.DeliveryTracking {
		merged[key] = value
	}
	n.DeliveryTracking = merged
	for key, value := range data {
		n.AddTrackingData(key, value)
	}
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryNotificationStore) MarkAllRead(ctx context.Context, tenantID, recipientID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, n := range s.notifications {
		if n.TenantID != tenantID || n.RecipientID != recipientID {
			continue
		}
		if n.Status == models.StatusSent || n.Status == models.StatusDelivered {
			n.MarkAsRead(at)
			n.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) ListByRecipient(ctx context.Context, tenantID, recipientID string, limit, offset int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.collect(func(n *models.Notification) bool {
		return n.TenantID == tenantID && n.RecipientID == recipientID
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryNotificationStore) ListUnread(ctx context.Context, tenantID, recipientID string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.collect(func(n *models.Notification) bool {
		return n.TenantID == tenantID && n.RecipientID == recipientID &&
			(n.Status == models.StatusSent || n.Status == models.StatusDelivered)
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryNotificationStore) CountUnread(ctx context.Context, tenantID, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.TenantID == tenantID && n.RecipientID == recipientID &&
			(n.Status == models.StatusSent || n.Status == models.StatusDelivered) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.collect(func(n *models.Notification) bool {
		return n.TenantID == tenantID && n.CampaignID == campaignID
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (s *MemoryNotificationStore) CountAdmittedSince(ctx context.Context, tenantID, recipientID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.TenantID == tenantID && n.RecipientID == recipientID &&
			!n.CreatedAt.Before(since) &&
			n.Status != models.StatusCancelled && n.Status != models.StatusExpired {
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) Analytics(ctx context.Context, tenantID string, from, to time.Time) (*models.Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.aggregate(func(n *models.Notification) bool {
		return n.TenantID == tenantID && !n.CreatedAt.Before(from) && n.CreatedAt.Before(to)
	}), nil
}

func (s *MemoryNotificationStore) CampaignAnalytics(ctx context.Context, tenantID, campaignID string) (*models.Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.aggregate(func(n *models.Notification) bool {
		return n.TenantID == tenantID && n.CampaignID == campaignID
	}), nil
}

func (s *MemoryNotificationStore) aggregate(match func(*models.Notification) bool) *models.Analytics {
	out := &models.Analytics{
		ChannelBreakdown: make(map[models.Channel]int64),
	}
	for _, n := range s.notifications {
		if !match(n) {
			continue
		}
		if n.SentAt != nil {
			out.TotalSent++
			out.ChannelBreakdown[n.Channel]++
		}
		switch n.Status {
		case models.StatusDelivered:
			out.TotalDelivered++
		case models.StatusRead:
			out.TotalDelivered++
			out.TotalRead++
		case models.StatusFailed:
			if !n.CanRetry() {
				out.TotalFailed++
			}
		}
	}
	out.ComputeRates()
	return out
}

func (s *MemoryNotificationStore) collect(match func(*models.Notification) bool) []*models.Notification {
	var out []*models.Notification
	for _, n := range s.notifications {
		if match(n) {
			clone := *n
			out = append(out, &clone)
		}
	}
	return out
}
