// internal/queue/memory.go
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// MemoryQueueStore is an in-memory QueueStore for tests and local runs.
type MemoryQueueStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.QueueItem
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{
		items: make(map[uuid.UUID]*models.QueueItem),
	}
}

func (s *MemoryQueueStore) Enqueue(ctx context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *MemoryQueueStore) Claim(ctx context.Context, owner string, now time.Time) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Highest priority first, earliest due within a priority.
	var best *models.QueueItem
	for _, item := range s.items {
		if item.Status != models.QueuePending || item.DueAt.After(now) {
			continue
		}
		if best == nil ||
			item.Priority > best.Priority ||
			(item.Priority == best.Priority && item.DueAt.Before(best.DueAt)) {
			best = item
		}
	}
	if best == nil {
		return nil, ErrNothingDue
	}

	best.Status = models.QueueProcessing
	best.ClaimedBy = owner
	claimedAt := now
	best.ClaimedAt = &claimedAt
	best.UpdatedAt = now

	clone := *best
	return &clone, nil
}

func (s *MemoryQueueStore) withOwned(id uuid.UUID, owner string, apply func(*models.QueueItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.Status != models.QueueProcessing || item.ClaimedBy != owner {
		return stderrors.NewInvalidStateError("queue item not held by owner", id.String())
	}
	apply(item)
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryQueueStore) Complete(ctx context.Context, id uuid.UUID, owner string) error {
	return s.withOwned(id, owner, func(item *models.QueueItem) {
		item.Status = models.QueueCompleted
	})
}

func (s *MemoryQueueStore) Reschedule(ctx context.Context, id uuid.UUID, owner string, dueAt time.Time) error {
	return s.withOwned(id, owner, func(item *models.QueueItem) {
		item.Status = models.QueuePending
		item.DueAt = dueAt
		item.ClaimedBy = ""
		item.ClaimedAt = nil
	})
}

func (s *MemoryQueueStore) Fail(ctx context.Context, id uuid.UUID, owner string, errMsg string) error {
	return s.withOwned(id, owner, func(item *models.QueueItem) {
		item.Status = models.QueueFailed
		item.ErrorMessage = errMsg
	})
}

func (s *MemoryQueueStore) CancelByNotification(ctx context.Context, notificationID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := false
	for _, item := range s.items {
		if item.NotificationID == notificationID && item.Status == models.QueuePending {
			item.Status = models.QueueCancelled
			item.UpdatedAt = time.Now().UTC()
			cancelled = true
		}
	}
	return cancelled, nil
}

func (s *MemoryQueueStore) Depth(ctx context.Context, channel models.Channel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, item := range s.items {
		if item.Channel == channel && item.Status == models.QueuePending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryQueueStore) ReleaseStale(ctx context.Context, maxClaimAge time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxClaimAge)
	var released int64
	for _, item := range s.items {
		if item.Status == models.QueueProcessing && item.ClaimedAt != nil && item.ClaimedAt.Before(cutoff) {
			item.Status = models.QueuePending
			item.ClaimedBy = ""
			item.ClaimedAt = nil
			item.UpdatedAt = now
			released++
		}
	}
	return released, nil
}

// Get returns a snapshot of an item. Test helper.
func (s *MemoryQueueStore) Get(id uuid.UUID) (*models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	clone := *item
	return &clone, true
}
