// internal/engine/processor.go
package engine

import (
	"context"
	"time"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/events"
	"notification-engine/internal/models"
	"notification-engine/internal/provider"
	"notification-engine/internal/queue"
	"notification-engine/internal/store"
)

// DeliveryProcessor executes one claimed queue item: resolve the
// notification, check expiry and the channel circuit, invoke the
// provider, and record the outcome. It owns the queue bookkeeping for
// the item.
type DeliveryProcessor struct {
	store     store.NotificationStore
	queue     queue.QueueStore
	registry  *provider.Registry
	circuits  *queue.CircuitSet
	backoff   queue.BackoffStrategy
	publisher events.Publisher
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewDeliveryProcessor(
	notifStore store.NotificationStore,
	queueStore queue.QueueStore,
	registry *provider.Registry,
	circuits *queue.CircuitSet,
	backoff queue.BackoffStrategy,
	publisher events.Publisher,
	obs *observability.Observability,
	log logger.Logger,
) *DeliveryProcessor {
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	if backoff == nil {
		backoff = queue.DefaultBackoff()
	}
	return &DeliveryProcessor{
		store:     notifStore,
		queue:     queueStore,
		registry:  registry,
		circuits:  circuits,
		backoff:   backoff,
		publisher: publisher,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "delivery_processor"}),
		now:       time.Now,
	}
}

func (p *DeliveryProcessor) Process(ctx context.Context, item *models.QueueItem, owner string) error {
	now := p.now().UTC()

	n, err := p.store.Get(ctx, item.TenantID, item.NotificationID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			// Orphaned item; nothing to deliver.
			return p.queue.Fail(ctx, item.ID, owner, "notification record missing")
		}
		// Transient store failure: release the claim so another worker
		// picks the item up.
		return p.queue.Reschedule(ctx, item.ID, owner, now.Add(p.backoff.NextDelay(0)))
	}

	// Cancel raced the claim; the item must never deliver.
	if n.Status == models.StatusCancelled {
		return p.queue.Complete(ctx, item.ID, owner)
	}

	// Expiry wins over delivery: the provider is never invoked for an
	// expired notification.
	if n.IsExpired(now) {
		return p.expire(ctx, item, owner, n)
	}

	circuit := p.circuits.For(item.Channel)
	if !circuit.Allow() {
		// Cool-down: push the attempt out without consuming a retry.
		delay := p.backoff.NextDelay(n.RetryCount)
		p.logger.Warn("circuit open, delivery deferred", map[string]interface{}{
			"notification_id": n.ID.String(),
			"channel":         string(item.Channel),
			"retry_at":        now.Add(delay),
		})
		return p.queue.Reschedule(ctx, item.ID, owner, now.Add(delay))
	}

	if err := p.store.MarkProcessing(ctx, item.TenantID, item.NotificationID); err != nil {
		if errors.HasCode(err, errors.ErrCodeInvalidState) {
			// Left QUEUED since the claim (cancelled or already handled).
			return p.queue.Complete(ctx, item.ID, owner)
		}
		return p.queue.Reschedule(ctx, item.ID, owner, now.Add(p.backoff.NextDelay(0)))
	}

	prov, err := p.registry.Provider(item.Channel)
	if err != nil {
		return p.failTerminal(ctx, item, owner, n, err)
	}
	if err := prov.Validate(n); err != nil {
		// Malformed contact or content never becomes deliverable.
		return p.failTerminal(ctx, item, owner, n, err)
	}

	started := time.Now()
	result, err := prov.Send(ctx, n)
	elapsed := time.Since(started)
	metrics.ProviderSendDuration.WithLabelValues(string(item.Channel)).Observe(elapsed.Seconds())

	if err != nil {
		circuit.RecordFailure()
		p.circuits.Publish()
		p.recordAttempt(ctx, item.Channel, "failure", elapsed)
		return p.handleFailure(ctx, item, owner, n, err)
	}

	circuit.RecordSuccess()
	p.circuits.Publish()
	p.recordAttempt(ctx, item.Channel, "success", elapsed)

	sentAt := p.now().UTC()
	if err := p.store.MarkSent(ctx, item.TenantID, n.ID, result.ExternalID, sentAt); err != nil {
		p.logger.Error("sent but state update failed", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
		// The provider accepted the message; completing the item keeps
		// at-least-once semantics without a duplicate send.
		return p.queue.Complete(ctx, item.ID, owner)
	}

	metrics.NotificationsSent.WithLabelValues(string(item.Channel)).Inc()
	n.MarkAsSent(result.ExternalID, sentAt)
	_ = p.publisher.Publish(ctx, events.NewEvent(events.EventStatusUpdated, n))

	p.logger.Info("notification sent", map[string]interface{}{
		"notification_id": n.ID.String(),
		"channel":         string(item.Channel),
		"external_id":     result.ExternalID,
		"attempt":         n.RetryCount + 1,
	})
	return p.queue.Complete(ctx, item.ID, owner)
}

// handleFailure applies the retry policy after a failed provider call.
func (p *DeliveryProcessor) handleFailure(ctx context.Context, item *models.QueueItem, owner string, n *models.Notification, sendErr error) error {
	now := p.now().UTC()

	if err := p.store.MarkFailed(ctx, item.TenantID, n.ID, sendErr.Error()); err != nil {
		p.logger.Error("failed to record delivery failure", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
	}

	retryable := errors.IsRetryable(sendErr) && n.CanRetry() && !n.IsExpired(now)
	if !retryable {
		return p.failTerminalRecorded(ctx, item, owner, n, sendErr)
	}

	if err := p.store.Requeue(ctx, item.TenantID, n.ID); err != nil {
		// Lost the race on the remaining retries; treat as exhausted.
		return p.failTerminalRecorded(ctx, item, owner, n, sendErr)
	}

	delay := p.backoff.NextDelay(n.RetryCount)
	retryAt := now.Add(delay)
	metrics.NotificationRetries.WithLabelValues(string(item.Channel)).Inc()

	p.logger.Warn("delivery failed, retry scheduled", map[string]interface{}{
		"notification_id": n.ID.String(),
		"channel":         string(item.Channel),
		"attempt":         n.RetryCount + 1,
		"retry_at":        retryAt,
		"error":           sendErr.Error(),
	})
	return p.queue.Reschedule(ctx, item.ID, owner, retryAt)
}

// failTerminal records the failure on the notification first, then
// closes out the queue item.
func (p *DeliveryProcessor) failTerminal(ctx context.Context, item *models.QueueItem, owner string, n *models.Notification, cause error) error {
	if err := p.store.MarkFailed(ctx, item.TenantID, n.ID, cause.Error()); err != nil {
		p.logger.Error("failed to record terminal failure", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
	}
	return p.failTerminalRecorded(ctx, item, owner, n, cause)
}

// failTerminalRecorded closes out a queue item whose notification is
// already FAILED.
func (p *DeliveryProcessor) failTerminalRecorded(ctx context.Context, item *models.QueueItem, owner string, n *models.Notification, cause error) error {
	metrics.NotificationsFailed.WithLabelValues(string(item.Channel), string(errors.CodeOf(cause))).Inc()
	n.MarkAsFailed(cause.Error())
	_ = p.publisher.Publish(ctx, events.NewEvent(events.EventStatusUpdated, n))

	p.logger.Error("delivery failed terminally", map[string]interface{}{
		"notification_id": n.ID.String(),
		"channel":         string(item.Channel),
		"retry_count":     n.RetryCount,
		"error":           cause.Error(),
	})
	return p.queue.Fail(ctx, item.ID, owner, cause.Error())
}

func (p *DeliveryProcessor) expire(ctx context.Context, item *models.QueueItem, owner string, n *models.Notification) error {
	if err := p.store.MarkExpired(ctx, item.TenantID, n.ID); err != nil && !errors.HasCode(err, errors.ErrCodeInvalidState) {
		p.logger.Error("failed to mark notification expired", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
	}
	metrics.NotificationsExpired.WithLabelValues(string(item.Channel)).Inc()
	n.Status = models.StatusExpired
	_ = p.publisher.Publish(ctx, events.NewEvent(events.EventStatusUpdated, n))

	p.logger.Info("notification expired before delivery", map[string]interface{}{
		"notification_id": n.ID.String(),
		"channel":         string(item.Channel),
	})
	return p.queue.Complete(ctx, item.ID, owner)
}

func (p *DeliveryProcessor) recordAttempt(ctx context.Context, channel models.Channel, status string, elapsed time.Duration) {
	if p.obs == nil {
		return
	}
	p.obs.RecordAttempt(ctx, string(channel), status)
	p.obs.RecordAttemptDuration(ctx, elapsed, string(channel), status)
}
