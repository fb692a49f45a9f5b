// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/events"
	"notification-engine/internal/models"
	"notification-engine/internal/optimizer"
	"notification-engine/internal/preference"
	"notification-engine/internal/provider"
	"notification-engine/internal/queue"
	"notification-engine/internal/store"
	"notification-engine/internal/template"
)

// Engine is the orchestrator: the single entry point collaborators call
// to submit, cancel, retry and query notifications. Accepting a request
// means "accepted for delivery", never "delivered"; delivery itself runs
// asynchronously in the worker pool.
type Engine struct {
	cfg       config.EngineConfig
	store     store.NotificationStore
	queue     queue.QueueStore
	guard     *preference.Guard
	renderer  *template.Renderer
	registry  *provider.Registry
	selector  optimizer.ChannelSelector
	publisher events.Publisher
	logger    logger.Logger
	now       func() time.Time
}

func New(
	cfg config.EngineConfig,
	notifStore store.NotificationStore,
	queueStore queue.QueueStore,
	guard *preference.Guard,
	renderer *template.Renderer,
	registry *provider.Registry,
	selector optimizer.ChannelSelector,
	publisher events.Publisher,
	log logger.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	return &Engine{
		cfg:       cfg,
		store:     notifStore,
		queue:     queueStore,
		guard:     guard,
		renderer:  renderer,
		registry:  registry,
		selector:  selector,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "engine"}),
		now:       time.Now,
	}
}

// Send validates and admits a request, persists the notification QUEUED
// and schedules its first delivery attempt. It returns as soon as the
// notification is accepted.
func (e *Engine) Send(ctx context.Context, req *models.NotificationRequest) (*models.Receipt, error) {
	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	n, err := e.buildNotification(ctx, req)
	if err != nil {
		return nil, err
	}

	prov, err := e.registry.Provider(n.Channel)
	if err != nil {
		return nil, err
	}
	if err := prov.Validate(n); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if req.RespectUserPreferences {
		if err := e.guard.Admit(ctx, n, now); err != nil {
			return nil, err
		}
	}

	if err := e.store.Create(ctx, n); err != nil {
		return nil, err
	}

	dueAt := now
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		dueAt = *n.ScheduledAt
	}
	item := &models.QueueItem{
		ID:             uuid.New(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Channel:        n.Channel,
		Priority:       n.Priority,
		Status:         models.QueuePending,
		DueAt:          dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		// The notification exists but will never be claimed; surface the
		// failure so the caller can retry the submission.
		return nil, errors.NewInternalError("failed to enqueue notification", err)
	}

	metrics.NotificationsQueued.WithLabelValues(string(n.Channel)).Inc()
	if depth, err := e.queue.Depth(ctx, n.Channel); err == nil {
		metrics.QueueDepth.WithLabelValues(string(n.Channel)).Set(float64(depth))
	}
	_ = e.publisher.Publish(ctx, events.NewEvent(events.EventCreated, n))

	e.logger.Info("notification accepted", map[string]interface{}{
		"notification_id": n.ID.String(),
		"tenant_id":       n.TenantID,
		"channel":         string(n.Channel),
		"due_at":          dueAt,
	})

	return e.receipt(n), nil
}

// SendTemplate renders the template and delegates to Send. A render
// failure persists nothing.
func (e *Engine) SendTemplate(ctx context.Context, req *models.NotificationRequest, templateID, version string, vars map[string]interface{}) (*models.Receipt, error) {
	r := req.Clone()
	r.TemplateID = templateID
	r.TemplateVersion = version
	r.TemplateVariables = vars
	return e.Send(ctx, r)
}

// SendBulk fans the template request out over recipients in batches.
// When RespectRateLimits is set, a delay runs between batches after the
// previous batch's acceptance responses are collected.
func (e *Engine) SendBulk(ctx context.Context, req *models.BulkNotificationRequest) ([]*models.Receipt, error) {
	if len(req.Recipients) == 0 {
		return nil, errors.NewValidationError("no recipients", "bulk request must include at least one recipient")
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = e.cfg.BulkBatchSize
	}
	if batchSize <= 0 {
		batchSize = len(req.Recipients)
	}
	batchDelay := config.GetDuration(e.cfg.BulkBatchDelay)

	receipts := make([]*models.Receipt, 0, len(req.Recipients))
	for start := 0; start < len(req.Recipients); start += batchSize {
		end := start + batchSize
		if end > len(req.Recipients) {
			end = len(req.Recipients)
		}

		for _, recipient := range req.Recipients[start:end] {
			r := e.bulkRequest(req, recipient)
			receipt, err := e.Send(ctx, r)
			if err != nil {
				e.logger.Warn("bulk recipient rejected", map[string]interface{}{
					"tenant_id":    r.TenantID,
					"recipient_id": recipient.RecipientID,
					"campaign_id":  r.CampaignID,
					"error":        err.Error(),
				})
				continue
			}
			receipts = append(receipts, receipt)
		}

		if req.RespectRateLimits && end < len(req.Recipients) {
			select {
			case <-ctx.Done():
				return receipts, ctx.Err()
			case <-time.After(batchDelay):
			}
		}
	}
	return receipts, nil
}

// bulkRequest merges the bulk template with one recipient's overrides.
func (e *Engine) bulkRequest(req *models.BulkNotificationRequest, recipient models.BulkRecipient) *models.NotificationRequest {
	r := req.Template.Clone()
	r.RecipientID = recipient.RecipientID
	r.RecipientContact = recipient.RecipientContact
	if req.DeliveryStrategy != "" {
		r.DeliveryStrategy = req.DeliveryStrategy
	}
	if req.CampaignID != "" {
		r.CampaignID = req.CampaignID
	}
	r.TemplateVariables = mergeMaps(r.TemplateVariables, recipient.TemplateVariables)
	r.Metadata = mergeMaps(mergeMaps(req.GlobalMetadata, r.Metadata), recipient.Metadata)
	return r
}

// SendMultiChannel filters the candidate channels through preferences and
// applies the delivery strategy.
func (e *Engine) SendMultiChannel(ctx context.Context, channels []models.Channel, strategy models.DeliveryStrategy, req *models.NotificationRequest) ([]*models.Receipt, error) {
	if len(channels) == 0 {
		return nil, errors.NewValidationError("no channels", "multi-channel request must name at least one channel")
	}

	admitted, err := e.admittedChannels(ctx, channels, req)
	if err != nil {
		return nil, err
	}
	if len(admitted) == 0 {
		return nil, errors.NewPreferenceBlockedError("all requested channels are blocked by recipient preferences")
	}

	switch strategy {
	case models.StrategySingleChannel, models.StrategySmart:
		selected := e.selector.SelectChannel(ctx, req.TenantID, req.RecipientID, admitted, req.Category)
		r := e.channelRequest(req, selected, strategy)
		receipt, err := e.Send(ctx, r)
		if err != nil {
			return nil, err
		}
		return []*models.Receipt{receipt}, nil

	case models.StrategyBroadcast:
		receipts := make([]*models.Receipt, 0, len(admitted))
		for _, ch := range admitted {
			receipt, err := e.Send(ctx, e.channelRequest(req, ch, strategy))
			if err != nil {
				e.logger.Warn("broadcast channel rejected", map[string]interface{}{
					"tenant_id": req.TenantID,
					"channel":   string(ch),
					"error":     err.Error(),
				})
				continue
			}
			receipts = append(receipts, receipt)
		}
		if len(receipts) == 0 {
			return nil, errors.NewInternalError("broadcast accepted no channel", nil)
		}
		return receipts, nil

	case models.StrategyFailover:
		return e.failover(ctx, admitted, req)

	default:
		return nil, errors.NewValidationError("unknown delivery strategy", string(strategy))
	}
}

// failover attempts channels synchronously in order and stops at the
// first success. Every attempt is persisted with its own outcome; if all
// channels fail, the last failure is the final result.
func (e *Engine) failover(ctx context.Context, channels []models.Channel, req *models.NotificationRequest) ([]*models.Receipt, error) {
	var lastErr error
	for _, ch := range channels {
		r := e.channelRequest(req, ch, models.StrategyFailover)
		n, err := e.buildNotification(ctx, r)
		if err != nil {
			return nil, err
		}
		prov, err := e.registry.Provider(ch)
		if err != nil {
			lastErr = err
			continue
		}
		if err := prov.Validate(n); err != nil {
			lastErr = err
			continue
		}

		if err := e.store.Create(ctx, n); err != nil {
			return nil, err
		}
		_ = e.publisher.Publish(ctx, events.NewEvent(events.EventCreated, n))

		if err := e.store.MarkProcessing(ctx, n.TenantID, n.ID); err != nil {
			return nil, err
		}

		now := e.now().UTC()
		result, err := prov.Send(ctx, n)
		if err != nil {
			lastErr = err
			_ = e.store.MarkFailed(ctx, n.TenantID, n.ID, err.Error())
			metrics.NotificationsFailed.WithLabelValues(string(ch), string(errors.CodeOf(err))).Inc()
			e.logger.Warn("failover channel failed", map[string]interface{}{
				"notification_id": n.ID.String(),
				"channel":         string(ch),
				"error":           err.Error(),
			})
			continue
		}

		if err := e.store.MarkSent(ctx, n.TenantID, n.ID, result.ExternalID, now); err != nil {
			return nil, err
		}
		metrics.NotificationsSent.WithLabelValues(string(ch)).Inc()
		n.MarkAsSent(result.ExternalID, now)
		_ = e.publisher.Publish(ctx, events.NewEvent(events.EventStatusUpdated, n))
		return []*models.Receipt{e.receipt(n)}, nil
	}
	if lastErr == nil {
		lastErr = errors.NewInternalError("failover exhausted all channels", nil)
	}
	return nil, lastErr
}

// Cancel stops future delivery of a non-terminal notification. An
// attempt already claimed by a worker completes normally.
func (e *Engine) Cancel(ctx context.Context, tenantID string, id uuid.UUID, reason string) error {
	n, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if n.IsTerminal() {
		return errors.NewInvalidStateError("cannot cancel a terminal notification", string(n.Status))
	}

	if _, err := e.queue.CancelByNotification(ctx, id); err != nil {
		return err
	}
	if err := e.store.MarkCancelled(ctx, tenantID, id); err != nil {
		// PROCESSING at the moment of cancellation; the in-flight attempt
		// finishes, only future claims were prevented.
		if errors.HasCode(err, errors.ErrCodeInvalidState) {
			e.logger.Info("cancel raced an in-flight attempt", map[string]interface{}{
				"notification_id": id.String(),
				"status":          string(n.Status),
			})
			return nil
		}
		return err
	}

	n.Status = models.StatusCancelled
	_ = e.publisher.Publish(ctx, events.NewEvent(events.EventCancelled, n))

	e.logger.Info("notification cancelled", map[string]interface{}{
		"notification_id": id.String(),
		"tenant_id":       tenantID,
		"reason":          reason,
	})
	return nil
}

// Retry explicitly requeues a failed notification while retries remain.
func (e *Engine) Retry(ctx context.Context, tenantID string, id uuid.UUID) error {
	n, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	now := e.now().UTC()
	if n.IsExpired(now) {
		return errors.NewExpiredError(id.String())
	}
	if n.Status != models.StatusFailed {
		return errors.NewInvalidStateError("only failed notifications can be retried", string(n.Status))
	}
	if !n.CanRetry() {
		return errors.NewInvalidStateError("retries exhausted", fmt.Sprintf("retry_count=%d max_retries=%d", n.RetryCount, n.MaxRetries))
	}

	if err := e.store.Requeue(ctx, tenantID, id); err != nil {
		return err
	}
	item := &models.QueueItem{
		ID:             uuid.New(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Channel:        n.Channel,
		Priority:       n.Priority,
		Status:         models.QueuePending,
		DueAt:          now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		return errors.NewInternalError("failed to enqueue retry", err)
	}
	metrics.NotificationRetries.WithLabelValues(string(n.Channel)).Inc()
	return nil
}

// MarkAsRead records a read receipt. Reading twice is a no-op: the first
// readAt stands.
func (e *Engine) MarkAsRead(ctx context.Context, tenantID string, id uuid.UUID, userID string) error {
	n, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if n.RecipientID != userID {
		return errors.NewNotFoundError("notification not found for user")
	}
	if err := e.store.MarkRead(ctx, tenantID, id, e.now().UTC()); err != nil {
		return err
	}
	n.Status = models.StatusRead
	_ = e.publisher.Publish(ctx, events.NewEvent(events.EventRead, n))
	return nil
}

// MarkAllAsRead marks every readable notification for the user and
// returns how many changed.
func (e *Engine) MarkAllAsRead(ctx context.Context, tenantID, userID string) (int64, error) {
	return e.store.MarkAllRead(ctx, tenantID, userID, e.now().UTC())
}

// UpdateDeliveryStatus ingests a provider callback (delivery and read
// receipts, bounce reports).
func (e *Engine) UpdateDeliveryStatus(ctx context.Context, tenantID string, id uuid.UUID, update models.StatusUpdate) error {
	at := e.now().UTC()
	if update.Timestamp != nil {
		at = *update.Timestamp
	}

	var err error
	switch update.Status {
	case models.StatusDelivered:
		err = e.store.MarkDelivered(ctx, tenantID, id, at)
	case models.StatusRead:
		err = e.store.MarkRead(ctx, tenantID, id, at)
	case models.StatusFailed:
		err = e.store.MarkFailed(ctx, tenantID, id, update.ErrorMessage)
	default:
		return errors.NewValidationError("unsupported status update", string(update.Status))
	}
	if err != nil {
		return err
	}

	if len(update.ProviderData) > 0 {
		if err := e.store.MergeTracking(ctx, tenantID, id, update.ProviderData); err != nil {
			e.logger.Warn("provider tracking merge failed", map[string]interface{}{
				"notification_id": id.String(),
				"error":           err.Error(),
			})
		}
	}

	n, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	_ = e.publisher.Publish(ctx, events.NewEvent(events.EventStatusUpdated, n))
	return nil
}

// ==========================
// Query surface
// ==========================

func (e *Engine) GetNotification(ctx context.Context, tenantID string, id uuid.UUID) (*models.Notification, error) {
	return e.store.Get(ctx, tenantID, id)
}

func (e *Engine) GetUserNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]*models.Notification, error) {
	return e.store.ListByRecipient(ctx, tenantID, userID, limit, offset)
}

func (e *Engine) GetUnreadNotifications(ctx context.Context, tenantID, userID string, limit int) ([]*models.Notification, error) {
	return e.store.ListUnread(ctx, tenantID, userID, limit)
}

func (e *Engine) GetUnreadCount(ctx context.Context, tenantID, userID string) (int64, error) {
	return e.store.CountUnread(ctx, tenantID, userID)
}

func (e *Engine) GetDeliveryStatus(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeliveryStatus, error) {
	n, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &models.DeliveryStatus{
		NotificationID: n.ID,
		Status:         n.Status,
		Channel:        n.Channel,
		CreatedAt:      n.CreatedAt,
		ScheduledAt:    n.ScheduledAt,
		SentAt:         n.SentAt,
		DeliveredAt:    n.DeliveredAt,
		ReadAt:         n.ReadAt,
		RetryCount:     n.RetryCount,
		ErrorMessage:   n.ErrorMessage,
		Tracking:       n.DeliveryTracking,
	}, nil
}

func (e *Engine) GetCampaignNotifications(ctx context.Context, tenantID, campaignID string) ([]*models.Notification, error) {
	return e.store.ListByCampaign(ctx, tenantID, campaignID)
}

func (e *Engine) GetAnalytics(ctx context.Context, tenantID string, from, to time.Time) (*models.Analytics, error) {
	return e.store.Analytics(ctx, tenantID, from, to)
}

func (e *Engine) GetCampaignAnalytics(ctx context.Context, tenantID, campaignID string) (*models.Analytics, error) {
	return e.store.CampaignAnalytics(ctx, tenantID, campaignID)
}

// ==========================
// Internals
// ==========================

func (e *Engine) validateRequest(req *models.NotificationRequest) error {
	if req.TenantID == "" {
		return errors.NewValidationError("tenant is required", "tenant_id must not be empty")
	}
	if req.RecipientID == "" {
		return errors.NewValidationError("recipient is required", "recipient_id must not be empty")
	}
	if req.Channel == "" {
		return errors.NewValidationError("channel is required", "channel must not be empty")
	}
	if req.TemplateID == "" && req.Content == "" && req.HTMLContent == "" {
		return errors.NewValidationError("content is required", "content, html_content or template_id must be set")
	}
	if req.ExpiresAt != nil && req.ScheduledAt != nil && !req.ExpiresAt.After(*req.ScheduledAt) {
		return errors.NewValidationError("expiry precedes schedule", "expires_at must be after scheduled_at")
	}
	return nil
}

// buildNotification materializes a request, rendering its template when
// one is referenced. Nothing is persisted here.
func (e *Engine) buildNotification(ctx context.Context, req *models.NotificationRequest) (*models.Notification, error) {
	subject, content, htmlContent := req.Subject, req.Content, req.HTMLContent
	if req.TemplateID != "" {
		rendered, _, err := e.renderer.Render(ctx, req.TenantID, req.TemplateID, req.TemplateVersion, req.TemplateVariables)
		if err != nil {
			return nil, err
		}
		subject, content, htmlContent = rendered.Subject, rendered.Content, rendered.HTMLContent
	}

	priority := req.Priority
	if priority == 0 {
		priority = models.PriorityNormal
	}
	strategy := req.DeliveryStrategy
	if strategy == "" {
		strategy = models.StrategySingleChannel
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.DefaultMaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	category := req.Category
	if category == "" {
		category = "system"
	}

	now := e.now().UTC()
	return &models.Notification{
		ID:               uuid.New(),
		TenantID:         req.TenantID,
		RecipientID:      req.RecipientID,
		RecipientContact: req.RecipientContact,
		Channel:          req.Channel,
		Status:           models.StatusQueued,
		Priority:         priority,
		DeliveryStrategy: strategy,
		Subject:          subject,
		Content:          content,
		HTMLContent:      htmlContent,
		TemplateID:       req.TemplateID,
		TemplateVersion:  req.TemplateVersion,
		Category:         category,
		CampaignID:       req.CampaignID,
		CorrelationID:    req.CorrelationID,
		ScheduledAt:      req.ScheduledAt,
		ExpiresAt:        req.ExpiresAt,
		MaxRetries:       maxRetries,
		TemplateVars:     req.TemplateVariables,
		Metadata:         req.Metadata,
		ChannelConfig:    req.ChannelConfig,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// admittedChannels filters candidates through the preference guard.
// Rate-limit rejections abort the whole call; per-channel opt-outs just
// drop the channel.
func (e *Engine) admittedChannels(ctx context.Context, channels []models.Channel, req *models.NotificationRequest) ([]models.Channel, error) {
	if !req.RespectUserPreferences {
		return channels, nil
	}
	now := e.now().UTC()
	admitted := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		candidate, err := e.buildNotification(ctx, e.channelRequest(req, ch, req.DeliveryStrategy))
		if err != nil {
			return nil, err
		}
		if err := e.guard.Admit(ctx, candidate, now); err != nil {
			if errors.HasCode(err, errors.ErrCodeRateLimited) {
				return nil, err
			}
			continue
		}
		admitted = append(admitted, ch)
	}
	return admitted, nil
}

// channelRequest clones the request bound to one channel. A per-channel
// contact may be supplied under channelConfig.contacts, keyed by channel.
func (e *Engine) channelRequest(req *models.NotificationRequest, channel models.Channel, strategy models.DeliveryStrategy) *models.NotificationRequest {
	r := req.Clone()
	r.Channel = channel
	if strategy != "" {
		r.DeliveryStrategy = strategy
	}
	if contacts, ok := req.ChannelConfig["contacts"].(map[string]interface{}); ok {
		if contact, ok := contacts[string(channel)].(string); ok && contact != "" {
			r.RecipientContact = contact
		}
	}
	return r
}

func (e *Engine) receipt(n *models.Notification) *models.Receipt {
	return &models.Receipt{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		Status:         n.Status,
		ScheduledAt:    n.ScheduledAt,
		CreatedAt:      n.CreatedAt,
	}
}

func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil && override == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
