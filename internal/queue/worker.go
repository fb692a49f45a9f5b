// internal/queue/worker.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// Processor handles one claimed queue item. The processor owns the
// queue bookkeeping for the item: it must Complete, Reschedule or Fail
// it through the store before returning.
type Processor interface {
	Process(ctx context.Context, item *models.QueueItem, owner string) error
}

// WorkerPoolConfig tunes the delivery worker pool.
type WorkerPoolConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	StaleClaimAge  time.Duration
}

func (c *WorkerPoolConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.StaleClaimAge <= 0 {
		c.StaleClaimAge = 5 * time.Minute
	}
}

// WorkerPool claims due queue items and hands them to the processor.
// Claims carry an owner token per worker so bookkeeping calls from a
// worker that lost its claim are rejected by the store.
type WorkerPool struct {
	store     QueueStore
	processor Processor
	config    WorkerPoolConfig
	logger    logger.Logger

	poolID string
	sem    chan struct{}
	wg     sync.WaitGroup
	stopMu sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func NewWorkerPool(store QueueStore, processor Processor, config WorkerPoolConfig, log logger.Logger) *WorkerPool {
	config.applyDefaults()
	poolID := uuid.New().String()
	return &WorkerPool{
		store:     store,
		processor: processor,
		config:    config,
		poolID:    poolID,
		sem:       make(chan struct{}, config.Concurrency),
		logger:    log.WithFields(map[string]interface{}{"component": "worker_pool", "poolId": poolID}),
	}
}

// Start begins the claim loop in the background.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.stopping.Store(false)
	go p.run()

	p.logger.Info("worker pool started", map[string]interface{}{
		"concurrency":  p.config.Concurrency,
		"pollInterval": p.config.PollInterval.String(),
	})
	return nil
}

// Stop cancels the claim loop and waits for in-flight items to finish.
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not started")
	}

	p.stopMu.Lock()
	p.stopping.Store(true)
	p.stopMu.Unlock()

	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.logger.Info("worker pool stopped", nil)
	return nil
}

func (p *WorkerPool) run() {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	staleTicker := time.NewTicker(p.config.StaleClaimAge)
	defer staleTicker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-staleTicker.C:
			released, err := p.store.ReleaseStale(p.ctx, p.config.StaleClaimAge, time.Now().UTC())
			if err != nil {
				p.logger.WithError(err).Warn("release stale claims failed", nil)
			} else if released > 0 {
				p.logger.Warn("released stale claims", map[string]interface{}{"count": released})
			}

		case <-ticker.C:
			// Drain everything currently due, bounded by the semaphore.
			for p.dispatchOne() {
			}
		}
	}
}

// dispatchOne claims a single item and processes it on a worker slot.
// Returns false when no slot or no due work is available.
func (p *WorkerPool) dispatchOne() bool {
	select {
	case p.sem <- struct{}{}:
	default:
		return false
	}

	p.stopMu.Lock()
	if p.stopping.Load() {
		p.stopMu.Unlock()
		<-p.sem
		return false
	}

	owner := p.poolID + ":" + uuid.New().String()
	item, err := p.store.Claim(p.ctx, owner, time.Now().UTC())
	if err != nil {
		p.stopMu.Unlock()
		<-p.sem
		if !errors.Is(err, ErrNothingDue) && p.ctx.Err() == nil {
			p.logger.WithError(err).Error("claim failed", nil)
		}
		return false
	}

	p.wg.Add(1)
	p.stopMu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		p.processItem(item, owner)
	}()
	return true
}

func (p *WorkerPool) processItem(item *models.QueueItem, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.AttemptTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor panicked", map[string]interface{}{
				"itemId":         item.ID.String(),
				"notificationId": item.NotificationID.String(),
				"panic":          fmt.Sprintf("%v", r),
			})
			_ = p.store.Fail(ctx, item.ID, owner, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := p.processor.Process(ctx, item, owner); err != nil {
		p.logger.WithError(err).Error("item processing failed", map[string]interface{}{
			"itemId":         item.ID.String(),
			"notificationId": item.NotificationID.String(),
			"channel":        string(item.Channel),
		})
	}
}
