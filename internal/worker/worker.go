// Package worker provides async eligibility evaluation over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// GlobalTenant is the subscription tenant used when no tenants are listed.
// Messages carry their own tenant in that mode.
const GlobalTenant = "_global"

// Worker evaluates eligibility requests asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *rules.Engine

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	slots         chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// WorkerCount bounds concurrent evaluations across all tenants
	WorkerCount int
}

// NewWorker creates a new async worker. repo may be nil, in which case
// results are published but not stored.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	w.slots = make(chan struct{}, workers)

	if len(cfg.TenantIDs) == 0 {
		return w.startTenantWorker(GlobalTenant)
	}

	started := 0
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant workers started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"worker_count", workers,
	)

	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicEligibilityRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.dispatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicEligibilityRequested,
	)

	return nil
}

// ErrStopped is returned for messages delivered after Stop.
var ErrStopped = errors.New("worker stopped")

// dispatch runs the evaluation once a worker slot is free. The wait group
// is joined under mu so that no Add happens after Stop starts waiting.
func (w *Worker) dispatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	select {
	case w.slots <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
	defer func() { <-w.slots }()

	return w.processRequest(ctx, tenantID, msg)
}

// processRequest evaluates one eligibility request, stores the result and
// publishes it on the decided topic.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.EligibilityRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse eligibility request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if tenantID == GlobalTenant {
		tenantID = req.TenantID
	}
	if tenantID == "" {
		return fmt.Errorf("eligibility request %s has no tenant", msg.ID)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}

	result := w.engine.EvaluateEligibility(ctx, tenantID, req.Context, req.OverrideCodes)
	result.ID = requestID
	result.SubjectID = req.SubjectID

	if w.repo != nil {
		if err := w.repo.SaveEligibility(ctx, tenantID, result); err != nil {
			slog.Error("failed to save eligibility result",
				"request_id", requestID,
				"error", err,
			)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode eligibility result: %w", err)
	}
	if err := w.bus.Publish(ctx, tenantID, domain.TopicEligibilityDecided, payload); err != nil {
		slog.Error("failed to publish eligibility result",
			"request_id", requestID,
			"error", err,
		)
	}

	slog.Info("eligibility request processed",
		"request_id", requestID,
		"tenant_id", tenantID,
		"status", result.Status,
		"failed", result.FailedCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers and waits for in-flight evaluations.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.stopped = true
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.slots),
	}
}
