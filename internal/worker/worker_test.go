package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const testRules = `{
  "eligibility": [
    {
      "id": "adult",
      "name": "Adult applicant",
      "priority": 1,
      "severity": "critical",
      "type": "inclusion",
      "isActive": true,
      "field": "applicant.age",
      "operator": ">=",
      "value": 18
    },
    {
      "id": "bmi",
      "name": "BMI within range",
      "priority": 2,
      "severity": "medium",
      "type": "inclusion",
      "isActive": true,
      "canOverride": true,
      "overrideCodes": ["UW-BMI"],
      "field": "applicant.bmi",
      "operator": "<",
      "value": 35
    }
  ]
}`

// savingRepo records saved eligibility results; other methods are not used.
type savingRepo struct {
	domain.Repository
	mu      sync.Mutex
	results []*domain.EligibilityResult
}

func (r *savingRepo) SaveEligibility(_ context.Context, _ string, result *domain.EligibilityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *savingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newTestEngine(t *testing.T, tenants ...string) *rules.Engine {
	t.Helper()

	engine, err := rules.NewEngine(domain.DefaultConfig().Engine)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	defs, err := rules.DecodeDefinitions([]byte(testRules), rules.FormatJSON)
	if err != nil {
		t.Fatalf("failed to decode rules: %v", err)
	}
	for _, tenantID := range tenants {
		if _, err := engine.Load(tenantID, defs); err != nil {
			t.Fatalf("failed to load rules: %v", err)
		}
	}
	return engine
}

// awaitDecision subscribes to the decided topic and returns a function that
// waits for the next result.
func awaitDecision(t *testing.T, eventBus domain.EventBus, tenantID string) func() *domain.EligibilityResult {
	t.Helper()

	results := make(chan *domain.EligibilityResult, 10)
	sub, err := eventBus.Subscribe(context.Background(), tenantID, domain.TopicEligibilityDecided, func(ctx context.Context, msg *domain.Message) error {
		var result domain.EligibilityResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return err
		}
		results <- &result
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })

	return func() *domain.EligibilityResult {
		t.Helper()
		select {
		case result := <-results:
			return result
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for eligibility decision")
			return nil
		}
	}
}

func publishRequest(t *testing.T, eventBus domain.EventBus, tenantID string, req domain.EligibilityRequest) {
	t.Helper()
	payload, _ := json.Marshal(req)
	if err := eventBus.Publish(context.Background(), tenantID, domain.TopicEligibilityRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine := newTestEngine(t, "tenant-test")

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}, WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicEligibilityRequested {
			t.Errorf("expected topic %s, got %s", domain.TopicEligibilityRequested, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", w.GetStats().SubscriptionCount)
		}
	})

	t.Run("ProcessRequest", func(t *testing.T) {
		repo := &savingRepo{}
		w := NewWorker(eventBus, repo, engine)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		next := awaitDecision(t, eventBus, "tenant-test")

		publishRequest(t, eventBus, "tenant-test", domain.EligibilityRequest{
			RequestID: "req-001",
			SubjectID: "applicant-9",
			Context: map[string]any{
				"applicant": map[string]any{"age": 42, "bmi": 38},
			},
		})

		result := next()
		if result.ID != "req-001" {
			t.Errorf("expected result id 'req-001', got '%s'", result.ID)
		}
		if result.SubjectID != "applicant-9" {
			t.Errorf("expected subject 'applicant-9', got '%s'", result.SubjectID)
		}
		if result.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", result.TenantID)
		}
		if result.Status != domain.StatusRequiresManualReview {
			t.Errorf("expected requires_manual_review, got %s", result.Status)
		}
		if repo.count() != 1 {
			t.Errorf("expected result to be saved, got %d", repo.count())
		}
	})

	t.Run("OverrideCodes", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		next := awaitDecision(t, eventBus, "tenant-test")

		publishRequest(t, eventBus, "tenant-test", domain.EligibilityRequest{
			Context:       map[string]any{"applicant": map[string]any{"age": 42, "bmi": 38}},
			OverrideCodes: []string{"UW-BMI"},
		})

		result := next()
		if result.Status != domain.StatusEligible {
			t.Errorf("expected eligible with override, got %s", result.Status)
		}
		if result.OverriddenCount != 1 {
			t.Errorf("expected 1 overridden rule, got %d", result.OverriddenCount)
		}
		if result.ID == "" {
			t.Error("expected message id to stand in for missing request id")
		}
	})

	t.Run("GlobalSubscription", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		next := awaitDecision(t, eventBus, "tenant-test")

		publishRequest(t, eventBus, GlobalTenant, domain.EligibilityRequest{
			TenantID: "tenant-test",
			Context:  map[string]any{"applicant": map[string]any{"age": 12, "bmi": 20}},
		})

		result := next()
		if result.Status != domain.StatusIneligible {
			t.Errorf("expected ineligible minor, got %s", result.Status)
		}
		if len(result.BlockingIssues) != 1 || result.BlockingIssues[0].RuleID != "adult" {
			t.Errorf("expected adult rule to block, got %+v", result.BlockingIssues)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestProcessRequestErrors(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestEngine(t))
	ctx := context.Background()

	t.Run("MalformedPayload", func(t *testing.T) {
		err := w.processRequest(ctx, "tenant-001", &domain.Message{ID: "m1", Payload: []byte("{")})
		if err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("GlobalWithoutTenant", func(t *testing.T) {
		err := w.processRequest(ctx, GlobalTenant, &domain.Message{ID: "m2", Payload: []byte(`{"context":{}}`)})
		if err == nil {
			t.Error("expected error for request without tenant")
		}
	})
}

func TestStopWhileDispatching(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestEngine(t, "tenant-001"))
	w.slots = make(chan struct{}, 1)
	payload, _ := json.Marshal(domain.EligibilityRequest{TenantID: "tenant-001", Context: map[string]any{}})

	// Hold the only slot so dispatches queue up behind it.
	w.slots <- struct{}{}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- w.dispatch(context.Background(), "tenant-001", &domain.Message{ID: "m", Payload: payload})
		}()
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Stop")
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStopped) {
			t.Errorf("expected canceled or stopped, got %v", err)
		}
	}

	err := w.dispatch(context.Background(), "tenant-001", &domain.Message{ID: "late", Payload: payload})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
}
