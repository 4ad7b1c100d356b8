package incident

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"nabz/internal/fanout"
	"nabz/internal/notify"
	"nabz/internal/storage"
)

// fakeStore emulates the storage contract in memory, including the
// at-most-one-open-incident-per-rule guarantee and the conditional writes.
type fakeStore struct {
	mu         sync.Mutex
	incidents  map[uuid.UUID]*storage.Incident
	openByRule map[int64]uuid.UUID
	servers    map[uuid.UUID]*storage.Server
	rules      map[int64]*storage.AlertRule
	creates    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents:  make(map[uuid.UUID]*storage.Incident),
		openByRule: make(map[int64]uuid.UUID),
		servers:    make(map[uuid.UUID]*storage.Server),
		rules:      make(map[int64]*storage.AlertRule),
	}
}

func (f *fakeStore) CreateIncidentIfAbsent(ctx context.Context, serverID uuid.UUID, ruleID int64, at time.Time) (*storage.Incident, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.openByRule[ruleID]; ok {
		return f.incidents[id], false, nil
	}
	open := int16(1)
	inc := &storage.Incident{
		ID: uuid.New(), ServerID: serverID, RuleID: ruleID, Open: &open,
		Status: storage.IncidentStatusInvestigating, TriggeredAt: at,
	}
	f.incidents[inc.ID] = inc
	f.openByRule[ruleID] = inc.ID
	f.creates++
	return inc, true, nil
}

func (f *fakeStore) OpenIncident(ctx context.Context, ruleID int64) (*storage.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.openByRule[ruleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return f.incidents[id], nil
}

func (f *fakeStore) GetIncident(ctx context.Context, id uuid.UUID) (*storage.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return inc, nil
}

func (f *fakeStore) ResolveIncident(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok || inc.Status == storage.IncidentStatusResolved {
		return false, nil
	}
	inc.Status = storage.IncidentStatusResolved
	inc.ResolvedAt = &at
	inc.Open = nil
	delete(f.openByRule, inc.RuleID)
	return true, nil
}

func (f *fakeStore) GetServer(ctx context.Context, id uuid.UUID) (*storage.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id int64) (*storage.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

// recordingSender counts dispatched notifications by status.
type recordingSender struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSender) Send(ctx context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSender) byStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Status == status {
			n++
		}
	}
	return n
}

func setup() (*fakeStore, *recordingSender, *Manager, storage.AlertRule) {
	store := newFakeStore()
	sender := &recordingSender{}
	serverID := uuid.New()
	store.servers[serverID] = &storage.Server{ID: serverID, Hostname: "web-01"}
	rule := storage.AlertRule{
		ID: 1, ServerID: serverID, Name: "high cpu",
		Metric: storage.RuleMetricCPU, Kind: storage.RuleKindThreshold,
	}
	store.rules[rule.ID] = &rule
	mgr := NewManager(store, sender, fanout.NewHub(64), nil)
	return store, sender, mgr, rule
}

func TestHandleViolation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("concurrent violations open exactly one incident", func(t *testing.T) {
		store, sender, mgr, rule := setup()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := mgr.HandleViolation(ctx, rule, "cpu > 90", now); err != nil {
					t.Errorf("HandleViolation failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if store.creates != 1 {
			t.Errorf("expected exactly 1 incident created, got %d", store.creates)
		}
		if got := sender.byStatus(notify.StatusFired); got != 1 {
			t.Errorf("expected exactly 1 fired notification, got %d", got)
		}
	})

	t.Run("violation while incident open is absorbed", func(t *testing.T) {
		_, sender, mgr, rule := setup()

		first, err := mgr.HandleViolation(ctx, rule, "cpu > 90", now)
		if err != nil {
			t.Fatalf("HandleViolation failed: %v", err)
		}
		second, err := mgr.HandleViolation(ctx, rule, "cpu > 90", now.Add(time.Minute))
		if err != nil {
			t.Fatalf("HandleViolation failed: %v", err)
		}
		if first.ID != second.ID {
			t.Error("expected the open incident to be returned")
		}
		if got := sender.byStatus(notify.StatusFired); got != 1 {
			t.Errorf("expected 1 fired notification, got %d", got)
		}
	})

	t.Run("publishes fanout event to subscribers", func(t *testing.T) {
		store, _, _, rule := setup()
		hub := fanout.NewHub(8)
		mgr := NewManager(store, &recordingSender{}, hub, nil)

		sub := hub.Subscribe(rule.ServerID)
		defer sub.Close()

		if _, err := mgr.HandleViolation(ctx, rule, "cpu > 90", now); err != nil {
			t.Fatalf("HandleViolation failed: %v", err)
		}

		select {
		case ev := <-sub.C:
			if ev.Type != "incident" {
				t.Errorf("expected incident event, got %q", ev.Type)
			}
		default:
			t.Error("expected a fanout event for the new incident")
		}
	})
}

func TestHandleRecovery(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("resolves the open incident once", func(t *testing.T) {
		store, sender, mgr, rule := setup()
		inc, _ := mgr.HandleViolation(ctx, rule, "cpu > 90", now)

		if err := mgr.HandleRecovery(ctx, rule, now.Add(time.Minute)); err != nil {
			t.Fatalf("HandleRecovery failed: %v", err)
		}
		if err := mgr.HandleRecovery(ctx, rule, now.Add(2*time.Minute)); err != nil {
			t.Fatalf("HandleRecovery failed: %v", err)
		}

		final := store.incidents[inc.ID]
		if final.Status != storage.IncidentStatusResolved {
			t.Errorf("expected resolved, got %s", final.Status)
		}
		if final.ResolvedAt == nil {
			t.Error("expected resolved_at to be set")
		}
		if got := sender.byStatus(notify.StatusResolved); got != 1 {
			t.Errorf("expected exactly 1 resolved notification, got %d", got)
		}
	})

	t.Run("no open incident is a no-op", func(t *testing.T) {
		_, sender, mgr, rule := setup()
		if err := mgr.HandleRecovery(ctx, rule, now); err != nil {
			t.Fatalf("HandleRecovery failed: %v", err)
		}
		if got := sender.byStatus(notify.StatusResolved); got != 0 {
			t.Errorf("expected no notifications, got %d", got)
		}
	})

	t.Run("new incident can open after resolution", func(t *testing.T) {
		store, _, mgr, rule := setup()
		first, _ := mgr.HandleViolation(ctx, rule, "cpu > 90", now)
		mgr.HandleRecovery(ctx, rule, now.Add(time.Minute))

		second, err := mgr.HandleViolation(ctx, rule, "cpu > 90", now.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("HandleViolation failed: %v", err)
		}
		if second.ID == first.ID {
			t.Error("expected a fresh incident after resolution")
		}
		if store.creates != 2 {
			t.Errorf("expected 2 incidents total, got %d", store.creates)
		}
	})

	t.Run("concurrent resolvers notify once", func(t *testing.T) {
		_, sender, mgr, rule := setup()
		inc, _ := mgr.HandleViolation(ctx, rule, "cpu > 90", now)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mgr.Resolve(ctx, inc.ID, now.Add(time.Minute)); err != nil {
					t.Errorf("Resolve failed: %v", err)
				}
			}()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mgr.HandleRecovery(ctx, rule, now.Add(time.Minute)); err != nil {
					t.Errorf("HandleRecovery failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := sender.byStatus(notify.StatusResolved); got != 1 {
			t.Errorf("expected exactly 1 resolved notification, got %d", got)
		}
	})
}
