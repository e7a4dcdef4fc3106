package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"journeycore/internal/infra/persistence/memory"
	"journeycore/pkg/domain"
)

// flushCountingStore wraps the in-memory store to observe and fail durable
// saves the way a persistence driver would.
type flushCountingStore struct {
	*memory.Store
	mu          sync.Mutex
	flushes     int
	failFlush   bool
	failPersist bool
}

func (s *flushCountingStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	fail := s.failPersist
	s.mu.Unlock()
	if fail {
		return res, &SaveError{Driver: "test", Op: "persist", Err: fmt.Errorf("disk full")}
	}
	return res, nil
}

func (s *flushCountingStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFlush {
		return &SaveError{Driver: "test", Op: "flush", Err: fmt.Errorf("disk full")}
	}
	s.flushes++
	return nil
}

func (s *flushCountingStore) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func newTextFixture(t *testing.T, store PersistentStore, opts ...ServiceOption) (svc *Service, phaseID string) {
	t.Helper()
	ctx := context.Background()
	svc = NewService(store, opts...)
	client, _, err := svc.CreateClient(ctx, Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	project, _, err := svc.CreateProject(ctx, Project{ClientID: client.ID, Name: "Checkout"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	journey, _, err := svc.CreateJourney(ctx, Journey{ProjectID: project.ID, Name: "Purchase"})
	if err != nil {
		t.Fatalf("create journey: %v", err)
	}
	phase, _, err := svc.CreatePhase(ctx, Phase{JourneyID: journey.ID, Name: "Browse"})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	return svc, phase.ID
}

func TestSetPhaseTextZeroDebounceFlushesSynchronously(t *testing.T) {
	store := &flushCountingStore{Store: memory.NewStore(NewRulesEngine())}
	svc, phaseID := newTextFixture(t, store, WithTextDebounce(0))

	before := store.flushCount()
	updated, _, err := svc.SetPhaseText(context.Background(), phaseID, domain.RowDescription, "Shoppers find the product")
	if err != nil {
		t.Fatalf("set text: %v", err)
	}
	if updated.Description != "Shoppers find the product" {
		t.Fatalf("unexpected phase: %+v", updated)
	}
	if store.flushCount() != before+1 {
		t.Fatalf("expected synchronous flush")
	}
}

func TestSetPhaseTextDebounceCoalescesFlushes(t *testing.T) {
	store := &flushCountingStore{Store: memory.NewStore(NewRulesEngine())}
	svc, phaseID := newTextFixture(t, store, WithTextDebounce(100*time.Millisecond))

	before := store.flushCount()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, _, err := svc.SetPhaseText(ctx, phaseID, domain.RowDescription, fmt.Sprintf("draft %d", i)); err != nil {
			t.Fatalf("set text: %v", err)
		}
	}
	if store.flushCount() != before {
		t.Fatalf("expected no flush before the debounce window")
	}

	deadline := time.After(2 * time.Second)
	for store.flushCount() != before+1 {
		select {
		case <-deadline:
			t.Fatalf("expected exactly one flush, got %d", store.flushCount()-before)
		case <-time.After(5 * time.Millisecond):
		}
	}

	phase, ok := svc.Store().GetPhase(phaseID)
	if !ok || phase.Description != "draft 4" {
		t.Fatalf("expected last write to win, got %+v", phase)
	}
}

func TestSetPhaseTextRejectsNonTextRows(t *testing.T) {
	svc, phaseID := newTextFixture(t, memory.NewStore(NewRulesEngine()), WithTextDebounce(0))
	for _, row := range []string{domain.RowPhaseHealth, domain.RowJobs, domain.RowOpportunities, "bogus"} {
		if _, _, err := svc.SetPhaseText(context.Background(), phaseID, row, "x"); err == nil {
			t.Fatalf("expected row %s to reject text", row)
		}
	}
}

func TestSetCustomRowValue(t *testing.T) {
	svc, phaseID := newTextFixture(t, memory.NewStore(NewRulesEngine()), WithTextDebounce(0))
	ctx := context.Background()

	phase, _ := svc.Store().GetPhase(phaseID)
	row, _, err := svc.AddCustomRow(ctx, phase.JourneyID, "KPIs")
	if err != nil {
		t.Fatalf("add custom row: %v", err)
	}
	updated, _, err := svc.SetCustomRowValue(ctx, phaseID, row.ID, "conversion 3%")
	if err != nil {
		t.Fatalf("set value: %v", err)
	}
	if updated.CustomRowValues[row.ID] != "conversion 3%" {
		t.Fatalf("unexpected values: %+v", updated.CustomRowValues)
	}
	if _, _, err := svc.SetCustomRowValue(ctx, phaseID, "ghost-row", "x"); err == nil {
		t.Fatalf("expected unknown custom row rejection")
	}
}

func TestSaveErrorIsStickyAndAbsorbed(t *testing.T) {
	store := &flushCountingStore{Store: memory.NewStore(NewRulesEngine()), failPersist: true}
	svc := NewService(store, WithTextDebounce(0))

	client, _, err := svc.CreateClient(context.Background(), Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("expected save failure to be absorbed, got %v", err)
	}
	if client.ID == "" {
		t.Fatalf("expected in-memory commit to stand")
	}
	saveErr := svc.LastSaveError()
	if saveErr == nil || saveErr.Driver != "test" {
		t.Fatalf("expected sticky save error, got %+v", saveErr)
	}

	// A later successful commit clears the sticky error.
	store.mu.Lock()
	store.failPersist = false
	store.mu.Unlock()
	if _, _, err := svc.CreateClient(context.Background(), Client{Name: "Globex"}); err != nil {
		t.Fatalf("create client: %v", err)
	}
	if svc.LastSaveError() != nil {
		t.Fatalf("expected sticky error cleared after clean save")
	}

	store.mu.Lock()
	store.failPersist = true
	store.mu.Unlock()
	if _, _, err := svc.CreateClient(context.Background(), Client{Name: "Initech"}); err != nil {
		t.Fatalf("create client: %v", err)
	}
	svc.ClearSaveError()
	if svc.LastSaveError() != nil {
		t.Fatalf("expected manual clear to drop the error")
	}
}

func TestServiceCloseFlushes(t *testing.T) {
	store := &flushCountingStore{Store: memory.NewStore(NewRulesEngine())}
	svc, phaseID := newTextFixture(t, store, WithTextDebounce(time.Hour))

	if _, _, err := svc.SetPhaseText(context.Background(), phaseID, domain.RowDescription, "pending"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	before := store.flushCount()
	if err := svc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.flushCount() != before+1 {
		t.Fatalf("expected close to flush pending writes")
	}
}
