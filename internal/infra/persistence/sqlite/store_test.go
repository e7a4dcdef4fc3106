package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"journeycore/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedClient(t *testing.T, store domain.PersistentStore, name string) domain.Client {
	t.Helper()
	var client domain.Client
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		client, err = tx.CreateClient(domain.Client{Name: name})
		return err
	})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := seedClient(t, store, "Acme")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{ClientID: client.ID, Name: "Checkout"})
		return err
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if _, ok := reopened.GetClient(client.ID); !ok {
		t.Fatalf("expected client to survive reload")
	}
	if len(reopened.ListProjects()) != 1 {
		t.Fatalf("expected 1 project after reload, got %d", len(reopened.ListProjects()))
	}
}

func storedBucket(t *testing.T, store *Store, bucket string) map[string]json.RawMessage {
	t.Helper()
	var payload []byte
	err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = ?`, bucket).Scan(&payload)
	if err != nil {
		return nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("decode bucket %s: %v", bucket, err)
	}
	return out
}

func TestRunDeferredIsNotDurableUntilFlush(t *testing.T) {
	store := newTestStore(t)

	var client domain.Client
	_, err := store.RunDeferred(context.Background(), func(tx domain.Transaction) error {
		var err error
		client, err = tx.CreateClient(domain.Client{Name: "Deferred"})
		return err
	})
	if err != nil {
		t.Fatalf("RunDeferred: %v", err)
	}

	if _, ok := store.GetClient(client.ID); !ok {
		t.Fatalf("expected deferred commit visible in memory")
	}
	if stored := storedBucket(t, store, "clients"); len(stored) != 0 {
		t.Fatalf("expected no durable clients before flush, got %d", len(stored))
	}

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored := storedBucket(t, store, "clients")
	if _, ok := stored[client.ID]; !ok {
		t.Fatalf("expected client durable after flush")
	}
}

func TestRunInTransactionPersistsAllBuckets(t *testing.T) {
	store := newTestStore(t)
	seedClient(t, store, "Acme")

	for _, bucket := range []string{"clients", "projects", "journeys", "phases", "jobs", "insights", "opportunities", "comments"} {
		var payload []byte
		if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = ?`, bucket).Scan(&payload); err != nil {
			t.Fatalf("bucket %s missing: %v", bucket, err)
		}
	}
}

func TestLoadRunsMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	// Write a legacy-shaped clients bucket directly, bypassing the store.
	legacy := map[string]domain.Client{
		"c1": {Base: domain.Base{ID: "c1"}, Name: "Acme"},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := store.DB().Exec(
		`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
		"clients", data); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A client without any journey tree triggers demo substitution on load.
	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, ok := reopened.GetClient("demo-client"); !ok {
		t.Fatalf("expected migration to run on load")
	}
}
