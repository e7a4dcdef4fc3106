package core

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"journeycore/internal/infra/persistence/memory"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("JOURNEYCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	t.Setenv("JOURNEYCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("JOURNEYCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "journey.db"))
	store, err := OpenPersistentStore(NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	svc := NewService(store, WithTextDebounce(0))
	client, _, err := svc.CreateClient(context.Background(), Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, ok := svc.Store().GetClient(client.ID); !ok {
		t.Fatalf("expected client readable after commit")
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("JOURNEYCORE_STORAGE_DRIVER", "tape")
	if _, err := OpenPersistentStore(NewRulesEngine()); err == nil {
		t.Fatalf("expected unknown driver rejection")
	}
}
