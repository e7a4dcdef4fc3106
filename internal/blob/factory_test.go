package blob

import (
	"context"
	"strings"
	"testing"
)

func TestOpenDefaultsToFilesystem(t *testing.T) {
	t.Setenv("JOURNEYCORE_BLOB_DRIVER", "")
	t.Setenv("JOURNEYCORE_BLOB_FS_ROOT", t.TempDir())
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	t.Setenv("JOURNEYCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}
	if _, err := store.Put(context.Background(), "k", strings.NewReader("v"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("JOURNEYCORE_BLOB_DRIVER", "s3")
	t.Setenv("JOURNEYCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Setenv("JOURNEYCORE_BLOB_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
