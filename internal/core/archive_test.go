package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"journeycore/internal/blob"
	"journeycore/internal/infra/persistence/memory"
	"journeycore/pkg/domain"
)

// advancingClock hands out strictly increasing timestamps so archive keys
// never collide within a test.
type advancingClock struct {
	now time.Time
}

func (c *advancingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newArchiveFixture(t *testing.T) (*Service, *memory.Store, *ArchiveService, blob.Store) {
	t.Helper()
	store := memory.NewStore(NewRulesEngine())
	svc := NewService(store, WithTextDebounce(0))
	blobs := blob.NewMemory()
	clock := &advancingClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	archives := NewArchiveService(store, blobs, WithClock(clock))
	return svc, store, archives, blobs
}

func seedClient(t *testing.T, svc *Service, name string) (Client, Phase) {
	t.Helper()
	ctx := context.Background()
	client, _, err := svc.CreateClient(ctx, Client{Name: name})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	project, _, err := svc.CreateProject(ctx, Project{ClientID: client.ID, Name: name + " project"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	journey, _, err := svc.CreateJourney(ctx, Journey{ProjectID: project.ID, Name: name + " journey"})
	if err != nil {
		t.Fatalf("create journey: %v", err)
	}
	phase, _, err := svc.CreatePhase(ctx, Phase{JourneyID: journey.ID, Name: "Discover"})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	return client, phase
}

func TestArchiveClientWritesScopedSnapshot(t *testing.T) {
	svc, _, archives, blobs := newArchiveFixture(t)
	ctx := context.Background()

	acme, acmePhase := seedClient(t, svc, "Acme")
	globex, _ := seedClient(t, svc, "Globex")
	if _, _, err := svc.SetCellComment(ctx, acmePhase.ID, domain.RowJobs, "revisit"); err != nil {
		t.Fatalf("set comment: %v", err)
	}

	info, err := archives.ArchiveClient(ctx, acme.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(info.Key, "archives/"+acme.ID+"/") || !strings.HasSuffix(info.Key, ".json") {
		t.Fatalf("unexpected archive key %q", info.Key)
	}
	if info.ContentType != "application/json" || info.Metadata["client_id"] != acme.ID {
		t.Fatalf("unexpected archive info: %+v", info)
	}

	// The payload must not leak the other client's records.
	_, rc, err := blobs.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	payload, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if strings.Contains(string(payload), globex.ID) {
		t.Fatalf("archive leaked foreign client records")
	}
	if !strings.Contains(string(payload), acmePhase.ID) {
		t.Fatalf("archive missing phase records")
	}
}

func TestArchiveUnknownClient(t *testing.T) {
	_, _, archives, _ := newArchiveFixture(t)
	_, err := archives.ArchiveClient(context.Background(), "ghost")
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Entity != EntityClient || notFound.ID != "ghost" {
		t.Fatalf("unexpected detail: %+v", notFound)
	}
}

func TestListArchivesScopesByClient(t *testing.T) {
	svc, _, archives, _ := newArchiveFixture(t)
	ctx := context.Background()

	acme, _ := seedClient(t, svc, "Acme")
	globex, _ := seedClient(t, svc, "Globex")
	for i := 0; i < 2; i++ {
		if _, err := archives.ArchiveClient(ctx, acme.ID); err != nil {
			t.Fatalf("archive acme: %v", err)
		}
	}
	if _, err := archives.ArchiveClient(ctx, globex.ID); err != nil {
		t.Fatalf("archive globex: %v", err)
	}

	scoped, err := archives.ListArchives(ctx, acme.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 acme archives, got %d", len(scoped))
	}
	all, err := archives.ListArchives(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 archives total, got %d", len(all))
	}
}

func TestRestoreArchiveReplacesClientSubtree(t *testing.T) {
	svc, store, archives, _ := newArchiveFixture(t)
	ctx := context.Background()

	acme, acmePhase := seedClient(t, svc, "Acme")
	globex, globexPhase := seedClient(t, svc, "Globex")

	info, err := archives.ArchiveClient(ctx, acme.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	// Drift the live state away from the archive.
	if _, _, err := svc.UpdateClient(ctx, acme.ID, func(c *Client) { c.Name = "Acme renamed" }); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if deleted, _, err := svc.DeletePhase(ctx, acmePhase.ID); err != nil || !deleted {
		t.Fatalf("delete phase: %v %v", deleted, err)
	}
	if _, _, err := svc.UpdateClient(ctx, globex.ID, func(c *Client) { c.Name = "Globex Inc" }); err != nil {
		t.Fatalf("rename globex: %v", err)
	}

	if err := archives.RestoreArchive(ctx, info.Key); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, ok := store.GetClient(acme.ID)
	if !ok || restored.Name != "Acme" {
		t.Fatalf("expected archived name restored, got %+v", restored)
	}
	if _, ok := store.GetPhase(acmePhase.ID); !ok {
		t.Fatalf("expected deleted phase restored")
	}

	// Post-archive changes to other clients survive the restore.
	untouched, ok := store.GetClient(globex.ID)
	if !ok || untouched.Name != "Globex Inc" {
		t.Fatalf("expected foreign client untouched, got %+v", untouched)
	}
	if _, ok := store.GetPhase(globexPhase.ID); !ok {
		t.Fatalf("expected foreign phase untouched")
	}
}

func TestRestoreArchiveUnknownKey(t *testing.T) {
	_, _, archives, _ := newArchiveFixture(t)
	if err := archives.RestoreArchive(context.Background(), "archives/ghost/missing.json"); err == nil {
		t.Fatalf("expected unknown key rejection")
	}
}
