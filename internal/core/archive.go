package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"journeycore/internal/blob"
	"journeycore/internal/infra/persistence/memory"
	"journeycore/pkg/domain"
)

// SnapshotStore is the store capability archiving needs beyond
// PersistentStore. Every journeycore persistence driver satisfies it.
type SnapshotStore interface {
	PersistentStore
	ExportState() memory.Snapshot
	ImportState(snapshot memory.Snapshot)
}

// archiveTimeLayout keeps archive keys filesystem- and S3-safe.
const archiveTimeLayout = "2006-01-02T15-04-05.000Z"

// ArchiveService writes per-client workspace snapshots to a blob store and
// restores them. Archives live under archives/<clientID>/<timestamp>.json.
type ArchiveService struct {
	store  SnapshotStore
	blobs  blob.Store
	clock  Clock
	logger Logger
}

// NewArchiveService constructs an archive service over the given store and
// blob backend.
func NewArchiveService(store SnapshotStore, blobs blob.Store, opts ...ServiceOption) *ArchiveService {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &ArchiveService{store: store, blobs: blobs, clock: options.clock, logger: options.logger}
}

// ArchiveClient snapshots one client's subtree into the blob store.
func (a *ArchiveService) ArchiveClient(ctx context.Context, clientID string) (blob.Info, error) {
	snapshot := a.store.ExportState()
	if _, ok := snapshot.Clients[clientID]; !ok {
		return blob.Info{}, ErrNotFound{Entity: EntityClient, ID: clientID}
	}
	filtered := filterSnapshotByClient(snapshot, clientID)
	payload, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode archive: %w", err)
	}
	key := fmt.Sprintf("archives/%s/%s.json", clientID, a.clock.Now().Format(archiveTimeLayout))
	info, err := a.blobs.Put(ctx, key, strings.NewReader(string(payload)), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"client_id": clientID},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store archive: %w", err)
	}
	a.logger.Info("archived client", "client_id", clientID, "key", info.Key, "bytes", info.Size)
	return info, nil
}

// ListArchives returns the stored archives for one client, or for the whole
// workspace when clientID is empty, ordered by key (and thus by time).
func (a *ArchiveService) ListArchives(ctx context.Context, clientID string) ([]blob.Info, error) {
	prefix := "archives/"
	if clientID != "" {
		prefix += clientID + "/"
	}
	return a.blobs.List(ctx, prefix)
}

// RestoreArchive replaces the archived clients' subtrees in the live store
// with the archive contents. Other clients are untouched. The restored state
// passes through snapshot migration on import and is flushed durably.
func (a *ArchiveService) RestoreArchive(ctx context.Context, key string) error {
	_, rc, err := a.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	payload, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	var archived memory.Snapshot
	if err := json.Unmarshal(payload, &archived); err != nil {
		return fmt.Errorf("decode archive %s: %w", key, err)
	}

	merged := a.store.ExportState()
	for clientID := range archived.Clients {
		merged = purgeClient(merged, clientID)
	}
	mergeSnapshots(&merged, archived)
	a.store.ImportState(merged)
	if err := a.store.Flush(ctx); err != nil {
		return err
	}
	a.logger.Info("restored archive", "key", key, "clients", len(archived.Clients))
	return nil
}

// filterSnapshotByClient keeps only the records reachable from clientID.
func filterSnapshotByClient(s memory.Snapshot, clientID string) memory.Snapshot {
	out := memory.Snapshot{
		Clients:       map[string]Client{},
		Projects:      map[string]Project{},
		Journeys:      map[string]Journey{},
		Phases:        map[string]Phase{},
		Jobs:          map[string]Job{},
		Insights:      map[string]Insight{},
		Opportunities: map[string]Opportunity{},
		Comments:      map[string]CellComment{},
	}
	out.Clients[clientID] = s.Clients[clientID]
	for id, project := range s.Projects {
		if project.ClientID == clientID {
			out.Projects[id] = project
		}
	}
	for id, journey := range s.Journeys {
		if _, ok := out.Projects[journey.ProjectID]; ok {
			out.Journeys[id] = journey
		}
	}
	for id, phase := range s.Phases {
		if _, ok := out.Journeys[phase.JourneyID]; ok {
			out.Phases[id] = phase
		}
	}
	for id, job := range s.Jobs {
		if job.ClientID == clientID {
			out.Jobs[id] = job
		}
	}
	for id, insight := range s.Insights {
		if insight.ClientID == clientID {
			out.Insights[id] = insight
		}
	}
	for id, opp := range s.Opportunities {
		if opp.ClientID == clientID {
			out.Opportunities[id] = opp
		}
	}
	for key, comment := range s.Comments {
		phaseID, _, ok := domain.SplitCommentKey(key)
		if !ok {
			continue
		}
		if _, ok := out.Phases[phaseID]; ok {
			out.Comments[key] = comment
		}
	}
	return out
}

// purgeClient removes one client's subtree from the snapshot.
func purgeClient(s memory.Snapshot, clientID string) memory.Snapshot {
	drop := filterSnapshotByClient(s, clientID)
	delete(s.Clients, clientID)
	for id := range drop.Projects {
		delete(s.Projects, id)
	}
	for id := range drop.Journeys {
		delete(s.Journeys, id)
	}
	for id := range drop.Phases {
		delete(s.Phases, id)
	}
	for id := range drop.Jobs {
		delete(s.Jobs, id)
	}
	for id := range drop.Insights {
		delete(s.Insights, id)
	}
	for id := range drop.Opportunities {
		delete(s.Opportunities, id)
	}
	for key := range drop.Comments {
		delete(s.Comments, key)
	}
	return s
}

func mergeSnapshots(dst *memory.Snapshot, src memory.Snapshot) {
	if dst.Clients == nil {
		dst.Clients = map[string]Client{}
	}
	if dst.Projects == nil {
		dst.Projects = map[string]Project{}
	}
	if dst.Journeys == nil {
		dst.Journeys = map[string]Journey{}
	}
	if dst.Phases == nil {
		dst.Phases = map[string]Phase{}
	}
	if dst.Jobs == nil {
		dst.Jobs = map[string]Job{}
	}
	if dst.Insights == nil {
		dst.Insights = map[string]Insight{}
	}
	if dst.Opportunities == nil {
		dst.Opportunities = map[string]Opportunity{}
	}
	if dst.Comments == nil {
		dst.Comments = map[string]CellComment{}
	}
	for id, v := range src.Clients {
		dst.Clients[id] = v
	}
	for id, v := range src.Projects {
		dst.Projects[id] = v
	}
	for id, v := range src.Journeys {
		dst.Journeys[id] = v
	}
	for id, v := range src.Phases {
		dst.Phases[id] = v
	}
	for id, v := range src.Jobs {
		dst.Jobs[id] = v
	}
	for id, v := range src.Insights {
		dst.Insights[id] = v
	}
	for id, v := range src.Opportunities {
		dst.Opportunities[id] = v
	}
	for key, v := range src.Comments {
		dst.Comments[key] = v
	}
}
