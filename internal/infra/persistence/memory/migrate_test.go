package memory

import (
	"encoding/json"
	"testing"
	"time"

	"journeycore/pkg/domain"
)

func snapBase(id string) domain.Base {
	at := time.Date(2023, time.June, 1, 8, 0, 0, 0, time.UTC)
	return domain.Base{ID: id, CreatedAt: at, UpdatedAt: at}
}

// legacySnapshot builds a snapshot in the oldest persisted shape: embedded
// job/opportunity text, dash comment keys, retired stage names, gapped
// orderings, and a few orphans.
func legacySnapshot() Snapshot {
	journey := Journey{Base: snapBase("j1"), ProjectID: "p1", Name: "Main"}
	journey.RowOrder = []string{domain.RowDescription, domain.RowJobs}
	return Snapshot{
		Clients: map[string]Client{
			"c1": {Base: snapBase("c1"), Name: "Acme"},
		},
		Projects: map[string]Project{
			"p1":     {Base: snapBase("p1"), ClientID: "c1", Name: "Checkout"},
			"orphan": {Base: snapBase("orphan"), ClientID: "ghost", Name: "Lost"},
		},
		Journeys: map[string]Journey{"j1": journey},
		Phases: map[string]Phase{
			"ph1": {
				Base:      snapBase("ph1"),
				JourneyID: "j1",
				Name:      "Browse",
				Order:     3,
				JobsText:  `[{"name":"Find product","tag":"Functional","isPriority":true}]`,
				OpportunitiesText: `[{"id":"opp-legacy","name":"Better search","tag":"High"}]`,
			},
			"ph2": {
				Base:      snapBase("ph2"),
				JourneyID: "j1",
				Name:      "Pay",
				Order:     7,
				JobsText:  "Pay quickly\nFeel safe",
			},
		},
		Comments: map[string]CellComment{
			"ph1-jobs":             {Text: "legacy key"},
			"ghost-jobs":           {Text: "phase gone"},
			"ph2::" + domain.RowDescription: {Text: "modern key"},
		},
	}
}

func TestMigrateLegacySnapshot(t *testing.T) {
	got := migrateSnapshot(legacySnapshot())

	if _, ok := got.Projects["orphan"]; ok {
		t.Fatalf("expected orphan project dropped")
	}

	// Embedded jobs became client-scoped records placed on their phases.
	if len(got.Jobs) != 3 {
		t.Fatalf("expected 3 extracted jobs, got %d", len(got.Jobs))
	}
	ph1 := got.Phases["ph1"]
	if ph1.JobsText != "" || ph1.OpportunitiesText != "" {
		t.Fatalf("expected embedded text cleared")
	}
	if len(ph1.JobIDs) != 1 {
		t.Fatalf("expected 1 job placed on ph1, got %d", len(ph1.JobIDs))
	}
	extracted := got.Jobs[ph1.JobIDs[0]]
	if extracted.ClientID != "c1" {
		t.Fatalf("expected extracted job owned by c1, got %q", extracted.ClientID)
	}
	if extracted.Priority != domain.LevelHigh {
		t.Fatalf("expected isPriority folded to High, got %q", extracted.Priority)
	}
	ph2 := got.Phases["ph2"]
	if len(ph2.JobIDs) != 2 {
		t.Fatalf("expected 2 jobs placed on ph2, got %d", len(ph2.JobIDs))
	}

	// The embedded opportunity kept its id and landed on the first horizon.
	opp, ok := got.Opportunities["opp-legacy"]
	if !ok {
		t.Fatalf("expected extracted opportunity to keep its id")
	}
	if opp.Stage != domain.StageHorizonOne {
		t.Fatalf("expected first extracted batch on %q, got %q", domain.StageHorizonOne, opp.Stage)
	}
	if opp.PhaseID != "ph1" || opp.ClientID != "c1" {
		t.Fatalf("unexpected lineage: %+v", opp)
	}

	// Phase ordering is contiguous again.
	if got.Phases["ph1"].Order != 0 || got.Phases["ph2"].Order != 1 {
		t.Fatalf("expected renumbered phases, got %d and %d", got.Phases["ph1"].Order, got.Phases["ph2"].Order)
	}

	// Legacy comment key upgraded, dangling comment dropped, modern key kept.
	if _, ok := got.Comments[domain.CommentKey("ph1", domain.RowJobs)]; !ok {
		t.Fatalf("expected legacy comment key upgraded")
	}
	if _, ok := got.Comments["ph1-jobs"]; ok {
		t.Fatalf("expected legacy key removed")
	}
	if _, ok := got.Comments[domain.CommentKey("ph2", domain.RowDescription)]; !ok {
		t.Fatalf("expected modern comment kept")
	}
	for key := range got.Comments {
		if phaseID, _, ok := domain.SplitCommentKey(key); !ok || phaseID == "ghost" {
			t.Fatalf("expected dangling comment dropped, found %q", key)
		}
	}

	// Row order covers every built-in key.
	row := got.Journeys["j1"].RowOrder
	if len(row) != len(domain.BuiltinRowKeys()) {
		t.Fatalf("expected repaired row order, got %v", row)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	first := migrateSnapshot(legacySnapshot())
	second := migrateSnapshot(cloneSnapshotForTest(t, first))

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected migration to be idempotent\nfirst:  %s\nsecond: %s", a, b)
	}
}

func cloneSnapshotForTest(t *testing.T, s Snapshot) Snapshot {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestMigrateSkipsExtractionWhenCollectionsPopulated(t *testing.T) {
	snapshot := legacySnapshot()
	existing := Job{Base: snapBase("job-existing"), ClientID: "c1", Name: "Existing", Tag: domain.JobSocial, Priority: domain.LevelLow, InsightIDs: []string{}}
	snapshot.Jobs = map[string]Job{"job-existing": existing}

	got := migrateSnapshot(snapshot)
	if len(got.Jobs) != 1 {
		t.Fatalf("expected extraction skipped, got %d jobs", len(got.Jobs))
	}
}

func TestMigrateNormalizesRetiredStages(t *testing.T) {
	snapshot := Snapshot{
		Clients: map[string]Client{"c1": {Base: snapBase("c1"), Name: "Acme"}},
		Projects: map[string]Project{"p1": {Base: snapBase("p1"), ClientID: "c1", Name: "P"}},
		Journeys: map[string]Journey{"j1": {Base: snapBase("j1"), ProjectID: "p1", Name: "J"}},
		Phases:   map[string]Phase{"ph1": {Base: snapBase("ph1"), JourneyID: "j1", Name: "A"}},
		Opportunities: map[string]Opportunity{
			"o1": {Base: snapBase("o1"), ClientID: "c1", Name: "a", Stage: "Unallocated", StageOrder: 9},
			"o2": {Base: snapBase("o2"), ClientID: "c1", Name: "b", Stage: "In analysis", StageOrder: 4},
			"o3": {Base: snapBase("o3"), ClientID: "c1", Name: "c", Stage: "Nonsense", StageOrder: 2},
		},
	}
	got := migrateSnapshot(snapshot)

	if got.Opportunities["o1"].Stage != domain.StageBacklog {
		t.Fatalf("expected Unallocated mapped to Backlog, got %q", got.Opportunities["o1"].Stage)
	}
	if got.Opportunities["o2"].Stage != domain.StageInDiscovery {
		t.Fatalf("expected In analysis mapped to In discovery, got %q", got.Opportunities["o2"].Stage)
	}
	if got.Opportunities["o3"].Stage != domain.StageBacklog {
		t.Fatalf("expected unknown stage mapped to Backlog, got %q", got.Opportunities["o3"].Stage)
	}
	// Backlog holds o3 (order 2) and o1 (order 9); renumbering closes the gap.
	if got.Opportunities["o3"].StageOrder != 0 || got.Opportunities["o1"].StageOrder != 1 {
		t.Fatalf("expected renumbered backlog, got o3=%d o1=%d",
			got.Opportunities["o3"].StageOrder, got.Opportunities["o1"].StageOrder)
	}
}

func TestMigrateSubstitutesDemoDataWhenTreeCollapsed(t *testing.T) {
	snapshot := Snapshot{
		Clients: map[string]Client{"c1": {Base: snapBase("c1"), Name: "Acme"}},
	}
	got := migrateSnapshot(snapshot)

	if _, ok := got.Clients["demo-client"]; !ok {
		t.Fatalf("expected demo substitution")
	}
	if len(got.Projects) == 0 || len(got.Journeys) == 0 || len(got.Phases) == 0 {
		t.Fatalf("expected demo tree to be populated")
	}
}

func TestMigrateLeavesEmptySnapshotAlone(t *testing.T) {
	got := migrateSnapshot(Snapshot{})
	if len(got.Clients) != 0 {
		t.Fatalf("expected genuinely empty snapshot untouched, got %d clients", len(got.Clients))
	}
}

func TestMigrateDropsDanglingLinks(t *testing.T) {
	snapshot := Snapshot{
		Clients: map[string]Client{"c1": {Base: snapBase("c1"), Name: "Acme"}},
		Projects: map[string]Project{"p1": {Base: snapBase("p1"), ClientID: "c1", Name: "P"}},
		Journeys: map[string]Journey{"j1": {Base: snapBase("j1"), ProjectID: "p1", Name: "J"}},
		Phases: map[string]Phase{
			"ph1": {Base: snapBase("ph1"), JourneyID: "j1", Name: "A", JobIDs: []string{"job1", "gone", "job1"}},
		},
		Jobs: map[string]Job{
			"job1": {Base: snapBase("job1"), ClientID: "c1", Name: "J1", InsightIDs: []string{"missing"}},
		},
		Opportunities: map[string]Opportunity{
			"o1": {Base: snapBase("o1"), ClientID: "c1", Name: "O", LinkedJobIDs: []string{"gone", "job1"}},
		},
	}
	got := migrateSnapshot(snapshot)

	if ids := got.Phases["ph1"].JobIDs; len(ids) != 1 || ids[0] != "job1" {
		t.Fatalf("expected deduped filtered placements, got %v", ids)
	}
	if ids := got.Jobs["job1"].InsightIDs; len(ids) != 0 {
		t.Fatalf("expected dangling insight link dropped, got %v", ids)
	}
	if ids := got.Opportunities["o1"].LinkedJobIDs; len(ids) != 1 || ids[0] != "job1" {
		t.Fatalf("expected dangling job link dropped, got %v", ids)
	}
}
