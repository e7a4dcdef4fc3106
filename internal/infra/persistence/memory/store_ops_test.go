package memory

import (
	"context"
	"testing"

	"journeycore/pkg/domain"
)

func phaseOrderByName(t *testing.T, store *Store, journeyID string) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, p := range store.ListPhases() {
		if p.JourneyID == journeyID {
			out[p.Name] = p.Order
		}
	}
	return out
}

func TestReorderPhasesAppendsOmitted(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)

	// Request only the last phase first; the two omitted phases keep their
	// prior relative order after it.
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.ReorderPhases(ws.journey.ID, []string{ws.phases[2].ID, "unknown"}) {
			t.Fatalf("expected reorder to find journey")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	orders := phaseOrderByName(t, store, ws.journey.ID)
	if orders["Receive"] != 0 || orders["Browse"] != 1 || orders["Pay"] != 2 {
		t.Fatalf("unexpected phase orders: %v", orders)
	}
}

func TestReorderPhasesUnknownJourney(t *testing.T) {
	store := NewStore(nil)
	seedWorkspace(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if tx.ReorderPhases("missing", nil) {
			t.Fatalf("expected reorder of unknown journey to report not found")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestReorderInsightsLeavesOmittedUntouched(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)

	var insights []Insight
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, title := range []string{"a", "b", "c"} {
			insight, err := tx.CreateInsight(Insight{ClientID: ws.client.ID, Title: title})
			if err != nil {
				return err
			}
			insights = append(insights, insight)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.ReorderInsights(ws.client.ID, []string{insights[2].ID, insights[0].ID}) {
			t.Fatalf("expected reorder to find client")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	byTitle := map[string]int{}
	for _, i := range store.ListInsights() {
		byTitle[i.Title] = i.Order
	}
	if byTitle["c"] != 0 || byTitle["a"] != 1 {
		t.Fatalf("expected c=0 a=1, got %v", byTitle)
	}
	// b was omitted from the request and keeps its prior position.
	if byTitle["b"] != 1 {
		t.Fatalf("expected omitted insight to keep order 1, got %d", byTitle["b"])
	}
}

func seedBoard(t *testing.T, store *Store, clientID string, names ...string) []Opportunity {
	t.Helper()
	var out []Opportunity
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, name := range names {
			opp, err := tx.CreateOpportunity(Opportunity{ClientID: clientID, Name: name})
			if err != nil {
				return err
			}
			out = append(out, opp)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed board: %v", err)
	}
	return out
}

func stageByName(t *testing.T, store *Store, stage domain.Stage) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, o := range store.ListOpportunities() {
		if o.Stage == stage {
			out[o.Name] = o.StageOrder
		}
	}
	return out
}

func TestCreateOpportunityAppendsToStage(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	opps := seedBoard(t, store, ws.client.ID, "one", "two", "three")
	for i, opp := range opps {
		if opp.Stage != domain.StageBacklog {
			t.Fatalf("expected backlog, got %q", opp.Stage)
		}
		if opp.StageOrder != i {
			t.Fatalf("expected stage order %d, got %d", i, opp.StageOrder)
		}
	}
}

func TestMoveOpportunityBetweenStages(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	opps := seedBoard(t, store, ws.client.ID, "one", "two", "three")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.MoveOpportunityToStage(opps[0].ID, domain.StageHorizonOne, 0) {
			t.Fatalf("expected move to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	backlog := stageByName(t, store, domain.StageBacklog)
	if backlog["two"] != 0 || backlog["three"] != 1 {
		t.Fatalf("expected source column renumbered, got %v", backlog)
	}
	horizon := stageByName(t, store, domain.StageHorizonOne)
	if horizon["one"] != 0 {
		t.Fatalf("expected moved card at index 0, got %v", horizon)
	}
}

func TestMoveOpportunityClampsIndex(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	opps := seedBoard(t, store, ws.client.ID, "one", "two", "three")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.MoveOpportunityToStage(opps[0].ID, domain.StageBacklog, 99) {
			t.Fatalf("expected move to succeed")
		}
		if !tx.MoveOpportunityToStage(opps[2].ID, domain.StageBacklog, -5) {
			t.Fatalf("expected move to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	backlog := stageByName(t, store, domain.StageBacklog)
	if backlog["three"] != 0 || backlog["two"] != 1 || backlog["one"] != 2 {
		t.Fatalf("expected clamped placements, got %v", backlog)
	}
}

func TestMoveOpportunityNormalizesLegacyStage(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	opps := seedBoard(t, store, ws.client.ID, "one")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.MoveOpportunityToStage(opps[0].ID, domain.Stage("In analysis"), 0) {
			t.Fatalf("expected move to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ := store.GetOpportunity(opps[0].ID)
	if got.Stage != domain.StageInDiscovery {
		t.Fatalf("expected retired stage mapped to %q, got %q", domain.StageInDiscovery, got.Stage)
	}
}

func TestReorderOpportunitiesInStage(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	opps := seedBoard(t, store, ws.client.ID, "one", "two", "three")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.ReorderOpportunitiesInStage(ws.client.ID, domain.StageBacklog, []string{opps[1].ID}) {
			t.Fatalf("expected reorder to find client")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	backlog := stageByName(t, store, domain.StageBacklog)
	if backlog["two"] != 0 || backlog["one"] != 1 || backlog["three"] != 2 {
		t.Fatalf("unexpected column order: %v", backlog)
	}
}

func TestCustomRowLifecycle(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)

	var row domain.CustomRow
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var ok bool
		row, ok = tx.AddCustomRow(ws.journey.ID, "KPIs")
		if !ok {
			t.Fatalf("expected add custom row to succeed")
		}
		if !tx.RenameCustomRow(ws.journey.ID, row.ID, "Key metrics") {
			t.Fatalf("expected rename to succeed")
		}
		if _, ok := tx.UpdatePhase(ws.phases[0].ID, func(p *Phase) {
			p.CustomRowValues = map[string]string{row.ID: "conversion 3%"}
		}); !ok {
			t.Fatalf("expected phase update to succeed")
		}
		if _, ok := tx.SetCellComment(ws.phases[0].ID, row.ID, "double-check source"); !ok {
			t.Fatalf("expected comment on custom row to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	journey, _ := store.GetJourney(ws.journey.ID)
	if len(journey.CustomRows) != 1 || journey.CustomRows[0].Label != "Key metrics" {
		t.Fatalf("unexpected custom rows: %+v", journey.CustomRows)
	}
	if !containsString(journey.RowOrder, row.ID) {
		t.Fatalf("expected custom row id in row order")
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.DeleteCustomRow(ws.journey.ID, row.ID) {
			t.Fatalf("expected delete custom row to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	journey, _ = store.GetJourney(ws.journey.ID)
	if containsString(journey.RowOrder, row.ID) {
		t.Fatalf("expected custom row id removed from row order")
	}
	phase, _ := store.GetPhase(ws.phases[0].ID)
	if _, ok := phase.CustomRowValues[row.ID]; ok {
		t.Fatalf("expected custom row value removed from phase")
	}
	if _, ok := store.GetCellComment(ws.phases[0].ID, row.ID); ok {
		t.Fatalf("expected custom row comment removed")
	}
}

func TestSetRowOrderNormalizes(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.SetRowOrder(ws.journey.ID, []string{domain.RowJobs, "bogus", domain.RowJobs, domain.RowDescription}) {
			t.Fatalf("expected set row order to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("set row order: %v", err)
	}

	journey, _ := store.GetJourney(ws.journey.ID)
	if journey.RowOrder[0] != domain.RowJobs || journey.RowOrder[1] != domain.RowDescription {
		t.Fatalf("expected requested prefix kept, got %v", journey.RowOrder[:2])
	}
	if containsString(journey.RowOrder, "bogus") {
		t.Fatalf("expected unknown key dropped")
	}
	if len(journey.RowOrder) != len(domain.BuiltinRowKeys()) {
		t.Fatalf("expected all builtin keys present, got %v", journey.RowOrder)
	}
}

func TestCellCommentLifecycle(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	phase := ws.phases[0]

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, ok := tx.SetCellComment(phase.ID, "notARow", "x"); ok {
			t.Fatalf("expected unknown row key to be rejected")
		}
		if _, ok := tx.AddCellCommentReply(phase.ID, domain.RowJobs, "early"); ok {
			t.Fatalf("expected reply without comment to be rejected")
		}
		comment, ok := tx.SetCellComment(phase.ID, domain.RowJobs, "first draft")
		if !ok {
			t.Fatalf("expected comment to be created")
		}
		if comment.Text != "first draft" || len(comment.Replies) != 0 {
			t.Fatalf("unexpected comment: %+v", comment)
		}
		if _, ok := tx.AddCellCommentReply(phase.ID, domain.RowJobs, "agreed"); !ok {
			t.Fatalf("expected reply to succeed")
		}
		updated, ok := tx.SetCellComment(phase.ID, domain.RowJobs, "final")
		if !ok {
			t.Fatalf("expected text edit to succeed")
		}
		if updated.Text != "final" || len(updated.Replies) != 1 {
			t.Fatalf("expected replies preserved across text edit: %+v", updated)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if !tx.DeleteCellComment(phase.ID, domain.RowJobs) {
			t.Fatalf("expected delete to succeed")
		}
		if tx.DeleteCellComment(phase.ID, domain.RowJobs) {
			t.Fatalf("expected second delete to report not found")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
}
