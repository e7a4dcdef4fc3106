package memory

import (
	"fmt"
	"sort"

	"journeycore/pkg/domain"
	"journeycore/pkg/domain/textenc"
)

// migrateSnapshot normalizes a loaded snapshot before it becomes live state.
// It repairs structural damage (orphans, dangling links, gapped orderings),
// upgrades legacy encodings (comment keys, retired stage names, embedded
// job/opportunity text), and back-fills fields added after the snapshot was
// written. Running it twice over the same data is a no-op: every rewriting
// step is gated on the legacy form still being present.
//
//nolint:gocyclo // the migration aggregates every load-time repair in one pass for parity with existing snapshots.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Clients == nil {
		snapshot.Clients = map[string]Client{}
	}
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Journeys == nil {
		snapshot.Journeys = map[string]Journey{}
	}
	if snapshot.Phases == nil {
		snapshot.Phases = map[string]Phase{}
	}
	if snapshot.Jobs == nil {
		snapshot.Jobs = map[string]Job{}
	}
	if snapshot.Insights == nil {
		snapshot.Insights = map[string]Insight{}
	}
	if snapshot.Opportunities == nil {
		snapshot.Opportunities = map[string]Opportunity{}
	}
	if snapshot.Comments == nil {
		snapshot.Comments = map[string]CellComment{}
	}

	snapshot = dropOrphans(snapshot)
	snapshot = migrateCommentKeys(snapshot)
	snapshot = repairRowOrders(snapshot)
	snapshot = extractEmbeddedJobs(snapshot)
	snapshot = extractEmbeddedOpportunities(snapshot)
	snapshot = backfillFields(snapshot)
	snapshot = filterLinks(snapshot)
	snapshot = renumberOrderings(snapshot)
	snapshot = dropStaleComments(snapshot)
	snapshot = substituteDemoData(snapshot)
	return snapshot
}

// dropOrphans removes records whose parent chain is broken. Client-scoped
// collections only need the client; the journey tree needs every ancestor.
func dropOrphans(snapshot Snapshot) Snapshot {
	clientExists := func(id string) bool {
		_, ok := snapshot.Clients[id]
		return ok
	}
	for id, project := range snapshot.Projects {
		if project.ClientID == "" || !clientExists(project.ClientID) {
			delete(snapshot.Projects, id)
		}
	}
	for id, journey := range snapshot.Journeys {
		if _, ok := snapshot.Projects[journey.ProjectID]; !ok {
			delete(snapshot.Journeys, id)
		}
	}
	for id, phase := range snapshot.Phases {
		if _, ok := snapshot.Journeys[phase.JourneyID]; !ok {
			delete(snapshot.Phases, id)
		}
	}
	for id, job := range snapshot.Jobs {
		if job.ClientID == "" || !clientExists(job.ClientID) {
			delete(snapshot.Jobs, id)
		}
	}
	for id, insight := range snapshot.Insights {
		if insight.ClientID == "" || !clientExists(insight.ClientID) {
			delete(snapshot.Insights, id)
		}
	}
	for id, opp := range snapshot.Opportunities {
		if opp.ClientID == "" || !clientExists(opp.ClientID) {
			delete(snapshot.Opportunities, id)
		}
	}
	return snapshot
}

// migrateCommentKeys rewrites legacy "<phaseID>-<rowKey>" comment keys into
// the unambiguous composite form. Keys that cannot be decomposed are left
// alone; dropStaleComments decides their fate against the live phase set.
func migrateCommentKeys(snapshot Snapshot) Snapshot {
	customRowIDs := make(map[string]struct{})
	for _, journey := range snapshot.Journeys {
		for _, row := range journey.CustomRows {
			customRowIDs[row.ID] = struct{}{}
		}
	}
	for key, comment := range snapshot.Comments {
		phaseID, rowKey, ok := domain.SplitLegacyCommentKey(key, customRowIDs)
		if !ok {
			continue
		}
		upgraded := domain.CommentKey(phaseID, rowKey)
		if _, taken := snapshot.Comments[upgraded]; !taken {
			snapshot.Comments[upgraded] = comment
		}
		delete(snapshot.Comments, key)
	}
	return snapshot
}

// repairRowOrders rebuilds each journey's row order so it covers every
// built-in key and custom row id exactly once.
func repairRowOrders(snapshot Snapshot) Snapshot {
	for id, journey := range snapshot.Journeys {
		journey.RowOrder = domain.OrderedRows(journey)
		snapshot.Journeys[id] = journey
	}
	return snapshot
}

// journeyClientID resolves a journey's owning client within a snapshot.
func journeyClientID(snapshot Snapshot, journeyID string) (string, bool) {
	journey, ok := snapshot.Journeys[journeyID]
	if !ok {
		return "", false
	}
	project, ok := snapshot.Projects[journey.ProjectID]
	if !ok {
		return "", false
	}
	return project.ClientID, true
}

// sortedPhaseIDs returns all phase ids ordered by journey, phase order, and
// id so extraction passes are deterministic.
func sortedPhaseIDs(snapshot Snapshot) []string {
	ids := make([]string, 0, len(snapshot.Phases))
	for id := range snapshot.Phases {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := snapshot.Phases[ids[i]], snapshot.Phases[ids[j]]
		if a.JourneyID != b.JourneyID {
			return a.JourneyID < b.JourneyID
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return ids[i] < ids[j]
	})
	return ids
}

// extractEmbeddedJobs promotes legacy phase-embedded job lists into
// first-class client-scoped job records and places them on their phase. The
// pass only runs while the jobs collection is empty: a populated collection
// means the snapshot already went through the relational upgrade.
func extractEmbeddedJobs(snapshot Snapshot) Snapshot {
	if len(snapshot.Jobs) > 0 {
		return snapshot
	}
	for _, phaseID := range sortedPhaseIDs(snapshot) {
		phase := snapshot.Phases[phaseID]
		items := textenc.ParseJobs(phase.JobsText)
		if len(items) == 0 {
			phase.JobsText = ""
			snapshot.Phases[phaseID] = phase
			continue
		}
		clientID, ok := journeyClientID(snapshot, phase.JourneyID)
		if !ok {
			continue
		}
		for i, item := range items {
			id := fmt.Sprintf("%s-job-%d", phaseID, i)
			priority := domain.LevelMedium
			if item.IsPriority {
				priority = domain.LevelHigh
			}
			tag := domain.JobTag(item.Tag)
			if !tag.Valid() {
				tag = domain.JobFunctional
			}
			job := Job{
				ClientID:   clientID,
				Name:       item.Name,
				Tag:        tag,
				Priority:   priority,
				InsightIDs: []string{},
			}
			job.ID = id
			job.CreatedAt = phase.CreatedAt
			job.UpdatedAt = phase.CreatedAt
			snapshot.Jobs[id] = job
			phase.JobIDs = append(phase.JobIDs, id)
		}
		phase.JobsText = ""
		snapshot.Phases[phaseID] = phase
	}
	return snapshot
}

// Batch size used when spreading extracted opportunities across horizons.
const horizonBatchSize = 4

// extractEmbeddedOpportunities promotes legacy phase-embedded opportunity
// lists into first-class kanban cards. Per client, extraction order follows
// the phase walk; the first three batches land on Horizon 1 through 3 and the
// remainder stays in the backlog. Like job extraction, the pass only runs
// while the opportunities collection is empty.
func extractEmbeddedOpportunities(snapshot Snapshot) Snapshot {
	if len(snapshot.Opportunities) > 0 {
		return snapshot
	}
	extractedPerClient := make(map[string]int)
	horizons := []domain.Stage{domain.StageHorizonOne, domain.StageHorizonTwo, domain.StageHorizonThree}
	for _, phaseID := range sortedPhaseIDs(snapshot) {
		phase := snapshot.Phases[phaseID]
		items := textenc.ParseOpportunities(phase.OpportunitiesText)
		if len(items) == 0 {
			phase.OpportunitiesText = ""
			snapshot.Phases[phaseID] = phase
			continue
		}
		clientID, ok := journeyClientID(snapshot, phase.JourneyID)
		if !ok {
			continue
		}
		journey := snapshot.Journeys[phase.JourneyID]
		for i, item := range items {
			id := item.ID
			if id == "" {
				id = fmt.Sprintf("%s-opp-%d", phaseID, i)
			}
			if _, taken := snapshot.Opportunities[id]; taken {
				id = fmt.Sprintf("%s-opp-%d", phaseID, i)
			}
			stage := domain.StageBacklog
			if batch := extractedPerClient[clientID] / horizonBatchSize; batch < len(horizons) {
				stage = horizons[batch]
			}
			extractedPerClient[clientID]++
			tag := domain.Level(item.Tag)
			if !tag.Valid() {
				tag = domain.LevelMedium
			}
			opp := Opportunity{
				ClientID:     clientID,
				ProjectID:    journey.ProjectID,
				JourneyID:    phase.JourneyID,
				PhaseID:      phaseID,
				Name:         item.Name,
				Tag:          tag,
				Stage:        stage,
				LinkedJobIDs: []string{},
			}
			opp.ID = id
			opp.CreatedAt = phase.CreatedAt
			opp.UpdatedAt = phase.CreatedAt
			snapshot.Opportunities[id] = opp
		}
		phase.OpportunitiesText = ""
		snapshot.Phases[phaseID] = phase
	}
	return snapshot
}

// backfillFields normalizes enumerations and folds retired fields into their
// replacements.
func backfillFields(snapshot Snapshot) Snapshot {
	for id, job := range snapshot.Jobs {
		if job.IsPriority != nil {
			if *job.IsPriority {
				job.Priority = domain.LevelHigh
			} else if !job.Priority.Valid() {
				job.Priority = domain.LevelMedium
			}
			job.IsPriority = nil
		}
		if !job.Tag.Valid() {
			job.Tag = domain.JobFunctional
		}
		if !job.Priority.Valid() {
			job.Priority = domain.LevelMedium
		}
		if job.InsightIDs == nil {
			job.InsightIDs = []string{}
		}
		snapshot.Jobs[id] = job
	}
	for id, insight := range snapshot.Insights {
		if !insight.Priority.Valid() {
			insight.Priority = domain.LevelMedium
		}
		snapshot.Insights[id] = insight
	}
	for id, opp := range snapshot.Opportunities {
		opp.Stage = domain.NormalizeStage(opp.Stage)
		if !opp.Tag.Valid() {
			opp.Tag = domain.LevelMedium
		}
		if opp.LinkedJobIDs == nil {
			opp.LinkedJobIDs = []string{}
		}
		snapshot.Opportunities[id] = opp
	}
	for id, phase := range snapshot.Phases {
		if phase.JobIDs == nil {
			phase.JobIDs = []string{}
			snapshot.Phases[id] = phase
		}
	}
	return snapshot
}

// filterLinks drops dangling and duplicate ids from every link slice.
func filterLinks(snapshot Snapshot) Snapshot {
	jobExists := func(id string) bool {
		_, ok := snapshot.Jobs[id]
		return ok
	}
	insightExists := func(id string) bool {
		_, ok := snapshot.Insights[id]
		return ok
	}
	for id, phase := range snapshot.Phases {
		if filtered, changed := filterIDs(phase.JobIDs, jobExists); changed {
			if filtered == nil {
				filtered = []string{}
			}
			phase.JobIDs = filtered
			snapshot.Phases[id] = phase
		}
	}
	for id, job := range snapshot.Jobs {
		if filtered, changed := filterIDs(job.InsightIDs, insightExists); changed {
			if filtered == nil {
				filtered = []string{}
			}
			job.InsightIDs = filtered
			snapshot.Jobs[id] = job
		}
	}
	for id, opp := range snapshot.Opportunities {
		if filtered, changed := filterIDs(opp.LinkedJobIDs, jobExists); changed {
			if filtered == nil {
				filtered = []string{}
			}
			opp.LinkedJobIDs = filtered
			snapshot.Opportunities[id] = opp
		}
	}
	return snapshot
}

// renumberOrderings restores contiguous 0..n-1 numbering for phases within a
// journey, insights within a client, and cards within a stage column.
func renumberOrderings(snapshot Snapshot) Snapshot {
	state := memoryStateFromSnapshot(snapshot)
	for journeyID := range snapshot.Journeys {
		for i, phase := range journeyPhases(&state, journeyID) {
			if phase.Order != i {
				stored := snapshot.Phases[phase.ID]
				stored.Order = i
				snapshot.Phases[phase.ID] = stored
			}
		}
	}
	for clientID := range snapshot.Clients {
		for i, insight := range clientInsights(&state, clientID) {
			if insight.Order != i {
				stored := snapshot.Insights[insight.ID]
				stored.Order = i
				snapshot.Insights[insight.ID] = stored
			}
		}
		for _, stage := range domain.Stages() {
			for i, opp := range stageOpportunities(&state, clientID, stage) {
				if opp.StageOrder != i {
					stored := snapshot.Opportunities[opp.ID]
					stored.StageOrder = i
					snapshot.Opportunities[opp.ID] = stored
				}
			}
		}
	}
	return snapshot
}

// dropStaleComments removes comments whose phase no longer exists or whose
// row key names neither a built-in row nor a live custom row of the phase's
// journey.
func dropStaleComments(snapshot Snapshot) Snapshot {
	for key := range snapshot.Comments {
		phaseID, rowKey, ok := domain.SplitCommentKey(key)
		if !ok {
			delete(snapshot.Comments, key)
			continue
		}
		phase, exists := snapshot.Phases[phaseID]
		if !exists {
			delete(snapshot.Comments, key)
			continue
		}
		if domain.IsBuiltinRowKey(rowKey) {
			continue
		}
		journey := snapshot.Journeys[phase.JourneyID]
		known := false
		for _, row := range journey.CustomRows {
			if row.ID == rowKey {
				known = true
				break
			}
		}
		if !known {
			delete(snapshot.Comments, key)
		}
	}
	return snapshot
}

// substituteDemoData replaces a structurally hollow snapshot with the demo
// workspace. Hollow means clients exist but the journey tree collapsed:
// losing every project, journey, or phase leaves nothing to render, and
// seeding known demo content beats presenting an empty shell. Client-scoped
// side collections (jobs, insights, opportunities) do not gate the swap;
// they can legitimately be empty.
func substituteDemoData(snapshot Snapshot) Snapshot {
	if len(snapshot.Clients) == 0 {
		return snapshot
	}
	if len(snapshot.Projects) > 0 && len(snapshot.Journeys) > 0 && len(snapshot.Phases) > 0 {
		return snapshot
	}
	return demoSnapshot()
}
