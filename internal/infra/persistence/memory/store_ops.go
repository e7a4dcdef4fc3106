package memory

import (
	"journeycore/pkg/domain"
)

// ReorderPhases applies a requested phase sequence within one journey. The
// requested ids (those that actually belong to the journey) take positions
// 0..k-1 in the given order; phases omitted from the request keep their prior
// relative order after them. The result is always a contiguous 0..n-1
// numbering.
func (tx *transaction) ReorderPhases(journeyID string, ids []string) bool {
	if _, ok := tx.state.journeys[journeyID]; !ok {
		return false
	}
	current := journeyPhases(&tx.state, journeyID)
	inJourney := make(map[string]struct{}, len(current))
	for _, p := range current {
		inJourney[p.ID] = struct{}{}
	}

	next := make([]string, 0, len(current))
	placed := make(map[string]struct{}, len(current))
	for _, id := range ids {
		if _, ok := inJourney[id]; !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		next = append(next, id)
	}
	for _, p := range current {
		if _, ok := placed[p.ID]; ok {
			continue
		}
		next = append(next, p.ID)
	}

	for i, id := range next {
		phase := tx.state.phases[id]
		if phase.Order != i {
			phase.Order = i
			phase.UpdatedAt = tx.now
			tx.state.phases[id] = phase
		}
	}
	return true
}

// ReorderInsights assigns positions 0..k-1 to the requested insight ids that
// belong to the client, in the given order. Insights omitted from the request
// keep their existing positions untouched.
func (tx *transaction) ReorderInsights(clientID string, ids []string) bool {
	if _, ok := tx.state.clients[clientID]; !ok {
		return false
	}
	pos := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		insight, ok := tx.state.insights[id]
		if !ok || insight.ClientID != clientID {
			continue
		}
		if insight.Order != pos {
			insight.Order = pos
			insight.UpdatedAt = tx.now
			tx.state.insights[id] = insight
		}
		pos++
	}
	return true
}

// MoveOpportunityToStage moves one card to a stage column at the requested
// index. The index is clamped to the destination column's bounds; both the
// source and destination columns come out contiguously numbered.
func (tx *transaction) MoveOpportunityToStage(id string, stage domain.Stage, index int) bool {
	opp, ok := tx.state.opportunities[id]
	if !ok {
		return false
	}
	before := cloneOpportunity(opp)
	stage = domain.NormalizeStage(stage)
	source := opp.Stage

	dest := make([]Opportunity, 0)
	for _, o := range stageOpportunities(&tx.state, opp.ClientID, stage) {
		if o.ID == id {
			continue
		}
		dest = append(dest, o)
	}
	if index < 0 {
		index = 0
	}
	if index > len(dest) {
		index = len(dest)
	}

	opp.Stage = stage
	opp.UpdatedAt = tx.now
	tx.state.opportunities[id] = opp

	order := 0
	for i, o := range dest {
		if i == index {
			order++
		}
		if o.StageOrder != order {
			o.StageOrder = order
			tx.state.opportunities[o.ID] = o
		}
		order++
	}
	moved := tx.state.opportunities[id]
	moved.StageOrder = index
	tx.state.opportunities[id] = moved

	if source != stage {
		tx.renumberStage(opp.ClientID, source)
	}
	tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionUpdate, Before: before, After: cloneOpportunity(moved)})
	return true
}

// ReorderOpportunitiesInStage applies a requested card sequence within one
// stage column. Requested ids that belong to the column come first in the
// given order; omitted cards follow in their prior relative order. The column
// comes out numbered 0..n-1.
func (tx *transaction) ReorderOpportunitiesInStage(clientID string, stage domain.Stage, ids []string) bool {
	if _, ok := tx.state.clients[clientID]; !ok {
		return false
	}
	stage = domain.NormalizeStage(stage)
	current := stageOpportunities(&tx.state, clientID, stage)
	inStage := make(map[string]struct{}, len(current))
	for _, o := range current {
		inStage[o.ID] = struct{}{}
	}

	next := make([]string, 0, len(current))
	placed := make(map[string]struct{}, len(current))
	for _, id := range ids {
		if _, ok := inStage[id]; !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		next = append(next, id)
	}
	for _, o := range current {
		if _, ok := placed[o.ID]; ok {
			continue
		}
		next = append(next, o.ID)
	}

	for i, id := range next {
		opp := tx.state.opportunities[id]
		if opp.StageOrder != i {
			opp.StageOrder = i
			opp.UpdatedAt = tx.now
			tx.state.opportunities[id] = opp
		}
	}
	return true
}

// SetRowOrder replaces a journey's row sequence. The stored order is
// normalized so it always covers every built-in key and custom row id.
func (tx *transaction) SetRowOrder(journeyID string, order []string) bool {
	journey, ok := tx.state.journeys[journeyID]
	if !ok {
		return false
	}
	journey.RowOrder = append([]string(nil), order...)
	journey.RowOrder = domain.OrderedRows(journey)
	journey.UpdatedAt = tx.now
	tx.state.journeys[journeyID] = cloneJourney(journey)
	return true
}

// AddCustomRow appends a user-defined row to a journey and places it at the
// end of the row order.
func (tx *transaction) AddCustomRow(journeyID, label string) (domain.CustomRow, bool) {
	journey, ok := tx.state.journeys[journeyID]
	if !ok {
		return domain.CustomRow{}, false
	}
	row := domain.CustomRow{ID: tx.store.newID(), Label: label}
	journey.CustomRows = append(journey.CustomRows, row)
	journey.RowOrder = append(journey.RowOrder, row.ID)
	journey.UpdatedAt = tx.now
	tx.state.journeys[journeyID] = cloneJourney(journey)
	return row, true
}

// RenameCustomRow updates a custom row's label.
func (tx *transaction) RenameCustomRow(journeyID, rowID, label string) bool {
	journey, ok := tx.state.journeys[journeyID]
	if !ok {
		return false
	}
	for i, row := range journey.CustomRows {
		if row.ID == rowID {
			journey.CustomRows[i].Label = label
			journey.UpdatedAt = tx.now
			tx.state.journeys[journeyID] = cloneJourney(journey)
			return true
		}
	}
	return false
}

// DeleteCustomRow removes a custom row from a journey along with every phase
// value and cell comment stored against it.
func (tx *transaction) DeleteCustomRow(journeyID, rowID string) bool {
	journey, ok := tx.state.journeys[journeyID]
	if !ok {
		return false
	}
	found := false
	rows := journey.CustomRows[:0]
	for _, row := range journey.CustomRows {
		if row.ID == rowID {
			found = true
			continue
		}
		rows = append(rows, row)
	}
	if !found {
		return false
	}
	journey.CustomRows = rows
	if trimmed, changed := removeString(journey.RowOrder, rowID); changed {
		journey.RowOrder = trimmed
	}
	journey.UpdatedAt = tx.now
	tx.state.journeys[journeyID] = cloneJourney(journey)

	for pid, phase := range tx.state.phases {
		if phase.JourneyID != journeyID {
			continue
		}
		if _, ok := phase.CustomRowValues[rowID]; ok {
			delete(phase.CustomRowValues, rowID)
			tx.state.phases[pid] = phase
		}
		delete(tx.state.comments, domain.CommentKey(pid, rowID))
	}
	return true
}

// SetCellComment creates or overwrites the comment text on one (phase, row)
// cell. Existing replies survive a text edit.
func (tx *transaction) SetCellComment(phaseID, rowKey, text string) (CellComment, bool) {
	if !tx.validCommentCell(phaseID, rowKey) {
		return CellComment{}, false
	}
	key := domain.CommentKey(phaseID, rowKey)
	comment, ok := tx.state.comments[key]
	if !ok {
		comment = CellComment{Replies: []string{}}
	}
	comment.Text = text
	tx.state.comments[key] = cloneComment(comment)
	tx.recordChange(Change{Entity: domain.EntityCellComment, Action: domain.ActionUpdate, After: cloneComment(comment)})
	return cloneComment(comment), true
}

// AddCellCommentReply appends a reply to an existing cell comment.
func (tx *transaction) AddCellCommentReply(phaseID, rowKey, reply string) (CellComment, bool) {
	key := domain.CommentKey(phaseID, rowKey)
	comment, ok := tx.state.comments[key]
	if !ok {
		return CellComment{}, false
	}
	comment.Replies = append(comment.Replies, reply)
	tx.state.comments[key] = cloneComment(comment)
	tx.recordChange(Change{Entity: domain.EntityCellComment, Action: domain.ActionUpdate, After: cloneComment(comment)})
	return cloneComment(comment), true
}

// DeleteCellComment removes a cell comment and its replies.
func (tx *transaction) DeleteCellComment(phaseID, rowKey string) bool {
	key := domain.CommentKey(phaseID, rowKey)
	comment, ok := tx.state.comments[key]
	if !ok {
		return false
	}
	delete(tx.state.comments, key)
	tx.recordChange(Change{Entity: domain.EntityCellComment, Action: domain.ActionDelete, Before: cloneComment(comment)})
	return true
}

// validCommentCell requires an existing phase and a row key that is either
// built-in or one of the journey's custom rows.
func (tx *transaction) validCommentCell(phaseID, rowKey string) bool {
	phase, ok := tx.state.phases[phaseID]
	if !ok {
		return false
	}
	if domain.IsBuiltinRowKey(rowKey) {
		return true
	}
	journey, ok := tx.state.journeys[phase.JourneyID]
	if !ok {
		return false
	}
	for _, row := range journey.CustomRows {
		if row.ID == rowKey {
			return true
		}
	}
	return false
}

// AttachJobToPhase places a job on a phase. The job must belong to the same
// client as the phase; duplicate placements are ignored.
func (tx *transaction) AttachJobToPhase(phaseID, jobID string) bool {
	phase, ok := tx.state.phases[phaseID]
	if !ok {
		return false
	}
	job, ok := tx.state.jobs[jobID]
	if !ok {
		return false
	}
	clientID, ok := phaseClientID(&tx.state, phaseID)
	if !ok || clientID != job.ClientID {
		return false
	}
	if containsString(phase.JobIDs, jobID) {
		return true
	}
	phase.JobIDs = append(phase.JobIDs, jobID)
	phase.UpdatedAt = tx.now
	tx.state.phases[phaseID] = clonePhase(phase)
	return true
}

// DetachJobFromPhase removes a job placement from a phase.
func (tx *transaction) DetachJobFromPhase(phaseID, jobID string) bool {
	phase, ok := tx.state.phases[phaseID]
	if !ok {
		return false
	}
	trimmed, changed := removeString(phase.JobIDs, jobID)
	if !changed {
		return false
	}
	phase.JobIDs = trimmed
	phase.UpdatedAt = tx.now
	tx.state.phases[phaseID] = clonePhase(phase)
	return true
}

// LinkJobToOpportunity connects a job to an opportunity within one client.
func (tx *transaction) LinkJobToOpportunity(opportunityID, jobID string) bool {
	opp, ok := tx.state.opportunities[opportunityID]
	if !ok {
		return false
	}
	job, ok := tx.state.jobs[jobID]
	if !ok || job.ClientID != opp.ClientID {
		return false
	}
	if containsString(opp.LinkedJobIDs, jobID) {
		return true
	}
	opp.LinkedJobIDs = append(opp.LinkedJobIDs, jobID)
	opp.UpdatedAt = tx.now
	tx.state.opportunities[opportunityID] = cloneOpportunity(opp)
	return true
}

// UnlinkJobFromOpportunity removes a job link from an opportunity.
func (tx *transaction) UnlinkJobFromOpportunity(opportunityID, jobID string) bool {
	opp, ok := tx.state.opportunities[opportunityID]
	if !ok {
		return false
	}
	trimmed, changed := removeString(opp.LinkedJobIDs, jobID)
	if !changed {
		return false
	}
	opp.LinkedJobIDs = trimmed
	opp.UpdatedAt = tx.now
	tx.state.opportunities[opportunityID] = cloneOpportunity(opp)
	return true
}

// LinkInsightToJob connects an insight to a job within one client.
func (tx *transaction) LinkInsightToJob(jobID, insightID string) bool {
	job, ok := tx.state.jobs[jobID]
	if !ok {
		return false
	}
	insight, ok := tx.state.insights[insightID]
	if !ok || insight.ClientID != job.ClientID {
		return false
	}
	if containsString(job.InsightIDs, insightID) {
		return true
	}
	job.InsightIDs = append(job.InsightIDs, insightID)
	job.UpdatedAt = tx.now
	tx.state.jobs[jobID] = cloneJob(job)
	return true
}

// UnlinkInsightFromJob removes an insight link from a job.
func (tx *transaction) UnlinkInsightFromJob(jobID, insightID string) bool {
	job, ok := tx.state.jobs[jobID]
	if !ok {
		return false
	}
	trimmed, changed := removeString(job.InsightIDs, insightID)
	if !changed {
		return false
	}
	job.InsightIDs = trimmed
	job.UpdatedAt = tx.now
	tx.state.jobs[jobID] = cloneJob(job)
	return true
}
