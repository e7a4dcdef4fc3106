package memory

import (
	"errors"
	"fmt"

	"journeycore/pkg/domain"
)

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateClient stores a new client within the transaction.
func (tx *transaction) CreateClient(c Client) (Client, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.clients[c.ID]; exists {
		return Client{}, fmt.Errorf("client %q already exists", c.ID)
	}
	if c.Name == "" {
		return Client{}, errors.New("client requires name")
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.clients[c.ID] = cloneClient(c)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionCreate, After: cloneClient(c)})
	return cloneClient(c), nil
}

// UpdateClient mutates a client. A false return means the id is unknown,
// which callers treat as a no-op rather than a failure.
func (tx *transaction) UpdateClient(id string, mutator func(*Client)) (Client, bool) {
	current, ok := tx.state.clients[id]
	if !ok {
		return Client{}, false
	}
	before := cloneClient(current)
	mutator(&current)
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.clients[id] = cloneClient(current)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionUpdate, Before: before, After: cloneClient(current)})
	return cloneClient(current), true
}

// DeleteClient removes a client and cascades across the entire tenant:
// projects, journeys, phases, jobs, insights, opportunities, and comments.
func (tx *transaction) DeleteClient(id string) bool {
	current, ok := tx.state.clients[id]
	if !ok {
		return false
	}
	for pid, project := range tx.state.projects {
		if project.ClientID == id {
			tx.deleteProjectCascade(pid, project)
		}
	}
	for jid, job := range tx.state.jobs {
		if job.ClientID == id {
			tx.deleteJobCascade(jid, job)
		}
	}
	for iid, insight := range tx.state.insights {
		if insight.ClientID == id {
			tx.deleteInsightCascade(iid, insight)
		}
	}
	for oid, opp := range tx.state.opportunities {
		if opp.ClientID == id {
			delete(tx.state.opportunities, oid)
			tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionDelete, Before: cloneOpportunity(opp)})
		}
	}
	delete(tx.state.clients, id)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionDelete, Before: cloneClient(current)})
	return true
}

// CreateProject stores a new project under an existing client.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	if p.ClientID == "" {
		return Project{}, errors.New("project requires client id")
	}
	if _, ok := tx.state.clients[p.ClientID]; !ok {
		return Project{}, fmt.Errorf("client %q not found", p.ClientID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project.
func (tx *transaction) UpdateProject(id string, mutator func(*Project)) (Project, bool) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	before := cloneProject(current)
	mutator(&current)
	current.ID = id
	current.ClientID = before.ClientID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), true
}

// DeleteProject removes a project and cascades to its journeys, their phases,
// opportunities raised against those phases, and cell comments. Jobs and
// insights are client-scoped and survive.
func (tx *transaction) DeleteProject(id string) bool {
	current, ok := tx.state.projects[id]
	if !ok {
		return false
	}
	tx.deleteProjectCascade(id, current)
	return true
}

func (tx *transaction) deleteProjectCascade(id string, current Project) {
	for jid, journey := range tx.state.journeys {
		if journey.ProjectID == id {
			tx.deleteJourneyCascade(jid, journey)
		}
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
}

// CreateJourney stores a new journey under an existing project. RowOrder is
// normalized so every built-in row key is present from the start.
func (tx *transaction) CreateJourney(j Journey) (Journey, error) {
	if j.ID == "" {
		j.ID = tx.store.newID()
	}
	if _, exists := tx.state.journeys[j.ID]; exists {
		return Journey{}, fmt.Errorf("journey %q already exists", j.ID)
	}
	if j.ProjectID == "" {
		return Journey{}, errors.New("journey requires project id")
	}
	if _, ok := tx.state.projects[j.ProjectID]; !ok {
		return Journey{}, fmt.Errorf("project %q not found", j.ProjectID)
	}
	j.CreatedAt = tx.now
	j.UpdatedAt = tx.now
	j.RowOrder = domain.OrderedRows(j)
	tx.state.journeys[j.ID] = cloneJourney(j)
	tx.recordChange(Change{Entity: domain.EntityJourney, Action: domain.ActionCreate, After: cloneJourney(j)})
	return cloneJourney(j), nil
}

// UpdateJourney mutates an existing journey and re-normalizes its row order.
func (tx *transaction) UpdateJourney(id string, mutator func(*Journey)) (Journey, bool) {
	current, ok := tx.state.journeys[id]
	if !ok {
		return Journey{}, false
	}
	before := cloneJourney(current)
	mutator(&current)
	current.ID = id
	current.ProjectID = before.ProjectID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.RowOrder = domain.OrderedRows(current)
	tx.state.journeys[id] = cloneJourney(current)
	tx.recordChange(Change{Entity: domain.EntityJourney, Action: domain.ActionUpdate, Before: before, After: cloneJourney(current)})
	return cloneJourney(current), true
}

// DeleteJourney removes a journey and cascades to its phases, opportunities
// raised against those phases, and cell comments.
func (tx *transaction) DeleteJourney(id string) bool {
	current, ok := tx.state.journeys[id]
	if !ok {
		return false
	}
	tx.deleteJourneyCascade(id, current)
	return true
}

func (tx *transaction) deleteJourneyCascade(id string, current Journey) {
	for pid, phase := range tx.state.phases {
		if phase.JourneyID == id {
			tx.deletePhaseCascade(pid, phase)
		}
	}
	delete(tx.state.journeys, id)
	tx.recordChange(Change{Entity: domain.EntityJourney, Action: domain.ActionDelete, Before: cloneJourney(current)})
}

// CreatePhase appends a new phase at the end of its journey.
func (tx *transaction) CreatePhase(p Phase) (Phase, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.phases[p.ID]; exists {
		return Phase{}, fmt.Errorf("phase %q already exists", p.ID)
	}
	if p.JourneyID == "" {
		return Phase{}, errors.New("phase requires journey id")
	}
	if _, ok := tx.state.journeys[p.JourneyID]; !ok {
		return Phase{}, fmt.Errorf("journey %q not found", p.JourneyID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	p.Order = 0
	if existing := journeyPhases(&tx.state, p.JourneyID); len(existing) > 0 {
		p.Order = existing[len(existing)-1].Order + 1
	}
	if p.JobIDs == nil {
		p.JobIDs = []string{}
	}
	tx.state.phases[p.ID] = clonePhase(p)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionCreate, After: clonePhase(p)})
	return clonePhase(p), nil
}

// UpdatePhase mutates an existing phase. Order and journey membership are
// protected; ReorderPhases is the sanctioned way to move phases.
func (tx *transaction) UpdatePhase(id string, mutator func(*Phase)) (Phase, bool) {
	current, ok := tx.state.phases[id]
	if !ok {
		return Phase{}, false
	}
	before := clonePhase(current)
	mutator(&current)
	current.ID = id
	current.JourneyID = before.JourneyID
	current.Order = before.Order
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if filtered, changed := filterIDs(current.JobIDs, func(jid string) bool {
		_, ok := tx.state.jobs[jid]
		return ok
	}); changed {
		current.JobIDs = filtered
	}
	tx.state.phases[id] = clonePhase(current)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionUpdate, Before: before, After: clonePhase(current)})
	return clonePhase(current), true
}

// DeletePhase removes a phase, the opportunities raised against it, and its
// cell comments, then renumbers the journey's remaining phases. Jobs placed
// on the phase survive; only the placement goes away.
func (tx *transaction) DeletePhase(id string) bool {
	current, ok := tx.state.phases[id]
	if !ok {
		return false
	}
	tx.deletePhaseCascade(id, current)
	tx.renumberPhases(current.JourneyID)
	return true
}

func (tx *transaction) deletePhaseCascade(id string, current Phase) {
	touched := make(map[string]map[domain.Stage]struct{})
	for oid, opp := range tx.state.opportunities {
		if opp.PhaseID == id {
			delete(tx.state.opportunities, oid)
			tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionDelete, Before: cloneOpportunity(opp)})
			if touched[opp.ClientID] == nil {
				touched[opp.ClientID] = make(map[domain.Stage]struct{})
			}
			touched[opp.ClientID][opp.Stage] = struct{}{}
		}
	}
	for clientID, stages := range touched {
		for stage := range stages {
			tx.renumberStage(clientID, stage)
		}
	}
	for key := range tx.state.comments {
		phaseID, _, ok := domain.SplitCommentKey(key)
		if ok && phaseID == id {
			delete(tx.state.comments, key)
		}
	}
	delete(tx.state.phases, id)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionDelete, Before: clonePhase(current)})
}

func (tx *transaction) renumberPhases(journeyID string) {
	for i, phase := range journeyPhases(&tx.state, journeyID) {
		if phase.Order != i {
			phase.Order = i
			tx.state.phases[phase.ID] = phase
		}
	}
}

func (tx *transaction) renumberStage(clientID string, stage domain.Stage) {
	for i, opp := range stageOpportunities(&tx.state, clientID, stage) {
		if opp.StageOrder != i {
			opp.StageOrder = i
			tx.state.opportunities[opp.ID] = opp
		}
	}
}

// CreateJob stores a new client-scoped job. Invalid tags and priorities are
// normalized rather than rejected.
func (tx *transaction) CreateJob(j Job) (Job, error) {
	if j.ID == "" {
		j.ID = tx.store.newID()
	}
	if _, exists := tx.state.jobs[j.ID]; exists {
		return Job{}, fmt.Errorf("job %q already exists", j.ID)
	}
	if j.ClientID == "" {
		return Job{}, errors.New("job requires client id")
	}
	if _, ok := tx.state.clients[j.ClientID]; !ok {
		return Job{}, fmt.Errorf("client %q not found", j.ClientID)
	}
	if !j.Tag.Valid() {
		j.Tag = domain.JobFunctional
	}
	if !j.Priority.Valid() {
		j.Priority = domain.LevelMedium
	}
	j.IsPriority = nil
	if j.InsightIDs == nil {
		j.InsightIDs = []string{}
	}
	j.CreatedAt = tx.now
	j.UpdatedAt = tx.now
	tx.state.jobs[j.ID] = cloneJob(j)
	tx.recordChange(Change{Entity: domain.EntityJob, Action: domain.ActionCreate, After: cloneJob(j)})
	return cloneJob(j), nil
}

// UpdateJob mutates an existing job.
func (tx *transaction) UpdateJob(id string, mutator func(*Job)) (Job, bool) {
	current, ok := tx.state.jobs[id]
	if !ok {
		return Job{}, false
	}
	before := cloneJob(current)
	mutator(&current)
	current.ID = id
	current.ClientID = before.ClientID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if !current.Tag.Valid() {
		current.Tag = domain.JobFunctional
	}
	if !current.Priority.Valid() {
		current.Priority = domain.LevelMedium
	}
	if filtered, changed := filterIDs(current.InsightIDs, func(iid string) bool {
		_, ok := tx.state.insights[iid]
		return ok
	}); changed {
		current.InsightIDs = filtered
	}
	tx.state.jobs[id] = cloneJob(current)
	tx.recordChange(Change{Entity: domain.EntityJob, Action: domain.ActionUpdate, Before: before, After: cloneJob(current)})
	return cloneJob(current), true
}

// DeleteJob removes a job and strips its id from every phase placement and
// opportunity link that referenced it.
func (tx *transaction) DeleteJob(id string) bool {
	current, ok := tx.state.jobs[id]
	if !ok {
		return false
	}
	tx.deleteJobCascade(id, current)
	return true
}

func (tx *transaction) deleteJobCascade(id string, current Job) {
	for pid, phase := range tx.state.phases {
		if trimmed, changed := removeString(phase.JobIDs, id); changed {
			phase.JobIDs = trimmed
			tx.state.phases[pid] = phase
		}
	}
	for oid, opp := range tx.state.opportunities {
		if trimmed, changed := removeString(opp.LinkedJobIDs, id); changed {
			opp.LinkedJobIDs = trimmed
			tx.state.opportunities[oid] = opp
		}
	}
	delete(tx.state.jobs, id)
	tx.recordChange(Change{Entity: domain.EntityJob, Action: domain.ActionDelete, Before: cloneJob(current)})
}

// CreateInsight appends a new insight at the end of the client's list.
func (tx *transaction) CreateInsight(i Insight) (Insight, error) {
	if i.ID == "" {
		i.ID = tx.store.newID()
	}
	if _, exists := tx.state.insights[i.ID]; exists {
		return Insight{}, fmt.Errorf("insight %q already exists", i.ID)
	}
	if i.ClientID == "" {
		return Insight{}, errors.New("insight requires client id")
	}
	if _, ok := tx.state.clients[i.ClientID]; !ok {
		return Insight{}, fmt.Errorf("client %q not found", i.ClientID)
	}
	if !i.Priority.Valid() {
		i.Priority = domain.LevelMedium
	}
	i.Order = 0
	if existing := clientInsights(&tx.state, i.ClientID); len(existing) > 0 {
		i.Order = existing[len(existing)-1].Order + 1
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.insights[i.ID] = cloneInsight(i)
	tx.recordChange(Change{Entity: domain.EntityInsight, Action: domain.ActionCreate, After: cloneInsight(i)})
	return cloneInsight(i), nil
}

// UpdateInsight mutates an existing insight. Order is protected;
// ReorderInsights is the sanctioned way to move insights.
func (tx *transaction) UpdateInsight(id string, mutator func(*Insight)) (Insight, bool) {
	current, ok := tx.state.insights[id]
	if !ok {
		return Insight{}, false
	}
	before := cloneInsight(current)
	mutator(&current)
	current.ID = id
	current.ClientID = before.ClientID
	current.Order = before.Order
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if !current.Priority.Valid() {
		current.Priority = domain.LevelMedium
	}
	tx.state.insights[id] = cloneInsight(current)
	tx.recordChange(Change{Entity: domain.EntityInsight, Action: domain.ActionUpdate, Before: before, After: cloneInsight(current)})
	return cloneInsight(current), true
}

// DeleteInsight removes an insight and strips its id from every job link.
func (tx *transaction) DeleteInsight(id string) bool {
	current, ok := tx.state.insights[id]
	if !ok {
		return false
	}
	tx.deleteInsightCascade(id, current)
	return true
}

func (tx *transaction) deleteInsightCascade(id string, current Insight) {
	for jid, job := range tx.state.jobs {
		if trimmed, changed := removeString(job.InsightIDs, id); changed {
			job.InsightIDs = trimmed
			tx.state.jobs[jid] = job
		}
	}
	delete(tx.state.insights, id)
	tx.recordChange(Change{Entity: domain.EntityInsight, Action: domain.ActionDelete, Before: cloneInsight(current)})
}

// CreateOpportunity appends a new opportunity at the bottom of its stage
// column. The stage is normalized and the phase lineage, when supplied, is
// trusted as-is; it is denormalized context, not a foreign key.
func (tx *transaction) CreateOpportunity(o Opportunity) (Opportunity, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.opportunities[o.ID]; exists {
		return Opportunity{}, fmt.Errorf("opportunity %q already exists", o.ID)
	}
	if o.ClientID == "" {
		return Opportunity{}, errors.New("opportunity requires client id")
	}
	if _, ok := tx.state.clients[o.ClientID]; !ok {
		return Opportunity{}, fmt.Errorf("client %q not found", o.ClientID)
	}
	if !o.Tag.Valid() {
		o.Tag = domain.LevelMedium
	}
	o.Stage = domain.NormalizeStage(o.Stage)
	o.StageOrder = len(stageOpportunities(&tx.state, o.ClientID, o.Stage))
	if o.LinkedJobIDs == nil {
		o.LinkedJobIDs = []string{}
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.opportunities[o.ID] = cloneOpportunity(o)
	tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionCreate, After: cloneOpportunity(o)})
	return cloneOpportunity(o), nil
}

// UpdateOpportunity mutates an existing opportunity. Stage and stage order
// are protected; MoveOpportunityToStage is the sanctioned way to move cards.
func (tx *transaction) UpdateOpportunity(id string, mutator func(*Opportunity)) (Opportunity, bool) {
	current, ok := tx.state.opportunities[id]
	if !ok {
		return Opportunity{}, false
	}
	before := cloneOpportunity(current)
	mutator(&current)
	current.ID = id
	current.ClientID = before.ClientID
	current.Stage = before.Stage
	current.StageOrder = before.StageOrder
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if !current.Tag.Valid() {
		current.Tag = domain.LevelMedium
	}
	if filtered, changed := filterIDs(current.LinkedJobIDs, func(jid string) bool {
		_, ok := tx.state.jobs[jid]
		return ok
	}); changed {
		current.LinkedJobIDs = filtered
	}
	tx.state.opportunities[id] = cloneOpportunity(current)
	tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionUpdate, Before: before, After: cloneOpportunity(current)})
	return cloneOpportunity(current), true
}

// DeleteOpportunity removes an opportunity and closes the gap in its stage
// column.
func (tx *transaction) DeleteOpportunity(id string) bool {
	current, ok := tx.state.opportunities[id]
	if !ok {
		return false
	}
	delete(tx.state.opportunities, id)
	tx.renumberStage(current.ClientID, current.Stage)
	tx.recordChange(Change{Entity: domain.EntityOpportunity, Action: domain.ActionDelete, Before: cloneOpportunity(current)})
	return true
}
