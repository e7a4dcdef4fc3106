// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"journeycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Client aliases domain.Client for in-memory persistence operations.
	Client = domain.Client
	// Project aliases domain.Project.
	Project = domain.Project
	// Journey aliases domain.Journey.
	Journey = domain.Journey
	// Phase aliases domain.Phase.
	Phase = domain.Phase
	// Job aliases domain.Job.
	Job = domain.Job
	// Insight aliases domain.Insight.
	Insight = domain.Insight
	// Opportunity aliases domain.Opportunity.
	Opportunity = domain.Opportunity
	// CellComment aliases domain.CellComment.
	CellComment = domain.CellComment
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	clients       map[string]Client
	projects      map[string]Project
	journeys      map[string]Journey
	phases        map[string]Phase
	jobs          map[string]Job
	insights      map[string]Insight
	opportunities map[string]Opportunity
	comments      map[string]CellComment
}

// Snapshot captures a point-in-time clone of the store state. Comment keys
// are composite phase/row identifiers; see domain.CommentKey.
type Snapshot struct {
	Clients       map[string]Client      `json:"clients"`
	Projects      map[string]Project     `json:"projects"`
	Journeys      map[string]Journey     `json:"journeys"`
	Phases        map[string]Phase       `json:"phases"`
	Jobs          map[string]Job         `json:"jobs"`
	Insights      map[string]Insight     `json:"insights"`
	Opportunities map[string]Opportunity `json:"opportunities"`
	Comments      map[string]CellComment `json:"comments"`
}

func newMemoryState() memoryState {
	return memoryState{
		clients:       make(map[string]Client),
		projects:      make(map[string]Project),
		journeys:      make(map[string]Journey),
		phases:        make(map[string]Phase),
		jobs:          make(map[string]Job),
		insights:      make(map[string]Insight),
		opportunities: make(map[string]Opportunity),
		comments:      make(map[string]CellComment),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Clients:       make(map[string]Client, len(state.clients)),
		Projects:      make(map[string]Project, len(state.projects)),
		Journeys:      make(map[string]Journey, len(state.journeys)),
		Phases:        make(map[string]Phase, len(state.phases)),
		Jobs:          make(map[string]Job, len(state.jobs)),
		Insights:      make(map[string]Insight, len(state.insights)),
		Opportunities: make(map[string]Opportunity, len(state.opportunities)),
		Comments:      make(map[string]CellComment, len(state.comments)),
	}
	for k, v := range state.clients {
		s.Clients[k] = cloneClient(v)
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.journeys {
		s.Journeys[k] = cloneJourney(v)
	}
	for k, v := range state.phases {
		s.Phases[k] = clonePhase(v)
	}
	for k, v := range state.jobs {
		s.Jobs[k] = cloneJob(v)
	}
	for k, v := range state.insights {
		s.Insights[k] = cloneInsight(v)
	}
	for k, v := range state.opportunities {
		s.Opportunities[k] = cloneOpportunity(v)
	}
	for k, v := range state.comments {
		s.Comments[k] = cloneComment(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Clients {
		state.clients[k] = cloneClient(v)
	}
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.Journeys {
		state.journeys[k] = cloneJourney(v)
	}
	for k, v := range s.Phases {
		state.phases[k] = clonePhase(v)
	}
	for k, v := range s.Jobs {
		state.jobs[k] = cloneJob(v)
	}
	for k, v := range s.Insights {
		state.insights[k] = cloneInsight(v)
	}
	for k, v := range s.Opportunities {
		state.opportunities[k] = cloneOpportunity(v)
	}
	for k, v := range s.Comments {
		state.comments[k] = cloneComment(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.clients {
		cloned.clients[k] = cloneClient(v)
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.journeys {
		cloned.journeys[k] = cloneJourney(v)
	}
	for k, v := range s.phases {
		cloned.phases[k] = clonePhase(v)
	}
	for k, v := range s.jobs {
		cloned.jobs[k] = cloneJob(v)
	}
	for k, v := range s.insights {
		cloned.insights[k] = cloneInsight(v)
	}
	for k, v := range s.opportunities {
		cloned.opportunities[k] = cloneOpportunity(v)
	}
	for k, v := range s.comments {
		cloned.comments[k] = cloneComment(v)
	}
	return cloned
}

func cloneClient(c Client) Client { return c }

func cloneProject(p Project) Project { return p }

func cloneJourney(j Journey) Journey {
	cp := j
	cp.RowOrder = append([]string(nil), j.RowOrder...)
	cp.CustomRows = append([]domain.CustomRow(nil), j.CustomRows...)
	return cp
}

func clonePhase(p Phase) Phase {
	cp := p
	cp.JobIDs = append([]string(nil), p.JobIDs...)
	if p.CustomRowValues != nil {
		cp.CustomRowValues = make(map[string]string, len(p.CustomRowValues))
		for k, v := range p.CustomRowValues {
			cp.CustomRowValues[k] = v
		}
	}
	return cp
}

func cloneJob(j Job) Job {
	cp := j
	cp.Circumstances = append([]string(nil), j.Circumstances...)
	cp.Outcomes = append([]string(nil), j.Outcomes...)
	cp.InsightIDs = append([]string(nil), j.InsightIDs...)
	if j.IsPriority != nil {
		v := *j.IsPriority
		cp.IsPriority = &v
	}
	return cp
}

func cloneInsight(i Insight) Insight { return i }

func cloneOpportunity(o Opportunity) Opportunity {
	cp := o
	cp.LinkedJobIDs = append([]string(nil), o.LinkedJobIDs...)
	return cp
}

func cloneComment(c CellComment) CellComment {
	cp := c
	cp.Replies = append([]string(nil), c.Replies...)
	return cp
}

func containsString(values []string, id string) bool {
	for _, existing := range values {
		if existing == id {
			return true
		}
	}
	return false
}

func removeString(values []string, id string) ([]string, bool) {
	for i, existing := range values {
		if existing == id {
			return append(values[:i:i], values[i+1:]...), true
		}
	}
	return values, false
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

// journeyPhases returns a journey's phases sorted by Order, with creation
// time and id as tiebreakers so renumbering stays deterministic.
func journeyPhases(state *memoryState, journeyID string) []Phase {
	var out []Phase
	for _, p := range state.phases {
		if p.JourneyID == journeyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// stageOpportunities returns a client's opportunities in one kanban stage
// sorted by StageOrder, with creation time and id as tiebreakers.
func stageOpportunities(state *memoryState, clientID string, stage domain.Stage) []Opportunity {
	var out []Opportunity
	for _, o := range state.opportunities {
		if o.ClientID == clientID && o.Stage == stage {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StageOrder != out[j].StageOrder {
			return out[i].StageOrder < out[j].StageOrder
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clientInsights(state *memoryState, clientID string) []Insight {
	var out []Insight
	for _, i := range state.insights {
		if i.ClientID == clientID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// phaseClientID resolves a phase's owning client via its journey and project.
func phaseClientID(state *memoryState, phaseID string) (string, bool) {
	phase, ok := state.phases[phaseID]
	if !ok {
		return "", false
	}
	journey, ok := state.journeys[phase.JourneyID]
	if !ok {
		return "", false
	}
	project, ok := state.projects[journey.ProjectID]
	if !ok {
		return "", false
	}
	return project.ClientID, true
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot after
// running the load-time migration over it.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// RunDeferred behaves like RunInTransaction. The in-memory store has no
// durable layer, so there is nothing to defer; persistent drivers override
// this to skip their save step.
func (s *Store) RunDeferred(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransaction(ctx, fn)
}

// Flush is a no-op for the in-memory store.
func (s *Store) Flush(context.Context) error {
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetClient retrieves a client by id.
func (s *Store) GetClient(id string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.clients[id]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// ListClients returns all clients.
func (s *Store) ListClients() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.state.clients))
	for _, c := range s.state.clients {
		out = append(out, cloneClient(c))
	}
	return out
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// GetJourney retrieves a journey by id.
func (s *Store) GetJourney(id string) (Journey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.state.journeys[id]
	if !ok {
		return Journey{}, false
	}
	return cloneJourney(j), true
}

// ListJourneys returns all journeys.
func (s *Store) ListJourneys() []Journey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Journey, 0, len(s.state.journeys))
	for _, j := range s.state.journeys {
		out = append(out, cloneJourney(j))
	}
	return out
}

// GetPhase retrieves a phase by id.
func (s *Store) GetPhase(id string) (Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.phases[id]
	if !ok {
		return Phase{}, false
	}
	return clonePhase(p), true
}

// ListPhases returns all phases.
func (s *Store) ListPhases() []Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Phase, 0, len(s.state.phases))
	for _, p := range s.state.phases {
		out = append(out, clonePhase(p))
	}
	return out
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.state.jobs[id]
	if !ok {
		return Job{}, false
	}
	return cloneJob(j), true
}

// ListJobs returns all jobs.
func (s *Store) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.state.jobs))
	for _, j := range s.state.jobs {
		out = append(out, cloneJob(j))
	}
	return out
}

// GetInsight retrieves an insight by id.
func (s *Store) GetInsight(id string) (Insight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.insights[id]
	if !ok {
		return Insight{}, false
	}
	return cloneInsight(i), true
}

// ListInsights returns all insights.
func (s *Store) ListInsights() []Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Insight, 0, len(s.state.insights))
	for _, i := range s.state.insights {
		out = append(out, cloneInsight(i))
	}
	return out
}

// GetOpportunity retrieves an opportunity by id.
func (s *Store) GetOpportunity(id string) (Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.opportunities[id]
	if !ok {
		return Opportunity{}, false
	}
	return cloneOpportunity(o), true
}

// ListOpportunities returns all opportunities.
func (s *Store) ListOpportunities() []Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Opportunity, 0, len(s.state.opportunities))
	for _, o := range s.state.opportunities {
		out = append(out, cloneOpportunity(o))
	}
	return out
}

// GetCellComment retrieves the comment for one (phase, row) cell.
func (s *Store) GetCellComment(phaseID, rowKey string) (CellComment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.comments[domain.CommentKey(phaseID, rowKey)]
	if !ok {
		return CellComment{}, false
	}
	return cloneComment(c), true
}

// ListCellComments returns all cell comments keyed by composite comment key.
func (s *Store) ListCellComments() map[string]CellComment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CellComment, len(s.state.comments))
	for k, c := range s.state.comments {
		out[k] = cloneComment(c)
	}
	return out
}

// ListClients returns all clients within the transaction snapshot.
func (v transactionView) ListClients() []Client {
	out := make([]Client, 0, len(v.state.clients))
	for _, c := range v.state.clients {
		out = append(out, cloneClient(c))
	}
	return out
}

// ListProjects returns all projects in the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// ListJourneys returns all journeys in the snapshot.
func (v transactionView) ListJourneys() []Journey {
	out := make([]Journey, 0, len(v.state.journeys))
	for _, j := range v.state.journeys {
		out = append(out, cloneJourney(j))
	}
	return out
}

// ListPhases returns all phases in the snapshot.
func (v transactionView) ListPhases() []Phase {
	out := make([]Phase, 0, len(v.state.phases))
	for _, p := range v.state.phases {
		out = append(out, clonePhase(p))
	}
	return out
}

// ListJobs returns all jobs in the snapshot.
func (v transactionView) ListJobs() []Job {
	out := make([]Job, 0, len(v.state.jobs))
	for _, j := range v.state.jobs {
		out = append(out, cloneJob(j))
	}
	return out
}

// ListInsights returns all insights in the snapshot.
func (v transactionView) ListInsights() []Insight {
	out := make([]Insight, 0, len(v.state.insights))
	for _, i := range v.state.insights {
		out = append(out, cloneInsight(i))
	}
	return out
}

// ListOpportunities returns all opportunities in the snapshot.
func (v transactionView) ListOpportunities() []Opportunity {
	out := make([]Opportunity, 0, len(v.state.opportunities))
	for _, o := range v.state.opportunities {
		out = append(out, cloneOpportunity(o))
	}
	return out
}

// ListCellComments returns all cell comments in the snapshot.
func (v transactionView) ListCellComments() map[string]CellComment {
	out := make(map[string]CellComment, len(v.state.comments))
	for k, c := range v.state.comments {
		out[k] = cloneComment(c)
	}
	return out
}

// FindClient retrieves a client by id from the snapshot.
func (v transactionView) FindClient(id string) (Client, bool) {
	c, ok := v.state.clients[id]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// FindProject retrieves a project by id from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindJourney retrieves a journey by id from the snapshot.
func (v transactionView) FindJourney(id string) (Journey, bool) {
	j, ok := v.state.journeys[id]
	if !ok {
		return Journey{}, false
	}
	return cloneJourney(j), true
}

// FindPhase retrieves a phase by id from the snapshot.
func (v transactionView) FindPhase(id string) (Phase, bool) {
	p, ok := v.state.phases[id]
	if !ok {
		return Phase{}, false
	}
	return clonePhase(p), true
}

// FindJob retrieves a job by id from the snapshot.
func (v transactionView) FindJob(id string) (Job, bool) {
	j, ok := v.state.jobs[id]
	if !ok {
		return Job{}, false
	}
	return cloneJob(j), true
}

// FindInsight retrieves an insight by id from the snapshot.
func (v transactionView) FindInsight(id string) (Insight, bool) {
	i, ok := v.state.insights[id]
	if !ok {
		return Insight{}, false
	}
	return cloneInsight(i), true
}

// FindOpportunity retrieves an opportunity by id from the snapshot.
func (v transactionView) FindOpportunity(id string) (Opportunity, bool) {
	o, ok := v.state.opportunities[id]
	if !ok {
		return Opportunity{}, false
	}
	return cloneOpportunity(o), true
}
