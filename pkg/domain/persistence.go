package domain

import (
	"context"
	"fmt"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
//
// Update and delete operations on existing records report whether the target
// id was found instead of returning an error: editors routinely race deletes
// against in-flight edits, and a mutation aimed at a record that is already
// gone is a no-op, not a failure. Creates still return errors because they
// validate parent references.
type Transaction interface {
	Snapshot() TransactionView

	CreateClient(Client) (Client, error)
	UpdateClient(id string, mutator func(*Client)) (Client, bool)
	DeleteClient(id string) bool
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project)) (Project, bool)
	DeleteProject(id string) bool
	CreateJourney(Journey) (Journey, error)
	UpdateJourney(id string, mutator func(*Journey)) (Journey, bool)
	DeleteJourney(id string) bool
	CreatePhase(Phase) (Phase, error)
	UpdatePhase(id string, mutator func(*Phase)) (Phase, bool)
	DeletePhase(id string) bool
	CreateJob(Job) (Job, error)
	UpdateJob(id string, mutator func(*Job)) (Job, bool)
	DeleteJob(id string) bool
	CreateInsight(Insight) (Insight, error)
	UpdateInsight(id string, mutator func(*Insight)) (Insight, bool)
	DeleteInsight(id string) bool
	CreateOpportunity(Opportunity) (Opportunity, error)
	UpdateOpportunity(id string, mutator func(*Opportunity)) (Opportunity, bool)
	DeleteOpportunity(id string) bool

	SetCellComment(phaseID, rowKey, text string) (CellComment, bool)
	AddCellCommentReply(phaseID, rowKey, reply string) (CellComment, bool)
	DeleteCellComment(phaseID, rowKey string) bool

	ReorderPhases(journeyID string, ids []string) bool
	ReorderInsights(clientID string, ids []string) bool
	MoveOpportunityToStage(id string, stage Stage, index int) bool
	ReorderOpportunitiesInStage(clientID string, stage Stage, ids []string) bool
	SetRowOrder(journeyID string, order []string) bool
	AddCustomRow(journeyID, label string) (CustomRow, bool)
	RenameCustomRow(journeyID, rowID, label string) bool
	DeleteCustomRow(journeyID, rowID string) bool

	AttachJobToPhase(phaseID, jobID string) bool
	DetachJobFromPhase(phaseID, jobID string) bool
	LinkJobToOpportunity(opportunityID, jobID string) bool
	UnlinkJobFromOpportunity(opportunityID, jobID string) bool
	LinkInsightToJob(jobID, insightID string) bool
	UnlinkInsightFromJob(jobID, insightID string) bool
}

// TransactionView provides read-only access to snapshot data for rules and
// derived reads.
type TransactionView interface {
	ListClients() []Client
	ListProjects() []Project
	ListJourneys() []Journey
	ListPhases() []Phase
	ListJobs() []Job
	ListInsights() []Insight
	ListOpportunities() []Opportunity
	ListCellComments() map[string]CellComment
	FindClient(id string) (Client, bool)
	FindProject(id string) (Project, bool)
	FindJourney(id string) (Journey, bool)
	FindPhase(id string) (Phase, bool)
	FindJob(id string) (Job, bool)
	FindInsight(id string) (Insight, bool)
	FindOpportunity(id string) (Opportunity, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
//
// RunInTransaction commits and persists. RunDeferred commits in memory but
// leaves durable persistence to a later Flush, which lets callers coalesce
// bursts of small writes (keystroke-level text edits) into one save.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	RunDeferred(ctx context.Context, fn func(Transaction) error) (Result, error)
	Flush(ctx context.Context) error
	View(ctx context.Context, fn func(TransactionView) error) error

	GetClient(id string) (Client, bool)
	ListClients() []Client
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetJourney(id string) (Journey, bool)
	ListJourneys() []Journey
	GetPhase(id string) (Phase, bool)
	ListPhases() []Phase
	GetJob(id string) (Job, bool)
	ListJobs() []Job
	GetInsight(id string) (Insight, bool)
	ListInsights() []Insight
	GetOpportunity(id string) (Opportunity, bool)
	ListOpportunities() []Opportunity
	GetCellComment(phaseID, rowKey string) (CellComment, bool)
	ListCellComments() map[string]CellComment
}

// SaveError wraps a durable-persistence failure. The in-memory commit that
// preceded the save has already taken effect; callers surface the error
// without rolling back.
type SaveError struct {
	Driver string
	Op     string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s: %s save failed: %v", e.Driver, e.Op, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
