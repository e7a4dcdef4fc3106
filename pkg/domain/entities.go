// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by journeycore.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityClient identifies a client (tenant root) record.
	EntityClient EntityType = "client"
	// EntityProject identifies a meta-journey record.
	EntityProject EntityType = "project"
	// EntityJourney identifies a journey record.
	EntityJourney EntityType = "journey"
	// EntityPhase identifies a phase record.
	EntityPhase EntityType = "phase"
	// EntityJob identifies a customer job record.
	EntityJob EntityType = "job"
	// EntityInsight identifies a research insight record.
	EntityInsight EntityType = "insight"
	// EntityOpportunity identifies an opportunity record.
	EntityOpportunity EntityType = "opportunity"
	// EntityCellComment identifies a per-(phase,row) comment record.
	EntityCellComment EntityType = "cell_comment"
)

// Level grades struggles, opportunity impact, and priorities.
type Level string

// Canonical grading levels shared by struggle tags, opportunity tags, and priorities.
const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Valid reports whether the level is one of the canonical values.
func (l Level) Valid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// JobTag classifies a customer job.
type JobTag string

// Canonical job classifications.
const (
	JobFunctional JobTag = "Functional"
	JobSocial     JobTag = "Social"
	JobEmotional  JobTag = "Emotional"
)

// Valid reports whether the tag is one of the canonical values.
func (t JobTag) Valid() bool {
	switch t {
	case JobFunctional, JobSocial, JobEmotional:
		return true
	}
	return false
}

// Stage identifies an opportunity's kanban column.
type Stage string

// Canonical opportunity stages, in board order.
const (
	StageBacklog      Stage = "Backlog"
	StageInDiscovery  Stage = "In discovery"
	StageHorizonOne   Stage = "Horizon 1"
	StageHorizonTwo   Stage = "Horizon 2"
	StageHorizonThree Stage = "Horizon 3"
)

// Retired stage names rewritten by the snapshot migration.
const (
	legacyStageUnallocated Stage = "Unallocated"
	legacyStageInAnalysis  Stage = "In analysis"
)

// Stages lists the canonical stages in board order.
func Stages() []Stage {
	return []Stage{StageBacklog, StageInDiscovery, StageHorizonOne, StageHorizonTwo, StageHorizonThree}
}

// Valid reports whether the stage is one of the canonical values.
func (s Stage) Valid() bool {
	switch s {
	case StageBacklog, StageInDiscovery, StageHorizonOne, StageHorizonTwo, StageHorizonThree:
		return true
	}
	return false
}

// NormalizeStage maps retired stage names onto their replacements and defaults
// unknown values to the backlog.
func NormalizeStage(s Stage) Stage {
	switch s {
	case legacyStageUnallocated, "":
		return StageBacklog
	case legacyStageInAnalysis:
		return StageInDiscovery
	}
	if !s.Valid() {
		return StageBacklog
	}
	return s
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is the root of a tenant's tree.
type Client struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

// Project groups journeys under a client (a "meta-journey").
type Project struct {
	Base
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CustomRow is a user-defined data row displayed across a journey's phases.
type CustomRow struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Journey is an ordered sequence of phases describing one customer flow.
// RowOrder holds the display sequence of data rows: built-in row keys plus
// custom row ids. It always contains every built-in key and every custom row
// id, with no duplicates; the snapshot migration repairs persisted orders
// that predate newer built-ins.
type Journey struct {
	Base
	ProjectID  string      `json:"project_id"`
	Name       string      `json:"name"`
	RowOrder   []string    `json:"row_order"`
	CustomRows []CustomRow `json:"custom_rows"`
}

// Phase is one step of a journey. Free-text fields remain plain strings so
// the persistence schema stays minimal; the structured-list fields
// (struggles, related documents, and the legacy embedded job/opportunity
// lists) carry the textenc encodings.
type Phase struct {
	Base
	JourneyID string `json:"journey_id"`
	Name      string `json:"name"`
	Order     int    `json:"order"`

	Description       string `json:"description,omitempty"`
	CustomerActions   string `json:"customer_actions,omitempty"`
	CustomerStruggles string `json:"customer_struggles,omitempty"`
	InternalStruggles string `json:"internal_struggles,omitempty"`
	Systems           string `json:"systems,omitempty"`
	Departments       string `json:"departments,omitempty"`
	RelatedDocuments  string `json:"related_documents,omitempty"`

	// Legacy embedded encodings. The snapshot migration promotes their items
	// to top-level Jobs/Opportunities and clears the fields.
	JobsText          string `json:"jobs_text,omitempty"`
	OpportunitiesText string `json:"opportunities_text,omitempty"`

	JobIDs          []string          `json:"job_ids"`
	CustomRowValues map[string]string `json:"custom_row_values,omitempty"`
}

// Job is a customer job/goal owned by a client. Placement into phases is
// expressed only via Phase.JobIDs; a job may appear in any number of phases.
type Job struct {
	Base
	ClientID      string   `json:"client_id"`
	Name          string   `json:"name"`
	Tag           JobTag   `json:"tag"`
	Priority      Level    `json:"priority"`
	Circumstances []string `json:"circumstances,omitempty"`
	Outcomes      []string `json:"outcomes,omitempty"`
	InsightIDs    []string `json:"insight_ids"`

	// IsPriority is the retired boolean the Priority field replaced; the
	// snapshot migration folds it into Priority and clears it.
	IsPriority *bool `json:"is_priority,omitempty"`
}

// Insight is a client-scoped research finding, linkable from jobs.
type Insight struct {
	Base
	ClientID    string `json:"client_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    Level  `json:"priority"`
	Order       int    `json:"order"`
}

// Opportunity is an actionable improvement idea tracked on the kanban board.
// The project/journey/phase triple is denormalized from the phase it was
// raised against and is not re-validated on every write.
type Opportunity struct {
	Base
	ClientID     string   `json:"client_id"`
	ProjectID    string   `json:"project_id,omitempty"`
	JourneyID    string   `json:"journey_id,omitempty"`
	PhaseID      string   `json:"phase_id,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Tag          Level    `json:"tag"`
	Stage        Stage    `json:"stage"`
	StageOrder   int      `json:"stage_order"`
	LinkedJobIDs []string `json:"linked_job_ids"`
}

// CellComment is a free-text annotation attached to one (phase, row) cell.
// Replies are append-only strings; there is no per-reply identity.
type CellComment struct {
	Text    string   `json:"text"`
	Replies []string `json:"replies"`
}

// UnmarshalJSON accepts both the current object form and the legacy bare
// string form, which predates threaded replies.
func (c *CellComment) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Replies = []string{}
		return nil
	}
	type alias CellComment
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = CellComment(aux)
	if c.Replies == nil {
		c.Replies = []string{}
	}
	return nil
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
