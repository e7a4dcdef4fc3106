// Package core exposes the journeycore service facade: transactional CRUD
// and ordering operations over the workspace schema, derived reads, snapshot
// archiving, and the storage/observability wiring around them.
package core

import "journeycore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Level              = domain.Level
	JobTag             = domain.JobTag
	Stage              = domain.Stage
	Severity           = domain.Severity
	Base               = domain.Base
	Client             = domain.Client
	Project            = domain.Project
	Journey            = domain.Journey
	CustomRow          = domain.CustomRow
	Phase              = domain.Phase
	Job                = domain.Job
	Insight            = domain.Insight
	Opportunity        = domain.Opportunity
	CellComment        = domain.CellComment
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	SaveError          = domain.SaveError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityClient      = domain.EntityClient
	EntityProject     = domain.EntityProject
	EntityJourney     = domain.EntityJourney
	EntityPhase       = domain.EntityPhase
	EntityJob         = domain.EntityJob
	EntityInsight     = domain.EntityInsight
	EntityOpportunity = domain.EntityOpportunity
	EntityCellComment = domain.EntityCellComment
)

const (
	LevelHigh   = domain.LevelHigh
	LevelMedium = domain.LevelMedium
	LevelLow    = domain.LevelLow
)

const (
	StageBacklog      = domain.StageBacklog
	StageInDiscovery  = domain.StageInDiscovery
	StageHorizonOne   = domain.StageHorizonOne
	StageHorizonTwo   = domain.StageHorizonTwo
	StageHorizonThree = domain.StageHorizonThree
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
