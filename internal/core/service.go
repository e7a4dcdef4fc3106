package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"journeycore/internal/infra/persistence/memory"
	"journeycore/pkg/domain"
)

// Service exposes higher-level transactional operations for the workspace
// schema. Every mutation runs through the configured PersistentStore and is
// wrapped with logging, metrics, tracing, and audit recording.
//
// Durable-save failures do not roll back the in-memory commit; the service
// absorbs them into a sticky save error (see LastSaveError) so editors keep
// working while the UI surfaces the failed save.
type Service struct {
	store    PersistentStore
	logger   Logger
	clock    Clock
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	debounce time.Duration

	mu         sync.Mutex
	flushTimer *time.Timer
	saveErr    *SaveError
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:    store,
		logger:   options.logger,
		clock:    options.clock,
		audit:    options.audit,
		metrics:  options.metrics,
		tracer:   options.tracer,
		debounce: options.debounce,
	}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine gets an empty one.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// ErrNotFound is returned when an operation targets a record that does not
// exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// run executes fn in a committing transaction wrapped with observability.
// entityID may be nil; when fn fills it, the audit entry carries it.
func (s *Service) run(ctx context.Context, op string, entityID *string, fn func(Transaction) error) (Result, error) {
	return s.execute(ctx, op, entityID, fn, false)
}

// runDeferred commits in memory only; callers schedule the durable flush.
func (s *Service) runDeferred(ctx context.Context, op string, entityID *string, fn func(Transaction) error) (Result, error) {
	return s.execute(ctx, op, entityID, fn, true)
}

func (s *Service) execute(ctx context.Context, op string, entityID *string, fn func(Transaction) error, deferred bool) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()

	var res Result
	var err error
	if deferred {
		res, err = s.store.RunDeferred(ctx, fn)
	} else {
		res, err = s.store.RunInTransaction(ctx, fn)
	}
	duration := time.Since(start)

	var saveErr *SaveError
	if errors.As(err, &saveErr) {
		// The in-memory commit already took effect; remember the failed save
		// and report the operation as applied.
		s.noteSaveError(saveErr)
		s.logger.Error("durable save failed", "op", op, "driver", saveErr.Driver, "error", saveErr.Err)
		err = nil
	} else if err == nil && !deferred {
		s.clearSaveError()
	}

	id := ""
	if entityID != nil {
		id = *entityID
	}
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "op", op, "error", err)
		s.recordAuditError(ctx, op, id, err, duration)
	} else {
		s.logger.Debug("operation applied", "op", op, "entity_id", id, "duration", duration)
		s.recordAuditSuccess(ctx, op, id, duration)
	}
	return res, err
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	meta, ok := operationMetadata[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, err error, duration time.Duration) {
	meta, ok := operationMetadata[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Error:     err.Error(),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

// LastSaveError returns the most recent durable-save failure, or nil when the
// last save succeeded.
func (s *Service) LastSaveError() *SaveError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

// ClearSaveError discards the sticky save error.
func (s *Service) ClearSaveError() { s.clearSaveError() }

func (s *Service) noteSaveError(err *SaveError) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

func (s *Service) clearSaveError() {
	s.mu.Lock()
	s.saveErr = nil
	s.mu.Unlock()
}

// scheduleFlush arms the debounced durable save after a deferred commit. A
// zero debounce flushes synchronously.
func (s *Service) scheduleFlush() {
	if s.debounce <= 0 {
		s.flushNow(context.Background())
		return
	}
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(s.debounce, func() {
		s.flushNow(context.Background())
	})
	s.mu.Unlock()
}

func (s *Service) flushNow(ctx context.Context) {
	err := s.store.Flush(ctx)
	if err == nil {
		s.clearSaveError()
		return
	}
	var saveErr *SaveError
	if errors.As(err, &saveErr) {
		s.noteSaveError(saveErr)
		s.logger.Error("flush failed", "driver", saveErr.Driver, "error", saveErr.Err)
		return
	}
	s.logger.Error("flush failed", "error", err)
}

// Flush forces any pending deferred writes to durable storage.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.mu.Unlock()
	err := s.store.Flush(ctx)
	if err == nil {
		s.clearSaveError()
	}
	return err
}

// Close flushes pending writes and closes the store when it supports it.
func (s *Service) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return flushErr
}

// --- Clients ---

// CreateClient persists a new client.
func (s *Service) CreateClient(ctx context.Context, client Client) (Client, Result, error) {
	var created Client
	var id string
	res, err := s.run(ctx, "create_client", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateClient(client)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateClient mutates a client using the provided mutator.
func (s *Service) UpdateClient(ctx context.Context, id string, mutator func(*Client)) (Client, Result, error) {
	var updated Client
	res, err := s.run(ctx, "update_client", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateClient(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityClient, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteClient removes a client and its entire subtree. Deleting an id that
// is already gone reports deleted=false without error.
func (s *Service) DeleteClient(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_client", &id, func(tx Transaction) error {
		deleted = tx.DeleteClient(id)
		return nil
	})
	return deleted, res, err
}

// --- Projects ---

// CreateProject persists a new project under an existing client.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	var id string
	res, err := s.run(ctx, "create_project", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateProject mutates a project.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project)) (Project, Result, error) {
	var updated Project
	res, err := s.run(ctx, "update_project", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateProject(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityProject, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteProject removes a project and its journeys.
func (s *Service) DeleteProject(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_project", &id, func(tx Transaction) error {
		deleted = tx.DeleteProject(id)
		return nil
	})
	return deleted, res, err
}

// --- Journeys ---

// CreateJourney persists a new journey under an existing project.
func (s *Service) CreateJourney(ctx context.Context, journey Journey) (Journey, Result, error) {
	var created Journey
	var id string
	res, err := s.run(ctx, "create_journey", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateJourney(journey)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateJourney mutates a journey.
func (s *Service) UpdateJourney(ctx context.Context, id string, mutator func(*Journey)) (Journey, Result, error) {
	var updated Journey
	res, err := s.run(ctx, "update_journey", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateJourney(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityJourney, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteJourney removes a journey and its phases.
func (s *Service) DeleteJourney(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_journey", &id, func(tx Transaction) error {
		deleted = tx.DeleteJourney(id)
		return nil
	})
	return deleted, res, err
}

// --- Phases ---

// CreatePhase persists a new phase at the end of its journey.
func (s *Service) CreatePhase(ctx context.Context, phase Phase) (Phase, Result, error) {
	var created Phase
	var id string
	res, err := s.run(ctx, "create_phase", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePhase(phase)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdatePhase mutates a phase.
func (s *Service) UpdatePhase(ctx context.Context, id string, mutator func(*Phase)) (Phase, Result, error) {
	var updated Phase
	res, err := s.run(ctx, "update_phase", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdatePhase(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityPhase, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeletePhase removes a phase, its board cards, and its comments, renumbering
// the remaining phases.
func (s *Service) DeletePhase(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_phase", &id, func(tx Transaction) error {
		deleted = tx.DeletePhase(id)
		return nil
	})
	return deleted, res, err
}

// --- Jobs ---

// CreateJob persists a new client-scoped job.
func (s *Service) CreateJob(ctx context.Context, job Job) (Job, Result, error) {
	var created Job
	var id string
	res, err := s.run(ctx, "create_job", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateJob(job)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateJob mutates a job.
func (s *Service) UpdateJob(ctx context.Context, id string, mutator func(*Job)) (Job, Result, error) {
	var updated Job
	res, err := s.run(ctx, "update_job", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateJob(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityJob, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteJob removes a job and strips it from phase placements and
// opportunity links.
func (s *Service) DeleteJob(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_job", &id, func(tx Transaction) error {
		deleted = tx.DeleteJob(id)
		return nil
	})
	return deleted, res, err
}

// --- Insights ---

// CreateInsight persists a new client-scoped insight at the end of the list.
func (s *Service) CreateInsight(ctx context.Context, insight Insight) (Insight, Result, error) {
	var created Insight
	var id string
	res, err := s.run(ctx, "create_insight", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateInsight(insight)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateInsight mutates an insight.
func (s *Service) UpdateInsight(ctx context.Context, id string, mutator func(*Insight)) (Insight, Result, error) {
	var updated Insight
	res, err := s.run(ctx, "update_insight", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateInsight(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityInsight, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteInsight removes an insight and strips it from job links.
func (s *Service) DeleteInsight(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_insight", &id, func(tx Transaction) error {
		deleted = tx.DeleteInsight(id)
		return nil
	})
	return deleted, res, err
}

// --- Opportunities ---

// CreateOpportunity persists a new board card at the end of its stage.
func (s *Service) CreateOpportunity(ctx context.Context, opp Opportunity) (Opportunity, Result, error) {
	var created Opportunity
	var id string
	res, err := s.run(ctx, "create_opportunity", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateOpportunity(opp)
		id = created.ID
		return err
	})
	return created, res, err
}

// UpdateOpportunity mutates an opportunity. Stage and position are protected;
// use MoveOpportunityToStage.
func (s *Service) UpdateOpportunity(ctx context.Context, id string, mutator func(*Opportunity)) (Opportunity, Result, error) {
	var updated Opportunity
	res, err := s.run(ctx, "update_opportunity", &id, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdateOpportunity(id, mutator)
		if !ok {
			return ErrNotFound{Entity: EntityOpportunity, ID: id}
		}
		return nil
	})
	return updated, res, err
}

// DeleteOpportunity removes a board card and renumbers its stage.
func (s *Service) DeleteOpportunity(ctx context.Context, id string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_opportunity", &id, func(tx Transaction) error {
		deleted = tx.DeleteOpportunity(id)
		return nil
	})
	return deleted, res, err
}

// --- Ordering ---

// ReorderPhases applies the requested in-journey phase order; omitted phases
// keep their relative order after the requested ones.
func (s *Service) ReorderPhases(ctx context.Context, journeyID string, ids []string) (Result, error) {
	return s.run(ctx, "reorder_phases", &journeyID, func(tx Transaction) error {
		if !tx.ReorderPhases(journeyID, ids) {
			return ErrNotFound{Entity: EntityJourney, ID: journeyID}
		}
		return nil
	})
}

// ReorderInsights applies the requested order to a client's insight list.
func (s *Service) ReorderInsights(ctx context.Context, clientID string, ids []string) (Result, error) {
	return s.run(ctx, "reorder_insights", &clientID, func(tx Transaction) error {
		if !tx.ReorderInsights(clientID, ids) {
			return ErrNotFound{Entity: EntityClient, ID: clientID}
		}
		return nil
	})
}

// MoveOpportunityToStage moves a board card into stage at index, clamping the
// index and renumbering both stages.
func (s *Service) MoveOpportunityToStage(ctx context.Context, id string, stage Stage, index int) (Result, error) {
	return s.run(ctx, "move_opportunity", &id, func(tx Transaction) error {
		if !tx.MoveOpportunityToStage(id, stage, index) {
			return ErrNotFound{Entity: EntityOpportunity, ID: id}
		}
		return nil
	})
}

// ReorderOpportunitiesInStage applies the requested card order within one
// stage of a client's board.
func (s *Service) ReorderOpportunitiesInStage(ctx context.Context, clientID string, stage Stage, ids []string) (Result, error) {
	return s.run(ctx, "reorder_stage", &clientID, func(tx Transaction) error {
		if !tx.ReorderOpportunitiesInStage(clientID, stage, ids) {
			return ErrNotFound{Entity: EntityClient, ID: clientID}
		}
		return nil
	})
}

// SetRowOrder stores a journey's row display order, normalized against the
// built-in and custom rows.
func (s *Service) SetRowOrder(ctx context.Context, journeyID string, order []string) (Result, error) {
	return s.run(ctx, "set_row_order", &journeyID, func(tx Transaction) error {
		if !tx.SetRowOrder(journeyID, order) {
			return ErrNotFound{Entity: EntityJourney, ID: journeyID}
		}
		return nil
	})
}

// AddCustomRow appends a user-defined row to a journey.
func (s *Service) AddCustomRow(ctx context.Context, journeyID, label string) (CustomRow, Result, error) {
	var row CustomRow
	res, err := s.run(ctx, "add_custom_row", &journeyID, func(tx Transaction) error {
		var ok bool
		row, ok = tx.AddCustomRow(journeyID, label)
		if !ok {
			return ErrNotFound{Entity: EntityJourney, ID: journeyID}
		}
		return nil
	})
	return row, res, err
}

// RenameCustomRow relabels a journey's custom row.
func (s *Service) RenameCustomRow(ctx context.Context, journeyID, rowID, label string) (Result, error) {
	return s.run(ctx, "rename_custom_row", &journeyID, func(tx Transaction) error {
		if !tx.RenameCustomRow(journeyID, rowID, label) {
			return ErrNotFound{Entity: EntityJourney, ID: journeyID}
		}
		return nil
	})
}

// DeleteCustomRow removes a custom row along with its per-phase values and
// comments.
func (s *Service) DeleteCustomRow(ctx context.Context, journeyID, rowID string) (Result, error) {
	return s.run(ctx, "delete_custom_row", &journeyID, func(tx Transaction) error {
		if !tx.DeleteCustomRow(journeyID, rowID) {
			return ErrNotFound{Entity: EntityJourney, ID: journeyID}
		}
		return nil
	})
}

// --- Comments ---

// SetCellComment creates or edits the comment on one (phase, row) cell.
// Existing replies survive a text edit.
func (s *Service) SetCellComment(ctx context.Context, phaseID, rowKey, text string) (CellComment, Result, error) {
	var comment CellComment
	res, err := s.run(ctx, "set_cell_comment", &phaseID, func(tx Transaction) error {
		var ok bool
		comment, ok = tx.SetCellComment(phaseID, rowKey, text)
		if !ok {
			return ErrNotFound{Entity: EntityCellComment, ID: domain.CommentKey(phaseID, rowKey)}
		}
		return nil
	})
	return comment, res, err
}

// AddCellCommentReply appends a reply to an existing cell comment.
func (s *Service) AddCellCommentReply(ctx context.Context, phaseID, rowKey, reply string) (CellComment, Result, error) {
	var comment CellComment
	res, err := s.run(ctx, "add_comment_reply", &phaseID, func(tx Transaction) error {
		var ok bool
		comment, ok = tx.AddCellCommentReply(phaseID, rowKey, reply)
		if !ok {
			return ErrNotFound{Entity: EntityCellComment, ID: domain.CommentKey(phaseID, rowKey)}
		}
		return nil
	})
	return comment, res, err
}

// DeleteCellComment removes a cell comment and its replies.
func (s *Service) DeleteCellComment(ctx context.Context, phaseID, rowKey string) (bool, Result, error) {
	var deleted bool
	res, err := s.run(ctx, "delete_comment", &phaseID, func(tx Transaction) error {
		deleted = tx.DeleteCellComment(phaseID, rowKey)
		return nil
	})
	return deleted, res, err
}

// --- Links ---

// AttachJobToPhase places a job on a phase. Attaching a job that is already
// placed is a no-op.
func (s *Service) AttachJobToPhase(ctx context.Context, phaseID, jobID string) (Result, error) {
	return s.run(ctx, "attach_job", &phaseID, func(tx Transaction) error {
		if !tx.AttachJobToPhase(phaseID, jobID) {
			return ErrNotFound{Entity: EntityPhase, ID: phaseID}
		}
		return nil
	})
}

// DetachJobFromPhase removes a job placement from a phase.
func (s *Service) DetachJobFromPhase(ctx context.Context, phaseID, jobID string) (Result, error) {
	return s.run(ctx, "detach_job", &phaseID, func(tx Transaction) error {
		if !tx.DetachJobFromPhase(phaseID, jobID) {
			return ErrNotFound{Entity: EntityPhase, ID: phaseID}
		}
		return nil
	})
}

// LinkJobToOpportunity links a same-client job to a board card.
func (s *Service) LinkJobToOpportunity(ctx context.Context, opportunityID, jobID string) (Result, error) {
	return s.run(ctx, "link_job", &opportunityID, func(tx Transaction) error {
		if !tx.LinkJobToOpportunity(opportunityID, jobID) {
			return ErrNotFound{Entity: EntityOpportunity, ID: opportunityID}
		}
		return nil
	})
}

// UnlinkJobFromOpportunity removes a job link from a board card.
func (s *Service) UnlinkJobFromOpportunity(ctx context.Context, opportunityID, jobID string) (Result, error) {
	return s.run(ctx, "unlink_job", &opportunityID, func(tx Transaction) error {
		if !tx.UnlinkJobFromOpportunity(opportunityID, jobID) {
			return ErrNotFound{Entity: EntityOpportunity, ID: opportunityID}
		}
		return nil
	})
}

// LinkInsightToJob links a same-client insight to a job.
func (s *Service) LinkInsightToJob(ctx context.Context, jobID, insightID string) (Result, error) {
	return s.run(ctx, "link_insight", &jobID, func(tx Transaction) error {
		if !tx.LinkInsightToJob(jobID, insightID) {
			return ErrNotFound{Entity: EntityJob, ID: jobID}
		}
		return nil
	})
}

// UnlinkInsightFromJob removes an insight link from a job.
func (s *Service) UnlinkInsightFromJob(ctx context.Context, jobID, insightID string) (Result, error) {
	return s.run(ctx, "unlink_insight", &jobID, func(tx Transaction) error {
		if !tx.UnlinkInsightFromJob(jobID, insightID) {
			return ErrNotFound{Entity: EntityJob, ID: jobID}
		}
		return nil
	})
}
