package core

import (
	"context"
	"time"
)

// Logger receives structured key-value log events from the service layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time; overridable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface. A nil function falls
// back to time.Now. Times are normalized to UTC.
type ClockFunc func() time.Time

// Now returns the clock's current UTC time.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// AuditStatus is the terminal state of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation string        `json:"operation"`
	Entity    EntityType    `json:"entity,omitempty"`
	Action    Action        `json:"action,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	Status    AuditStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditRecorder receives audit entries for completed operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes per-operation timing and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a started span.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// defaultTextDebounce is the delay between a deferred text write and the
// durable flush that persists it. Rapid typing collapses into one save.
const defaultTextDebounce = 400 * time.Millisecond

type serviceOptions struct {
	logger   Logger
	clock    Clock
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	debounce time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:   noopLogger{},
		clock:    ClockFunc(nil),
		audit:    noopAuditRecorder{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		debounce: defaultTextDebounce,
	}
}

// ServiceOption customizes service construction.
type ServiceOption func(*serviceOptions)

// WithLogger overrides the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAuditRecorder overrides the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder overrides the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithTextDebounce overrides the flush delay for deferred text writes. Zero
// or negative flushes synchronously.
func WithTextDebounce(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.debounce = d
	}
}

// operationMetadata maps audited operation names to the entity and action
// they act on. Operations absent from the map are not audited.
var operationMetadata = map[string]struct {
	entity EntityType
	action Action
}{
	"create_client":      {EntityClient, ActionCreate},
	"update_client":      {EntityClient, ActionUpdate},
	"delete_client":      {EntityClient, ActionDelete},
	"create_project":     {EntityProject, ActionCreate},
	"update_project":     {EntityProject, ActionUpdate},
	"delete_project":     {EntityProject, ActionDelete},
	"create_journey":     {EntityJourney, ActionCreate},
	"update_journey":     {EntityJourney, ActionUpdate},
	"delete_journey":     {EntityJourney, ActionDelete},
	"create_phase":       {EntityPhase, ActionCreate},
	"update_phase":       {EntityPhase, ActionUpdate},
	"delete_phase":       {EntityPhase, ActionDelete},
	"set_phase_text":     {EntityPhase, ActionUpdate},
	"reorder_phases":     {EntityJourney, ActionUpdate},
	"set_row_order":      {EntityJourney, ActionUpdate},
	"add_custom_row":     {EntityJourney, ActionUpdate},
	"rename_custom_row":  {EntityJourney, ActionUpdate},
	"delete_custom_row":  {EntityJourney, ActionUpdate},
	"set_custom_value":   {EntityPhase, ActionUpdate},
	"create_job":         {EntityJob, ActionCreate},
	"update_job":         {EntityJob, ActionUpdate},
	"delete_job":         {EntityJob, ActionDelete},
	"attach_job":         {EntityPhase, ActionUpdate},
	"detach_job":         {EntityPhase, ActionUpdate},
	"create_insight":     {EntityInsight, ActionCreate},
	"update_insight":     {EntityInsight, ActionUpdate},
	"delete_insight":     {EntityInsight, ActionDelete},
	"reorder_insights":   {EntityInsight, ActionUpdate},
	"link_insight":       {EntityJob, ActionUpdate},
	"unlink_insight":     {EntityJob, ActionUpdate},
	"create_opportunity": {EntityOpportunity, ActionCreate},
	"update_opportunity": {EntityOpportunity, ActionUpdate},
	"delete_opportunity": {EntityOpportunity, ActionDelete},
	"move_opportunity":   {EntityOpportunity, ActionUpdate},
	"reorder_stage":      {EntityOpportunity, ActionUpdate},
	"link_job":           {EntityOpportunity, ActionUpdate},
	"unlink_job":         {EntityOpportunity, ActionUpdate},
	"set_cell_comment":   {EntityCellComment, ActionUpdate},
	"add_comment_reply":  {EntityCellComment, ActionUpdate},
	"delete_comment":     {EntityCellComment, ActionDelete},
}
