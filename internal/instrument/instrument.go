package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
)

// Instrumenter creates spans and one-shot events for the current request.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
	Emit(ctx context.Context, action, entity, recordID string, attrs map[string]any)
}

// Span is a timed operation. End enqueues it; calling End twice is a no-op.
type Span interface {
	End()
	SetStatus(status string)
	SetAttr(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
}

// Sink receives finished events. *EventBuffer is the production sink.
type Sink interface {
	Enqueue(event Event)
}

// Event is a row in the _events table.
type Event struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	Kind         string         `json:"kind"` // "span" or "event"
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Attrs        map[string]any `json:"attrs"`
	CreatedAt    time.Time      `json:"created_at"`
}

func newID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func parentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// FromContext returns the instrumenter carried by ctx, or a no-op one.
func FromContext(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return Noop{}
}

// Tracer is the real instrumenter; it hands finished spans to a Sink.
type Tracer struct {
	sink Sink
}

func NewTracer(sink Sink) *Tracer {
	return &Tracer{sink: sink}
}

func (t *Tracer) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = newID()
		ctx = WithTraceID(ctx, traceID)
	}
	s := &span{
		traceID:   traceID,
		spanID:    newID(),
		parentID:  parentSpanID(ctx),
		component: component,
		action:    action,
		start:     time.Now(),
		sink:      t.sink,
	}
	return withParentSpanID(ctx, s.spanID), s
}

func (t *Tracer) Emit(ctx context.Context, action, entity, recordID string, attrs map[string]any) {
	e := Event{
		ID:        newID(),
		TraceID:   GetTraceID(ctx),
		SpanID:    newID(),
		Kind:      "event",
		Component: "app",
		Action:    action,
		Attrs:     attrs,
		CreatedAt: time.Now(),
	}
	if p := parentSpanID(ctx); p != "" {
		e.ParentSpanID = &p
	}
	if entity != "" {
		e.Entity = &entity
	}
	if recordID != "" {
		e.RecordID = &recordID
	}
	t.sink.Enqueue(e)
}

type span struct {
	mu        sync.Mutex
	traceID   string
	spanID    string
	parentID  string
	component string
	action    string
	entity    *string
	recordID  *string
	status    *string
	attrs     map[string]any
	start     time.Time
	ended     bool
	sink      Sink
}

func (s *span) TraceID() string { return s.traceID }

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status
}

func (s *span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
}

func (s *span) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = &entity
	if recordID != "" {
		s.recordID = &recordID
	}
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	durationMs := float64(time.Since(s.start).Microseconds()) / 1000.0
	e := Event{
		ID:         newID(),
		TraceID:    s.traceID,
		SpanID:     s.spanID,
		Kind:       "span",
		Component:  s.component,
		Action:     s.action,
		Entity:     s.entity,
		RecordID:   s.recordID,
		DurationMs: &durationMs,
		Status:     s.status,
		Attrs:      s.attrs,
		CreatedAt:  s.start,
	}
	if s.parentID != "" {
		e.ParentSpanID = &s.parentID
	}
	s.sink.Enqueue(e)
}
