package instrument

import "context"

// Noop discards all spans. Used when the event log is disabled.
type Noop struct{}

func (Noop) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (Noop) Emit(ctx context.Context, action, entity, recordID string, attrs map[string]any) {}

type noopSpan struct{}

func (noopSpan) End()                          {}
func (noopSpan) SetStatus(string)              {}
func (noopSpan) SetAttr(string, any)           {}
func (noopSpan) SetEntity(string, string)      {}
func (noopSpan) TraceID() string               { return "" }
