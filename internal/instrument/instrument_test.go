package instrument

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shankh-dashboard/internal/config"
	"shankh-dashboard/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Enqueue(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestSpanParentage(t *testing.T) {
	sink := &captureSink{}
	tracer := NewTracer(sink)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx, root := tracer.StartSpan(ctx, "http", "request")
	_, child := tracer.StartSpan(ctx, "client", "GET")
	child.SetEntity("clients", "")
	child.End()
	child.End()
	root.End()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "client", events[0].Component)
	assert.Equal(t, "trace-1", events[0].TraceID)
	require.NotNil(t, events[0].ParentSpanID)
	assert.Equal(t, events[1].SpanID, *events[0].ParentSpanID)
	assert.Nil(t, events[1].ParentSpanID)
	require.NotNil(t, events[0].Entity)
	assert.Equal(t, "clients", *events[0].Entity)
}

func TestFromContextDefaultsToNoop(t *testing.T) {
	inst := FromContext(context.Background())
	_, span := inst.StartSpan(context.Background(), "x", "y")
	span.End()
	assert.Equal(t, "", span.TraceID())
}

func TestMiddlewarePropagatesTraceID(t *testing.T) {
	sink := &captureSink{}
	app := fiber.New()
	app.Use(Middleware(NewTracer(sink)))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(GetTraceID(c.UserContext()))
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get("X-Trace-ID"))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "abc", events[0].TraceID)
	require.NotNil(t, events[0].Status)
	assert.Equal(t, "ok", *events[0].Status)
}

func TestEventBufferFlushAndList(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, config.EventsConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ev.db")})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Bootstrap(ctx))

	buf := NewEventBuffer(s, 100, 60000)
	tracer := NewTracer(buf)
	tracer.Emit(WithTraceID(ctx, "t-9"), "record.created", "clients", "7", map[string]any{"n": 1})
	assert.Equal(t, 1, buf.Pending())
	buf.Stop()
	assert.Equal(t, 0, buf.Pending())

	app := fiber.New()
	app.Get("/_events", NewEventHandler(s).List)
	resp, err := app.Test(httptest.NewRequest("GET", "/_events?entity=clients", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "t-9", body.Data[0]["trace_id"])
	assert.Equal(t, "record.created", body.Data[0]["action"])

	n, err := CleanupOldEvents(ctx, s, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
