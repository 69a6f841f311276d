package instrument

import (
	"github.com/gofiber/fiber/v2"
)

// Middleware starts a root span per request, propagating X-Trace-ID when the
// caller sends one. A nil instrumenter disables tracing.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if inst == nil {
			return c.Next()
		}

		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newID()
		}

		ctx := WithTraceID(c.UserContext(), traceID)
		ctx = WithInstrumenter(ctx, inst)
		ctx, span := inst.StartSpan(ctx, "http", "request")
		span.SetAttr("method", c.Method())
		span.SetAttr("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttr("status_code", status)
		if err != nil || status >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}
