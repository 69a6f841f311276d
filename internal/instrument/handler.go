package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"shankh-dashboard/internal/store"
)

// EventHandler exposes the event log over HTTP.
type EventHandler struct {
	store *store.Store
}

func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

var eventFilters = []string{"trace_id", "kind", "component", "action", "entity", "status"}

// List handles GET /_events. Supports equality filters, ?limit= (max 200) and ?offset=.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()

	var conditions []string
	for _, col := range eventFilters {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM _events%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		strings.Join(eventColumns, ", "), where, pb.Add(limit), pb.Add(offset))

	rows, err := store.QueryRows(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{"limit": limit, "offset": offset},
	})
}
