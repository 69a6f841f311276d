package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"shankh-dashboard/internal/collection"
	"shankh-dashboard/internal/dashboard"
	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/lookup"
	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/table"
)

// PDFSource returns the backend-rendered invoice for a payment.
type PDFSource interface {
	LedgerPDF(ctx context.Context, paymentID string) ([]byte, string, error)
}

type Deps struct {
	Registry    *metadata.Registry
	Lookups     *lookup.Resolver
	Collections *collection.Store
	Dashboard   *dashboard.Service
	PDFs        PDFSource
	Images      table.ImageUploader
	// MaxImport bounds the size of an uploaded CSV file; 0 means 8 MiB.
	MaxImport int64
}

type Handler struct {
	registry    *metadata.Registry
	lookups     *lookup.Resolver
	collections *collection.Store
	dashboard   *dashboard.Service
	pdfs        PDFSource
	images      table.ImageUploader
	maxImport   int64
	now         func() time.Time
}

func NewHandler(d Deps) *Handler {
	maxImport := d.MaxImport
	if maxImport <= 0 {
		maxImport = 8 << 20
	}
	return &Handler{
		registry:    d.Registry,
		lookups:     d.Lookups,
		collections: d.Collections,
		dashboard:   d.Dashboard,
		pdfs:        d.PDFs,
		images:      d.Images,
		maxImport:   maxImport,
		now:         time.Now,
	}
}

type column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ListSchema handles GET /schema
func (h *Handler) ListSchema(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllEntities()})
}

// GetSchema handles GET /schema/:entity
func (h *Handler) GetSchema(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entity})
}

// ListTable handles GET /tables/:entity?search=
// The collection is loaded on first access. A failed load is reported in the
// payload's error field rather than as an HTTP error.
func (h *Handler) ListTable(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	h.ensureLoaded(ctx, entity.Name)

	tbl := h.table(entity)
	res := tbl.Resolve(ctx)
	state := h.collections.State(entity.Name)
	matched := tbl.Search(res, state.Records, c.Query("search"))

	columns := make([]column, len(entity.Fields))
	for i, f := range entity.Fields {
		columns[i] = column{Key: f.Name, Label: f.Label, Type: f.Type.String()}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"entity":     entity.Name,
			"title":      entity.Title,
			"columns":    columns,
			"rows":       tbl.Render(ctx, res, matched),
			"total":      len(state.Records),
			"matched":    len(matched),
			"loading":    state.Loading,
			"error":      state.Error,
			"fetched_at": state.FetchedAt,
		},
	})
}

// Refresh handles POST /tables/:entity/refresh
func (h *Handler) Refresh(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	if err := h.collections.Fetch(c.UserContext(), entity.Name); err != nil {
		return upstream(err)
	}
	return c.JSON(fiber.Map{"data": h.collections.State(entity.Name)})
}

// NewForm handles GET /tables/:entity/form
func (h *Handler) NewForm(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	tbl := h.table(entity)
	return h.respondForm(c, tbl, tbl.NewForm())
}

// EditForm handles GET /tables/:entity/:id/form
func (h *Handler) EditForm(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	rec, err := h.findRecord(c.UserContext(), entity, id)
	if err != nil {
		return err
	}
	tbl := h.table(entity)
	return h.respondForm(c, tbl, tbl.EditForm(rec))
}

// Create handles POST /tables/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	tbl := h.table(entity)
	form := tbl.NewForm()
	form.Values = body
	result, err := tbl.SubmitCreate(c.UserContext(), form)
	if err != nil {
		return err
	}
	h.announce(c.UserContext(), entity.Name, result)
	return c.Status(201).JSON(fiber.Map{"data": submitPayload(result)})
}

// Update handles PUT /tables/:entity/:id
// The body may carry only the changed fields. They are validated merged over
// the stored record, and only they are sent to the backend.
func (h *Handler) Update(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	rec, err := h.findRecord(c.UserContext(), entity, id)
	if err != nil {
		return err
	}
	tbl := h.table(entity)
	form := tbl.EditForm(rec)
	form.EditingID = id
	form.Apply(body)

	result, err := tbl.SubmitUpdate(c.UserContext(), form)
	if err != nil {
		return err
	}
	h.announce(c.UserContext(), entity.Name, result)
	return c.JSON(fiber.Map{"data": submitPayload(result)})
}

// Delete handles DELETE /tables/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := h.table(entity).Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// LookupOptions handles GET /lookups/:entity/options
// ?display= and ?secondary= pick the label fields; display defaults to name.
func (h *Handler) LookupOptions(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	ref := metadata.LookupRef{
		Entity:         entity.Name,
		DisplayField:   c.Query("display", "name"),
		SecondaryField: c.Query("secondary"),
	}
	return c.JSON(fiber.Map{"data": h.lookups.Options(c.UserContext(), entity.Name, ref)})
}

// InvalidateLookups handles POST /lookups/invalidate?entity=
func (h *Handler) InvalidateLookups(c *fiber.Ctx) error {
	name := c.Query("entity")
	if name == "" {
		h.lookups.InvalidateAll()
		return c.JSON(fiber.Map{"data": fiber.Map{"invalidated": "all"}})
	}
	if h.registry.GetEntity(name) == nil {
		return UnknownEntityError(name)
	}
	h.lookups.Invalidate(name)
	return c.JSON(fiber.Map{"data": fiber.Map{"invalidated": name}})
}

// Dashboard handles GET /dashboard
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	snap, err := h.dashboard.Snapshot(c.UserContext())
	if err != nil {
		return upstream(err)
	}
	return c.JSON(fiber.Map{"data": snap})
}

// Notifications handles GET /notifications?limit=
func (h *Handler) Notifications(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(collection.DefaultFeedCapacity)))
	if limit < 1 {
		limit = collection.DefaultFeedCapacity
	}
	return c.JSON(fiber.Map{"data": h.collections.Feed().Recent(limit)})
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Entity, error) {
	name := c.Params("entity")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownEntityError(name)
	}
	return entity, nil
}

func (h *Handler) table(entity *metadata.Entity) *table.Table {
	tbl := table.New(entity, h.registry, h.lookups, h.collections)
	if h.images != nil {
		tbl.WithImageUploader(h.images)
	}
	return tbl
}

func (h *Handler) ensureLoaded(ctx context.Context, entity string) {
	state := h.collections.State(entity)
	if !state.FetchedAt.IsZero() || state.Loading {
		return
	}
	if err := h.collections.Fetch(ctx, entity); err != nil {
		slog.WarnContext(ctx, "Initial load failed", "entity", entity, "err", err)
	}
}

func (h *Handler) cachedRecord(entity *metadata.Entity, id string) table.Record {
	idField := entity.IDField()
	for _, rec := range h.collections.Records(entity.Name) {
		if format.ToString(rec[idField]) == id {
			return rec
		}
	}
	return table.Record{}
}

// findRecord looks in the cached collection, loading it once if the record
// is not there.
func (h *Handler) findRecord(ctx context.Context, entity *metadata.Entity, id string) (table.Record, error) {
	if rec := h.cachedRecord(entity, id); len(rec) > 0 {
		return rec, nil
	}
	if err := h.collections.Fetch(ctx, entity.Name); err != nil {
		return nil, upstream(err)
	}
	if rec := h.cachedRecord(entity, id); len(rec) > 0 {
		return rec, nil
	}
	return nil, NotFoundError(entity.Name, id)
}

func (h *Handler) respondForm(c *fiber.Ctx, tbl *table.Table, form *table.Form) error {
	options := func(ctx context.Context, ref metadata.LookupRef) []lookup.Choice {
		return h.lookups.Options(ctx, ref.Entity, ref)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"mode":       form.Mode,
			"editing_id": form.EditingID,
			"fields":     tbl.Describe(c.UserContext(), form, options),
		},
	})
}

// announce pushes the submission's notice, if any, to the notification feed.
func (h *Handler) announce(ctx context.Context, entity string, result table.SubmitResult) {
	if result.Notice == "" {
		return
	}
	level := collection.LevelInfo
	if result.ImageErr != nil {
		level = collection.LevelError
	}
	h.collections.Feed().Push(ctx, level, entity, result.Notice)
}

func submitPayload(result table.SubmitResult) fiber.Map {
	m := fiber.Map{"notice": result.Notice}
	if result.ImageErr != nil {
		m["image_error"] = result.ImageErr.Error()
	}
	return m
}

func parseBody(c *fiber.Ctx) (table.Record, error) {
	var body table.Record
	if err := c.BodyParser(&body); err != nil || body == nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	return body, nil
}

// upstream reports a failed backend read.
func upstream(err error) error {
	if appErr := toAppError(err); appErr != nil {
		return appErr
	}
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		msg = inner.Error()
	}
	return UpstreamError(msg)
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// ErrorHandler renders every error returned by a route as an ErrorResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr := toAppError(err); appErr != nil {
		return respondError(c, appErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return respondError(c, NewAppError("ERROR", fiberErr.Code, fiberErr.Message))
	}

	slog.ErrorContext(c.UserContext(), "Unhandled error", "method", c.Method(), "path", c.Path(), "err", err)
	return respondError(c, NewAppError("INTERNAL_ERROR", 500, "Internal server error"))
}
