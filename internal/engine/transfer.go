package engine

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"shankh-dashboard/internal/collection"
	"shankh-dashboard/internal/csvio"
	"shankh-dashboard/internal/report"
)

// ExportCSV handles GET /tables/:entity/export.csv?search=
// Only the rows matching the current search are exported.
func (h *Handler) ExportCSV(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	h.ensureLoaded(ctx, entity.Name)

	tbl := h.table(entity)
	res := tbl.Resolve(ctx)
	records := tbl.Search(res, h.collections.Records(entity.Name), c.Query("search"))

	var buf bytes.Buffer
	if err := csvio.Export(&buf, records, entity, res); err != nil {
		return fmt.Errorf("export %s: %w", entity.Name, err)
	}
	filename := strings.ReplaceAll(strings.ToLower(entity.Title), " ", "_") + "_export.csv"
	return sendCSV(c, filename, buf.Bytes())
}

// ImportTemplate handles GET /tables/:entity/template.csv
func (h *Handler) ImportTemplate(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	return sendCSV(c, entity.Name+"_template.csv", []byte(csvio.Template(entity)))
}

// ImportCSV handles POST /tables/:entity/import with the file in multipart
// field "file". The whole file is rejected if any row fails validation.
func (h *Handler) ImportCSV(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return InvalidPayloadError("A CSV file is required in field \"file\"")
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		return InvalidPayloadError("Please select a CSV file")
	}
	if fh.Size > h.maxImport {
		return NewAppError("PAYLOAD_TOO_LARGE", 413, "CSV file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, h.maxImport))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	ctx := c.UserContext()
	tbl := h.table(entity)
	result := csvio.ValidateImport(csvio.Parse(string(content)), entity, entity.ImportRequired, tbl.Resolve(ctx))
	if !result.Valid() {
		return ImportInvalidError(result.Errors)
	}
	if len(result.Records) == 0 {
		return ImportInvalidError([]csvio.ImportError{{Row: 0, Column: "general", Message: "No valid records found in CSV"}})
	}

	if err := h.collections.Import(ctx, entity.Name, result.Records); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"imported": len(result.Records)}})
}

// Report handles GET /tables/:entity/report?search=
func (h *Handler) Report(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	h.ensureLoaded(ctx, entity.Name)

	tbl := h.table(entity)
	res := tbl.Resolve(ctx)
	records := tbl.Search(res, h.collections.Records(entity.Name), c.Query("search"))

	var buf bytes.Buffer
	if err := report.Table(ctx, &buf, tbl, res, records, h.now()); err != nil {
		return fmt.Errorf("render %s report: %w", entity.Name, err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// Invoice handles GET /tables/client_ledger/:id/invoice
func (h *Handler) Invoice(c *fiber.Ctx) error {
	entity := h.registry.GetEntity("client_ledger")
	if entity == nil {
		return UnknownEntityError("client_ledger")
	}
	ctx := c.UserContext()
	payment, err := h.findRecord(ctx, entity, c.Params("id"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.Invoice(&buf, payment, h.lookups.Get(ctx, "clients"), h.lookups.Get(ctx, "lots")); err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// InvoicePDF handles GET /tables/client_ledger/:id/pdf by relaying the
// backend's document.
func (h *Handler) InvoicePDF(c *fiber.Ctx) error {
	id := c.Params("id")
	data, contentType, err := h.pdfs.LedgerPDF(c.UserContext(), id)
	if err != nil {
		return upstream(err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"invoice_%s.pdf\"", id))
	return c.Send(data)
}

// UploadImage handles POST /tables/client_orders/:id/image with the image in
// multipart field "design_image".
func (h *Handler) UploadImage(c *fiber.Ctx) error {
	if h.images == nil {
		return NewAppError("NOT_SUPPORTED", 501, "Image uploads are not configured")
	}
	fh, err := c.FormFile("design_image")
	if err != nil {
		return InvalidPayloadError("An image is required in field \"design_image\"")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.images.UploadOrderImage(ctx, id, fh.Filename, f); err != nil {
		if appErr := toAppError(err); appErr != nil {
			return appErr
		}
		return UpstreamError("Failed to upload image: " + err.Error())
	}

	h.lookups.Invalidate("client_orders")
	if err := h.collections.Fetch(ctx, "client_orders"); err != nil {
		return upstream(err)
	}
	h.collections.Feed().Push(ctx, collection.LevelSuccess, "client_orders", "Image uploaded successfully")
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func sendCSV(c *fiber.Ctx, filename string, body []byte) error {
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"%s\"", filename))
	return c.Send(body)
}
