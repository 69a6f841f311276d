package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the dashboard API. Fixed sub-paths are registered
// before the generic /:id routes so they are matched first.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/schema", h.ListSchema)
	app.Get("/schema/:entity", h.GetSchema)

	tables := app.Group("/tables")
	tables.Get("/client_ledger/:id/invoice", h.Invoice)
	tables.Get("/client_ledger/:id/pdf", h.InvoicePDF)
	tables.Post("/client_orders/:id/image", h.UploadImage)

	tables.Get("/:entity", h.ListTable)
	tables.Get("/:entity/form", h.NewForm)
	tables.Get("/:entity/export.csv", h.ExportCSV)
	tables.Get("/:entity/template.csv", h.ImportTemplate)
	tables.Get("/:entity/report", h.Report)
	tables.Get("/:entity/:id/form", h.EditForm)
	tables.Post("/:entity/refresh", h.Refresh)
	tables.Post("/:entity/import", h.ImportCSV)
	tables.Post("/:entity", h.Create)
	tables.Put("/:entity/:id", h.Update)
	tables.Delete("/:entity/:id", h.Delete)

	app.Get("/lookups/:entity/options", h.LookupOptions)
	app.Post("/lookups/invalidate", h.InvalidateLookups)

	app.Get("/dashboard", h.Dashboard)
	app.Get("/notifications", h.Notifications)
}
