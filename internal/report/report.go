// Package report renders printable HTML documents: table reports and
// payment invoices.
package report

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type tableData struct {
	Title     string
	Generated string
	Headers   []string
	Rows      []table.Row
	Span      int
}

// Table writes a printable report of records using the table's cell
// formatting. Rows that fail to format appear as a placeholder line.
func Table(ctx context.Context, w io.Writer, tbl *table.Table, res *table.Resolution, records []table.Record, now time.Time) error {
	entity := tbl.Entity()
	headers := make([]string, len(entity.Fields))
	for i, f := range entity.Fields {
		headers[i] = f.Label
	}
	title := entity.Title
	if title == "" {
		title = entity.Name
	}
	data := tableData{
		Title:     title,
		Generated: now.Format("1/2/2006"),
		Headers:   headers,
		Rows:      tbl.Render(ctx, res, records),
		Span:      len(headers),
	}
	if err := templates.ExecuteTemplate(w, "report.html", data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

type invoiceData struct {
	InvoiceNumber    string
	Client           string
	Lot              string
	PaymentDate      string
	PaymentMethod    string
	PaymentStatus    string
	AmountPaid       string
	TotalDue         string
	BalanceRemaining string
	Notes            string
}

// Invoice writes a printable invoice for one client ledger payment. Client
// and lot are resolved from the given lookup collections.
func Invoice(w io.Writer, payment table.Record, clients, lots []map[string]any) error {
	data := invoiceData{
		InvoiceNumber:    format.ToString(payment["invoice_number"]),
		Client:           "Unknown Client",
		Lot:              "Unknown Lot",
		PaymentDate:      format.Date(payment["payment_date"]),
		PaymentMethod:    format.ToString(payment["payment_method"]),
		PaymentStatus:    format.ToString(payment["payment_status"]),
		AmountPaid:       money(payment["amount_paid"]),
		TotalDue:         money(payment["total_due"]),
		BalanceRemaining: money(payment["balance_remaining"]),
		Notes:            format.ToString(payment["notes"]),
	}
	if c := find(clients, "client_id", payment["client_id"]); c != nil {
		data.Client = format.ToString(c["name"]) + " - " + format.ToString(c["business_name"])
	}
	if l := find(lots, "lot_id", payment["lot_id"]); l != nil {
		data.Lot = "Lot #" + format.ToString(l["lot_id"])
	}
	if err := templates.ExecuteTemplate(w, "invoice.html", data); err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}
	return nil
}

// money treats missing or unparseable amounts as zero.
func money(v any) string {
	if _, ok := format.ParseNumber(v); !ok {
		v = 0.0
	}
	return format.Currency(v)
}

func find(records []map[string]any, key string, value any) map[string]any {
	if value == nil {
		return nil
	}
	for _, r := range records {
		if format.Equal(r[key], value) {
			return r
		}
	}
	return nil
}
