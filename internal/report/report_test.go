package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/table"
)

type noLookups struct{}

func (noLookups) Get(context.Context, string) []map[string]any { return nil }

func TestTableReport(t *testing.T) {
	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadDefault(reg))
	tbl := table.New(reg.GetEntity("workers"), reg, noLookups{}, nil)
	records := []table.Record{
		{"worker_id": 1.0, "name": "<b>Meena</b>", "rate_per_hour": 1250.5, "skill_type": "Welding", "created_at": "2024-01-15"},
	}

	var buf bytes.Buffer
	now := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Table(context.Background(), &buf, tbl, tbl.Resolve(context.Background()), records, now))

	html := buf.String()
	assert.Contains(t, html, "<title>Workers Report</title>")
	assert.Contains(t, html, "Generated on: 3/9/2024")
	assert.Contains(t, html, "<th>Rate Per Hour</th>")
	assert.Contains(t, html, "<td>$1,250.5</td>")
	assert.Contains(t, html, "<td>1/15/2024</td>")
	assert.Contains(t, html, "<td>-</td>")
	assert.Contains(t, html, "&lt;b&gt;Meena&lt;/b&gt;")
}

func TestInvoice(t *testing.T) {
	payment := table.Record{
		"payment_id": 5.0, "invoice_number": "INV-0005", "client_id": 1.0, "lot_id": 7.0,
		"payment_date": "2024-02-01", "payment_method": "Cash", "payment_status": "Partial",
		"amount_paid": 1500.0, "total_due": "4000",
	}
	clients := []map[string]any{{"client_id": 1.0, "name": "Asha", "business_name": "Asha Textiles"}}
	lots := []map[string]any{{"lot_id": 7.0}}

	var buf bytes.Buffer
	require.NoError(t, Invoice(&buf, payment, clients, lots))

	html := buf.String()
	assert.Contains(t, html, "<title>Invoice - INV-0005</title>")
	assert.Contains(t, html, "<td>Asha - Asha Textiles</td>")
	assert.Contains(t, html, "<td>Lot #7</td>")
	assert.Contains(t, html, "<td>2/1/2024</td>")
	assert.Contains(t, html, "<td>$1,500</td>")
	assert.Contains(t, html, "<td>$4,000</td>")
	assert.Contains(t, html, "<td>$0</td>", "missing balance renders as zero")
	assert.False(t, strings.Contains(html, "Notes:"))
}

func TestInvoice_UnknownReferences(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Invoice(&buf, table.Record{"client_id": 9.0, "notes": "call first"}, nil, nil))
	assert.Contains(t, buf.String(), "Unknown Client")
	assert.Contains(t, buf.String(), "Unknown Lot")
	assert.Contains(t, buf.String(), "<td>call first</td>")
}
