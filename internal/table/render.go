package table

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
)

const (
	missingCell    = "-"
	rowPlaceholder = "Unable to render row"
)

type Tone string

const (
	ToneGreen  Tone = "green"
	ToneRed    Tone = "red"
	ToneYellow Tone = "yellow"
	ToneBlue   Tone = "blue"
	ToneOrange Tone = "orange"
	ToneGray   Tone = "gray"
)

var statusTones = map[string]Tone{
	"active":      ToneGreen,
	"inactive":    ToneRed,
	"pending":     ToneYellow,
	"completed":   ToneBlue,
	"in progress": ToneOrange,
	"delivered":   ToneGreen,
	"on hold":     ToneGray,
}

// StatusTone maps a status value to its badge colour. Unknown values are gray.
func StatusTone(status string) Tone {
	if tone, ok := statusTones[strings.ToLower(strings.TrimSpace(status))]; ok {
		return tone
	}
	return ToneGray
}

type Cell struct {
	Key  string `json:"key"`
	Text string `json:"text"`
	Tone Tone   `json:"tone,omitempty"`
	Href string `json:"href,omitempty"`
}

// Row is one rendered record. When formatting fails, Error holds a
// placeholder message and Cells is empty.
type Row struct {
	ID    string `json:"id"`
	Cells []Cell `json:"cells,omitempty"`
	Error string `json:"error,omitempty"`
}

// FormatCell renders one value for display.
func (r *Resolution) FormatCell(value any, f metadata.Field) Cell {
	cell := Cell{Key: f.Name}
	if value == nil {
		cell.Text = missingCell
		return cell
	}
	switch f.Type {
	case metadata.TypeCurrency:
		cell.Text = format.Currency(value)
	case metadata.TypeDate:
		cell.Text = format.Date(value)
	case metadata.TypeLookup:
		cell.Text = r.DisplayText(value, f)
	case metadata.TypeStatus:
		cell.Text = format.ToString(value)
		cell.Tone = StatusTone(cell.Text)
	case metadata.TypeImage:
		path := format.ToString(value)
		if path == "" {
			cell.Text = missingCell
			return cell
		}
		cell.Text = f.Label
		cell.Href = ImageURL(path)
	default:
		cell.Text = format.ToString(value)
	}
	if cell.Text == "" {
		cell.Text = missingCell
	}
	return cell
}

// ImageURL turns a stored image path into a link served by the backend.
func ImageURL(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return "/api/" + strings.TrimPrefix(path, "/")
}

// Render formats every record. A record that fails to format becomes a
// placeholder row; the remaining rows are unaffected.
func (t *Table) Render(ctx context.Context, res *Resolution, records []Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, t.renderRow(ctx, res, rec))
	}
	return rows
}

func (t *Table) renderRow(ctx context.Context, res *Resolution, rec Record) (row Row) {
	row.ID = format.ToString(rec[t.entity.IDField()])
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "Row render failed", "entity", t.entity.Name, "id", row.ID, "panic", fmt.Sprint(p))
			row.Cells = nil
			row.Error = rowPlaceholder
		}
	}()
	row.Cells = make([]Cell, 0, len(t.entity.Fields))
	for _, f := range t.entity.Fields {
		row.Cells = append(row.Cells, res.FormatCell(rec[f.Name], f))
	}
	return row
}
