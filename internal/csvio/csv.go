// Package csvio converts table records to and from CSV files.
package csvio

import (
	"bufio"
	"io"
	"strings"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/table"
)

const bom = "\uFEFF"

// Export writes a header row of field labels followed by one row per record.
// Lookup columns are written as their display labels and every value is
// quoted.
func Export(w io.Writer, records []table.Record, entity *metadata.Entity, res *table.Resolution) error {
	bw := bufio.NewWriter(w)

	labels := make([]string, len(entity.Fields))
	for i, f := range entity.Fields {
		labels[i] = headerCell(f.Label)
	}
	bw.WriteString(strings.Join(labels, ","))

	cells := make([]string, len(entity.Fields))
	for _, rec := range records {
		for i, f := range entity.Fields {
			cells[i] = quote(exportValue(rec[f.Name], f, res))
		}
		bw.WriteByte('\n')
		bw.WriteString(strings.Join(cells, ","))
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

func exportValue(v any, f metadata.Field, res *table.Resolution) string {
	if v == nil {
		return ""
	}
	if f.IsLookup() && res != nil {
		return res.DisplayText(v, f)
	}
	return format.ToString(v)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func headerCell(label string) string {
	if strings.ContainsAny(label, ",\"\n") {
		return quote(label)
	}
	return label
}

// Parse splits CSV content into rows of trimmed cells. Quoted cells may hold
// commas, newlines and doubled quotes. A quote only opens a quoted section at
// the start of a cell; anywhere else it is kept as text, so `12" rod` stays
// on its own row. CRLF line endings and a leading byte order mark are
// accepted. Rows whose cells are all blank are dropped.
func Parse(content string) [][]string {
	content = strings.TrimPrefix(content, bom)

	var (
		rows    [][]string
		row     []string
		cell    strings.Builder
		inQuote bool
		quoted  bool // current cell already had a quoted section
	)
	endCell := func() {
		row = append(row, strings.TrimSpace(cell.String()))
		cell.Reset()
		quoted = false
	}
	endRow := func() {
		endCell()
		if !blank(row) {
			rows = append(rows, row)
		}
		row = nil
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '"' && inQuote:
			if i+1 < len(content) && content[i+1] == '"' {
				cell.WriteByte('"')
				i++
			} else {
				inQuote = false
			}
		case c == '"' && !quoted && strings.TrimSpace(cell.String()) == "":
			inQuote, quoted = true, true
		case c == ',' && !inQuote:
			endCell()
		case c == '\r' && !inQuote:
			// dropped; the following \n ends the row
		case c == '\n' && !inQuote:
			endRow()
		default:
			cell.WriteByte(c)
		}
	}
	endRow()
	return rows
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// Template returns a header row and one sample row showing the expected
// value shape of each column.
func Template(entity *metadata.Entity) string {
	labels := make([]string, len(entity.Fields))
	samples := make([]string, len(entity.Fields))
	for i, f := range entity.Fields {
		labels[i] = headerCell(f.Label)
		samples[i] = headerCell(sampleValue(f))
	}
	return strings.Join(labels, ",") + "\n" + strings.Join(samples, ",") + "\n"
}

func sampleValue(f metadata.Field) string {
	switch f.Type {
	case metadata.TypeDate:
		return "2024-01-15"
	case metadata.TypeNumber:
		return "100"
	case metadata.TypeCurrency:
		return "1500"
	case metadata.TypeStatus:
		return "Active"
	}
	return "Sample " + f.Label
}
