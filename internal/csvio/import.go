package csvio

import (
	"fmt"
	"slices"
	"strings"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/metrics"
	"shankh-dashboard/internal/table"
)

// ImportError locates a problem in an uploaded file. Row is the 1-based file
// line; header problems use row 0.
type ImportError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

type ImportResult struct {
	Errors  []ImportError  `json:"errors"`
	Records []table.Record `json:"records"`
}

func (r ImportResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateImport maps parsed rows onto the entity's fields. The first row is
// the header and is matched to field labels ignoring case. A missing required
// column rejects the file before any data row is read. Data rows are coerced
// cell by cell; rows with no populated cell are skipped. Lookup cells holding
// a display label are mapped back to the referenced identifier when res is
// set.
func ValidateImport(rows [][]string, entity *metadata.Entity, required []string, res *table.Resolution) ImportResult {
	result := ImportResult{Records: []table.Record{}}
	if len(rows) == 0 {
		result.Errors = append(result.Errors, ImportError{Row: 0, Column: "general", Message: "CSV file is empty"})
		return result
	}

	columns := mapColumns(rows[0], entity)
	for _, f := range entity.Fields {
		if !slices.Contains(required, f.Name) {
			continue
		}
		if _, ok := columns[f.Name]; !ok {
			result.Errors = append(result.Errors, ImportError{
				Row:     0,
				Column:  f.Label,
				Message: fmt.Sprintf("Required column %q is missing", f.Label),
			})
		}
	}
	if len(result.Errors) > 0 {
		return result
	}

	for i, row := range rows[1:] {
		line := i + 2
		rec, errs := convertRow(row, line, entity, columns, required, res)
		result.Errors = append(result.Errors, errs...)
		switch {
		case rec == nil:
			metrics.ImportRows.WithLabelValues(entity.Name, "skipped").Inc()
		case len(errs) > 0:
			metrics.ImportRows.WithLabelValues(entity.Name, "invalid").Inc()
			result.Records = append(result.Records, rec)
		default:
			metrics.ImportRows.WithLabelValues(entity.Name, "valid").Inc()
			result.Records = append(result.Records, rec)
		}
	}
	return result
}

// mapColumns returns field name to header index.
func mapColumns(header []string, entity *metadata.Entity) map[string]int {
	columns := make(map[string]int, len(entity.Fields))
	for _, f := range entity.Fields {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), f.Label) {
				columns[f.Name] = i
				break
			}
		}
	}
	return columns
}

// convertRow returns a nil record and no errors when the row has no
// populated cell.
func convertRow(row []string, line int, entity *metadata.Entity, columns map[string]int, required []string, res *table.Resolution) (table.Record, []ImportError) {
	rec := table.Record{}
	populated := false
	var errs []ImportError
	fail := func(f metadata.Field, msg string) {
		errs = append(errs, ImportError{Row: line, Column: f.Label, Message: msg})
	}

	for _, f := range entity.Fields {
		cell := ""
		if idx, ok := columns[f.Name]; ok && idx < len(row) {
			cell = strings.TrimSpace(row[idx])
		}
		if cell == "" {
			if slices.Contains(required, f.Name) {
				fail(f, f.Label+" is required")
			}
			continue
		}
		populated = true

		switch f.Type {
		case metadata.TypeNumber, metadata.TypeCurrency:
			n, ok := format.ParseNumber(cell)
			if !ok {
				fail(f, fmt.Sprintf("%q is not a valid number", cell))
				continue
			}
			rec[f.Name] = n
		case metadata.TypeDate:
			if _, ok := format.ParseDate(cell); !ok {
				fail(f, fmt.Sprintf("%q is not a valid date", cell))
				continue
			}
			rec[f.Name] = cell
		case metadata.TypeLookup:
			rec[f.Name] = cell
			if res != nil {
				if id, ok := res.IDForLabel(f, cell); ok {
					rec[f.Name] = id
				}
			}
		default:
			rec[f.Name] = cell
		}
	}
	if !populated {
		return nil, nil
	}
	return rec, errs
}
