package table

import (
	"strings"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
)

// Search keeps the records where any column contains term, case-insensitively.
// A column matches on its raw value, on its resolved lookup label, or on its
// formatted date or currency text. An empty term keeps everything.
func (t *Table) Search(res *Resolution, records []Record, term string) []Record {
	needle := strings.ToLower(term)
	if needle == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if t.matches(res, rec, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func (t *Table) matches(res *Resolution, rec Record, needle string) bool {
	for _, f := range t.entity.Fields {
		for _, text := range searchTexts(res, rec[f.Name], f) {
			if strings.Contains(strings.ToLower(text), needle) {
				return true
			}
		}
	}
	return false
}

func searchTexts(res *Resolution, value any, f metadata.Field) []string {
	raw := format.ToString(value)
	if format.IsEmpty(value) {
		return []string{raw}
	}
	switch f.Type {
	case metadata.TypeLookup:
		return []string{raw, res.DisplayText(value, f)}
	case metadata.TypeDate:
		return []string{raw, format.Date(value)}
	case metadata.TypeCurrency:
		return []string{raw, format.Currency(value)}
	}
	return []string{raw}
}
