package lookup

import (
	"context"
	"sort"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
)

// Choice is one entry of a lookup dropdown.
type Choice struct {
	Value     any    `json:"value"`
	Label     string `json:"label"`
	Secondary string `json:"secondary,omitempty"`
}

// Options lists the selectable records of entity. The label falls back to the
// record's name, then to "Unknown".
func (r *Resolver) Options(ctx context.Context, entity string, ref metadata.LookupRef) []Choice {
	records := r.Get(ctx, entity)
	idField := ""
	if r.registry != nil {
		if e := r.registry.GetEntity(entity); e != nil {
			idField = e.IDField()
		}
	}

	choices := make([]Choice, 0, len(records))
	for _, rec := range records {
		label := format.ToString(rec[ref.DisplayField])
		if label == "" {
			label = format.ToString(rec["name"])
		}
		if label == "" {
			label = "Unknown"
		}
		c := Choice{Value: identifier(rec, idField), Label: label}
		if ref.SecondaryField != "" {
			c.Secondary = format.ToString(rec[ref.SecondaryField])
		}
		choices = append(choices, c)
	}
	return choices
}

func identifier(rec map[string]any, idField string) any {
	if idField != "" {
		if v, ok := rec[idField]; ok {
			return v
		}
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if metadata.IsIdentifierKey(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return rec[keys[0]]
}
