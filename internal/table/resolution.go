package table

import (
	"fmt"
	"strings"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/lookup"
	"shankh-dashboard/internal/metadata"
)

// Resolution is a point-in-time view of lookup collections used to turn
// foreign keys into display labels.
type Resolution struct {
	registry *metadata.Registry
	data     map[string][]map[string]any
}

func NewResolution(reg *metadata.Registry, data map[string][]map[string]any) *Resolution {
	if data == nil {
		data = map[string][]map[string]any{}
	}
	return &Resolution{registry: reg, data: data}
}

// labelComposer builds a display label from a lookup record's display and
// secondary values. It only runs when the secondary value is present.
type labelComposer func(r *Resolution, primary, secondary string) string

var labelComposers = map[string]labelComposer{
	"clients": func(_ *Resolution, p, s string) string {
		return p + " - " + s
	},
	"client_orders": func(r *Resolution, p, s string) string {
		client := "Unknown Client"
		if rec := r.find("clients", s); rec != nil {
			if name := format.ToString(rec["name"]); name != "" {
				client = name
			}
		}
		return fmt.Sprintf("%s (%s)", p, client)
	},
	"lots": func(_ *Resolution, p, s string) string {
		return fmt.Sprintf("Lot #%s - %s", p, s)
	},
	"workers": func(_ *Resolution, p, s string) string {
		return fmt.Sprintf("%s (%s)", p, s)
	},
}

func (r *Resolution) idField(entity string) string {
	if r.registry == nil {
		return ""
	}
	if e := r.registry.GetEntity(entity); e != nil {
		return e.IDField()
	}
	return ""
}

func (r *Resolution) find(entity string, value any) map[string]any {
	return lookup.FindByID(r.data[entity], r.idField(entity), value)
}

// Display resolves a lookup value to its label. Empty values, non-lookup
// fields and misses return the value unchanged.
func (r *Resolution) Display(value any, f metadata.Field) any {
	if format.IsEmpty(value) || !f.IsLookup() {
		return value
	}
	rec := r.find(f.Lookup.Entity, value)
	if rec == nil {
		return value
	}
	primary := format.ToString(rec[f.Lookup.DisplayField])
	secondary := ""
	if f.Lookup.SecondaryField != "" {
		secondary = format.ToString(rec[f.Lookup.SecondaryField])
	}
	if secondary == "" {
		return primary
	}
	if compose, ok := labelComposers[f.Lookup.Entity]; ok {
		return compose(r, primary, secondary)
	}
	return primary + " - " + secondary
}

// DisplayText is Display rendered as text.
func (r *Resolution) DisplayText(value any, f metadata.Field) string {
	return format.ToString(r.Display(value, f))
}

// IDForLabel maps a display label back to the identifier of the matching
// lookup record. A raw identifier is accepted as well.
func (r *Resolution) IDForLabel(f metadata.Field, label string) (any, bool) {
	if !f.IsLookup() || strings.TrimSpace(label) == "" {
		return nil, false
	}
	idField := r.idField(f.Lookup.Entity)
	if idField == "" {
		return nil, false
	}
	for _, rec := range r.data[f.Lookup.Entity] {
		id, ok := rec[idField]
		if !ok || id == nil {
			continue
		}
		if r.DisplayText(id, f) == label {
			return id, true
		}
	}
	if rec := r.find(f.Lookup.Entity, label); rec != nil {
		return rec[idField], true
	}
	return nil, false
}
