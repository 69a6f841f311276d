package metadata

import (
	"errors"
	"fmt"
)

type Entity struct {
	Name     string `yaml:"name" json:"name"`
	Title    string `yaml:"title" json:"title"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint"`
	// EnvelopeKeys are extra response keys the backend may wrap this collection in.
	EnvelopeKeys   []string `yaml:"envelope_keys,omitempty" json:"envelope_keys,omitempty"`
	Fields         []Field  `yaml:"fields" json:"fields"`
	ImportRequired []string `yaml:"import_required,omitempty" json:"import_required,omitempty"`
	Rules          []*Rule  `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// IDField is the identifier column. By convention it is the first field.
func (e *Entity) IDField() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0].Name
}

// FormFields returns the fields shown on the add/edit form.
func (e *Entity) FormFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.IsHiddenInForm() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// LookupEntities lists the distinct entities referenced by lookup fields, in field order.
func (e *Entity) LookupEntities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range e.Fields {
		if !f.IsLookup() || seen[f.Lookup.Entity] {
			continue
		}
		seen[f.Lookup.Entity] = true
		out = append(out, f.Lookup.Entity)
	}
	return out
}

// CollectionPath is the backend path segment for this entity.
func (e *Entity) CollectionPath() string {
	if e.Endpoint != "" {
		return e.Endpoint
	}
	return e.Name
}

func (e *Entity) validate() error {
	if e.Name == "" {
		return errors.New("entity name is required")
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity %s: at least one field is required", e.Name)
	}
	seen := make(map[string]bool, len(e.Fields))
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("entity %s: field %d has no name", e.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Label == "" {
			f.Label = f.Name
		}
		if f.Type == TypeLookup && (f.Lookup == nil || f.Lookup.Entity == "" || f.Lookup.DisplayField == "") {
			return fmt.Errorf("entity %s: lookup field %s needs entity and display_field", e.Name, f.Name)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("entity %s: field %s has min greater than max", e.Name, f.Name)
		}
	}
	for _, name := range e.ImportRequired {
		if !seen[name] {
			return fmt.Errorf("entity %s: import_required names unknown field %s", e.Name, name)
		}
	}
	for _, r := range e.Rules {
		if !seen[r.Field] {
			return fmt.Errorf("entity %s: rule targets unknown field %s", e.Name, r.Field)
		}
		if r.Expression == "" {
			return fmt.Errorf("entity %s: rule on %s has no expression", e.Name, r.Field)
		}
	}
	return nil
}
