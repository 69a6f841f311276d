package table

import (
	"context"
	"maps"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/lookup"
	"shankh-dashboard/internal/metadata"
)

type Widget string

const (
	WidgetText     Widget = "text"
	WidgetTextarea Widget = "textarea"
	WidgetNumber   Widget = "number"
	WidgetDate     Widget = "date"
	WidgetSelect   Widget = "select"
	WidgetLookup   Widget = "lookup"
	WidgetImage    Widget = "image"
)

// namedChoices are fixed option lists keyed by field name. They take
// precedence over the field's declared type.
var namedChoices = map[string][]string{
	"lot_status":       {"Pending", "In Progress", "Completed", "Delivered"},
	"order_status":     {"Pending", "In Progress", "Completed", "Delivered", "On Hold"},
	"payment_status":   {"Pending", "Partial", "Completed", "Overdue"},
	"transaction_type": {"Debit", "Credit"},
	"payment_method":   {"Cash", "Bank Transfer", "Cheque", "UPI"},
	"expense_type":     {"Transport", "Utilities", "Equipment Rental", "Tools", "Materials", "Labor"},
	"skill_type":       {"Welding", "CNC Machining", "Assembly", "Quality Control", "Cutting", "Finishing"},
}

var textareaFields = map[string]bool{
	"notes":       true,
	"description": true,
}

var typeWidgets = map[metadata.FieldType]Widget{
	metadata.TypeDate:     WidgetDate,
	metadata.TypeNumber:   WidgetNumber,
	metadata.TypeCurrency: WidgetNumber,
}

// WidgetFor picks the input widget for a field.
func WidgetFor(f metadata.Field) Widget {
	switch {
	case f.IsLookup():
		return WidgetLookup
	case f.Type == metadata.TypeImage:
		return WidgetImage
	case namedChoices[f.Name] != nil:
		return WidgetSelect
	case textareaFields[f.Name]:
		return WidgetTextarea
	}
	if w, ok := typeWidgets[f.Type]; ok {
		return w
	}
	return WidgetText
}

// Choices returns the fixed option list for a field, if any.
func Choices(fieldName string) []string {
	return namedChoices[fieldName]
}

// FieldDescriptor tells a client how to render one form input.
type FieldDescriptor struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	Widget   Widget          `json:"widget"`
	Required bool            `json:"required,omitempty"`
	Min      *float64        `json:"min,omitempty"`
	Max      *float64        `json:"max,omitempty"`
	Choices  []string        `json:"choices,omitempty"`
	Options  []lookup.Choice `json:"options,omitempty"`
	Value    any             `json:"value"`
	Errors   []string        `json:"errors,omitempty"`
}

type FormMode string

const (
	ModeCreate FormMode = "create"
	ModeEdit   FormMode = "edit"
)

// Form is the add/edit dialog state. Values survive a failed submission.
type Form struct {
	Mode      FormMode          `json:"mode"`
	EditingID string            `json:"editing_id,omitempty"`
	Values    Record            `json:"values"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Open      bool              `json:"open"`

	// changed is non-nil once Apply has been called; an update then sends
	// only these fields and leaves the rest to the backend.
	changed map[string]struct{}
}

// NewForm opens an empty create form.
func (t *Table) NewForm() *Form {
	return &Form{Mode: ModeCreate, Values: Record{}, Open: true}
}

// EditForm opens a form pre-filled from rec and targeting its identifier.
func (t *Table) EditForm(rec Record) *Form {
	return &Form{
		Mode:      ModeEdit,
		EditingID: format.ToString(rec[t.entity.IDField()]),
		Values:    maps.Clone(rec),
		Open:      true,
	}
}

// Apply merges a partial set of values over the form and records which
// fields were supplied.
func (f *Form) Apply(changes Record) {
	if f.changed == nil {
		f.changed = make(map[string]struct{}, len(changes))
	}
	if f.Values == nil {
		f.Values = Record{}
	}
	for k, v := range changes {
		f.Values[k] = v
		f.changed[k] = struct{}{}
	}
}

// Changed reports the fields supplied through Apply, in no particular order.
// It is nil for a form whose values were edited wholesale.
func (f *Form) Changed() []string {
	if f.changed == nil {
		return nil
	}
	out := make([]string, 0, len(f.changed))
	for k := range f.changed {
		out = append(out, k)
	}
	return out
}

// Close clears the form.
func (f *Form) Close() {
	f.Values = Record{}
	f.Errors = nil
	f.EditingID = ""
	f.Open = false
	f.changed = nil
}

// ErrorsFor returns the messages attached to one field.
func (f *Form) ErrorsFor(field string) []string {
	var out []string
	for _, e := range f.Errors {
		if e.Field == field {
			out = append(out, e.Message)
		}
	}
	return out
}

// Describe lists the visible inputs of form with their current values,
// errors and, for lookups, the selectable options.
func (t *Table) Describe(ctx context.Context, form *Form, options func(ctx context.Context, ref metadata.LookupRef) []lookup.Choice) []FieldDescriptor {
	fields := t.entity.FormFields()
	out := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		d := FieldDescriptor{
			Key:      f.Name,
			Label:    f.Label,
			Widget:   WidgetFor(f),
			Required: f.Required,
			Value:    form.Values[f.Name],
			Errors:   form.ErrorsFor(f.Name),
		}
		switch d.Widget {
		case WidgetNumber:
			d.Min, d.Max = f.Min, f.Max
		case WidgetSelect:
			d.Choices = namedChoices[f.Name]
		case WidgetLookup:
			if options != nil {
				d.Options = options(ctx, *f.Lookup)
			}
		}
		out = append(out, d)
	}
	return out
}
