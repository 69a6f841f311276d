package metadata

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType is the closed set of column kinds a schema can declare.
type FieldType int

const (
	TypeText FieldType = iota
	TypeNumber
	TypeCurrency
	TypeDate
	TypeStatus
	TypeLookup
	TypeImage
)

var fieldTypeNames = [...]string{
	TypeText:     "text",
	TypeNumber:   "number",
	TypeCurrency: "currency",
	TypeDate:     "date",
	TypeStatus:   "status",
	TypeLookup:   "lookup",
	TypeImage:    "image",
}

func (t FieldType) String() string {
	if int(t) < 0 || int(t) >= len(fieldTypeNames) {
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
	return fieldTypeNames[t]
}

// ParseFieldType maps a schema type name to its FieldType. An empty name is text.
func ParseFieldType(s string) (FieldType, error) {
	if s == "" {
		return TypeText, nil
	}
	for i, name := range fieldTypeNames {
		if name == s {
			return FieldType(i), nil
		}
	}
	return TypeText, fmt.Errorf("unknown field type %q", s)
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *FieldType) UnmarshalYAML(value *yaml.Node) error {
	return t.UnmarshalText([]byte(value.Value))
}

// IsNumeric reports whether values of this type must parse as numbers.
func (t FieldType) IsNumeric() bool {
	return t == TypeNumber || t == TypeCurrency
}

type Validation string

const (
	ValidationEmail Validation = "email"
	ValidationPhone Validation = "phone"
)

// LookupRef points a field at another entity whose records supply its display label.
type LookupRef struct {
	Entity         string `yaml:"entity" json:"entity"`
	DisplayField   string `yaml:"display_field" json:"display_field"`
	SecondaryField string `yaml:"secondary_field,omitempty" json:"secondary_field,omitempty"`
}

type Field struct {
	Name       string     `yaml:"name" json:"name"`
	Label      string     `yaml:"label" json:"label"`
	Type       FieldType  `yaml:"type" json:"type"`
	Required   bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Validation Validation `yaml:"validation,omitempty" json:"validation,omitempty"`
	Lookup     *LookupRef `yaml:"lookup,omitempty" json:"lookup,omitempty"`
	Min        *float64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64   `yaml:"max,omitempty" json:"max,omitempty"`
}

// IsLookup returns true if the field resolves through another entity.
func (f Field) IsLookup() bool {
	return f.Type == TypeLookup && f.Lookup != nil
}

// IsHiddenInForm is true for identifier columns the user never types in.
func (f Field) IsHiddenInForm() bool {
	return IsIdentifierKey(f.Name) && !f.IsLookup()
}

// IsIdentifierKey reports whether a record key names an identifier column.
func IsIdentifierKey(key string) bool {
	return strings.Contains(key, "_id") || key == "id"
}
