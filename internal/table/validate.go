package table

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned by Submit when the form does not pass validation.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var (
	validate      = validator.New(validator.WithRequiredStructEnabled())
	phoneStripper = regexp.MustCompile(`[\s\-()]`)
)

// Validate checks values against the schema in field order, then runs the
// entity's cross-field rules. A field may collect several errors.
func (t *Table) Validate(values Record) []ValidationError {
	var errs []ValidationError
	for _, f := range t.entity.Fields {
		errs = append(errs, validateField(f, values[f.Name])...)
	}
	errs = append(errs, EvaluateRules(t.entity, values)...)
	return errs
}

func validateField(f metadata.Field, value any) []ValidationError {
	var errs []ValidationError
	add := func(msg string) {
		errs = append(errs, ValidationError{Field: f.Name, Message: msg})
	}

	empty := format.IsEmpty(value)
	if f.Required && empty {
		add(f.Label + " is required")
	}
	if empty {
		return errs
	}

	text := format.ToString(value)
	switch f.Validation {
	case metadata.ValidationEmail:
		if validate.Var(text, "email") != nil {
			add("Please enter a valid email address")
		}
	case metadata.ValidationPhone:
		cleaned := phoneStripper.ReplaceAllString(text, "")
		switch {
		case strings.HasPrefix(cleaned, "+"):
			add("Phone number should not start with +")
		case len(cleaned) != 11:
			add("Phone number must be exactly 11 digits")
		case validate.Var(cleaned, "number") != nil:
			add("Phone number must contain only digits")
		}
	}

	if f.Type.IsNumeric() {
		n, ok := format.ParseNumber(value)
		if !ok {
			add("Please enter a valid number")
			return errs
		}
		if f.Min != nil && n < *f.Min {
			add(fmt.Sprintf("%s must be at least %s", f.Label, formatBound(*f.Min)))
		}
		if f.Max != nil && n > *f.Max {
			add(fmt.Sprintf("%s must be at most %s", f.Label, formatBound(*f.Max)))
		}
	}
	return errs
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
