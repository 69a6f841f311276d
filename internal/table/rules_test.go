package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shankh-dashboard/internal/metadata"
)

func TestEvaluateRules_EndBeforeStart(t *testing.T) {
	lots := registry(t).GetEntity("lots")

	errs := EvaluateRules(lots, Record{"start_date": "2024-02-01", "end_date": "2024-01-15"})
	require.Len(t, errs, 1)
	assert.Equal(t, "end_date", errs[0].Field)
	assert.Equal(t, "End Date cannot be before Start Date", errs[0].Message)

	assert.Empty(t, EvaluateRules(lots, Record{"start_date": "2024-02-01", "end_date": "2024-02-01"}), "same day")
	assert.Empty(t, EvaluateRules(lots, Record{"start_date": "2024-02-01"}), "no end date")
	assert.Empty(t, EvaluateRules(lots, Record{"start_date": "2024-02-01", "end_date": ""}), "blank end date")
}

func TestEvaluateRules_ComparesDatesNotText(t *testing.T) {
	lots := registry(t).GetEntity("lots")

	tests := []struct {
		name       string
		start, end string
		violated   bool
	}{
		{"rfc1123 start, iso end", "Mon, 15 Jan 2024 00:00:00 GMT", "2024-02-01", false},
		{"rfc1123 both", "Thu, 01 Feb 2024 00:00:00 GMT", "Mon, 15 Jan 2024 00:00:00 GMT", true},
		{"m/d/yyyy across years", "12/1/2023", "1/20/2024", false},
		{"m/d/yyyy reversed", "1/20/2024", "12/1/2023", true},
		{"mixed shapes", "2024-01-15", "1/15/2024", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateRules(lots, Record{"start_date": tt.start, "end_date": tt.end})
			if tt.violated {
				require.Len(t, errs, 1)
				assert.Equal(t, "end_date", errs[0].Field)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestEvaluateRules_UnparseableDateSkipsRule(t *testing.T) {
	lots := registry(t).GetEntity("lots")
	assert.Empty(t, EvaluateRules(lots, Record{"start_date": "2024-02-01", "end_date": "soon"}))
}

func TestEvaluateRules_BalanceExceedsDue(t *testing.T) {
	ledger := registry(t).GetEntity("client_ledger")

	errs := EvaluateRules(ledger, Record{"total_due": 1000.0, "balance_remaining": 1500.0})
	require.Len(t, errs, 1)
	assert.Equal(t, "balance_remaining", errs[0].Field)

	assert.Empty(t, EvaluateRules(ledger, Record{"total_due": "1000", "balance_remaining": "250"}))
}

func TestEvaluateRules_BrokenExpressionSkipped(t *testing.T) {
	e := &metadata.Entity{
		Name:   "things",
		Fields: []metadata.Field{{Name: "id"}, {Name: "qty"}},
		Rules: []*metadata.Rule{
			{Field: "qty", Expression: "record.qty >", Message: "broken"},
			{Field: "qty", Expression: "record.qty > 10", Message: "Quantity cannot exceed 10"},
		},
	}

	errs := EvaluateRules(e, Record{"qty": 12})
	require.Len(t, errs, 1)
	assert.Equal(t, "Quantity cannot exceed 10", errs[0].Message)
}

func TestEvaluateRules_CompiledOnce(t *testing.T) {
	rule := &metadata.Rule{Field: "qty", Expression: "record.qty < 0", Message: "negative"}
	e := &metadata.Entity{Name: "things", Fields: []metadata.Field{{Name: "id"}, {Name: "qty"}}, Rules: []*metadata.Rule{rule}}

	EvaluateRules(e, Record{"qty": 1})
	first := rule.Compiled
	require.NotNil(t, first)

	EvaluateRules(e, Record{"qty": -1})
	assert.Same(t, first, rule.Compiled)
}

func TestCompileExpression_DateFunction(t *testing.T) {
	_, err := CompileExpression(`date(record.a).After(date(record.b))`)
	assert.NoError(t, err)
}

func TestCompileRules(t *testing.T) {
	require.NoError(t, CompileRules(registry(t)))

	reg := metadata.NewRegistry()
	reg.Load([]*metadata.Entity{{
		Name:   "things",
		Fields: []metadata.Field{{Name: "id"}},
		Rules:  []*metadata.Rule{{Field: "id", Expression: "((("}},
	}})
	assert.Error(t, CompileRules(reg))
}
