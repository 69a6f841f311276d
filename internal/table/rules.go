package table

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
)

// compileMu guards lazy compilation of Rule.Compiled.
var compileMu sync.Mutex

// dateFunc replaces the expr builtin so rules accept every date shape the
// backend and the forms produce (ISO, RFC1123, m/d/yyyy). An unparseable
// value fails the evaluation and the rule is skipped.
var dateFunc = expr.Function("date", func(params ...any) (any, error) {
	t, ok := format.ParseDate(params[0])
	if !ok {
		return nil, fmt.Errorf("unparseable date %q", format.ToString(params[0]))
	}
	return t, nil
}, new(func(any) time.Time))

// CompileExpression compiles a rule expression into an expr-lang program.
// Expressions see the record as `record` and may call date(v).
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool(), dateFunc)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

// CompileRules compiles every rule in the registry up front so broken
// expressions fail at startup instead of on first submit.
func CompileRules(reg *metadata.Registry) error {
	for _, e := range reg.AllEntities() {
		for _, rule := range e.Rules {
			if _, err := program(rule); err != nil {
				return fmt.Errorf("entity %s rule on %s: %w", e.Name, rule.Field, err)
			}
		}
	}
	return nil
}

func program(rule *metadata.Rule) (*vm.Program, error) {
	compileMu.Lock()
	defer compileMu.Unlock()
	if prog, ok := rule.Compiled.(*vm.Program); ok && prog != nil {
		return prog, nil
	}
	prog, err := CompileExpression(rule.Expression)
	if err != nil {
		return nil, err
	}
	rule.Compiled = prog
	return prog, nil
}

// EvaluateRules runs the entity's rules against values. A rule whose
// expression is true is violated. Rules that fail to compile or run are
// logged and skipped.
func EvaluateRules(entity *metadata.Entity, values Record) []ValidationError {
	if len(entity.Rules) == 0 {
		return nil
	}
	env := map[string]any{"record": values}

	var errs []ValidationError
	for _, rule := range entity.Rules {
		prog, err := program(rule)
		if err != nil {
			slog.Warn("Rule compile failed", "entity", entity.Name, "field", rule.Field, "err", err)
			continue
		}
		result, err := expr.Run(prog, env)
		if err != nil {
			slog.Warn("Rule evaluation failed", "entity", entity.Name, "field", rule.Field, "err", err)
			continue
		}
		if violated, ok := result.(bool); ok && violated {
			msg := rule.Message
			if msg == "" {
				msg = "Rule violated"
			}
			errs = append(errs, ValidationError{Field: rule.Field, Message: msg})
		}
	}
	return errs
}
