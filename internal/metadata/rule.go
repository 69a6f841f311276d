package metadata

// Rule is a cross-field check. The expression evaluates against `record` and a
// true result means the record violates the rule.
type Rule struct {
	Field      string `yaml:"field" json:"field"`
	Expression string `yaml:"expression" json:"expression"`
	Message    string `yaml:"message" json:"message"`

	// Compiled holds the compiled expression program (set lazily, not serialized).
	Compiled any `yaml:"-" json:"-"`
}
