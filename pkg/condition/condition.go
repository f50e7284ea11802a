// Package condition implements the safe condition language used to decide
// whether an obligation applies to a record.
//
// A Condition is an immutable tree of leaves ({field, operator, value}) joined
// by all/any groups. Evaluation dispatches over a closed operator set and only
// ever reads the record's own fields; no input text is executed. Legacy
// free-text expressions are normalized into this tree once, by Parse, and the
// raw text is never consulted again.
package condition

import (
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// NeverField is the reserved field used by Never. Schemas cannot declare it,
// so a leaf testing for its existence is always false.
const NeverField = record.ReservedPrefix + "never"

// Kind tells leaves from groups.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindAll
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindAny:
		return "any"
	}
	return "leaf"
}

// Operator is the closed set of leaf comparisons.
type Operator uint8

const (
	OpInvalid Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
	OpIncludes
	OpIn
	OpExists
	OpNotExists
)

var operatorNames = [...]string{
	OpInvalid:        "invalid",
	OpEquals:         "equals",
	OpNotEquals:      "not_equals",
	OpGreaterThan:    "greater_than",
	OpLessThan:       "less_than",
	OpGreaterOrEqual: "greater_or_equal",
	OpLessOrEqual:    "less_or_equal",
	OpIncludes:       "includes",
	OpIn:             "in",
	OpExists:         "exists",
	OpNotExists:      "not_exists",
}

var operatorAliases = map[string]Operator{
	"eq": OpEquals, "==": OpEquals, "===": OpEquals,
	"ne": OpNotEquals, "neq": OpNotEquals, "!=": OpNotEquals, "!==": OpNotEquals,
	"gt": OpGreaterThan, ">": OpGreaterThan,
	"lt": OpLessThan, "<": OpLessThan,
	"gte": OpGreaterOrEqual, "ge": OpGreaterOrEqual, ">=": OpGreaterOrEqual,
	"lte": OpLessOrEqual, "le": OpLessOrEqual, "<=": OpLessOrEqual,
	"set_includes": OpIncludes, "contains": OpIncludes,
	"value_in_set": OpIn,
	"defined":      OpExists,
	"undefined":    OpNotExists, "not_defined": OpNotExists,
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return operatorNames[OpInvalid]
}

// Numeric reports whether the operator compares numbers.
func (o Operator) Numeric() bool {
	return o >= OpGreaterThan && o <= OpLessOrEqual
}

// TakesValue reports whether the operator compares against a literal.
func (o Operator) TakesValue() bool {
	return o != OpInvalid && o != OpExists && o != OpNotExists
}

// ParseOperator resolves an operator name. Hyphens and case are ignored.
func ParseOperator(name string) (Operator, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for op := OpEquals; op <= OpNotExists; op++ {
		if operatorNames[op] == key {
			return op, true
		}
	}
	if op, ok := operatorAliases[key]; ok {
		return op, true
	}
	return OpInvalid, false
}

// Condition is an immutable condition tree node. A nil *Condition is the
// absent condition and always holds.
type Condition struct {
	kind  Kind
	field string
	op    Operator
	rawOp string
	value record.Value
	terms []*Condition
}

// Leaf builds a comparison of a record field against a literal.
func Leaf(field string, op Operator, value record.Value) *Condition {
	return &Condition{kind: KindLeaf, field: field, op: op, value: value}
}

// invalidLeaf keeps an operator name nobody recognised so it can be reported.
func invalidLeaf(field, rawOp string, value record.Value) *Condition {
	return &Condition{kind: KindLeaf, field: field, op: OpInvalid, rawOp: rawOp, value: value}
}

// Never is a leaf that can never match.
func Never() *Condition {
	return Leaf(NeverField, OpExists, record.Null())
}

// AllOf holds when every term holds. Nil terms are absent conditions and are
// dropped.
func AllOf(terms ...*Condition) *Condition {
	return &Condition{kind: KindAll, terms: compact(terms)}
}

// AnyOf holds when at least one term holds, or when it has no terms.
func AnyOf(terms ...*Condition) *Condition {
	return &Condition{kind: KindAny, terms: compact(terms)}
}

func compact(terms []*Condition) []*Condition {
	out := make([]*Condition, 0, len(terms))
	for _, t := range terms {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (c *Condition) Kind() Kind          { return c.kind }
func (c *Condition) Field() string       { return c.field }
func (c *Condition) Operator() Operator  { return c.op }
func (c *Condition) Value() record.Value { return c.value }

// IsNever reports whether c is the guaranteed-false leaf.
func (c *Condition) IsNever() bool {
	return c != nil && c.kind == KindLeaf && c.field == NeverField
}

func (c *Condition) operatorName() string {
	if c.op == OpInvalid && c.rawOp != "" {
		return c.rawOp
	}
	return c.op.String()
}

// Terms returns a copy of the group's children.
func (c *Condition) Terms() []*Condition {
	out := make([]*Condition, len(c.terms))
	copy(out, c.terms)
	return out
}

// Fields lists every field the condition reads, in first-use order.
func (c *Condition) Fields() []string {
	var out []string
	seen := map[string]bool{}
	c.walk(func(n *Condition) {
		if n.kind == KindLeaf && n.field != NeverField && !seen[n.field] {
			seen[n.field] = true
			out = append(out, n.field)
		}
	})
	return out
}

func (c *Condition) walk(fn func(*Condition)) {
	if c == nil {
		return
	}
	fn(c)
	for _, t := range c.terms {
		t.walk(fn)
	}
}

// Equal reports structural equality.
func Equal(a, b *Condition) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindLeaf {
		return a.field == b.field && a.op == b.op && a.rawOp == b.rawOp && a.value.Equal(b.value) && a.value.Kind() == b.value.Kind()
	}
	if len(a.terms) != len(b.terms) {
		return false
	}
	for i := range a.terms {
		if !Equal(a.terms[i], b.terms[i]) {
			return false
		}
	}
	return true
}
