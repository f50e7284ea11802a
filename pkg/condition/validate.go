package condition

import (
	"fmt"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// Validate checks every leaf of c against the record schema. It is meant to
// run when a catalog is loaded, so that unknown fields and mistyped literals
// surface as configuration defects before any record is evaluated.
func Validate(c *Condition, schema *record.Schema) []Diagnostic {
	var out []Diagnostic
	c.walk(func(n *Condition) {
		if n.kind != KindLeaf || n.field == NeverField {
			return
		}
		out = append(out, validateLeaf(n, schema)...)
	})
	return out
}

func validateLeaf(n *Condition, schema *record.Schema) []Diagnostic {
	if n.op == OpInvalid {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeUnknownOperator,
			Subject:  n.field,
			Message:  fmt.Sprintf("operator %q is not supported", n.operatorName()),
		}}
	}
	f, ok := schema.Lookup(n.field)
	if !ok {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeUnknownField,
			Subject:  n.field,
			Message:  fmt.Sprintf("field %q is not declared by the record schema", n.field),
		}}
	}

	mismatch := func(want string) []Diagnostic {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeKindMismatch,
			Subject:  n.field,
			Message:  fmt.Sprintf("%s on %s field needs %s, got %s", n.op, f.Kind, want, n.value.Kind()),
		}}
	}

	lit := n.value
	switch n.op {
	case OpExists, OpNotExists:
		return nil
	case OpEquals, OpNotEquals:
		switch f.Kind {
		case record.KindText, record.KindLevel:
			s, ok := lit.AsText()
			if !ok {
				return mismatch("a string literal")
			}
			return checkLevels(n.field, f, s)
		case record.KindNumber, record.KindBool:
			if lit.Kind() != f.Kind {
				return mismatch(f.Kind.String() + " literal")
			}
		case record.KindSet:
			if lit.Kind() != record.KindSet {
				return mismatch("a set literal")
			}
		}
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		if f.Kind != record.KindNumber || lit.Kind() != record.KindNumber {
			return mismatch("numbers on both sides")
		}
	case OpIncludes:
		if _, ok := lit.AsText(); f.Kind != record.KindSet || !ok {
			return mismatch("a set field and a string literal")
		}
	case OpIn:
		members, ok := lit.AsSet()
		if !ok || (f.Kind != record.KindText && f.Kind != record.KindLevel) {
			return mismatch("a text or level field and a set literal")
		}
		var out []Diagnostic
		for _, m := range members {
			out = append(out, checkLevels(n.field, f, m)...)
		}
		return out
	}
	return nil
}

func checkLevels(name string, f record.Field, v string) []Diagnostic {
	if f.AllowsLevel(v) {
		return nil
	}
	return []Diagnostic{{
		Severity: SeverityError,
		Code:     CodeUnknownLevel,
		Subject:  name,
		Message:  fmt.Sprintf("level %q is not declared for field %q", v, name),
	}}
}
