package condition

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// Evaluator evaluates conditions against records. The zero value is ready to
// use and drops diagnostics.
type Evaluator struct {
	Sink   Sink
	Parser *Parser
}

// Evaluate evaluates c against r with a silent evaluator.
func Evaluate(c *Condition, r record.Record) bool {
	return Evaluator{}.Evaluate(c, r)
}

// EvaluateText parses text and evaluates it against r with a silent
// evaluator.
func EvaluateText(text string, r record.Record) bool {
	return Evaluator{}.EvaluateText(text, r)
}

// Evaluate reports whether c holds for r. The absent condition holds; empty
// groups hold. A leaf over a field the record type does not declare, or with
// an unrecognised operator, is false.
func (e Evaluator) Evaluate(c *Condition, r record.Record) bool {
	if c == nil {
		return true
	}
	switch c.kind {
	case KindAll:
		for _, t := range c.terms {
			if !e.Evaluate(t, r) {
				return false
			}
		}
		return true
	case KindAny:
		if len(c.terms) == 0 {
			return true
		}
		for _, t := range c.terms {
			if e.Evaluate(t, r) {
				return true
			}
		}
		return false
	case KindLeaf:
		return e.leaf(c, r)
	}
	return false
}

// EvaluateText parses text and evaluates the result. Blank text is the
// absent condition; unparseable text is false.
func (e Evaluator) EvaluateText(text string, r record.Record) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	p := e.Parser
	if p == nil {
		p = &Parser{Sink: e.Sink}
	}
	c, err := p.Parse(text)
	if err != nil {
		return false
	}
	return e.Evaluate(c, r)
}

func (e Evaluator) leaf(c *Condition, r record.Record) bool {
	if c.op == OpInvalid {
		e.report(Diagnostic{
			Severity: SeverityError,
			Code:     CodeUnknownOperator,
			Subject:  c.field,
			Message:  fmt.Sprintf("operator %q is not supported", c.operatorName()),
		})
		return false
	}

	v, state := r.Get(c.field)
	if state == record.FieldUnknown {
		if c.field != NeverField {
			e.report(Diagnostic{
				Severity: SeverityError,
				Code:     CodeUnknownField,
				Subject:  c.field,
				Message:  fmt.Sprintf("record %q has no field %q", r.ID, c.field),
			})
		}
		return false
	}
	present := state == record.FieldPresent

	switch c.op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEquals:
		return present && v.Equal(c.value)
	case OpNotEquals:
		return !present || !v.Equal(c.value)
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		if !present {
			return false
		}
		return compareNumbers(c.op, v, c.value)
	case OpIncludes:
		member, ok := c.value.AsText()
		return present && ok && v.Contains(member)
	case OpIn:
		s, ok := v.AsText()
		return present && ok && c.value.Contains(s)
	}
	return false
}

func compareNumbers(op Operator, left, right record.Value) bool {
	a, ok := left.AsNumber()
	if !ok {
		return false
	}
	b, ok := right.AsNumber()
	if !ok {
		return false
	}
	switch op {
	case OpGreaterThan:
		return a > b
	case OpLessThan:
		return a < b
	case OpGreaterOrEqual:
		return a >= b
	case OpLessOrEqual:
		return a <= b
	}
	return false
}

func (e Evaluator) report(d Diagnostic) {
	sinkOrDiscard(e.Sink).Report(d)
}
