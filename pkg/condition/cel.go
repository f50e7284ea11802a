package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

var celOperators = map[string]Operator{
	operators.Equals:        OpEquals,
	operators.NotEquals:     OpNotEquals,
	operators.Greater:       OpGreaterThan,
	operators.Less:          OpLessThan,
	operators.GreaterEquals: OpGreaterOrEqual,
	operators.LessEquals:    OpLessOrEqual,
}

var celSymbols = map[Operator]string{
	OpEquals:         "==",
	OpNotEquals:      "!=",
	OpGreaterThan:    ">",
	OpLessThan:       "<",
	OpGreaterOrEqual: ">=",
	OpLessOrEqual:    "<=",
}

// FromCEL converts a CEL expression over record fields into a Condition.
//
// The expression is only parsed, never compiled or evaluated. Accepted forms
// are comparisons of a field with a literal, has(), "x" in field, field in
// [...], negated has(), true, false, and && / || of those. Anything else is
// rejected.
func FromCEL(src string) (*Condition, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, err
	}
	parsed, iss := env.Parse(src)
	if iss != nil && iss.Err() != nil {
		return nil, &ParseError{Text: src, Reason: iss.Err().Error()}
	}
	pe, err := cel.AstToParsedExpr(parsed)
	if err != nil {
		return nil, &ParseError{Text: src, Reason: err.Error()}
	}
	c, err := fromExpr(pe.GetExpr())
	if err != nil {
		return nil, &ParseError{Text: src, Reason: err.Error()}
	}
	if c.kind == KindLeaf {
		c = AllOf(c)
	}
	return c, nil
}

func fromExpr(e *exprpb.Expr) (*Condition, error) {
	switch k := e.GetExprKind().(type) {
	case *exprpb.Expr_ConstExpr:
		if b, ok := k.ConstExpr.GetConstantKind().(*exprpb.Constant_BoolValue); ok {
			if b.BoolValue {
				return AllOf(), nil
			}
			return Never(), nil
		}
		return nil, fmt.Errorf("bare literal is not a condition")

	case *exprpb.Expr_SelectExpr:
		if !k.SelectExpr.GetTestOnly() {
			return nil, fmt.Errorf("bare field reference is not a condition")
		}
		name, err := celField(e)
		if err != nil {
			return nil, err
		}
		return Leaf(name, OpExists, record.Null()), nil

	case *exprpb.Expr_CallExpr:
		return fromCall(k.CallExpr)
	}
	return nil, fmt.Errorf("unsupported expression")
}

func fromCall(call *exprpb.Expr_Call) (*Condition, error) {
	if call.GetTarget() != nil {
		return nil, fmt.Errorf("method call %q is not supported", call.GetFunction())
	}
	args := call.GetArgs()
	fn := call.GetFunction()

	switch fn {
	case operators.LogicalAnd, operators.LogicalOr:
		terms := make([]*Condition, 0, len(args))
		want := KindAll
		if fn == operators.LogicalOr {
			want = KindAny
		}
		for _, a := range args {
			sub, err := fromExpr(a)
			if err != nil {
				return nil, err
			}
			if sub.kind == want {
				terms = append(terms, sub.terms...)
			} else {
				terms = append(terms, sub)
			}
		}
		if want == KindAny {
			return AnyOf(terms...), nil
		}
		return AllOf(terms...), nil

	case operators.LogicalNot:
		if len(args) != 1 {
			return nil, fmt.Errorf("malformed negation")
		}
		sub, err := fromExpr(args[0])
		if err != nil {
			return nil, err
		}
		if sub.kind != KindLeaf || sub.op != OpExists || sub.IsNever() {
			return nil, fmt.Errorf("negation is only supported on has()")
		}
		return Leaf(sub.field, OpNotExists, record.Null()), nil

	case operators.In:
		if len(args) != 2 {
			return nil, fmt.Errorf("malformed in")
		}
		if name, err := celField(args[1]); err == nil {
			lit, err := celLiteral(args[0])
			if err != nil {
				return nil, err
			}
			return Leaf(name, OpIncludes, lit), nil
		}
		name, err := celField(args[0])
		if err != nil {
			return nil, err
		}
		list := args[1].GetListExpr()
		if list == nil {
			return nil, fmt.Errorf("in needs a list literal or a field on the right")
		}
		members := make([]string, 0, len(list.GetElements()))
		for _, el := range list.GetElements() {
			lit, err := celLiteral(el)
			if err != nil {
				return nil, err
			}
			s, ok := lit.AsText()
			if !ok {
				return nil, fmt.Errorf("in list members must be strings")
			}
			members = append(members, s)
		}
		return Leaf(name, OpIn, record.Set(members...)), nil
	}

	op, ok := celOperators[fn]
	if !ok || len(args) != 2 {
		return nil, fmt.Errorf("function %q is not supported", fn)
	}
	left, right := args[0], args[1]
	name, err := celField(left)
	if err != nil {
		// literal on the left: flip the comparison
		name, err = celField(right)
		if err != nil {
			return nil, fmt.Errorf("comparison needs a field on one side")
		}
		right = left
		op = flip(op)
	}
	lit, err := celLiteral(right)
	if err != nil {
		return nil, err
	}
	if op.Numeric() && lit.Kind() != record.KindNumber {
		return nil, fmt.Errorf("%s needs a numeric literal", op)
	}
	return Leaf(name, op, lit), nil
}

func flip(op Operator) Operator {
	switch op {
	case OpGreaterThan:
		return OpLessThan
	case OpLessThan:
		return OpGreaterThan
	case OpGreaterOrEqual:
		return OpLessOrEqual
	case OpLessOrEqual:
		return OpGreaterOrEqual
	}
	return op
}

// celField accepts a bare identifier or one record qualifier followed by a
// field name.
func celField(e *exprpb.Expr) (string, error) {
	if id := e.GetIdentExpr(); id != nil {
		return checkedField(id.GetName())
	}
	sel := e.GetSelectExpr()
	if sel == nil {
		return "", fmt.Errorf("not a field reference")
	}
	operand := sel.GetOperand().GetIdentExpr()
	if operand == nil {
		return "", fmt.Errorf("nested field references are not supported")
	}
	for _, pre := range DefaultPrefixes {
		if operand.GetName()+"." == pre {
			return checkedField(sel.GetField())
		}
	}
	return "", fmt.Errorf("unknown record qualifier %q", operand.GetName())
}

func checkedField(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("unsupported field reference %q", name)
	}
	if forbiddenIdents[name] {
		return "", fmt.Errorf("reference to %q is not allowed", name)
	}
	return name, nil
}

func celLiteral(e *exprpb.Expr) (record.Value, error) {
	c := e.GetConstExpr()
	if c == nil {
		if call := e.GetCallExpr(); call != nil && call.GetFunction() == operators.Negate && len(call.GetArgs()) == 1 {
			v, err := celLiteral(call.GetArgs()[0])
			if err != nil {
				return record.Null(), err
			}
			n, ok := v.AsNumber()
			if !ok {
				return record.Null(), fmt.Errorf("negation of a non-numeric literal")
			}
			return record.Number(-n), nil
		}
		if list := e.GetListExpr(); list != nil {
			members := make([]string, 0, len(list.GetElements()))
			for _, el := range list.GetElements() {
				s := el.GetConstExpr().GetStringValue()
				if _, ok := el.GetConstExpr().GetConstantKind().(*exprpb.Constant_StringValue); !ok {
					return record.Null(), fmt.Errorf("list members must be strings")
				}
				members = append(members, s)
			}
			return record.Set(members...), nil
		}
		return record.Null(), fmt.Errorf("right-hand side must be a literal")
	}
	switch k := c.GetConstantKind().(type) {
	case *exprpb.Constant_StringValue:
		return record.Text(k.StringValue), nil
	case *exprpb.Constant_BoolValue:
		return record.Bool(k.BoolValue), nil
	case *exprpb.Constant_Int64Value:
		return record.Number(float64(k.Int64Value)), nil
	case *exprpb.Constant_Uint64Value:
		return record.Number(float64(k.Uint64Value)), nil
	case *exprpb.Constant_DoubleValue:
		return record.Number(k.DoubleValue), nil
	}
	return record.Null(), fmt.Errorf("unsupported literal")
}

// String renders c as a CEL expression that FromCEL reads back to an
// equivalent condition.
func (c *Condition) String() string {
	if c == nil {
		return "true"
	}
	switch c.kind {
	case KindAll, KindAny:
		if len(c.terms) == 0 {
			return "true"
		}
		if len(c.terms) == 1 {
			return c.terms[0].String()
		}
		sep := " && "
		if c.kind == KindAny {
			sep = " || "
		}
		parts := make([]string, len(c.terms))
		for i, t := range c.terms {
			s := t.String()
			if u := unwrap(t); u != nil && u.kind != KindLeaf && len(u.terms) > 1 {
				s = "(" + s + ")"
			}
			parts[i] = s
		}
		return strings.Join(parts, sep)
	}
	return c.leafString()
}

// unwrap follows single-term groups down to the node that is rendered.
func unwrap(c *Condition) *Condition {
	for c != nil && c.kind != KindLeaf && len(c.terms) == 1 {
		c = c.terms[0]
	}
	return c
}

func (c *Condition) leafString() string {
	if c.IsNever() {
		return "false"
	}
	ref := "record." + c.field
	if c.op.TakesValue() && c.value.IsNull() {
		// Nothing equals null: only a declared field satisfies not_equals.
		if c.op == OpNotEquals {
			return "(has(" + ref + ") || !has(" + ref + "))"
		}
		return "false"
	}
	switch c.op {
	case OpExists:
		return "has(" + ref + ")"
	case OpNotExists:
		return "!has(" + ref + ")"
	case OpIncludes:
		return celValue(c.value) + " in " + ref
	case OpIn:
		return ref + " in " + celValue(c.value)
	}
	if sym, ok := celSymbols[c.op]; ok {
		return ref + " " + sym + " " + celValue(c.value)
	}
	return "false"
}

func celValue(v record.Value) string {
	if n, ok := v.AsNumber(); ok {
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	if s, ok := v.AsText(); ok {
		return strconv.Quote(s)
	}
	if b, ok := v.AsBool(); ok {
		return strconv.FormatBool(b)
	}
	if members, ok := v.AsSet(); ok {
		quoted := make([]string, len(members))
		for i, m := range members {
			quoted[i] = strconv.Quote(m)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	}
	return "null"
}
