package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// DefaultPrefixes are the record qualifiers legacy expressions put in front
// of field names.
var DefaultPrefixes = []string{"record.", "opportunity.", "opp."}

// ParseError is returned for text that matches none of the recognised
// legacy patterns.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized condition %q: %s", e.Text, e.Reason)
}

var (
	leafPattern       = regexp.MustCompile(`^([A-Za-z_$][A-Za-z0-9_$]*(?:\.[A-Za-z_$][A-Za-z0-9_$]*)*)\s*(===|!==|==|!=|>=|<=|>|<)\s*(.+)$`)
	identPattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	singleQuoted      = regexp.MustCompile(`^'([^']*)'$`)
	doubleQuoted      = regexp.MustCompile(`^"([^"]*)"$`)
	integerLiteral    = regexp.MustCompile(`^-?[0-9](?:_?[0-9])*$`)
	quoteReplacements = strings.NewReplacer(
		"‘", "'", "’", "'", "‚", "'", "′", "'",
		"“", `"`, "”", `"`, "„", `"`,
	)
)

// Identifiers that name host globals rather than record fields. Expressions
// mentioning them are rejected outright.
var forbiddenIdents = map[string]bool{
	"window": true, "globalThis": true, "global": true, "self": true, "this": true,
	"document": true, "process": true, "require": true, "module": true, "exports": true,
	"import": true, "eval": true, "Function": true, "constructor": true, "prototype": true,
	"__proto__": true, "fetch": true, "XMLHttpRequest": true, "WebSocket": true,
	"setTimeout": true, "setInterval": true,
}

// Parser converts legacy boolean-expression text into a Condition.
type Parser struct {
	// Prefixes are stripped from field references. Nil means DefaultPrefixes.
	Prefixes []string
	// Sink receives one diagnostic per failed top-level parse.
	Sink Sink
}

// NewParser returns a parser with the default prefixes reporting to sink.
func NewParser(sink Sink) *Parser {
	return &Parser{Sink: sink}
}

// Parse converts text with a silent default parser.
func Parse(text string) (*Condition, error) {
	return (&Parser{}).Parse(text)
}

// Parse converts text into a Condition. Recognised forms are equality and
// inequality against quoted strings and booleans, comparison with
// `undefined`, numeric comparison against integers, the literal `false`, and
// flat groupings of those with && and ||. A single comparison is returned
// wrapped in an all group.
func (p *Parser) Parse(text string) (*Condition, error) {
	c, err := p.parse(normalize(text))
	if err != nil {
		pe := &ParseError{Text: text, Reason: err.Error()}
		sinkOrDiscard(p.Sink).Report(Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeParseFailure,
			Subject:  text,
			Message:  pe.Error(),
		})
		return nil, pe
	}
	return c, nil
}

func normalize(text string) string {
	return strings.TrimSpace(quoteReplacements.Replace(norm.NFKC.String(text)))
}

// parse never reports; only the exported entry point does.
//
// The grammar is flat: one optional pair of enclosing parentheses, then a
// single || or && split whose operands are plain comparisons. Mixed nesting
// is rejected rather than guessed at.
func (p *Parser) parse(s string) (*Condition, error) {
	s = stripParens(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if s == "false" {
		return AllOf(Never()), nil
	}

	for _, g := range []struct {
		sep, other string
		group      func(...*Condition) *Condition
	}{
		{"||", "&&", AnyOf},
		{"&&", "||", AllOf},
	} {
		parts, err := splitTop(s, g.sep)
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 {
			continue
		}
		terms := make([]*Condition, len(parts))
		for i, part := range parts {
			if terms[i], err = p.operand(part, g.other); err != nil {
				return nil, err
			}
		}
		return g.group(terms...), nil
	}

	leaf, err := p.parseLeaf(s)
	if err != nil {
		return nil, err
	}
	return AllOf(leaf), nil
}

// operand parses one side of a split. It must be a single comparison.
func (p *Parser) operand(s, other string) (*Condition, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		return nil, fmt.Errorf("nested grouping %q is not supported", s)
	}
	parts, err := splitTop(s, other)
	if err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		return nil, fmt.Errorf("mixed && and || in %q is not supported", s)
	}
	return p.parseLeaf(s)
}

func (p *Parser) parseLeaf(s string) (*Condition, error) {
	m := leafPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("no comparison pattern matches %q", s)
	}
	field, err := p.fieldName(m[1])
	if err != nil {
		return nil, err
	}
	op, rhs := m[2], strings.TrimSpace(m[3])

	switch op {
	case "===", "==", "!==", "!=":
		negated := op[0] == '!'
		if rhs == "undefined" {
			if negated {
				return Leaf(field, OpExists, record.Null()), nil
			}
			return Leaf(field, OpNotExists, record.Null()), nil
		}
		lit, ok := equalityLiteral(rhs)
		if !ok {
			return nil, fmt.Errorf("unsupported literal %q", rhs)
		}
		if negated {
			return Leaf(field, OpNotEquals, lit), nil
		}
		return Leaf(field, OpEquals, lit), nil
	default:
		if !integerLiteral.MatchString(rhs) {
			return nil, fmt.Errorf("numeric comparison needs an integer literal, got %q", rhs)
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(rhs, "_", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer literal %q: %w", rhs, err)
		}
		numOp, _ := ParseOperator(op)
		return Leaf(field, numOp, record.Number(float64(n))), nil
	}
}

func (p *Parser) fieldName(ref string) (string, error) {
	prefixes := p.Prefixes
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	for _, pre := range prefixes {
		if strings.HasPrefix(ref, pre) {
			ref = strings.TrimPrefix(ref, pre)
			break
		}
	}
	if !identPattern.MatchString(ref) {
		return "", fmt.Errorf("unsupported field reference %q", ref)
	}
	if forbiddenIdents[ref] {
		return "", fmt.Errorf("reference to %q is not allowed", ref)
	}
	return ref, nil
}

func equalityLiteral(rhs string) (record.Value, bool) {
	if m := singleQuoted.FindStringSubmatch(rhs); m != nil {
		return record.Text(m[1]), true
	}
	if m := doubleQuoted.FindStringSubmatch(rhs); m != nil {
		return record.Text(m[1]), true
	}
	switch rhs {
	case "true":
		return record.Bool(true), true
	case "false":
		return record.Bool(false), true
	}
	return record.Null(), false
}

// stripParens removes one pair of parentheses enclosing the whole
// expression.
func stripParens(s string) string {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && closingParen(s) == len(s)-1 {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// closingParen returns the index of the parenthesis closing s[0], or -1.
func closingParen(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on sep where sep occurs outside quotes and parentheses.
func splitTop(s, sep string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	parts = append(parts, s[start:])
	if len(parts) > 1 {
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				return nil, fmt.Errorf("empty operand around %q", sep)
			}
		}
	}
	return parts, nil
}
