package record

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind is the declared type of a record field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindText
	KindNumber
	KindBool
	KindLevel
	KindSet
)

var kindNames = map[Kind]string{
	KindText:   "text",
	KindNumber: "number",
	KindBool:   "bool",
	KindLevel:  "level",
	KindSet:    "set",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return KindText, nil
	case "number", "numeric":
		return KindNumber, nil
	case "bool", "boolean":
		return KindBool, nil
	case "level", "enum":
		return KindLevel, nil
	case "set", "list":
		return KindSet, nil
	}
	return KindInvalid, fmt.Errorf("unknown field kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if k == KindInvalid {
		return nil, fmt.Errorf("cannot marshal invalid field kind")
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is an immutable typed field value. The zero Value is null.
type Value struct {
	kind Kind
	text string
	num  float64
	b    bool
	set  []string
}

func Null() Value              { return Value{} }
func Text(s string) Value      { return Value{kind: KindText, text: s} }
func Number(f float64) Value   { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Level(level string) Value { return Value{kind: KindLevel, text: level} }

// Set builds a set value. Members are deduplicated and sorted so that equal
// sets compare and render identically.
func Set(members ...string) Value {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return Value{kind: KindSet, set: out}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindInvalid }

// AsText returns the string payload of text and level values.
func (v Value) AsText() (string, bool) {
	if v.kind == KindText || v.kind == KindLevel {
		return v.text, true
	}
	return "", false
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

// AsSet returns a copy of the members of a set value.
func (v Value) AsSet() ([]string, bool) {
	if v.kind != KindSet {
		return nil, false
	}
	out := make([]string, len(v.set))
	copy(out, v.set)
	return out, true
}

// Contains reports whether a set value has member m.
func (v Value) Contains(m string) bool {
	if v.kind != KindSet {
		return false
	}
	i := sort.SearchStrings(v.set, m)
	return i < len(v.set) && v.set[i] == m
}

// Equal compares two values. Text and level values compare by their string
// payload; every other pairing of different kinds is unequal.
func (v Value) Equal(o Value) bool {
	if vs, ok := v.AsText(); ok {
		other, ok := o.AsText()
		return ok && vs == other
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for i := range v.set {
			if v.set[i] != o.set[i] {
				return false
			}
		}
		return true
	case KindInvalid:
		return true
	}
	return false
}

// Interface returns the plain Go representation used for JSON and YAML.
func (v Value) Interface() any {
	switch v.kind {
	case KindText, KindLevel:
		return v.text
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindSet:
		out, _ := v.AsSet()
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindText, KindLevel:
		return strconv.Quote(v.text)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindSet:
		quoted := make([]string, len(v.set))
		for i, m := range v.set {
			quoted[i] = strconv.Quote(m)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	}
	return "null"
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return nil, fmt.Errorf("value %v is not representable in JSON", v.num)
	}
	return json.Marshal(v.Interface())
}

// FromAny infers a Value from a decoded JSON/YAML scalar or list.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case []string:
		return Set(t...), nil
	case []any:
		members := make([]string, 0, len(t))
		for _, m := range t {
			s, ok := m.(string)
			if !ok {
				return Null(), fmt.Errorf("set member %v is not a string", m)
			}
			members = append(members, s)
		}
		return Set(members...), nil
	}
	if f, ok := toFloat(raw); ok {
		return Number(f), nil
	}
	return Null(), fmt.Errorf("unsupported value type %T", raw)
}

// Coerce converts raw into a Value of the given kind.
func Coerce(raw any, kind Kind) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	if v, ok := raw.(Value); ok {
		if v.IsNull() || v.kind == kind || (kind == KindLevel && v.kind == KindText) {
			if kind == KindLevel && v.kind == KindText {
				return Level(v.text), nil
			}
			return v, nil
		}
		return Null(), fmt.Errorf("expected %s, got %s", kind, v.kind)
	}
	switch kind {
	case KindText, KindLevel:
		s, ok := raw.(string)
		if !ok {
			return Null(), fmt.Errorf("expected %s, got %T", kind, raw)
		}
		if kind == KindLevel {
			return Level(s), nil
		}
		return Text(s), nil
	case KindNumber:
		f, ok := toFloat(raw)
		if !ok {
			return Null(), fmt.Errorf("expected number, got %T", raw)
		}
		return Number(f), nil
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return Null(), fmt.Errorf("expected bool, got %T", raw)
		}
		return Bool(b), nil
	case KindSet:
		v, err := FromAny(raw)
		if err != nil {
			return Null(), err
		}
		if v.kind != KindSet {
			return Null(), fmt.Errorf("expected set, got %T", raw)
		}
		return v, nil
	}
	return Null(), fmt.Errorf("invalid field kind")
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
