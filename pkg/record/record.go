// Package record defines the business record the gating core evaluates: a
// flat set of named, typed fields addressed by name. Records are immutable
// snapshots supplied by the caller.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ReservedPrefix marks field names the engine keeps for itself. No schema may
// declare a field starting with it.
const ReservedPrefix = "$"

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field declares one record field.
type Field struct {
	Name   string   `yaml:"name" json:"name"`
	Kind   Kind     `yaml:"kind" json:"kind"`
	Levels []string `yaml:"levels,omitempty" json:"levels,omitempty"`
}

// AllowsLevel reports whether v is an acceptable value for a level field.
// A level field without a declared level list accepts any value.
func (f Field) AllowsLevel(v string) bool {
	if f.Kind != KindLevel || len(f.Levels) == 0 {
		return true
	}
	for _, l := range f.Levels {
		if l == v {
			return true
		}
	}
	return false
}

// Schema is the set of fields a record type declares.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates and indexes field declarations.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, &FieldError{Field: f.Name, Reason: "invalid field name"}
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, &FieldError{Field: f.Name, Reason: "declared twice"}
		}
		if f.Kind == KindInvalid {
			return nil, &FieldError{Field: f.Name, Reason: "missing kind"}
		}
		f.Levels = append([]string(nil), f.Levels...)
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is NewSchema for statically known declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the declaration for name. A nil schema declares nothing.
func (s *Schema) Lookup(name string) (Field, bool) {
	if s == nil || strings.HasPrefix(name, ReservedPrefix) {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the declarations in declaration order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldState distinguishes an undeclared field from a declared field without
// a value.
type FieldState uint8

const (
	FieldUnknown FieldState = iota
	FieldUnset
	FieldPresent
)

// FieldError reports a record or schema field that violates its declaration.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Record is an immutable snapshot of one business object.
type Record struct {
	ID     string
	schema *Schema
	values map[string]Value
}

// New builds a record whose values are checked against schema.
func New(schema *Schema, id string, fields map[string]any) (Record, error) {
	if schema == nil {
		return Record{}, fmt.Errorf("record %q: nil schema", id)
	}
	r := Record{ID: id, schema: schema, values: make(map[string]Value, len(fields))}
	for name, raw := range fields {
		f, ok := schema.Lookup(name)
		if !ok {
			return Record{}, &FieldError{Field: name, Reason: "not declared by schema"}
		}
		v, err := Coerce(raw, f.Kind)
		if err != nil {
			return Record{}, &FieldError{Field: name, Reason: err.Error()}
		}
		if lv, isLevel := v.AsText(); isLevel && f.Kind == KindLevel && !f.AllowsLevel(lv) {
			return Record{}, &FieldError{Field: name, Reason: fmt.Sprintf("level %q not declared", lv)}
		}
		if !v.IsNull() {
			r.values[name] = v
		}
	}
	return r, nil
}

// FromMap builds a record with a schema inferred from the values themselves.
// It is meant for ad hoc records; configured record types should use New.
func FromMap(id string, fields map[string]any) (Record, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]Field, 0, len(names))
	values := make(map[string]any, len(names))
	for _, name := range names {
		v, err := FromAny(fields[name])
		if err != nil {
			return Record{}, &FieldError{Field: name, Reason: err.Error()}
		}
		kind := v.Kind()
		if kind == KindInvalid {
			kind = KindText
		}
		decls = append(decls, Field{Name: name, Kind: kind})
		values[name] = v
	}
	schema, err := NewSchema(decls...)
	if err != nil {
		return Record{}, err
	}
	return New(schema, id, values)
}

func (r Record) Schema() *Schema { return r.schema }

// Get looks a field up by name.
func (r Record) Get(name string) (Value, FieldState) {
	if _, ok := r.schema.Lookup(name); !ok {
		return Null(), FieldUnknown
	}
	v, ok := r.values[name]
	if !ok {
		return Null(), FieldUnset
	}
	return v, FieldPresent
}

// With returns a copy of r with one field replaced.
func (r Record) With(name string, raw any) (Record, error) {
	fields := make(map[string]any, len(r.values)+1)
	for k, v := range r.values {
		fields[k] = v
	}
	fields[name] = raw
	return New(r.schema, r.ID, fields)
}

// Values returns the present fields as plain Go values.
func (r Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v.Interface()
	}
	return out
}

// Document is the JSON shape of a record exchanged with the CLI and callers.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// DecodeJSON reads a record document. With a nil schema the schema is
// inferred from the values.
func DecodeJSON(data []byte, schema *Schema) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if schema == nil {
		return FromMap(doc.ID, doc.Fields)
	}
	return New(schema, doc.ID, doc.Fields)
}
