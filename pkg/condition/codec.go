package condition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// Wire shapes. A node is exactly one of {"all": [...]}, {"any": [...]} or a
// leaf {"field", "operator", "value"}.
type wireLeaf struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

type wireAll struct {
	All []*Condition `json:"all" yaml:"all"`
}

type wireAny struct {
	Any []*Condition `json:"any" yaml:"any"`
}

func (c *Condition) wire() any {
	switch c.kind {
	case KindAll:
		return wireAll{All: c.Terms()}
	case KindAny:
		return wireAny{Any: c.Terms()}
	}
	return wireLeaf{Field: c.field, Operator: c.operatorName(), Value: c.value.Interface()}
}

func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

func (c *Condition) MarshalYAML() (any, error) {
	return c.wire(), nil
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("condition: null node")
	}

	allRaw, hasAll := raw["all"]
	anyRaw, hasAny := raw["any"]
	_, hasField := raw["field"]
	switch {
	case hasAll && (hasAny || hasField), hasAny && hasField:
		return fmt.Errorf("condition: node mixes all, any and leaf keys")
	case hasAll:
		terms, err := decodeTerms(allRaw)
		if err != nil {
			return err
		}
		*c = *AllOf(terms...)
		return nil
	case hasAny:
		terms, err := decodeTerms(anyRaw)
		if err != nil {
			return err
		}
		*c = *AnyOf(terms...)
		return nil
	case hasField:
		return c.decodeLeaf(raw)
	}
	return fmt.Errorf("condition: node has none of all, any or field")
}

func decodeTerms(data json.RawMessage) ([]*Condition, error) {
	var terms []*Condition
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, err
	}
	for i, t := range terms {
		if t == nil {
			return nil, fmt.Errorf("condition: term %d is null", i)
		}
	}
	return terms, nil
}

func (c *Condition) decodeLeaf(raw map[string]json.RawMessage) error {
	var field, opName string
	if err := json.Unmarshal(raw["field"], &field); err != nil {
		return fmt.Errorf("condition: field: %w", err)
	}
	if opRaw, ok := raw["operator"]; ok {
		if err := json.Unmarshal(opRaw, &opName); err != nil {
			return fmt.Errorf("condition: operator: %w", err)
		}
	}
	if field == "" {
		return fmt.Errorf("condition: leaf without field")
	}

	value := record.Null()
	if vr, ok := raw["value"]; ok {
		dec := json.NewDecoder(bytes.NewReader(vr))
		dec.UseNumber()
		var lit any
		if err := dec.Decode(&lit); err != nil {
			return fmt.Errorf("condition: value: %w", err)
		}
		v, err := record.FromAny(lit)
		if err != nil {
			return fmt.Errorf("condition: value of %q: %w", field, err)
		}
		value = v
	}

	op, ok := ParseOperator(opName)
	if !ok {
		*c = *invalidLeaf(field, opName, value)
		return nil
	}
	if op.TakesValue() && value.IsNull() {
		return fmt.Errorf("condition: %s on %q needs a value", op, field)
	}
	// A single string listed for "in" is a one-member set.
	if op == OpIn {
		if s, isText := value.AsText(); isText {
			value = record.Set(s)
		}
	}
	*c = *Leaf(field, op, value)
	return nil
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("condition: line %d: expected a mapping", node.Line)
	}
	var generic any
	if err := node.Decode(&generic); err != nil {
		return err
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("condition: line %d: %w", node.Line, err)
	}
	if err := c.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}
