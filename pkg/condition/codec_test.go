package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

func TestJSON_WireForm(t *testing.T) {
	c := AllOf(
		Leaf("level", OpEquals, record.Text("L3")),
		AnyOf(
			Leaf("value", OpGreaterThan, record.Number(10_000_000)),
			Leaf("customer", OpExists, record.Null()),
		),
	)
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":[
		{"field":"level","operator":"equals","value":"L3"},
		{"any":[
			{"field":"value","operator":"greater_than","value":10000000},
			{"field":"customer","operator":"exists"}
		]}
	]}`, string(data))

	var back Condition
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(c, &back), "got %s", &back)
}

func TestJSON_Decode(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"level","operator":"in","value":"L1"}`), &c))
	assert.True(t, Equal(Leaf("level", OpIn, record.Set("L1")), &c))

	require.NoError(t, json.Unmarshal([]byte(`{"field":"regions","operator":"set_includes","value":"EU"}`), &c))
	assert.Equal(t, OpIncludes, c.Operator())

	require.NoError(t, json.Unmarshal([]byte(`{"any":[]}`), &c))
	assert.Equal(t, KindAny, c.Kind())
	assert.Empty(t, c.Terms())
}

func TestJSON_UnknownOperatorSurvives(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"customer","operator":"regex","value":"^A"}`), &c))
	assert.Equal(t, OpInvalid, c.Operator())

	data, err := json.Marshal(&c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"customer","operator":"regex","value":"^A"}`, string(data))
}

func TestJSON_Rejects(t *testing.T) {
	inputs := []string{
		`null`,
		`{}`,
		`[]`,
		`{"all":[],"any":[]}`,
		`{"all":[null]}`,
		`{"field":""}`,
		`{"field":"level","operator":"equals","value":{"nested":true}}`,
		`{"field":"regions","operator":"in","value":[1,2]}`,
		`{"field":"level","operator":"equals"}`,
		`{"field":"level","operator":"not_equals","value":null}`,
		`{"field":"value","operator":"greater_than","value":null}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			var c Condition
			assert.Error(t, json.Unmarshal([]byte(in), &c))
		})
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	src := `
any:
  - field: level
    operator: equals
    value: L1
  - all:
      - field: value
        operator: gte
        value: 5000000
      - field: regions
        operator: includes
        value: EU
`
	var c Condition
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))
	want := AnyOf(
		Leaf("level", OpEquals, record.Text("L1")),
		AllOf(
			Leaf("value", OpGreaterOrEqual, record.Number(5_000_000)),
			Leaf("regions", OpIncludes, record.Text("EU")),
		),
	)
	assert.True(t, Equal(want, &c), "got %s", &c)

	out, err := yaml.Marshal(&c)
	require.NoError(t, err)
	var back Condition
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.True(t, Equal(want, &back))
}

func TestYAML_RejectsScalar(t *testing.T) {
	var c Condition
	err := yaml.Unmarshal([]byte(`"level === 'L1'"`), &c)
	assert.Error(t, err)
}
