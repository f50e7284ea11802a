package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

func TestValidate_Clean(t *testing.T) {
	c := AllOf(
		AnyOf(
			Leaf("level", OpEquals, record.Text("L1")),
			Leaf("level", OpIn, record.Set("L2", "L3")),
		),
		Leaf("value", OpGreaterOrEqual, record.Number(1000)),
		Leaf("regions", OpIncludes, record.Text("EU")),
		Leaf("framework", OpEquals, record.Bool(false)),
		Leaf("customer", OpExists, record.Null()),
		Never(),
	)
	assert.Empty(t, Validate(c, testSchema))
	assert.Empty(t, Validate(nil, testSchema))
}

func TestValidate_Defects(t *testing.T) {
	tests := []struct {
		name string
		c    *Condition
		code string
	}{
		{"unknown field", Leaf("region", OpEquals, record.Text("EU")), CodeUnknownField},
		{"unknown operator", invalidLeaf("level", "matches", record.Text("L1")), CodeUnknownOperator},
		{"number compared with text", Leaf("value", OpEquals, record.Text("10")), CodeKindMismatch},
		{"ordering on text", Leaf("customer", OpGreaterThan, record.Number(1)), CodeKindMismatch},
		{"includes on non-set", Leaf("customer", OpIncludes, record.Text("A")), CodeKindMismatch},
		{"in on number", Leaf("value", OpIn, record.Set("1")), CodeKindMismatch},
		{"undeclared level", Leaf("level", OpEquals, record.Text("L9")), CodeUnknownLevel},
		{"undeclared level in set", Leaf("level", OpIn, record.Set("L1", "L9")), CodeUnknownLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Validate(AllOf(tt.c), testSchema)
			require.Len(t, diags, 1)
			assert.Equal(t, tt.code, diags[0].Code)
			assert.Equal(t, SeverityError, diags[0].Severity)
			assert.NotEmpty(t, diags[0].String())
		})
	}
}

func TestValidate_CollectsEveryLeaf(t *testing.T) {
	c, err := Parse("region === 'EU' || level === 'L7' || value > 3")
	require.NoError(t, err)
	diags := Validate(c, testSchema)
	require.Len(t, diags, 2)
	assert.Equal(t, CodeUnknownField, diags[0].Code)
	assert.Equal(t, CodeUnknownLevel, diags[1].Code)
}
