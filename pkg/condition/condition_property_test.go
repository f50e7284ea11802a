//go:build property
// +build property

package condition

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

func valueRecord(v int64) record.Record {
	r, _ := record.New(testSchema, "prop", map[string]any{"value": v})
	return r
}

// TestGroupsMatchTerms checks that a group of numeric leaves evaluates to
// the OR (any) or AND (all) of its terms.
func TestGroupsMatchTerms(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any and all agree with their terms", prop.ForAll(
		func(v int64, bounds []int64) bool {
			r := valueRecord(v)
			terms := make([]*Condition, len(bounds))
			anyHit, allHit := false, true
			for i, b := range bounds {
				terms[i] = Leaf("value", OpGreaterThan, record.Number(float64(b)))
				hit := v > b
				anyHit = anyHit || hit
				allHit = allHit && hit
			}
			if len(bounds) == 0 {
				anyHit = true
			}
			return Evaluate(AnyOf(terms...), r) == anyHit && Evaluate(AllOf(terms...), r) == allHit
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.SliceOf(gen.Int64Range(-1_000_000, 1_000_000)),
	))

	properties.Property("parsed comparison text matches direct comparison", prop.ForAll(
		func(v int64, b int64) bool {
			text := "value >= " + record.Number(float64(b)).String()
			c, err := Parse(text)
			if err != nil {
				return false
			}
			return Evaluate(c, valueRecord(v)) == (v >= b)
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(-1_000_000, 1_000_000),
	))

	properties.Property("rendering is stable through CEL", prop.ForAll(
		func(bounds []int64) bool {
			terms := make([]*Condition, len(bounds))
			for i, b := range bounds {
				terms[i] = Leaf("value", OpLessOrEqual, record.Number(float64(b)))
			}
			c := AllOf(AnyOf(terms...), Leaf("level", OpEquals, record.Text("L1")))
			back, err := FromCEL(c.String())
			return err == nil && back.String() == c.String()
		},
		gen.SliceOfN(3, gen.Int64Range(-1_000, 1_000)),
	))

	properties.TestingRun(t)
}
