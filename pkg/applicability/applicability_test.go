package applicability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/gatekeeper/pkg/classification"
)

func ptr(f float64) *float64 { return &f }

var parties = []Party{
	{ID: "legal", Name: "Legal", Levels: []classification.Level{"L1", "L2"}},
	{ID: "security", Name: "Security", Role: "expert", Levels: []classification.Level{"L1"}},
	{ID: "finance", Name: "Finance", Levels: []classification.Level{"L1", "L2", "L3"}},
	{ID: "nobody", Name: "Unassigned"},
}

var thresholds = []Threshold{
	{ID: "gross_margin", Target: 0.25, Minimum: ptr(0.10), ApprovalRequired: true, ApproverLevel: "vp"},
	{ID: "services_margin", Target: 0.30, ApprovalRequired: true},
	{ID: "info_only", Target: 0.5},
}

func TestApplicableParties(t *testing.T) {
	ids := func(ps []Party) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}
	assert.Equal(t, []string{"legal", "security", "finance"}, ids(ApplicableParties("L1", parties)))
	assert.Equal(t, []string{"legal", "finance"}, ids(ApplicableParties("L2", parties)))
	assert.Equal(t, []string{"finance"}, ids(ApplicableParties("L3", parties)))
	assert.Empty(t, ApplicableParties("L9", parties))
	assert.Empty(t, ApplicableParties("L1", nil))
}

func TestThresholdStatus(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		actual float64
		want   Status
	}{
		{
			name: "at target", id: "gross_margin", actual: 0.25,
			want: Status{ThresholdID: "gross_margin"},
		},
		{
			name: "below target, above minimum", id: "gross_margin", actual: 0.2,
			want: Status{ThresholdID: "gross_margin", IsBelowTarget: true, ApprovalRequired: true, RequiredApprovalLevel: "vp"},
		},
		{
			name: "below minimum escalates", id: "gross_margin", actual: 0.05,
			want: Status{ThresholdID: "gross_margin", IsBelowTarget: true, IsBelowMinimum: true, ApprovalRequired: true, RequiredApprovalLevel: HardFloorLevel},
		},
		{
			name: "default approver", id: "services_margin", actual: 0.1,
			want: Status{ThresholdID: "services_margin", IsBelowTarget: true, ApprovalRequired: true, RequiredApprovalLevel: DefaultApproverLevel},
		},
		{
			name: "flag off", id: "info_only", actual: 0.1,
			want: Status{ThresholdID: "info_only", IsBelowTarget: true},
		},
		{
			name: "nan fails closed", id: "gross_margin", actual: math.NaN(),
			want: Status{ThresholdID: "gross_margin", IsBelowTarget: true, IsBelowMinimum: true, ApprovalRequired: true, RequiredApprovalLevel: HardFloorLevel},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ThresholdStatus(tt.id, tt.actual, thresholds)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThresholdStatus_Unknown(t *testing.T) {
	got, ok := ThresholdStatus("missing", 0, thresholds)
	assert.False(t, ok)
	assert.Equal(t, Status{}, got)
}

func TestApplicableThresholds(t *testing.T) {
	table := []Threshold{
		{ID: "all_levels", Target: 1},
		{ID: "large_only", Target: 1, Levels: []classification.Level{"L1"}},
	}
	assert.Len(t, ApplicableThresholds("L1", table), 2)
	got := ApplicableThresholds("L2", table)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "all_levels", got[0].ID)
	}
}
