// Package applicability filters configured parties and thresholds by
// classification level and computes margin-style threshold status.
package applicability

import (
	"github.com/Mindburn-Labs/gatekeeper/pkg/classification"
)

// ApproverLevel names who must sign off on a below-target threshold.
type ApproverLevel string

const (
	// HardFloorLevel is required whenever the actual value falls below a
	// threshold's minimum, regardless of the configured approver.
	HardFloorLevel ApproverLevel = "executive"
	// DefaultApproverLevel applies when a threshold names no approver.
	DefaultApproverLevel ApproverLevel = "director"
)

// Party is a reviewer, expert or approving function that takes part in the
// workflow for some levels.
type Party struct {
	ID     string                 `yaml:"id" json:"id"`
	Name   string                 `yaml:"name" json:"name"`
	Role   string                 `yaml:"role,omitempty" json:"role,omitempty"`
	Levels []classification.Level `yaml:"levels" json:"levels"`
}

// AppliesTo reports whether the party is configured for level.
func (p Party) AppliesTo(level classification.Level) bool {
	return containsLevel(p.Levels, level)
}

// ApplicableParties returns the parties configured for level, in table order.
func ApplicableParties(level classification.Level, parties []Party) []Party {
	out := make([]Party, 0, len(parties))
	for _, p := range parties {
		if p.AppliesTo(level) {
			out = append(out, p)
		}
	}
	return out
}

// Threshold is a target with an optional hard minimum, e.g. a margin target.
type Threshold struct {
	ID               string                 `yaml:"id" json:"id"`
	Label            string                 `yaml:"label,omitempty" json:"label,omitempty"`
	Target           float64                `yaml:"target" json:"target"`
	Minimum          *float64               `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	ApprovalRequired bool                   `yaml:"approval_required" json:"approval_required"`
	ApproverLevel    ApproverLevel          `yaml:"approver_level,omitempty" json:"approver_level,omitempty"`
	Levels           []classification.Level `yaml:"levels,omitempty" json:"levels,omitempty"`
}

// Status is the outcome of checking an actual value against a threshold.
type Status struct {
	ThresholdID           string        `json:"threshold_id"`
	IsBelowTarget         bool          `json:"is_below_target"`
	IsBelowMinimum        bool          `json:"is_below_minimum"`
	ApprovalRequired      bool          `json:"approval_required"`
	RequiredApprovalLevel ApproverLevel `json:"required_approval_level,omitempty"`
}

// ThresholdStatus checks actual against the threshold with the given id. The
// second result is false when the table has no such threshold.
func ThresholdStatus(id string, actual float64, table []Threshold) (Status, bool) {
	for _, th := range table {
		if th.ID == id {
			return th.Status(actual), true
		}
	}
	return Status{}, false
}

// Status checks actual against th. A NaN actual is below every target.
func (th Threshold) Status(actual float64) Status {
	st := Status{
		ThresholdID:   th.ID,
		IsBelowTarget: !(actual >= th.Target),
	}
	if th.Minimum != nil {
		st.IsBelowMinimum = !(actual >= *th.Minimum)
	}
	st.ApprovalRequired = st.IsBelowTarget && th.ApprovalRequired
	if !st.ApprovalRequired {
		return st
	}
	switch {
	case st.IsBelowMinimum:
		st.RequiredApprovalLevel = HardFloorLevel
	case th.ApproverLevel != "":
		st.RequiredApprovalLevel = th.ApproverLevel
	default:
		st.RequiredApprovalLevel = DefaultApproverLevel
	}
	return st
}

// ApplicableThresholds returns the thresholds configured for level. A
// threshold without levels applies to every level.
func ApplicableThresholds(level classification.Level, table []Threshold) []Threshold {
	out := make([]Threshold, 0, len(table))
	for _, th := range table {
		if len(th.Levels) == 0 || containsLevel(th.Levels, level) {
			out = append(out, th)
		}
	}
	return out
}

func containsLevel(levels []classification.Level, level classification.Level) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}
