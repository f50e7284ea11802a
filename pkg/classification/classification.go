// Package classification maps a numeric record value onto a categorical level
// through a table of bands, and resolves the metadata attached to each level.
package classification

import (
	"fmt"
	"math"
	"sort"

	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
)

// Level identifies a classification band, e.g. "L1".
type Level string

// WorkflowStyle selects how much review a level goes through.
type WorkflowStyle string

const (
	WorkflowStandard  WorkflowStyle = "standard"
	WorkflowExtended  WorkflowStyle = "extended"
	WorkflowFastTrack WorkflowStyle = "fast_track"
)

// Diagnostic codes.
const (
	CodeNoBand       = "classification.no_band"
	CodeInvalidTable = "classification.invalid_table"
)

// Band is one row of a classification table. Upper is informational (nil
// means unbounded); resolution only looks at Lower.
type Band struct {
	Level     Level         `yaml:"level" json:"level"`
	Lower     float64       `yaml:"lower" json:"lower"`
	Upper     *float64      `yaml:"upper,omitempty" json:"upper,omitempty"`
	Label     string        `yaml:"label,omitempty" json:"label,omitempty"`
	Reviewers []string      `yaml:"reviewers,omitempty" json:"reviewers,omitempty"`
	Workflow  WorkflowStyle `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// Table is an unordered set of bands.
type Table []Band

// Sorted returns a copy ordered by descending lower bound. Bands with equal
// lower bounds keep their relative order.
func (t Table) Sorted() Table {
	out := make(Table, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Lower > out[j].Lower })
	return out
}

// Classify returns the level of the band with the highest lower bound at or
// below value. When nothing matches it falls back to the lowest level, and
// an empty table yields "".
func Classify(value float64, t Table) Level {
	b, _ := Classifier{}.Resolve(value, t)
	return b.Level
}

// Resolve is Classify returning the whole band. ok is false only for an
// empty table.
func Resolve(value float64, t Table) (Band, bool) {
	return Classifier{}.Resolve(value, t)
}

// Classifier resolves bands and reports fallbacks to Sink.
type Classifier struct {
	Sink condition.Sink
}

func (c Classifier) Resolve(value float64, t Table) (Band, bool) {
	if len(t) == 0 {
		return Band{}, false
	}
	sorted := t.Sorted()
	for _, b := range sorted {
		if b.Lower <= value {
			return b, true
		}
	}
	lowest := sorted[len(sorted)-1]
	if c.Sink != nil {
		c.Sink.Report(condition.Diagnostic{
			Severity: condition.SeverityWarning,
			Code:     CodeNoBand,
			Subject:  string(lowest.Level),
			Message:  fmt.Sprintf("no band matches %v, using lowest level %q", value, lowest.Level),
		})
	}
	return lowest, true
}

// Lookup finds the band declared for level.
func (t Table) Lookup(level Level) (Band, bool) {
	for _, b := range t {
		if b.Level == level {
			return b, true
		}
	}
	return Band{}, false
}

// Reviewers returns the reviewer roles configured for level.
func Reviewers(level Level, t Table) []string {
	b, ok := t.Lookup(level)
	if !ok {
		return nil
	}
	return append([]string(nil), b.Reviewers...)
}

// WorkflowFor returns the workflow style of level, WorkflowStandard when the
// band does not set one.
func WorkflowFor(level Level, t Table) (WorkflowStyle, bool) {
	b, ok := t.Lookup(level)
	if !ok {
		return "", false
	}
	if b.Workflow == "" {
		return WorkflowStandard, true
	}
	return b.Workflow, true
}

// Levels lists the table's levels from the lowest band to the highest.
func (t Table) Levels() []Level {
	sorted := t.Sorted()
	out := make([]Level, len(sorted))
	for i, b := range sorted {
		out[len(sorted)-1-i] = b.Level
	}
	return out
}

// Rank orders levels by value: the lowest band ranks 0. Unknown levels rank
// -1.
func (t Table) Rank(level Level) int {
	for i, l := range t.Levels() {
		if l == level {
			return i
		}
	}
	return -1
}

// Validate reports structural defects: bands must be contiguous and
// non-overlapping once sorted, the lowest band must start at 0, and only the
// highest band may be unbounded. Upper bounds may be exclusive (equal to the
// next lower bound) or inclusive on whole units (one below it).
func (t Table) Validate(name string) []condition.Diagnostic {
	var out []condition.Diagnostic
	add := func(subject, format string, args ...any) {
		out = append(out, condition.Diagnostic{
			Severity: condition.SeverityError,
			Code:     CodeInvalidTable,
			Subject:  subject,
			Message:  name + ": " + fmt.Sprintf(format, args...),
		})
	}
	if len(t) == 0 {
		add(name, "table has no bands")
		return out
	}

	seen := map[Level]bool{}
	for _, b := range t {
		if b.Level == "" {
			add(name, "band with lower bound %v has no level", b.Lower)
		} else if seen[b.Level] {
			add(string(b.Level), "level declared twice")
		}
		seen[b.Level] = true
		if math.IsNaN(b.Lower) || math.IsInf(b.Lower, 0) {
			add(string(b.Level), "lower bound must be finite")
		}
		if b.Upper != nil && *b.Upper <= b.Lower {
			add(string(b.Level), "upper bound %v is not above lower bound %v", *b.Upper, b.Lower)
		}
	}

	sorted := t.Sorted()
	if low := sorted[len(sorted)-1]; low.Lower != 0 {
		add(string(low.Level), "lowest band starts at %v, not 0", low.Lower)
	}
	for i := 1; i < len(sorted); i++ {
		above, b := sorted[i-1], sorted[i]
		if b.Upper == nil {
			add(string(b.Level), "only the highest band may be unbounded")
			continue
		}
		gap := above.Lower - *b.Upper
		switch {
		case gap < 0:
			add(string(b.Level), "overlaps %s", above.Level)
		case gap > 1:
			add(string(b.Level), "gap of %v before %s", gap, above.Level)
		}
	}
	return out
}
