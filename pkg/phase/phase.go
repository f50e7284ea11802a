// Package phase defines the fixed, ordered approval lifecycle.
package phase

import (
	"fmt"
	"strings"
)

// Phase is one stage of the approval lifecycle.
type Phase string

const (
	Intake           Phase = "intake"
	EarlyReview      Phase = "early_review"
	SubmissionReview Phase = "submission_review"
	CommitReview     Phase = "commit_review"
	Transition       Phase = "transition"

	// Won and Lost are the terminal outcomes. The decision is taken when
	// leaving CommitReview: lost ends the lifecycle there, won continues
	// through the Transition hand-off and ends at Won.
	Won  Phase = "won"
	Lost Phase = "lost"

	// All is the catalog wildcard matching every phase. It is not a state.
	All Phase = "ALL"
)

var sequence = []Phase{Intake, EarlyReview, SubmissionReview, CommitReview, Transition}

var aliases = map[string]Phase{
	"early":       EarlyReview,
	"submission":  SubmissionReview,
	"commit":      CommitReview,
	"closed_won":  Won,
	"closed_lost": Lost,
	"*":           All,
}

// Sequence returns the review phases in order.
func Sequence() []Phase {
	return append([]Phase(nil), sequence...)
}

// Parse resolves a phase name ignoring case, spaces and hyphens, so that
// "Intake", "EARLY-REVIEW" and "Commit Review" are accepted.
func Parse(s string) (Phase, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, string(All)) {
		return All, nil
	}
	key := strings.ToLower(trimmed)
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for _, p := range sequence {
		if string(p) == key {
			return p, nil
		}
	}
	switch Phase(key) {
	case Won, Lost:
		return Phase(key), nil
	}
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// MustParse is Parse for statically known names.
func MustParse(s string) Phase {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Index is the position of p in the lifecycle. Both terminal outcomes share
// the index after Transition. Unknown phases and All return -1.
func (p Phase) Index() int {
	for i, q := range sequence {
		if q == p {
			return i
		}
	}
	if p.IsTerminal() {
		return len(sequence)
	}
	return -1
}

// IsTerminal reports whether p is an outcome.
func (p Phase) IsTerminal() bool { return p == Won || p == Lost }

// IsBranch reports whether advancing from p needs an explicit outcome. Only
// the last review phase branches.
func (p Phase) IsBranch() bool { return p == CommitReview }

// Valid reports whether p is a lifecycle state.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// Matches reports whether a catalog entry declared for p applies to target.
func (p Phase) Matches(target Phase) bool {
	return p == All || p == target
}

// Before reports whether p comes strictly before q.
func (p Phase) Before(q Phase) bool {
	return p.Valid() && q.Valid() && p.Index() < q.Index()
}

func (p Phase) String() string { return string(p) }

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
