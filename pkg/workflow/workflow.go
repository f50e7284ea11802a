// Package workflow implements the phase state machine: the guard that blocks
// advancement while mandatory checkpoints are open, strictly forward
// transitions, and the one-time won/lost fork when leaving commit review.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
)

// Outcome is the external decision taken when leaving the last review phase.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// ParseOutcome accepts "won" and "lost" in any case; blank is OutcomeNone.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return OutcomeNone, nil
	case "won", "win":
		return OutcomeWon, nil
	case "lost", "loss":
		return OutcomeLost, nil
	}
	return OutcomeNone, fmt.Errorf("unknown outcome %q", s)
}

// ErrForeignCheckpoint is returned when advancing a phase with checkpoints
// resolved for another phase.
var ErrForeignCheckpoint = errors.New("checkpoint belongs to another phase")

// OpenObligation identifies a mandatory checkpoint that is not completed.
type OpenObligation struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// GuardError rejects an advance because mandatory obligations are open.
type GuardError struct {
	Phase phase.Phase
	Open  []OpenObligation
}

func (e *GuardError) Error() string {
	names := make([]string, len(e.Open))
	for i, o := range e.Open {
		if o.Label != "" {
			names[i] = fmt.Sprintf("%s (%s)", o.ID, o.Label)
		} else {
			names[i] = o.ID
		}
	}
	noun := "obligations"
	if len(e.Open) == 1 {
		noun = "obligation"
	}
	return fmt.Sprintf("cannot leave %s: %d mandatory %s open: %s",
		e.Phase, len(e.Open), noun, strings.Join(names, ", "))
}

// Guard returns nil when every required checkpoint is completed and a
// *GuardError listing the open ones otherwise. Optional checkpoints never
// block.
func Guard(p phase.Phase, cps []checkpoint.Checkpoint) error {
	open := checkpoint.Outstanding(cps)
	if len(open) == 0 {
		return nil
	}
	ge := &GuardError{Phase: p, Open: make([]OpenObligation, len(open))}
	for i, c := range open {
		ge.Open[i] = OpenObligation{ID: c.ObligationID, Label: c.Label}
	}
	return ge
}

// CanAdvance reports whether the guard passes.
func CanAdvance(p phase.Phase, cps []checkpoint.Checkpoint) bool {
	return Guard(p, cps) == nil
}

// TransitionError rejects a move the lifecycle does not allow.
type TransitionError struct {
	From    phase.Phase
	Outcome Outcome
	Reason  string
}

func (e *TransitionError) Error() string {
	if e.Outcome != OutcomeNone {
		return fmt.Sprintf("cannot advance %s with outcome %s: %s", e.From, e.Outcome, e.Reason)
	}
	return fmt.Sprintf("cannot advance %s: %s", e.From, e.Reason)
}

// Next returns the phase after p. Review phases move strictly to their
// successor and take no outcome. Commit review requires one: won moves on to
// the transition hand-off, lost ends the lifecycle. Transition completes to
// won. Terminal phases never advance.
func Next(p phase.Phase, outcome Outcome) (phase.Phase, error) {
	fail := func(reason string) (phase.Phase, error) {
		return "", &TransitionError{From: p, Outcome: outcome, Reason: reason}
	}
	switch {
	case p.IsTerminal():
		return fail("phase is terminal")
	case !p.Valid():
		return fail("not a lifecycle phase")
	case p.IsBranch():
		switch outcome {
		case OutcomeWon:
			return phase.Transition, nil
		case OutcomeLost:
			return phase.Lost, nil
		case OutcomeNone:
			return fail("an outcome (won or lost) is required")
		}
		return fail("unknown outcome")
	case outcome != OutcomeNone:
		return fail("outcomes are only decided at " + string(phase.CommitReview))
	case p == phase.Transition:
		return phase.Won, nil
	}
	return phase.Sequence()[p.Index()+1], nil
}

// Advance checks that cps were resolved for p, runs the guard and then
// computes the next phase.
func Advance(p phase.Phase, cps []checkpoint.Checkpoint, outcome Outcome) (phase.Phase, error) {
	for _, c := range cps {
		if c.Phase != p {
			return "", fmt.Errorf("advance %s with %q from %q: %w", p, c.ObligationID, c.Phase, ErrForeignCheckpoint)
		}
	}
	if err := Guard(p, cps); err != nil {
		return "", err
	}
	return Next(p, outcome)
}
