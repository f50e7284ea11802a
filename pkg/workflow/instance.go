package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
)

// ErrNotViewable is returned when viewing a phase that is not yet completed.
var ErrNotViewable = errors.New("phase is not completed")

// Transition records one accepted advance. Checkpoints is the frozen list
// the guard was checked against.
type Transition struct {
	ID          string                  `json:"id"`
	RecordID    string                  `json:"record_id"`
	From        phase.Phase             `json:"from"`
	To          phase.Phase             `json:"to"`
	Outcome     Outcome                 `json:"outcome,omitempty"`
	At          time.Time               `json:"at"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	Digest      string                  `json:"digest"`
}

// Instance is the progression of one record through the lifecycle. It is
// immutable: Advance returns a new Instance. Callers serialise advances per
// record.
type Instance struct {
	recordID string
	current  phase.Phase
	history  []Transition
	clock    func() time.Time
	newID    func() string
}

// NewInstance starts recordID at intake.
func NewInstance(recordID string) *Instance {
	return &Instance{
		recordID: recordID,
		current:  phase.Intake,
		clock:    time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Resume rebuilds an instance from persisted transitions, checking that they
// form an unbroken forward chain from intake.
func Resume(recordID string, history []Transition) (*Instance, error) {
	in := NewInstance(recordID)
	for i, tr := range history {
		if tr.From != in.current {
			return nil, fmt.Errorf("transition %d starts at %s, expected %s", i, tr.From, in.current)
		}
		to, err := Next(tr.From, tr.Outcome)
		if err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
		if to != tr.To {
			return nil, fmt.Errorf("transition %d goes to %s, expected %s", i, tr.To, to)
		}
		in.current = to
	}
	in.history = append([]Transition(nil), history...)
	return in, nil
}

// WithClock returns a copy that stamps transitions with clock.
func (in *Instance) WithClock(clock func() time.Time) *Instance {
	cp := in.clone()
	cp.clock = clock
	return cp
}

// WithIDGenerator returns a copy that names transitions with newID.
func (in *Instance) WithIDGenerator(newID func() string) *Instance {
	cp := in.clone()
	cp.newID = newID
	return cp
}

func (in *Instance) clone() *Instance {
	cp := *in
	cp.history = append([]Transition(nil), in.history...)
	return &cp
}

func (in *Instance) RecordID() string     { return in.recordID }
func (in *Instance) Current() phase.Phase { return in.current }
func (in *Instance) Done() bool           { return in.current.IsTerminal() }

// History returns the accepted transitions, oldest first.
func (in *Instance) History() []Transition {
	return append([]Transition(nil), in.history...)
}

// Advance leaves the current phase. cps are the checkpoints resolved for the
// current phase; the guard must pass and the outcome must suit the phase.
func (in *Instance) Advance(cps []checkpoint.Checkpoint, outcome Outcome) (*Instance, Transition, error) {
	to, err := Advance(in.current, cps, outcome)
	if err != nil {
		return nil, Transition{}, err
	}
	frozen := append([]checkpoint.Checkpoint(nil), cps...)
	digest, err := checkpoint.Digest(frozen)
	if err != nil {
		return nil, Transition{}, fmt.Errorf("digest checkpoints: %w", err)
	}
	tr := Transition{
		ID:          in.newID(),
		RecordID:    in.recordID,
		From:        in.current,
		To:          to,
		Outcome:     outcome,
		At:          in.clock().UTC(),
		Checkpoints: frozen,
		Digest:      digest,
	}
	next := in.clone()
	next.current = to
	next.history = append(next.history, tr)
	return next, tr, nil
}

// View returns a read-only copy of the checkpoints a completed phase was
// left with. The current phase and later phases cannot be viewed.
func (in *Instance) View(p phase.Phase) ([]checkpoint.Checkpoint, error) {
	for _, tr := range in.history {
		if tr.From == p {
			return append([]checkpoint.Checkpoint(nil), tr.Checkpoints...), nil
		}
	}
	return nil, fmt.Errorf("view %s (current %s): %w", p, in.current, ErrNotViewable)
}
