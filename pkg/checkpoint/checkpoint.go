// Package checkpoint turns the obligation catalog into the ordered list of
// checks a record must pass in one phase.
package checkpoint

import (
	"sort"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canonicalize"
	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// Link is a reference attached to an obligation (template, policy page).
type Link struct {
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url"`
}

// Obligation is one configured requirement. It is read-only to the core.
type Obligation struct {
	ID        string               `yaml:"id" json:"id"`
	Label     string               `yaml:"label" json:"label"`
	Phase     phase.Phase          `yaml:"phase" json:"phase"`
	Mandatory bool                 `yaml:"mandatory" json:"mandatory"`
	Condition *condition.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Order     *int                 `yaml:"order,omitempty" json:"order,omitempty"`
	Links     []Link               `yaml:"links,omitempty" json:"links,omitempty"`
	Guidance  string               `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// Checkpoint is an obligation resolved for one record in one phase.
type Checkpoint struct {
	ObligationID string      `json:"obligation_id"`
	Label        string      `json:"label"`
	Phase        phase.Phase `json:"phase"`
	Required     bool        `json:"required"`
	Completed    bool        `json:"completed"`
	Order        *int        `json:"order,omitempty"`
	Links        []Link      `json:"links,omitempty"`
	Guidance     string      `json:"guidance,omitempty"`
}

// PriorState maps obligation ids to their persisted completion flag.
type PriorState map[string]bool

// Resolve builds the checkpoints of phase p for r with a silent resolver.
func Resolve(p phase.Phase, r record.Record, catalog []Obligation, prior PriorState) []Checkpoint {
	return Resolver{}.Resolve(p, r, catalog, prior)
}

// Resolver resolves checkpoints and forwards condition diagnostics to Sink.
type Resolver struct {
	Sink condition.Sink
}

// Resolve keeps the obligations declared for p (or for every phase) whose
// condition holds for r, seeds completion from prior, and orders the result
// by ascending order key. Obligations without a key come last in catalog
// order.
func (rs Resolver) Resolve(p phase.Phase, r record.Record, catalog []Obligation, prior PriorState) []Checkpoint {
	ev := condition.Evaluator{Sink: rs.Sink}
	out := make([]Checkpoint, 0, len(catalog))
	for _, ob := range catalog {
		if !ob.Phase.Matches(p) {
			continue
		}
		if !ev.Evaluate(ob.Condition, r) {
			continue
		}
		out = append(out, Checkpoint{
			ObligationID: ob.ID,
			Label:        ob.Label,
			Phase:        p,
			Required:     ob.Mandatory,
			Completed:    prior[ob.ID],
			Order:        copyInt(ob.Order),
			Links:        append([]Link(nil), ob.Links...),
			Guidance:     ob.Guidance,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order, out[j].Order
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Toggle returns a copy of cps with the completion of one obligation set to
// done. The second result is false when no checkpoint has that id.
func Toggle(cps []Checkpoint, obligationID string, done bool) ([]Checkpoint, bool) {
	out := make([]Checkpoint, len(cps))
	copy(out, cps)
	found := false
	for i := range out {
		if out[i].ObligationID == obligationID {
			out[i].Completed = done
			found = true
		}
	}
	return out, found
}

// State extracts the completion flags to persist.
func State(cps []Checkpoint) PriorState {
	st := make(PriorState, len(cps))
	for _, c := range cps {
		st[c.ObligationID] = c.Completed
	}
	return st
}

// Outstanding returns the required checkpoints that are not completed.
func Outstanding(cps []Checkpoint) []Checkpoint {
	var out []Checkpoint
	for _, c := range cps {
		if c.Required && !c.Completed {
			out = append(out, c)
		}
	}
	return out
}

// Digest is the hex SHA-256 of the canonical JSON of cps. Two resolutions
// with equal content and order have equal digests.
func Digest(cps []Checkpoint) (string, error) {
	if cps == nil {
		cps = []Checkpoint{}
	}
	return canonicalize.CanonicalHash(cps)
}
