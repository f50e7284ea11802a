package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
)

// ErrNotFound is returned by Load when nothing was saved for a record and
// phase.
var ErrNotFound = errors.New("checkpoint state not found")

// StateStore persists which obligations of a record's phase are completed.
// It is the only place checkpoint completion outlives a call into the core.
type StateStore interface {
	Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error)
	Save(ctx context.Context, recordID string, p phase.Phase, cps []checkpoint.Checkpoint) error
}

// Row is one persisted completion flag.
type Row struct {
	RecordID     string
	Phase        phase.Phase
	ObligationID string
	Completed    bool
}

func rowsFor(recordID string, p phase.Phase, cps []checkpoint.Checkpoint) []Row {
	rows := make([]Row, len(cps))
	for i, c := range cps {
		rows[i] = Row{RecordID: recordID, Phase: p, ObligationID: c.ObligationID, Completed: c.Completed}
	}
	return rows
}

// checkpointsFor turns a loaded state back into a saveable list, ordered by
// obligation id.
func checkpointsFor(state checkpoint.PriorState) []checkpoint.Checkpoint {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cps := make([]checkpoint.Checkpoint, len(ids))
	for i, id := range ids {
		cps[i] = checkpoint.Checkpoint{ObligationID: id, Completed: state[id]}
	}
	return cps
}

type stateKey struct {
	recordID string
	phase    phase.Phase
}

// MemoryStateStore implements StateStore in memory.
// Thread-safe via RWMutex.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state map[stateKey]checkpoint.PriorState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: make(map[stateKey]checkpoint.PriorState)}
}

func (s *MemoryStateStore) Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state[stateKey{recordID, p}]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(checkpoint.PriorState, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out, nil
}

// Save merges cps into the stored state. Obligations missing from cps keep
// their stored flag.
func (s *MemoryStateStore) Save(ctx context.Context, recordID string, p phase.Phase, cps []checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey{recordID, p}
	st, ok := s.state[key]
	if !ok {
		st = make(checkpoint.PriorState, len(cps))
		s.state[key] = st
	}
	for _, c := range cps {
		st[c.ObligationID] = c.Completed
	}
	return nil
}
