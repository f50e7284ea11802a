package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
)

// MirrorStore reads from a local cache first and falls back to a remote
// store, copying what it finds into the cache. Writes go to both; the local
// write happens first so an unreachable remote never loses a toggle.
type MirrorStore struct {
	local  StateStore
	remote StateStore
	logger *slog.Logger
}

func NewMirrorStore(local, remote StateStore) *MirrorStore {
	return &MirrorStore{
		local:  local,
		remote: remote,
		logger: slog.Default().With("component", "state_mirror"),
	}
}

func (m *MirrorStore) Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error) {
	state, err := m.local.Load(ctx, recordID, p)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		m.logger.WarnContext(ctx, "local state load failed, trying remote",
			"record_id", recordID, "phase", p, "error", err)
	}

	state, err = m.remote.Load(ctx, recordID, p)
	if err != nil {
		return nil, err
	}
	if err := m.local.Save(ctx, recordID, p, checkpointsFor(state)); err != nil {
		m.logger.WarnContext(ctx, "backfill of local state failed",
			"record_id", recordID, "phase", p, "error", err)
	}
	return state, nil
}

func (m *MirrorStore) Save(ctx context.Context, recordID string, p phase.Phase, cps []checkpoint.Checkpoint) error {
	if err := m.local.Save(ctx, recordID, p, cps); err != nil {
		return fmt.Errorf("local save: %w", err)
	}
	if err := m.remote.Save(ctx, recordID, p, cps); err != nil {
		return fmt.Errorf("remote save: %w", err)
	}
	return nil
}
