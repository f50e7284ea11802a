package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
)

func cps(pairs ...any) []checkpoint.Checkpoint {
	var out []checkpoint.Checkpoint
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, checkpoint.Checkpoint{ObligationID: pairs[i].(string), Completed: pairs[i+1].(bool)})
	}
	return out
}

// exerciseStore runs the behaviour every StateStore shares.
func exerciseStore(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "opp-1", phase.Intake)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "opp-1", phase.Intake, cps("kickoff", true, "credit", false)))
	got, err := s.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"kickoff": true, "credit": false}, got)

	require.NoError(t, s.Save(ctx, "opp-1", phase.Intake, cps("credit", true)))
	got, err = s.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"kickoff": true, "credit": true}, got)

	_, err = s.Load(ctx, "opp-1", phase.EarlyReview)
	assert.ErrorIs(t, err, ErrNotFound, "state is per phase")
	_, err = s.Load(ctx, "opp-2", phase.Intake)
	assert.ErrorIs(t, err, ErrNotFound, "state is per record")
}

func TestMemoryStateStore(t *testing.T) {
	exerciseStore(t, NewMemoryStateStore())
}

func TestMemoryStateStore_LoadIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	require.NoError(t, s.Save(ctx, "opp-1", phase.Intake, cps("kickoff", true)))
	got, _ := s.Load(ctx, "opp-1", phase.Intake)
	got["kickoff"] = false
	again, _ := s.Load(ctx, "opp-1", phase.Intake)
	assert.True(t, again["kickoff"])
}

func TestSQLiteStateStore(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestSQLiteStateStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "opp-9", phase.CommitReview, cps("pricing", true)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(ctx, "opp-9", phase.CommitReview)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"pricing": true}, got)
}

const pgSelect = "SELECT obligation_id, completed FROM checkpoint_state WHERE record_id = $1 AND phase = $2"

func TestPostgresStateStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStateStore(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"obligation_id", "completed"}).
		AddRow("kickoff", true).
		AddRow("credit", false)
	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs("opp-1", "intake").
		WillReturnRows(rows)

	got, err := store.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"kickoff": true, "credit": false}, got)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs("opp-2", "intake").
		WillReturnRows(sqlmock.NewRows([]string{"obligation_id", "completed"}))
	_, err = store.Load(ctx, "opp-2", phase.Intake)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs("opp-3", "intake").
		WillReturnError(sql.ErrConnDone)
	_, err = store.Load(ctx, "opp-3", phase.Intake)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStateStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStateStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoint_state")).
		WithArgs("opp-1", "early_review", "legal", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoint_state")).
		WithArgs("opp-1", "early_review", "notes", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(ctx, "opp-1", phase.EarlyReview, cps("legal", true, "notes", false)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStateStore_SaveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoint_state")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewPostgresStateStore(db).Save(context.Background(), "opp-1", phase.Intake, cps("kickoff", true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kickoff")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStateStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS checkpoint_state")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, NewPostgresStateStore(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) Load(ctx context.Context, recordID string, p phase.Phase) (checkpoint.PriorState, error) {
	args := m.Called(ctx, recordID, p)
	st, _ := args.Get(0).(checkpoint.PriorState)
	return st, args.Error(1)
}

func (m *mockStateStore) Save(ctx context.Context, recordID string, p phase.Phase, list []checkpoint.Checkpoint) error {
	return m.Called(ctx, recordID, p, list).Error(0)
}

func TestMirrorStore_LocalHit(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStateStore()
	require.NoError(t, local.Save(ctx, "opp-1", phase.Intake, cps("kickoff", true)))
	remote := new(mockStateStore)

	got, err := NewMirrorStore(local, remote).Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"kickoff": true}, got)
	remote.AssertNotCalled(t, "Load", mock.Anything, mock.Anything, mock.Anything)
}

func TestMirrorStore_RemoteFallbackBackfills(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStateStore()
	remote := new(mockStateStore)
	remote.On("Load", ctx, "opp-1", phase.Intake).
		Return(checkpoint.PriorState{"kickoff": true, "credit": false}, nil).Once()

	m := NewMirrorStore(local, remote)
	got, err := m.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PriorState{"kickoff": true, "credit": false}, got)

	cached, err := local.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.Equal(t, got, cached)

	_, err = m.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	remote.AssertExpectations(t)
}

func TestMirrorStore_MissEverywhere(t *testing.T) {
	ctx := context.Background()
	remote := new(mockStateStore)
	remote.On("Load", ctx, "opp-1", phase.Intake).Return(nil, ErrNotFound)

	_, err := NewMirrorStore(NewMemoryStateStore(), remote).Load(ctx, "opp-1", phase.Intake)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMirrorStore_SaveWritesBoth(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStateStore()
	remote := new(mockStateStore)
	list := cps("kickoff", true)
	remote.On("Save", ctx, "opp-1", phase.Intake, list).Return(nil).Once()

	require.NoError(t, NewMirrorStore(local, remote).Save(ctx, "opp-1", phase.Intake, list))
	remote.AssertExpectations(t)
	got, err := local.Load(ctx, "opp-1", phase.Intake)
	require.NoError(t, err)
	assert.True(t, got["kickoff"])
}

func TestMirrorStore_RemoteSaveFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStateStore()
	remote := new(mockStateStore)
	remote.On("Save", ctx, "opp-1", phase.Intake, mock.Anything).Return(errors.New("unreachable"))

	err := NewMirrorStore(local, remote).Save(ctx, "opp-1", phase.Intake, cps("kickoff", true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote save")
	_, err = local.Load(ctx, "opp-1", phase.Intake)
	assert.NoError(t, err)
}
