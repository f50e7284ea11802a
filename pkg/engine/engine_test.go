package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/applicability"
	"github.com/Mindburn-Labs/gatekeeper/pkg/catalog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/classification"
	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
	"github.com/Mindburn-Labs/gatekeeper/pkg/store"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workflow"
)

const testCatalog = `
version: 1.0.0
record:
  fields:
    - {name: value, kind: number}
    - {name: margin, kind: number}
    - {name: framework, kind: bool}
    - {name: customer, kind: text}
value_bands:
  - {level: L1, lower: 20000000, reviewers: [cfo], workflow: extended, label: Strategic}
  - {level: L2, lower: 10000000, upper: 20000000, reviewers: [director]}
  - {level: L3, lower: 0, upper: 10000000, workflow: fast_track}
margin_bands:
  - {level: M1, lower: 20}
  - {level: M2, lower: 0, upper: 20}
parties:
  - {id: finance, name: Finance, levels: [L1, L2]}
  - {id: legal, name: Legal, levels: [L1]}
thresholds:
  - {id: gross_margin, target: 25, minimum: 15, approval_required: true, approver_level: vp, levels: [L1]}
obligations:
  - {id: kickoff, label: Kickoff, phase: intake, mandatory: true, order: 1}
  - id: credit
    label: Credit check
    phase: intake
    mandatory: true
    order: 2
    when: "value >= 10000000 && framework === false"
  - {id: notes, label: Notes, phase: ALL}
  - {id: bid, label: Bid review, phase: early_review, mandatory: true}
  - {id: broken, label: Broken, phase: intake, mandatory: true, when: "customer.startsWith('A')"}
`

func newEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	c, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e, err := New(context.Background(), c, WithLogger(logger))
	require.NoError(t, err)
	return e, &logs
}

func deal(t *testing.T, e *Engine, fields map[string]any) record.Record {
	t.Helper()
	r, err := e.Record("opp-1", fields)
	require.NoError(t, err)
	return r
}

func TestNew_LogsCatalogDiagnostics(t *testing.T) {
	_, logs := newEngine(t)
	assert.Contains(t, logs.String(), condition.CodeParseFailure)
	assert.Contains(t, logs.String(), "catalog bound")

	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestEngine_EntryPoints(t *testing.T) {
	e, _ := newEngine(t)
	r := deal(t, e, map[string]any{"value": 25_000_000, "framework": false})

	c, err := e.ParseCondition("record.value > 20000000")
	require.NoError(t, err)
	assert.True(t, e.Evaluate(c, r))
	assert.True(t, e.EvaluateText("framework === false", r))
	assert.False(t, e.EvaluateText("owner === 'x'", r))

	assert.Equal(t, classification.Level("L1"), e.Classify(25_000_000))
	assert.Equal(t, classification.Level("L2"), e.Classify(15_000_000))
	assert.Equal(t, classification.Level("L3"), e.Classify(-1))
	assert.Equal(t, classification.Level("M2"), e.ClassifyMargin(12))

	parties := e.ApplicableParties("L1")
	require.Len(t, parties, 2)
	assert.Equal(t, "finance", parties[0].ID)

	st, ok := e.ThresholdStatus("gross_margin", 10)
	require.True(t, ok)
	assert.Equal(t, applicability.HardFloorLevel, st.RequiredApprovalLevel)

	cps := e.Resolve(phase.Intake, r, nil)
	assert.False(t, e.CanAdvance(phase.Intake, cps))
}

func TestEngine_Assess(t *testing.T) {
	e, _ := newEngine(t)

	a, err := e.Assess(context.Background(), deal(t, e, map[string]any{"value": 25_000_000, "margin": 18}))
	require.NoError(t, err)
	assert.Equal(t, classification.Level("L1"), a.ValueLevel)
	assert.Equal(t, "Strategic", a.ValueLabel)
	assert.Equal(t, classification.WorkflowExtended, a.Workflow)
	assert.Equal(t, []string{"cfo"}, a.Reviewers)
	assert.Len(t, a.Parties, 2)
	assert.Equal(t, classification.Level("M2"), a.MarginLevel)
	require.Len(t, a.Thresholds, 1)
	assert.True(t, a.Thresholds[0].IsBelowTarget)
	assert.Equal(t, applicability.ApproverLevel("vp"), a.Thresholds[0].RequiredApprovalLevel)

	a, err = e.Assess(context.Background(), deal(t, e, map[string]any{"value": 15_000_000}))
	require.NoError(t, err)
	assert.Equal(t, classification.Level("L2"), a.ValueLevel)
	assert.Nil(t, a.Margin)
	assert.Empty(t, a.MarginLevel)
	assert.Empty(t, a.Thresholds, "thresholds need a margin")

	_, err = e.Assess(context.Background(), deal(t, e, map[string]any{"customer": "Acme"}))
	var fe *record.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "value", fe.Field)
}

func TestEngine_CheckpointsAndToggle(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	st := store.NewMemoryStateStore()
	r := deal(t, e, map[string]any{"value": 12_000_000, "framework": false})

	cps, err := e.Checkpoints(ctx, r, phase.Intake, st)
	require.NoError(t, err)
	require.Len(t, cps, 3, "broken when never matches")
	assert.Equal(t, []string{"kickoff", "credit", "notes"}, ids(cps))
	assert.Len(t, checkpoint.Outstanding(cps), 2)

	cps, err = e.Toggle(ctx, r, phase.Intake, st, "kickoff", true)
	require.NoError(t, err)
	assert.True(t, cps[0].Completed)

	again, err := e.Checkpoints(ctx, r, phase.Intake, st)
	require.NoError(t, err)
	assert.Equal(t, cps, again, "toggle is persisted")

	_, err = e.Toggle(ctx, r, phase.Intake, st, "bid", true)
	assert.ErrorIs(t, err, ErrUnknownCheckpoint)

	nostore, err := e.Checkpoints(ctx, r, phase.Intake, nil)
	require.NoError(t, err)
	assert.False(t, nostore[0].Completed)
}

func TestEngine_Advance(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	st := store.NewMemoryStateStore()
	r := deal(t, e, map[string]any{"value": 5_000_000})
	in := workflow.NewInstance(r.ID).WithClock(func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	_, _, err := e.Advance(ctx, in, r, st, workflow.OutcomeNone)
	var ge *workflow.GuardError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "kickoff", ge.Open[0].ID)

	_, err = e.Toggle(ctx, r, phase.Intake, st, "kickoff", true)
	require.NoError(t, err)
	next, tr, err := e.Advance(ctx, in, r, st, workflow.OutcomeNone)
	require.NoError(t, err)
	assert.Equal(t, phase.EarlyReview, next.Current())
	assert.Equal(t, phase.Intake, tr.From)
	assert.Len(t, tr.Checkpoints, 2)
	assert.Equal(t, phase.Intake, in.Current())
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := SlogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	sink.Report(condition.Diagnostic{Severity: condition.SeverityError, Code: "x.code", Subject: "f", Message: "bad"})
	sink.Report(condition.Diagnostic{Severity: condition.SeverityWarning, Code: "y.code", Message: "meh"})
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "code=x.code")
	assert.Contains(t, out, "level=WARN")
}

func ids(cps []checkpoint.Checkpoint) []string {
	out := make([]string, len(cps))
	for i, c := range cps {
		out[i] = c.ObligationID
	}
	return out
}
