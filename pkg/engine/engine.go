// Package engine binds the pure evaluation packages to one loaded catalog.
// It is the surface the CLI and any UI or persistence layer call into.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Mindburn-Labs/gatekeeper/pkg/applicability"
	"github.com/Mindburn-Labs/gatekeeper/pkg/catalog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/classification"
	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
	"github.com/Mindburn-Labs/gatekeeper/pkg/observability"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
	"github.com/Mindburn-Labs/gatekeeper/pkg/store"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workflow"
)

// ErrUnknownCheckpoint is returned when toggling an obligation that is not
// among the record's checkpoints for the phase.
var ErrUnknownCheckpoint = errors.New("obligation is not a checkpoint of this phase")

// Engine evaluates records against one catalog snapshot. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
	obs     *observability.Provider
	sink    condition.Sink
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// New binds an engine to c and logs the catalog's load diagnostics once.
func New(ctx context.Context, c *catalog.Catalog, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("engine: nil catalog")
	}
	e := &Engine{catalog: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.obs == nil {
		p, err := observability.New(ctx, nil)
		if err != nil {
			return nil, err
		}
		e.obs = p
	}
	e.logger = e.logger.With("component", "engine", "catalog", c.Fingerprint())
	e.sink = SlogSink{Logger: e.logger, Metrics: e.obs}

	for _, d := range c.Diagnostics {
		e.sink.Report(d)
	}
	e.logger.InfoContext(ctx, "catalog bound",
		"version", c.Version.String(),
		"obligations", len(c.Obligations),
		"diagnostics", len(c.Diagnostics),
	)
	return e, nil
}

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Record builds a record of the catalog's record type.
func (e *Engine) Record(id string, fields map[string]any) (record.Record, error) {
	return record.New(e.catalog.Schema, id, fields)
}

// DecodeRecord reads a JSON record document of the catalog's record type.
func (e *Engine) DecodeRecord(data []byte) (record.Record, error) {
	return record.DecodeJSON(data, e.catalog.Schema)
}

func (e *Engine) ParseCondition(text string) (*condition.Condition, error) {
	return condition.NewParser(e.sink).Parse(text)
}

func (e *Engine) Evaluate(c *condition.Condition, r record.Record) bool {
	return condition.Evaluator{Sink: e.sink}.Evaluate(c, r)
}

func (e *Engine) EvaluateText(text string, r record.Record) bool {
	return condition.Evaluator{Sink: e.sink, Parser: condition.NewParser(e.sink)}.EvaluateText(text, r)
}

// Classify places a value in the catalog's value bands.
func (e *Engine) Classify(value float64) classification.Level {
	b, _ := classification.Classifier{Sink: e.sink}.Resolve(value, e.catalog.ValueBands)
	return b.Level
}

// ClassifyMargin places a value in the catalog's margin bands.
func (e *Engine) ClassifyMargin(value float64) classification.Level {
	b, _ := classification.Classifier{Sink: e.sink}.Resolve(value, e.catalog.MarginBands)
	return b.Level
}

func (e *Engine) ApplicableParties(level classification.Level) []applicability.Party {
	return applicability.ApplicableParties(level, e.catalog.Parties)
}

func (e *Engine) ThresholdStatus(id string, actual float64) (applicability.Status, bool) {
	return applicability.ThresholdStatus(id, actual, e.catalog.Thresholds)
}

// Resolve lists the checkpoints of p for r, seeded from prior.
func (e *Engine) Resolve(p phase.Phase, r record.Record, prior checkpoint.PriorState) []checkpoint.Checkpoint {
	return checkpoint.Resolver{Sink: e.sink}.Resolve(p, r, e.catalog.Obligations, prior)
}

func (e *Engine) CanAdvance(p phase.Phase, cps []checkpoint.Checkpoint) bool {
	return workflow.CanAdvance(p, cps)
}

// Assessment is the classification summary of one record.
type Assessment struct {
	RecordID    string                       `json:"record_id"`
	Value       float64                      `json:"value"`
	ValueLevel  classification.Level         `json:"value_level"`
	ValueLabel  string                       `json:"value_label,omitempty"`
	Workflow    classification.WorkflowStyle `json:"workflow"`
	Reviewers   []string                     `json:"reviewers"`
	Parties     []applicability.Party        `json:"parties"`
	Margin      *float64                     `json:"margin,omitempty"`
	MarginLevel classification.Level         `json:"margin_level,omitempty"`
	Thresholds  []applicability.Status       `json:"thresholds,omitempty"`
}

// Assess classifies r by its value field and, when present, its margin
// field. Thresholds that apply at the value level are checked against the
// margin.
func (e *Engine) Assess(ctx context.Context, r record.Record) (a Assessment, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "engine.assess", observability.AttrRecordID.String(r.ID))
	defer func() { done(err) }()

	value, err := e.number(r, e.catalog.ValueField)
	if err != nil {
		return Assessment{}, err
	}
	if value == nil {
		return Assessment{}, &record.FieldError{Field: e.catalog.ValueField, Reason: "value is required for classification"}
	}

	band, _ := classification.Classifier{Sink: e.sink}.Resolve(*value, e.catalog.ValueBands)
	wf, _ := classification.WorkflowFor(band.Level, e.catalog.ValueBands)
	a = Assessment{
		RecordID:   r.ID,
		Value:      *value,
		ValueLevel: band.Level,
		ValueLabel: band.Label,
		Workflow:   wf,
		Reviewers:  classification.Reviewers(band.Level, e.catalog.ValueBands),
		Parties:    e.ApplicableParties(band.Level),
	}

	margin, err := e.number(r, e.catalog.MarginField)
	if err != nil {
		return Assessment{}, err
	}
	if margin != nil {
		a.Margin = margin
		if len(e.catalog.MarginBands) > 0 {
			a.MarginLevel = e.ClassifyMargin(*margin)
		}
		for _, th := range applicability.ApplicableThresholds(band.Level, e.catalog.Thresholds) {
			a.Thresholds = append(a.Thresholds, th.Status(*margin))
		}
	}

	observability.SetSpanAttributes(ctx, observability.AttrLevel.String(string(band.Level)))
	e.logger.DebugContext(ctx, "record assessed",
		"record_id", r.ID, "level", band.Level, "margin_level", a.MarginLevel)
	return a, nil
}

// number reads an optional numeric field. Unset and undeclared fields are nil.
func (e *Engine) number(r record.Record, field string) (*float64, error) {
	v, state := r.Get(field)
	if state != record.FieldPresent {
		return nil, nil
	}
	n, ok := v.AsNumber()
	if !ok || math.IsNaN(n) {
		return nil, &record.FieldError{Field: field, Reason: fmt.Sprintf("%s is not a number", v)}
	}
	return &n, nil
}

// Checkpoints loads the stored completion state for r and p and resolves
// the phase's checkpoints.
func (e *Engine) Checkpoints(ctx context.Context, r record.Record, p phase.Phase, st store.StateStore) (cps []checkpoint.Checkpoint, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "engine.checkpoints", observability.RecordOperation(r.ID, string(p))...)
	defer func() { done(err) }()

	prior, err := e.loadPrior(ctx, r.ID, p, st)
	if err != nil {
		return nil, err
	}
	cps = e.Resolve(p, r, prior)
	observability.SetSpanAttributes(ctx, observability.ResolveResult(len(cps), len(checkpoint.Outstanding(cps)))...)
	return cps, nil
}

func (e *Engine) loadPrior(ctx context.Context, recordID string, p phase.Phase, st store.StateStore) (checkpoint.PriorState, error) {
	if st == nil {
		return nil, nil
	}
	prior, err := st.Load(ctx, recordID, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint state for %s/%s: %w", recordID, p, err)
	}
	return prior, nil
}

// Toggle records an explicit completion change for one checkpoint and
// returns the updated list.
func (e *Engine) Toggle(ctx context.Context, r record.Record, p phase.Phase, st store.StateStore, obligationID string, done bool) (cps []checkpoint.Checkpoint, err error) {
	ctx, finish := e.obs.TrackOperation(ctx, "engine.toggle", observability.RecordOperation(r.ID, string(p))...)
	defer func() { finish(err) }()

	current, err := e.Checkpoints(ctx, r, p, st)
	if err != nil {
		return nil, err
	}
	cps, ok := checkpoint.Toggle(current, obligationID, done)
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", obligationID, p, ErrUnknownCheckpoint)
	}
	if st != nil {
		if err := st.Save(ctx, r.ID, p, cps); err != nil {
			return nil, fmt.Errorf("save checkpoint state: %w", err)
		}
	}
	observability.AddSpanEvent(ctx, "checkpoint.toggled",
		observability.AttrPhase.String(string(p)))
	e.logger.InfoContext(ctx, "checkpoint toggled",
		"record_id", r.ID, "phase", p, "obligation_id", obligationID, "completed", done)
	return cps, nil
}

// Advance resolves the checkpoints of the instance's current phase, runs the
// guard and moves the instance on.
func (e *Engine) Advance(ctx context.Context, in *workflow.Instance, r record.Record, st store.StateStore, outcome workflow.Outcome) (next *workflow.Instance, tr workflow.Transition, err error) {
	from := in.Current()
	ctx, done := e.obs.TrackOperation(ctx, "engine.advance", observability.RecordOperation(r.ID, string(from))...)
	defer func() { done(err) }()

	cps, err := e.Checkpoints(ctx, r, from, st)
	if err != nil {
		return nil, workflow.Transition{}, err
	}
	next, tr, err = in.Advance(cps, outcome)
	if err != nil {
		var ge *workflow.GuardError
		if errors.As(err, &ge) {
			e.logger.InfoContext(ctx, "advance blocked",
				"record_id", r.ID, "phase", from, "open", len(ge.Open))
		}
		return nil, workflow.Transition{}, err
	}
	e.logger.InfoContext(ctx, "phase advanced",
		"record_id", r.ID, "from", tr.From, "to", tr.To, "transition_id", tr.ID)
	return next, tr, nil
}
