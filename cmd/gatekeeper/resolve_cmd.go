package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/engine"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

type phaseReport struct {
	RecordID    string                  `json:"record_id"`
	Phase       phase.Phase             `json:"phase"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	Outstanding int                     `json:"outstanding"`
	CanAdvance  bool                    `json:"can_advance"`
	Digest      string                  `json:"digest"`
}

func newPhaseReport(recordID string, p phase.Phase, cps []checkpoint.Checkpoint) (phaseReport, error) {
	digest, err := checkpoint.Digest(cps)
	if err != nil {
		return phaseReport{}, err
	}
	if cps == nil {
		cps = []checkpoint.Checkpoint{}
	}
	open := len(checkpoint.Outstanding(cps))
	return phaseReport{
		RecordID:    recordID,
		Phase:       p,
		Checkpoints: cps,
		Outstanding: open,
		CanAdvance:  open == 0,
		Digest:      digest,
	}, nil
}

// phaseArgs are the flags shared by resolve and advance.
type phaseArgs struct {
	catalog string
	record  string
	phase   string
	state   string
}

func (a *phaseArgs) register(cmd *flag.FlagSet) {
	cmd.StringVar(&a.catalog, "catalog", "", "Catalog location (default $GATEKEEPER_CATALOG)")
	cmd.StringVar(&a.record, "record", "", "Path to a record JSON document (REQUIRED)")
	cmd.StringVar(&a.phase, "phase", "", "Lifecycle phase (REQUIRED)")
	cmd.StringVar(&a.state, "state", "", "SQLite checkpoint state file (default $GATEKEEPER_STATE_DB)")
}

func (a *phaseArgs) load(ctx context.Context, e *env) (*engine.Engine, record.Record, phase.Phase, error) {
	if a.record == "" || a.phase == "" {
		return nil, record.Record{}, "", fmt.Errorf("--record and --phase are required")
	}
	p, err := phase.Parse(a.phase)
	if err != nil {
		return nil, record.Record{}, "", err
	}
	if !p.Valid() {
		return nil, record.Record{}, "", fmt.Errorf("%s is not a lifecycle phase", p)
	}
	eng, err := e.engine(ctx, a.catalog)
	if err != nil {
		return nil, record.Record{}, "", err
	}
	data, err := os.ReadFile(a.record)
	if err != nil {
		return nil, record.Record{}, "", err
	}
	r, err := eng.DecodeRecord(data)
	if err != nil {
		return nil, record.Record{}, "", err
	}
	return eng, r, p, nil
}

// runResolveCmd implements `gatekeeper resolve`.
//
// Lists the checkpoints a record has in a phase. --toggle marks one
// obligation completed (or open with --done=false) and persists it.
func runResolveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("resolve", stderr)
	var pa phaseArgs
	pa.register(cmd)
	toggle := cmd.String("toggle", "", "Obligation id to mark")
	done := cmd.Bool("done", true, "Completion value used with --toggle")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	eng, r, p, err := pa.load(ctx, e)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	st, closeStore, err := e.openStore(ctx, pa.state)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeStore()

	var cps []checkpoint.Checkpoint
	if *toggle != "" {
		cps, err = eng.Toggle(ctx, r, p, st, *toggle, *done)
	} else {
		cps, err = eng.Checkpoints(ctx, r, p, st)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report, err := newPhaseReport(r.ID, p, cps)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := writeJSON(stdout, report); err != nil {
		return 2
	}
	return 0
}
