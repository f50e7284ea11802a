package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/gatekeeper/pkg/workflow"
)

// runAdvanceCmd implements `gatekeeper advance`.
//
// Runs the guard for the record's checkpoints in --phase and prints the
// phase it would move to.
//
// Exit codes:
//
//	0 = the record may advance
//	1 = blocked by open mandatory obligations or an invalid transition
//	2 = runtime error
func runAdvanceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("advance", stderr)
	var pa phaseArgs
	pa.register(cmd)
	outcomeFlag := cmd.String("outcome", "", "Outcome when leaving commit_review (won|lost)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	outcome, err := workflow.ParseOutcome(*outcomeFlag)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
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

	cps, err := eng.Checkpoints(ctx, r, p, st)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	out := struct {
		RecordID string                    `json:"record_id"`
		From     string                    `json:"from"`
		To       string                    `json:"to,omitempty"`
		Allowed  bool                      `json:"allowed"`
		Open     []workflow.OpenObligation `json:"open,omitempty"`
		Reason   string                    `json:"reason,omitempty"`
	}{RecordID: r.ID, From: string(p)}

	next, err := workflow.Advance(p, cps, outcome)
	var ge *workflow.GuardError
	switch {
	case err == nil:
		out.Allowed = true
		out.To = string(next)
	case errors.As(err, &ge):
		out.Open = ge.Open
		out.Reason = err.Error()
	default:
		var te *workflow.TransitionError
		if !errors.As(err, &te) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		out.Reason = err.Error()
	}

	if err := writeJSON(stdout, out); err != nil {
		return 2
	}
	if !out.Allowed {
		return 1
	}
	return 0
}
