package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

// runClassifyCmd implements `gatekeeper classify`: the value and margin
// levels, reviewers, parties and threshold statuses of one record.
func runClassifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("classify", stderr)
	location := cmd.String("catalog", "", "Catalog location (default $GATEKEEPER_CATALOG)")
	recordPath := cmd.String("record", "", "Path to a record JSON document (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *recordPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --record is required")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	eng, err := e.engine(ctx, *location)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	data, err := os.ReadFile(*recordPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	r, err := eng.DecodeRecord(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	a, err := eng.Assess(ctx, r)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := writeJSON(stdout, a); err != nil {
		return 2
	}
	return 0
}
