package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/gatekeeper/pkg/catalog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
)

// runLintCmd implements `gatekeeper lint`.
//
// Exit codes:
//
//	0 = catalog loaded without diagnostics
//	1 = catalog loaded with diagnostics
//	2 = catalog could not be loaded
func runLintCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("lint", stderr)
	location := cmd.String("catalog", "", "Catalog location (default $GATEKEEPER_CATALOG)")
	jsonOutput := cmd.Bool("json", false, "Output results as JSON")
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

	loc := *location
	if loc == "" {
		loc = e.cfg.Catalog
	}
	src, err := catalog.NewSource(ctx, loc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	c, err := catalog.LoadFrom(ctx, src)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if *jsonOutput {
		diags := c.Diagnostics
		if diags == nil {
			diags = []condition.Diagnostic{}
		}
		_ = writeJSON(stdout, map[string]any{
			"catalog":     src.String(),
			"version":     c.Version.String(),
			"fingerprint": c.Fingerprint(),
			"obligations": len(c.Obligations),
			"diagnostics": diags,
		})
	} else {
		for _, d := range c.Diagnostics {
			color := ColorGray
			if d.Severity == condition.SeverityError {
				color = ColorRed
			}
			_, _ = fmt.Fprintf(stdout, "%s%s%s\n", color, d, ColorReset)
		}
		_, _ = fmt.Fprintf(stdout, "%s: %d obligations, %d diagnostics, fingerprint %s\n",
			src, len(c.Obligations), len(c.Diagnostics), c.Fingerprint())
	}

	if len(c.Diagnostics) > 0 {
		return 1
	}
	return 0
}
