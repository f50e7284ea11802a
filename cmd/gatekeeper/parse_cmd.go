package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
)

// runParseCmd implements `gatekeeper parse`.
//
// Converts legacy expression text (or CEL with --cel) into the structured
// condition and prints it as JSON together with its CEL rendering.
func runParseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("parse", stderr)
	fromCEL := cmd.Bool("cel", false, "Input is a CEL expression")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	text := strings.Join(cmd.Args(), " ")
	if strings.TrimSpace(text) == "" {
		_, _ = fmt.Fprintln(stderr, "Usage: gatekeeper parse [--cel] <expression>")
		return 2
	}

	var (
		c   *condition.Condition
		err error
	)
	if *fromCEL {
		c, err = condition.FromCEL(text)
	} else {
		c, err = condition.Parse(text)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out := struct {
		Condition *condition.Condition `json:"condition"`
		CEL       string               `json:"cel"`
		Fields    []string             `json:"fields"`
	}{c, c.String(), c.Fields()}
	if out.Fields == nil {
		out.Fields = []string{}
	}
	if err := writeJSON(stdout, out); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
