package condition

import (
	"fmt"
	"sync"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic codes for configuration defects. None of them is fatal: the
// affected condition degrades to false.
const (
	CodeParseFailure    = "condition.parse_failure"
	CodeUnknownOperator = "condition.unknown_operator"
	CodeUnknownField    = "condition.unknown_field"
	CodeKindMismatch    = "condition.kind_mismatch"
	CodeUnknownLevel    = "condition.unknown_level"
)

// Diagnostic describes a configuration-quality problem found while parsing,
// validating or evaluating a condition.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s %s [%s]: %s", d.Severity, d.Code, d.Subject, d.Message)
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

func sinkOrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Collector accumulates diagnostics in memory.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Diagnostics returns what has been reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
