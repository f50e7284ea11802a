package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on gatekeeper spans and metrics.
var (
	AttrOperation          = attribute.Key("gatekeeper.operation")
	AttrRecordID           = attribute.Key("gatekeeper.record.id")
	AttrPhase              = attribute.Key("gatekeeper.phase")
	AttrLevel              = attribute.Key("gatekeeper.level")
	AttrCatalog            = attribute.Key("gatekeeper.catalog.fingerprint")
	AttrCheckpoints        = attribute.Key("gatekeeper.checkpoints")
	AttrOutstanding        = attribute.Key("gatekeeper.checkpoints.outstanding")
	AttrDiagnosticCode     = attribute.Key("gatekeeper.diagnostic.code")
	AttrDiagnosticSeverity = attribute.Key("gatekeeper.diagnostic.severity")
)

// RecordOperation creates attributes for an operation on one record.
func RecordOperation(recordID, phase string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRecordID.String(recordID),
		AttrPhase.String(phase),
	}
}

// ResolveResult creates attributes describing a resolved checkpoint list.
func ResolveResult(total, outstanding int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCheckpoints.Int(total),
		AttrOutstanding.Int(outstanding),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes annotates the current span.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
