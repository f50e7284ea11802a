package engine

import (
	"context"
	"log/slog"

	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
	"github.com/Mindburn-Labs/gatekeeper/pkg/observability"
)

// SlogSink logs diagnostics and counts them when a provider is set.
type SlogSink struct {
	Logger  *slog.Logger
	Metrics *observability.Provider
}

func (s SlogSink) Report(d condition.Diagnostic) {
	ctx := context.Background()
	level := slog.LevelWarn
	if d.Severity == condition.SeverityError {
		level = slog.LevelError
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, level, d.Message,
		"code", d.Code,
		"subject", d.Subject,
		"severity", string(d.Severity),
	)
	if s.Metrics != nil {
		s.Metrics.RecordDiagnostic(ctx, d.Code, string(d.Severity))
	}
}
