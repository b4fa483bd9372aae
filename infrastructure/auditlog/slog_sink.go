package auditlog

import (
	"context"
	"log/slog"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// SlogSink mirrors audit entries to a structured logger, denials at
// Warn and everything else at Info. Useful in development and as a
// secondary sink next to the CBOR file.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps a logger as an audit sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record implements ports.AuditSink.
func (s *SlogSink) Record(entry entities.AuditEntry) {
	level := slog.LevelInfo
	if entry.Status == entities.AuditDenied || entry.Status == entities.AuditExhausted {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(context.Background(), level, "audit",
		slog.String("plugin", entry.PluginID),
		slog.String("function", entry.Function),
		slog.String("status", string(entry.Status)),
		slog.String("reason", entry.Reason),
		slog.String("args", entry.ArgsSummary),
		slog.Int64("duration_ms", entry.DurationMS),
	)
}

var _ ports.AuditSink = (*SlogSink)(nil)
