package host

import (
	"log/slog"

	"github.com/hostguard-dev/hostguard/domain/ports"
	"github.com/hostguard-dev/hostguard/hostfuncs"
)

// Option configures an Executor.
type Option func(*Executor)

// WithHostFunctions overrides the default mediated registry. The
// caller is responsible for wiring guards and middleware; prefer the
// default unless testing.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(e *Executor) {
		e.registry = registry
	}
}

// WithAuditSink routes audit entries, including resource exhaustion
// records, to the given sink.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

// WithLogger sets the executor's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}
