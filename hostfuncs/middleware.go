package hostfuncs

import (
	"context"
	"time"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// Middleware wraps a ByteHandler with cross-cutting behavior.
type Middleware func(next ByteHandler) ByteHandler

// PanicRecoveryMiddleware converts handler panics into structured
// error payloads. A misbehaving guard must never crash the hosting
// process or take another plugin down with it.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// AuditMiddleware emits exactly one AuditEntry per host-function
// invocation. Guards report their verdict through SetAuditOutcome; a
// handler that returns without reporting is recorded as an error so
// the trail never has gaps. A nil sink disables the middleware.
func AuditMiddleware(pluginID string, sink ports.AuditSink) Middleware {
	return func(next ByteHandler) ByteHandler {
		if sink == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			hctx := HostContextFrom(ctx, "")
			start := time.Now()

			resp, err := next(hctx, payload)

			entry := entities.NewAuditEntry(pluginID, hctx.FunctionName())
			entry.DurationMS = time.Since(start).Milliseconds()
			if outcome, ok := auditOutcomeFrom(hctx); ok {
				entry.Status = outcome.status
				entry.Reason = outcome.reason
				entry.ArgsSummary = outcome.summary
			} else if err != nil {
				entry.Status = entities.AuditError
				entry.Reason = err.Error()
			} else {
				entry.Status = entities.AuditError
				entry.Reason = "handler reported no outcome"
			}
			sink.Record(entry)

			return resp, err
		}
	}
}
