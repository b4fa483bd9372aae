package ports

import "github.com/hostguard-dev/hostguard/domain/entities"

// AuditSink receives one entry per mediated host-function invocation.
// Record must never block the caller: a slow or full sink drops rather
// than stalls, so one plugin's logging cannot delay another's guard
// checks.
type AuditSink interface {
	Record(entry entities.AuditEntry)
}
