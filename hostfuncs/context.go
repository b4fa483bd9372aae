package hostfuncs

import (
	"context"

	"github.com/hostguard-dev/hostguard/domain/entities"
)

// HostContext carries per-invocation state between the registry, the
// middleware chain, and the guard implementations: the invoked function
// name and mutable request-scoped values.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// SetValue stores a request-scoped value, mutating the context in
	// place. Unlike context.WithValue this does not allocate a chain.
	SetValue(key, value any)

	// GetValue retrieves a value stored with SetValue.
	GetValue(key any) (any, bool)
}

type hostContext struct {
	context.Context
	funcName string
	values   map[any]any
}

// NewHostContext wraps ctx for one invocation of funcName.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string { return c.funcName }

func (c *hostContext) SetValue(key, value any) { c.values[key] = value }

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom returns ctx unchanged when it already is a
// HostContext, otherwise wraps it.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

type auditOutcomeKey struct{}

// auditOutcome is the guard-reported verdict the audit middleware turns
// into an AuditEntry.
type auditOutcome struct {
	status  entities.AuditStatus
	reason  string
	summary string
}

// SetAuditOutcome records the guard verdict for the current invocation.
// Guards call this exactly once per handled request; the audit
// middleware reads it when the handler returns.
func SetAuditOutcome(ctx context.Context, status entities.AuditStatus, reason, summary string) {
	if hc, ok := ctx.(HostContext); ok {
		hc.SetValue(auditOutcomeKey{}, auditOutcome{status: status, reason: reason, summary: summary})
	}
}

func auditOutcomeFrom(ctx HostContext) (auditOutcome, bool) {
	v, ok := ctx.GetValue(auditOutcomeKey{})
	if !ok {
		return auditOutcome{}, false
	}
	outcome, ok := v.(auditOutcome)
	return outcome, ok
}
