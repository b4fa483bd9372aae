package hostfuncs

import (
	"context"
	"log/slog"
	"os"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// EnvRequest is the guest wire form of an environment lookup.
type EnvRequest struct {
	Name string `json:"name"`
}

// EnvResponse never carries an error: a variable outside the allowlist
// and a permitted-but-unset variable both come back as Found=false, so
// the guest cannot enumerate the host environment by distinguishing
// "denied" from "absent".
type EnvResponse struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// EnvironmentGuard mediates environment-variable lookups.
type EnvironmentGuard struct {
	sb     *sandbox.Sandbox
	lookup func(string) (string, bool)
	logger *slog.Logger
}

// EnvironmentGuardOption configures an EnvironmentGuard.
type EnvironmentGuardOption func(*EnvironmentGuard)

// WithEnvLookup overrides the host environment source. For tests.
func WithEnvLookup(lookup func(string) (string, bool)) EnvironmentGuardOption {
	return func(g *EnvironmentGuard) {
		g.lookup = lookup
	}
}

// WithEnvLogger sets the logger for denylist hits.
func WithEnvLogger(logger *slog.Logger) EnvironmentGuardOption {
	return func(g *EnvironmentGuard) {
		g.logger = logger
	}
}

// NewEnvironmentGuard builds the guard for one plugin sandbox.
func NewEnvironmentGuard(sb *sandbox.Sandbox, opts ...EnvironmentGuardOption) *EnvironmentGuard {
	g := &EnvironmentGuard{
		sb:     sb,
		lookup: os.LookupEnv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the wire-form handler for registry registration.
func (g *EnvironmentGuard) Handler() ByteHandler {
	return NewJSONHandler(g.Get)
}

// Get performs a mediated lookup. Audited by name and found/not-found
// only; the value itself never reaches the audit trail.
func (g *EnvironmentGuard) Get(ctx context.Context, req EnvRequest) EnvResponse {
	if !g.sb.EnvAllowed(req.Name) {
		SetAuditOutcome(ctx, entities.AuditDenied, "not_in_allowlist", "env "+req.Name)
		return EnvResponse{Found: false}
	}

	// Denylisted names that were explicitly approved are still served,
	// but the hit is flagged for the operator.
	if g.sb.EnvDenylisted(req.Name) {
		g.logger.Warn("plugin read a denylisted environment variable",
			"plugin", g.sb.PluginID(), "name", req.Name)
	}

	value, found := g.lookup(req.Name)
	if !found {
		SetAuditOutcome(ctx, entities.AuditAllowed, "", "env "+req.Name+" (unset)")
		return EnvResponse{Found: false}
	}

	SetAuditOutcome(ctx, entities.AuditAllowed, "", "env "+req.Name+" (found)")
	return EnvResponse{Value: value, Found: true}
}
