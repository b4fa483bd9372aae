package hostfuncs

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// MaxLogMessageSize caps a single guest log line; longer lines are
// truncated with a marker.
const MaxLogMessageSize = 4 * 1024

const truncationMarker = "[truncated]"

// LogRequest is the guest wire form of a log emission. Severity codes
// map 0=debug, 1=info, 2=warn, 3=error; out-of-range values clamp.
type LogRequest struct {
	Severity int    `json:"severity"`
	Message  string `json:"message"`
}

// LogResponse is intentionally empty; logging is fire-and-forget.
type LogResponse struct{}

// LogGuard rate-limits and truncates guest log lines. Flooding is
// never fatal and never blocks the guest: past the limit lines drop
// silently, with a single aggregated notice per window.
type LogGuard struct {
	sb     *sandbox.Sandbox
	logger *slog.Logger

	mu      sync.Mutex
	dropped int
}

// LogGuardOption configures a LogGuard.
type LogGuardOption func(*LogGuard)

// WithLogOutput sets the host logger guest lines are forwarded to.
func WithLogOutput(logger *slog.Logger) LogGuardOption {
	return func(g *LogGuard) {
		g.logger = logger
	}
}

// NewLogGuard builds the guard for one plugin sandbox.
func NewLogGuard(sb *sandbox.Sandbox, opts ...LogGuardOption) *LogGuard {
	g := &LogGuard{
		sb:     sb,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the wire-form handler for registry registration.
func (g *LogGuard) Handler() ByteHandler {
	return NewJSONHandler(g.Log)
}

// Log forwards one guest line to the host log, prefixed with the
// plugin identity so host and guest lines stay distinguishable.
func (g *LogGuard) Log(ctx context.Context, req LogRequest) LogResponse {
	if !g.sb.LogCounter().TryIncrement() {
		g.mu.Lock()
		g.dropped++
		g.mu.Unlock()
		SetAuditOutcome(ctx, entities.AuditDenied, "rate_limited", "log line dropped")
		return LogResponse{}
	}

	// First accepted line of a new window reports what the previous
	// window dropped, at most one notice per window.
	g.mu.Lock()
	dropped := g.dropped
	g.dropped = 0
	g.mu.Unlock()
	if dropped > 0 {
		g.logger.Warn("guest log lines dropped by rate limit",
			"plugin", g.sb.PluginID(), "dropped", dropped)
	}

	message := req.Message
	if len(message) > MaxLogMessageSize {
		cut := MaxLogMessageSize - len(truncationMarker)
		// Back up to a rune boundary so the cut never splits a
		// multi-byte character.
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + truncationMarker
	}

	g.logger.Log(ctx, severityToLevel(req.Severity), message,
		"plugin", g.sb.PluginID())

	SetAuditOutcome(ctx, entities.AuditAllowed, "", "log line")
	return LogResponse{}
}

func severityToLevel(severity int) slog.Level {
	switch {
	case severity <= 0:
		return slog.LevelDebug
	case severity == 1:
		return slog.LevelInfo
	case severity == 2:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
