package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hostguard-dev/hostguard/domain/entities"
)

// defaultEnvDenylist is the fixed set of environment-variable name
// patterns that are flagged even when a name is explicitly allowlisted.
// A match on an approved name logs at elevated severity but does not
// block the lookup.
var defaultEnvDenylist = []string{
	"*_SECRET*",
	"*_PASSWORD*",
	"*_TOKEN*",
	"*_KEY*",
	"*_CREDENTIAL*",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"SSH_AUTH_SOCK",
}

// Sandbox is the live runtime security state of one loaded plugin
// instance. Built once from the manifest; the permission and limit
// fields are never mutated afterwards, only the counters' internal
// state advances. One sandbox per plugin instance, destroyed on unload.
type Sandbox struct {
	pluginID    string
	version     string
	permissions entities.PluginPermissions
	limits      entities.ResourceLimits
	roots       []string
	allowlist   NetworkAllowlist
	httpCounter *RateCounter
	logCounter  *RateCounter
	envDenylist []string
}

type sandboxConfig struct {
	now         func() time.Time
	envDenylist []string
}

// Option configures sandbox construction.
type Option func(*sandboxConfig)

// WithCounterClock overrides the rate counters' time source. For tests.
func WithCounterClock(now func() time.Time) Option {
	return func(c *sandboxConfig) {
		c.now = now
	}
}

// WithEnvDenylist replaces the default denylist patterns.
func WithEnvDenylist(patterns []string) Option {
	return func(c *sandboxConfig) {
		c.envDenylist = patterns
	}
}

// New builds the sandbox for a plugin. Filesystem roots are
// canonicalized here, resolving symlinks and any "..", so every later
// containment check is a cheap prefix comparison. A declared root that
// cannot be resolved fails construction.
func New(manifest *entities.PluginManifest, opts ...Option) (*Sandbox, error) {
	cfg := sandboxConfig{
		now:         time.Now,
		envDenylist: defaultEnvDenylist,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	limits := manifest.Resources.Resolve()

	roots := make([]string, 0, len(manifest.Permissions.Filesystem))
	for _, root := range manifest.Permissions.Filesystem {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("filesystem root %q: %w", root, err)
		}
		canonical, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("filesystem root %q: %w", root, err)
		}
		roots = append(roots, canonical)
	}

	counterOpts := []RateCounterOption{}
	if cfg.now != nil {
		counterOpts = append(counterOpts, WithClock(cfg.now))
	}

	return &Sandbox{
		pluginID:    manifest.ID,
		version:     manifest.Version,
		permissions: manifest.Permissions.Clone(),
		limits:      limits,
		roots:       roots,
		allowlist:   ParseNetworkAllowlist(manifest.Permissions.Network),
		httpCounter: NewRateCounter(limits.HTTPPerMinute, time.Minute, counterOpts...),
		logCounter:  NewRateCounter(limits.LogPerMinute, time.Minute, counterOpts...),
		envDenylist: cfg.envDenylist,
	}, nil
}

// PluginID returns the owning plugin's id.
func (s *Sandbox) PluginID() string { return s.pluginID }

// Version returns the owning plugin's version.
func (s *Sandbox) Version() string { return s.version }

// Limits returns the resolved, clamped resource limits.
func (s *Sandbox) Limits() entities.ResourceLimits { return s.limits }

// Roots returns the canonicalized allowed filesystem roots.
func (s *Sandbox) Roots() []string { return s.roots }

// HasFilesystem returns true if the plugin declared any filesystem
// permission.
func (s *Sandbox) HasFilesystem() bool { return len(s.roots) > 0 }

// Allowlist returns the parsed network allowlist.
func (s *Sandbox) Allowlist() NetworkAllowlist { return s.allowlist }

// HTTPCounter returns the outbound-request rate counter.
func (s *Sandbox) HTTPCounter() *RateCounter { return s.httpCounter }

// LogCounter returns the guest log-line rate counter.
func (s *Sandbox) LogCounter() *RateCounter { return s.logCounter }

// EnvAllowed reports whether a variable name is in the exact-match
// allowlist.
func (s *Sandbox) EnvAllowed(name string) bool {
	for _, v := range s.permissions.EnvVars {
		if v == name {
			return true
		}
	}
	return false
}

// EnvDenylisted reports whether a variable name matches one of the
// always-flagged patterns.
func (s *Sandbox) EnvDenylisted(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range s.envDenylist {
		if matched, _ := doublestar.Match(pattern, upper); matched {
			return true
		}
	}
	return false
}

// ContainsPath reports whether a canonical path falls under one of the
// allowed roots with a path-separator-bounded prefix.
func (s *Sandbox) ContainsPath(canonical string) bool {
	for _, root := range s.roots {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// LeadsToRoot reports whether a canonical path is an ancestor directory
// of one of the allowed roots. A symlinked component above a root, such
// as /tmp resolving to /private/tmp on macOS, lands here rather than
// inside the root itself.
func (s *Sandbox) LeadsToRoot(canonical string) bool {
	for _, root := range s.roots {
		if strings.HasPrefix(root, canonical+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
