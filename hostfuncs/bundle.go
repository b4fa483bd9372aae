package hostfuncs

import (
	"github.com/hostguard-dev/hostguard/domain/ports"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// Host function names exported to guests.
const (
	FuncNetworkRequest = "network_request"
	FuncReadFile       = "read_file"
	FuncWriteFile      = "write_file"
	FuncGetEnv         = "get_env"
	FuncLog            = "log_message"
)

// GuardSet bundles the per-plugin guards built over one sandbox.
type GuardSet struct {
	Network     *NetworkGuard
	Filesystem  *FilesystemGuard
	Environment *EnvironmentGuard
	Log         *LogGuard
}

// NewGuardSet builds all guards for a sandbox with default settings.
func NewGuardSet(sb *sandbox.Sandbox) *GuardSet {
	return &GuardSet{
		Network:     NewNetworkGuard(sb),
		Filesystem:  NewFilesystemGuard(sb),
		Environment: NewEnvironmentGuard(sb),
		Log:         NewLogGuard(sb),
	}
}

// NewMediatedRegistry assembles the complete host-function surface for
// one plugin: every handler performs its permission check first, every
// invocation is audited, and panics become structured errors instead
// of crashing the host.
func NewMediatedRegistry(sb *sandbox.Sandbox, guards *GuardSet, sink ports.AuditSink) (*HandlerRegistry, error) {
	return NewRegistry(
		WithMiddleware(
			PanicRecoveryMiddleware(),
			AuditMiddleware(sb.PluginID(), sink),
		),
		WithHandler(FuncNetworkRequest, guards.Network.Handler()),
		WithHandler(FuncReadFile, guards.Filesystem.ReadHandler()),
		WithHandler(FuncWriteFile, guards.Filesystem.WriteHandler()),
		WithHandler(FuncGetEnv, guards.Environment.Handler()),
		WithHandler(FuncLog, guards.Log.Handler()),
	)
}
