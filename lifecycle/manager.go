package lifecycle

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// Manager orchestrates install validation and first-run approval. All
// collaborators arrive through ports so the flow is testable without a
// terminal, a key, or a disk.
type Manager struct {
	store    ports.ApprovalStore
	prompter ports.Prompter
	verifier ports.SignatureVerifier
	sink     ports.AuditSink
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithApprovalStore sets the persistence backend for consent records.
func WithApprovalStore(store ports.ApprovalStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithPrompter sets the interactive consent prompter.
func WithPrompter(p ports.Prompter) ManagerOption {
	return func(m *Manager) { m.prompter = p }
}

// WithVerifier sets the signature verifier. Without one, registry
// installs fail and VCS installs warn.
func WithVerifier(v ports.SignatureVerifier) ManagerOption {
	return func(m *Manager) { m.verifier = v }
}

// WithAuditSink routes lifecycle decisions to the audit trail.
func WithAuditSink(sink ports.AuditSink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithManagerLogger sets the structured logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InstallResult is the outcome of a successful install: the validated
// manifest and module plus the notices shown to the user.
type InstallResult struct {
	Manifest *entities.PluginManifest
	Module   []byte
	Notices  []string
	Risk     entities.RiskLevel
}

// Install opens, validates, and policy-checks a plugin package. The
// permission policy matrix runs after structural validation: limited
// filesystem access produces a notice, host-specific network access
// requires confirmation, unrestricted network or shell access requires
// confirmation after a strong warning. Environment access never blocks
// install; it blocks first run until approved.
func (m *Manager) Install(pkgPath string, source SourceType) (*InstallResult, error) {
	pkg, err := OpenPackage(pkgPath)
	if err != nil {
		m.audit("", "install", entities.AuditDenied, errReason(err))
		return nil, err
	}
	if err := pkg.Validate(); err != nil {
		m.audit(pkg.Manifest.ID, "install", entities.AuditDenied, errReason(err))
		return nil, err
	}
	if err := m.checkSignature(pkg, source); err != nil {
		m.audit(pkg.Manifest.ID, "install", entities.AuditDenied, string(hgerrors.ReasonSignatureInvalid))
		return nil, err
	}

	result := &InstallResult{
		Manifest: pkg.Manifest,
		Module:   pkg.Module,
		Risk:     entities.AssessPermissions(pkg.Manifest.Permissions),
	}

	if err := m.applyPolicy(pkg.Manifest, result); err != nil {
		m.audit(pkg.Manifest.ID, "install", entities.AuditDenied, string(hgerrors.ReasonPermissionNotApproved))
		return nil, err
	}

	m.audit(pkg.Manifest.ID, "install", entities.AuditAllowed, "")
	m.logger.Info("plugin installed",
		"plugin", pkg.Manifest.Identity(),
		"risk", result.Risk.String(),
		"source", string(source))
	return result, nil
}

// checkSignature applies the per-source signature policy.
func (m *Manager) checkSignature(pkg *PluginPackage, source SourceType) error {
	switch source {
	case SourceRegistry:
		if m.verifier == nil || len(pkg.Signature) == 0 {
			return &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonSignatureInvalid,
				Detail: "registry packages must carry a signature",
			}
		}
		if err := m.verifier.Verify(pkg.Digest(), pkg.Signature); err != nil {
			return &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonSignatureInvalid,
				Detail: "package signature verification failed",
				Err:    err,
			}
		}
		return nil

	case SourceVCS:
		if m.verifier == nil || len(pkg.Signature) == 0 {
			m.logger.Warn("installing unsigned package from VCS source",
				"plugin", pkg.Manifest.Identity())
			return nil
		}
		if err := m.verifier.Verify(pkg.Digest(), pkg.Signature); err != nil {
			return &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonSignatureInvalid,
				Detail: "package signature verification failed",
				Err:    err,
			}
		}
		return nil

	default:
		// Local paths are developer-trusted.
		return nil
	}
}

// applyPolicy walks the permission policy matrix, collecting notices
// and gathering confirmation where the matrix demands it.
func (m *Manager) applyPolicy(manifest *entities.PluginManifest, result *InstallResult) error {
	perms := manifest.Permissions

	if len(perms.Filesystem) > 0 {
		result.Notices = append(result.Notices,
			"Plugin accesses files under: "+strings.Join(perms.Filesystem, ", "))
	}
	for _, v := range perms.EnvVars {
		result.Notices = append(result.Notices,
			fmt.Sprintf("Plugin reads environment variable %s (blocked until approved on first run)", v))
	}

	var confirmations []string
	if perms.AllowsAllNetwork() {
		confirmations = append(confirmations,
			"Plugin requests UNRESTRICTED network access. It can contact any host reachable from this machine.")
	} else if len(perms.Network) > 0 {
		confirmations = append(confirmations,
			"Plugin makes network requests to: "+strings.Join(perms.Network, ", "))
	}
	if perms.Shell {
		confirmations = append(confirmations,
			"Plugin requests SHELL access. It can run arbitrary commands as your user.")
	}

	for _, msg := range confirmations {
		ok, err := m.confirm(manifest.Identity(), msg)
		if err != nil {
			return err
		}
		if !ok {
			return &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonPermissionNotApproved,
				Detail: "install declined: " + msg,
			}
		}
	}
	return nil
}

func (m *Manager) confirm(identity, message string) (bool, error) {
	if m.prompter == nil || !m.prompter.IsInteractive() {
		return false, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPermissionNotApproved,
			Detail: fmt.Sprintf("%s requires interactive confirmation: %s", identity, message),
		}
	}
	return m.prompter.Confirm(fmt.Sprintf("[%s] %s Continue?", identity, message))
}

func (m *Manager) audit(pluginID, operation string, status entities.AuditStatus, reason string) {
	if m.sink == nil {
		return
	}
	entry := entities.NewAuditEntry(pluginID, operation)
	entry.Status = status
	entry.Reason = reason
	m.sink.Record(entry)
}

func errReason(err error) string {
	if le, ok := err.(*hgerrors.LifecycleError); ok {
		return string(le.Reason)
	}
	return "error"
}
