package lifecycle

import (
	"fmt"
	"time"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
)

// EnsureApproved gates the first run of a plugin version. Permissions
// that require consent (shell, unrestricted network, each environment
// variable) must have been granted either for this exact version or,
// for upgrades, carried forward from the latest approved version with
// only the delta re-prompted. Reruns of an approved version pass
// without interaction.
func (m *Manager) EnsureApproved(manifest *entities.PluginManifest) error {
	if m.store == nil {
		return fmt.Errorf("no approval store configured")
	}

	required := entities.ConsentRequired(manifest.Permissions)
	if required.IsEmpty() {
		return nil
	}

	if record, ok, err := m.store.Get(manifest.ID, manifest.Version); err != nil {
		return fmt.Errorf("failed to read approval store: %w", err)
	} else if ok {
		if delta := required.Delta(record.Granted); delta.IsEmpty() {
			return nil
		}
		// A record exists but no longer covers the manifest. The
		// manifest changed underneath an installed version; treat it
		// as unapproved rather than silently widening the grant.
		return m.promptAndPersist(manifest, required, required)
	}

	granted := entities.ConsentFlags{}
	if prior, ok, err := m.store.Latest(manifest.ID); err != nil {
		return fmt.Errorf("failed to read approval store: %w", err)
	} else if ok {
		granted = prior.Granted
	}

	delta := required.Delta(granted)
	if delta.IsEmpty() {
		// Upgrade with no new permissions: carry the grant forward.
		return m.persist(manifest, granted)
	}
	return m.promptAndPersist(manifest, required, delta)
}

// promptAndPersist asks the user for the delta and, when everything is
// granted, stores the full required set for this version.
func (m *Manager) promptAndPersist(manifest *entities.PluginManifest, required, delta entities.ConsentFlags) error {
	if m.prompter == nil || !m.prompter.IsInteractive() {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPermissionNotApproved,
			Detail: fmt.Sprintf("%s requires interactive first-run approval (run `hostguard approve %s`)",
				manifest.Identity(), manifest.ID),
		}
	}

	granted, err := m.prompter.PromptConsent(manifest.Identity(), buildPrompts(delta))
	if err != nil {
		return fmt.Errorf("consent prompt failed: %w", err)
	}

	if missing := delta.Delta(granted); !missing.IsEmpty() {
		m.audit(manifest.ID, "approve", entities.AuditDenied, string(hgerrors.ReasonPermissionNotApproved))
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPermissionNotApproved,
			Detail: "user declined one or more requested permissions",
		}
	}

	// Persist exactly the required set: every flag in it was either just
	// granted (the delta) or carried from a prior approval. The
	// prompter's raw response is never merged in, so a flag the user was
	// not asked about cannot become a durable grant.
	m.audit(manifest.ID, "approve", entities.AuditAllowed, "")
	return m.persist(manifest, required)
}

func (m *Manager) persist(manifest *entities.PluginManifest, granted entities.ConsentFlags) error {
	record := entities.ApprovalRecord{
		PluginID:  manifest.ID,
		Version:   manifest.Version,
		Granted:   granted,
		GrantedAt: time.Now().UTC(),
	}
	if err := m.store.Put(record); err != nil {
		return fmt.Errorf("failed to persist approval: %w", err)
	}
	m.logger.Info("approval recorded",
		"plugin", manifest.Identity(),
		"store", m.store.ConfigPath())
	return nil
}

// buildPrompts turns a consent delta into user-facing questions.
func buildPrompts(delta entities.ConsentFlags) []entities.ConsentPrompt {
	var prompts []entities.ConsentPrompt
	if delta.NetworkAll {
		prompts = append(prompts, entities.ConsentPrompt{
			Kind:        "network",
			Description: "Unrestricted network access (any host)",
			Risk:        entities.RiskLevelHigh,
		})
	}
	if delta.Shell {
		prompts = append(prompts, entities.ConsentPrompt{
			Kind:        "shell",
			Description: "Run arbitrary host commands",
			Risk:        entities.RiskLevelHigh,
		})
	}
	for _, v := range delta.EnvVars {
		prompts = append(prompts, entities.ConsentPrompt{
			Kind:        "env",
			Subject:     v,
			Description: "Read environment variable " + v,
			Risk:        entities.RiskLevelHigh,
		})
	}
	return prompts
}
