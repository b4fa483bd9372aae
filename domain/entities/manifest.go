package entities

// PluginManifest is the parsed plugin.yaml of a plugin package.
// Produced by the lifecycle loader, consumed verbatim by the sandbox.
type PluginManifest struct {
	// ID uniquely identifies the plugin.
	ID string `json:"id" yaml:"id" validate:"required,min=1"`

	// Version is a semantic version string.
	Version string `json:"version" yaml:"version" validate:"required"`

	// Description is optional human-readable text.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Module is the package-relative path of the guest WASM module.
	Module string `json:"module" yaml:"module" validate:"required"`

	// Functions lists the guest exports the plugin offers as tools.
	Functions []string `json:"functions" yaml:"functions" validate:"required,min=1,dive,required"`

	// Permissions is the declared capability grant.
	Permissions PluginPermissions `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	// Resources holds optional limit overrides.
	Resources ResourceRequests `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Identity returns the "id@version" key used by approval records and
// the audit trail.
func (m *PluginManifest) Identity() string {
	return m.ID + "@" + m.Version
}
