package entities

// PluginPermissions is the capability grant a plugin declares in its
// manifest. It is immutable after manifest parse; the runtime sandbox
// derives its fast-checkable structures from it once at load.
type PluginPermissions struct {
	// Network lists allowed hosts: exact hostnames, "*.domain"
	// wildcards, or "*" for unrestricted access.
	Network []string `json:"network,omitempty" yaml:"network,omitempty"`

	// Filesystem lists root paths the plugin may read and write under.
	// Paths are expanded but not canonicalized until sandbox build.
	Filesystem []string `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`

	// EnvVars is an exact-match allowlist of environment variable names.
	EnvVars []string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`

	// Shell requests host command execution.
	Shell bool `json:"shell,omitempty" yaml:"shell,omitempty"`
}

// IsEmpty returns true if no capability is requested.
func (p PluginPermissions) IsEmpty() bool {
	return len(p.Network) == 0 && len(p.Filesystem) == 0 && len(p.EnvVars) == 0 && !p.Shell
}

// AllowsAllNetwork returns true if the network grant contains the
// unrestricted "*" entry.
func (p PluginPermissions) AllowsAllNetwork() bool {
	for _, h := range p.Network {
		if h == "*" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the permission set.
func (p PluginPermissions) Clone() PluginPermissions {
	return PluginPermissions{
		Network:    append([]string(nil), p.Network...),
		Filesystem: append([]string(nil), p.Filesystem...),
		EnvVars:    append([]string(nil), p.EnvVars...),
		Shell:      p.Shell,
	}
}
