package entities

import (
	"sort"
	"time"
)

// ConsentFlags records which consent-requiring permissions a user has
// explicitly granted: unrestricted network, shell, and each individual
// environment variable name.
type ConsentFlags struct {
	NetworkAll bool     `json:"network_all,omitempty" yaml:"network_all,omitempty"`
	Shell      bool     `json:"shell,omitempty" yaml:"shell,omitempty"`
	EnvVars    []string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
}

// ConsentRequired derives the consent-requiring subset of a declared
// permission set. Limited filesystem and host-specific network grants
// do not require explicit consent; they are covered by install notices.
func ConsentRequired(p PluginPermissions) ConsentFlags {
	return ConsentFlags{
		NetworkAll: p.AllowsAllNetwork(),
		Shell:      p.Shell,
		EnvVars:    append([]string(nil), p.EnvVars...),
	}
}

// IsEmpty returns true if nothing requires consent.
func (c ConsentFlags) IsEmpty() bool {
	return !c.NetworkAll && !c.Shell && len(c.EnvVars) == 0
}

// Delta returns the flags in c that granted does not cover. Used on
// version upgrades to re-prompt only for newly requested permissions.
func (c ConsentFlags) Delta(granted ConsentFlags) ConsentFlags {
	delta := ConsentFlags{
		NetworkAll: c.NetworkAll && !granted.NetworkAll,
		Shell:      c.Shell && !granted.Shell,
	}
	have := make(map[string]struct{}, len(granted.EnvVars))
	for _, v := range granted.EnvVars {
		have[v] = struct{}{}
	}
	for _, v := range c.EnvVars {
		if _, ok := have[v]; !ok {
			delta.EnvVars = append(delta.EnvVars, v)
		}
	}
	return delta
}

// Merge unions other into c additively; prior grants are retained.
func (c *ConsentFlags) Merge(other ConsentFlags) {
	c.NetworkAll = c.NetworkAll || other.NetworkAll
	c.Shell = c.Shell || other.Shell
	have := make(map[string]struct{}, len(c.EnvVars))
	for _, v := range c.EnvVars {
		have[v] = struct{}{}
	}
	for _, v := range other.EnvVars {
		if _, ok := have[v]; !ok {
			c.EnvVars = append(c.EnvVars, v)
			have[v] = struct{}{}
		}
	}
	sort.Strings(c.EnvVars)
}

// ApprovalRecord is the persisted first-run decision for one plugin
// version. Updated additively when an upgrade requests new permissions.
type ApprovalRecord struct {
	PluginID  string       `json:"plugin_id" yaml:"plugin_id"`
	Version   string       `json:"version" yaml:"version"`
	Granted   ConsentFlags `json:"granted" yaml:"granted"`
	GrantedAt time.Time    `json:"granted_at" yaml:"granted_at"`
}

// ConsentPrompt is one consent question presented to the user during
// first-run approval.
type ConsentPrompt struct {
	// Kind is the permission category ("network", "shell", "env").
	Kind string

	// Subject is the specific item the prompt covers; the variable
	// name for env prompts, empty otherwise.
	Subject string

	// Description is the human-readable request.
	Description string

	// Risk is the assessed severity of granting the request.
	Risk RiskLevel
}
