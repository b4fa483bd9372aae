package entities

import "strings"

// RiskLevel grades the severity of a declared permission set. It drives
// the install-time policy matrix wording and the consent prompts.
type RiskLevel int

const (
	RiskLevelLow    RiskLevel = iota // narrow, specific grants
	RiskLevelMedium                  // host-specific network, sensitive reads
	RiskLevelHigh                    // unrestricted network, shell, env access
)

// String returns the human-readable name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLevelLow:
		return "Low"
	case RiskLevelMedium:
		return "Medium"
	case RiskLevelHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Filesystem roots considered sensitive regardless of how narrow the
// declared grant looks.
var sensitiveRoots = []string{"/etc", "/root", "/var", "/usr", "/proc", "/sys"}

// AssessPermissions grades a declared permission set.
func AssessPermissions(p PluginPermissions) RiskLevel {
	if p.Shell || p.AllowsAllNetwork() || len(p.EnvVars) > 0 {
		return RiskLevelHigh
	}

	highest := RiskLevelLow
	if len(p.Network) > 0 {
		highest = RiskLevelMedium
	}
	for _, root := range p.Filesystem {
		if root == "/" {
			return RiskLevelHigh
		}
		for _, sensitive := range sensitiveRoots {
			if root == sensitive || strings.HasPrefix(root, sensitive+"/") {
				return RiskLevelHigh
			}
		}
		highest = max(highest, RiskLevelMedium)
	}
	return highest
}

// DescribeRisks returns human-readable risk descriptions for the
// install confirmation screen.
func DescribeRisks(p PluginPermissions) []string {
	var risks []string
	if p.Shell {
		risks = append(risks, "Executes arbitrary host commands (High Risk)")
	}
	if p.AllowsAllNetwork() {
		risks = append(risks, "Accesses any network host (High Risk)")
	} else if len(p.Network) > 0 {
		risks = append(risks, "Makes outbound network requests to "+strings.Join(p.Network, ", "))
	}
	for _, v := range p.EnvVars {
		risks = append(risks, "Reads environment variable "+v)
	}
	if len(p.Filesystem) > 0 {
		risks = append(risks, "Reads and writes files under "+strings.Join(p.Filesystem, ", "))
	}
	return risks
}
