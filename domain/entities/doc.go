// Package entities contains the immutable value types of the plugin
// security model: declared permissions, resource limits, manifests,
// approval records, and audit entries.
package entities
