package ports

import "github.com/hostguard-dev/hostguard/domain/entities"

// ApprovalStore persists first-run consent decisions keyed by plugin
// identity (id + version).
type ApprovalStore interface {
	// Get returns the record for an exact id+version, if present.
	Get(pluginID, version string) (*entities.ApprovalRecord, bool, error)

	// Latest returns the record with the highest version for a plugin
	// id, if any. Used to compute the consent delta on upgrades.
	Latest(pluginID string) (*entities.ApprovalRecord, bool, error)

	// Put inserts or replaces a record.
	Put(record entities.ApprovalRecord) error

	// ConfigPath returns the path of the backing store, for user messaging.
	ConfigPath() string
}
