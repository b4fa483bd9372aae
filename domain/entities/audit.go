package entities

import (
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the recorded outcome of a mediated host-function call.
type AuditStatus string

const (
	AuditAllowed   AuditStatus = "allowed"
	AuditDenied    AuditStatus = "denied"
	AuditError     AuditStatus = "error"
	AuditExhausted AuditStatus = "exhausted"
)

// AuditEntry is one append-only record of a host-function invocation.
// Written on every call, allowed or denied. ArgsSummary must never
// contain secret values: environment lookups record the variable name
// and whether it was found, never the value.
type AuditEntry struct {
	ID          string      `json:"id" cbor:"1,keyasint"`
	PluginID    string      `json:"plugin_id" cbor:"2,keyasint"`
	Function    string      `json:"function" cbor:"3,keyasint"`
	ArgsSummary string      `json:"args_summary,omitempty" cbor:"4,keyasint,omitempty"`
	Status      AuditStatus `json:"status" cbor:"5,keyasint"`
	Reason      string      `json:"reason,omitempty" cbor:"6,keyasint,omitempty"`
	DurationMS  int64       `json:"duration_ms" cbor:"7,keyasint"`
	Timestamp   time.Time   `json:"timestamp" cbor:"8,keyasint"`
}

// NewAuditEntry stamps a new entry with a unique ID and the current time.
func NewAuditEntry(pluginID, function string) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		PluginID:  pluginID,
		Function:  function,
		Timestamp: time.Now().UTC(),
	}
}
