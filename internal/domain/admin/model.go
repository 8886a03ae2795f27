// Package admin exposes a key-gated, read-only inspection surface
// over the service's storage: a table list, bounded row previews and
// an audit trail of every inspection access.
package admin

import "time"

// Audit actions.
const (
	ActionListTables = "list_tables"
	ActionPreview    = "preview"
	ActionListAudit  = "list_audit"
)

// AuditEvent records one admin inspection access.
type AuditEvent struct {
	ID       int64             `json:"id"`
	At       time.Time         `json:"ts"`
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	ClientIP string            `json:"client_ip"`
	Action   string            `json:"action"`
	Reason   string            `json:"reason,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}
