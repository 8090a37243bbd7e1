package types

import (
	"time"
)

// GenesisHash is the sentinel previous-hash for the first entry in the chain.
const GenesisHash = "GENESIS"

// AuditEntry represents one immutable record of an audited action attempt.
// Entries are append-only: once created they are never updated or deleted.
type AuditEntry struct {
	ID             string                 `json:"id"`
	ActorID        string                 `json:"actor_id"`
	ActorRole      UserRole               `json:"actor_role"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	PatientID      string                 `json:"patient_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Success        bool                   `json:"success"`
	Hash           string                 `json:"hash,omitempty"`
	PrevHash       string                 `json:"prev_hash,omitempty"`
	SequenceNumber int64                  `json:"sequence_number,omitempty"`
}

// HasChainFields reports whether the entry carries chain metadata.
// Entries written before chaining was introduced have neither a hash nor a
// sequence number; they are skipped during verification, not treated as failures.
func (e *AuditEntry) HasChainFields() bool {
	return e.Hash != "" && e.SequenceNumber > 0
}

// ChainVerificationResult is the outcome of verifying a batch of chained entries.
// Verification failure is a reportable result consumed by compliance tooling,
// never an error.
type ChainVerificationResult struct {
	IsValid          bool   `json:"is_valid"`
	EntriesChecked   int    `json:"entries_checked"`
	BrokenAtSequence int64  `json:"broken_at_sequence,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// AuditFilter holds filter criteria for audit trail queries.
type AuditFilter struct {
	ActorID      string    `json:"actor_id,omitempty"`
	PatientID    string    `json:"patient_id,omitempty"`
	Action       string    `json:"action,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	StartTime    time.Time `json:"start_time,omitempty"`
	EndTime      time.Time `json:"end_time,omitempty"`
	Success      *bool     `json:"success,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}
