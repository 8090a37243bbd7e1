package auditchain

import (
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// FallbackSink receives audit entries that could not be persisted to the
// primary store. Injectable so tests can assert fallback was invoked.
type FallbackSink interface {
	Record(entry *types.AuditEntry, cause error)
}

// LogFallbackSink writes failed audit entries to the structured error
// stream, tagged as fallback audit records for later reconciliation.
type LogFallbackSink struct {
	logger *logger.Logger
}

// NewLogFallbackSink creates a new log-backed fallback sink
func NewLogFallbackSink(log *logger.Logger) *LogFallbackSink {
	return &LogFallbackSink{logger: log}
}

// Record implements FallbackSink
func (s *LogFallbackSink) Record(entry *types.AuditEntry, cause error) {
	s.logger.FallbackAudit(map[string]interface{}{
		"id":              entry.ID,
		"actor_id":        entry.ActorID,
		"actor_role":      entry.ActorRole,
		"action":          entry.Action,
		"resource_type":   entry.ResourceType,
		"resource_id":     entry.ResourceID,
		"patient_id":      entry.PatientID,
		"timestamp":       entry.Timestamp,
		"success":         entry.Success,
		"hash":            entry.Hash,
		"prev_hash":       entry.PrevHash,
		"sequence_number": entry.SequenceNumber,
		"metadata":        entry.Metadata,
	}, cause)
}
