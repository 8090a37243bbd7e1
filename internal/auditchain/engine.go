package auditchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// Store is the append-only persistence boundary for chain entries.
// Implementations must never update or delete existing rows.
type Store interface {
	Insert(ctx context.Context, entry *types.AuditEntry) error
	// FindLatestBySequence returns the chained entry with the highest
	// sequence number, or nil when the store holds no chained entries.
	FindLatestBySequence(ctx context.Context) (*types.AuditEntry, error)
	// FindMaxSequenceNumber returns the highest assigned sequence number,
	// or 0 when the store holds no chained entries.
	FindMaxSequenceNumber(ctx context.Context) (int64, error)
}

// ChainEngine extends and verifies the tamper-evident audit hash chain.
// It owns the shared (lastHash, lastSequence) counter pair; all appends
// serialize through its mutex so two concurrent callers can never observe
// the same starting sequence number.
type ChainEngine struct {
	store    Store
	fallback FallbackSink
	logger   *logger.Logger

	mu           sync.Mutex
	seeded       bool
	lastHash     string
	lastSequence int64
}

// NewChainEngine creates a new chain engine. The counter state is seeded
// lazily from the store on first append, so construction never touches
// the database.
func NewChainEngine(store Store, fallback FallbackSink, log *logger.Logger) *ChainEngine {
	return &ChainEngine{
		store:    store,
		fallback: fallback,
		logger:   log,
	}
}

// ComputeEntryHash computes a deterministic SHA-256 digest over an entry's
// content fields, excluding hash, prev_hash and sequence_number. Absent
// optional fields serialize as empty strings so the digest is unambiguous.
func ComputeEntryHash(entry *types.AuditEntry) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%s|%s|%t|%s",
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.PatientID,
		entry.Timestamp.UnixNano(),
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		canonicalMetadata(entry.Metadata),
	)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// canonicalMetadata serializes metadata with a stable key order.
// encoding/json sorts map keys, so insertion order never leaks into the digest.
func canonicalMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(raw)
}

// ComputeChainedHash binds an entry's content digest to its predecessor's
// hash and its own sequence number. Recomputing any earlier entry's content
// changes every later chained hash, which is what makes tampering detectable.
func ComputeChainedHash(entry *types.AuditEntry, prevHash string, sequenceNumber int64) string {
	if prevHash == "" {
		prevHash = types.GenesisHash
	}

	entryHash := ComputeEntryHash(entry)
	input := fmt.Sprintf("%s:%d:%s", prevHash, sequenceNumber, entryHash)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// AppendToChain assigns the next sequence number and chained hash to the
// entry and publishes the new counter state. The read-increment-publish is
// a single critical section; the caller is responsible for persisting the
// returned entry.
func (e *ChainEngine) AppendToChain(ctx context.Context, entry *types.AuditEntry) (*types.AuditEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.seeded {
		if err := e.seedFromStore(ctx); err != nil {
			return nil, err
		}
	}

	// A published sequence with no accompanying hash can only happen if the
	// cached state was corrupted; appending on top of it would break chain
	// continuity silently.
	if e.lastSequence > 0 && e.lastHash == "" {
		return nil, types.NewAuditError(
			types.ErrorTypeChainCorruption,
			types.ErrorCodeChainCorruption,
			fmt.Sprintf("cached sequence %d has no associated hash", e.lastSequence),
		)
	}

	prevHash := e.lastHash
	if prevHash == "" {
		prevHash = types.GenesisHash
	}

	nextSequence := e.lastSequence + 1

	entry.PrevHash = prevHash
	entry.SequenceNumber = nextSequence
	entry.Hash = ComputeChainedHash(entry, prevHash, nextSequence)

	e.lastHash = entry.Hash
	e.lastSequence = nextSequence

	return entry, nil
}

// seedFromStore repopulates the counter cache after a cold start.
// Caller must hold the mutex.
func (e *ChainEngine) seedFromStore(ctx context.Context) error {
	latest, err := e.store.FindLatestBySequence(ctx)
	if err != nil {
		return types.NewAuditErrorWithCause(
			types.ErrorTypeStoreUnavailable,
			types.ErrorCodeStoreUnavailable,
			"failed to seed chain state from audit log store",
			err,
		)
	}

	if latest == nil {
		// Genesis case: empty store, chain starts at sequence 1.
		e.lastHash = ""
		e.lastSequence = 0
		e.seeded = true
		return nil
	}

	if latest.Hash == "" {
		return types.NewAuditError(
			types.ErrorTypeChainCorruption,
			types.ErrorCodeChainCorruption,
			fmt.Sprintf("latest chained entry (sequence %d) has no hash", latest.SequenceNumber),
		)
	}

	e.lastHash = latest.Hash
	e.lastSequence = latest.SequenceNumber
	e.seeded = true

	e.logger.WithComponent("auditchain").WithField("last_sequence", e.lastSequence).
		Info("Audit chain state seeded from store")

	return nil
}

// VerifyEntry recomputes an entry's chained hash from its own stored fields
// and compares it to the stored hash. Entries written before chaining was
// introduced verify as false without being treated as failures.
func VerifyEntry(entry *types.AuditEntry) bool {
	if !entry.HasChainFields() {
		return false
	}

	expected := ComputeChainedHash(entry, entry.PrevHash, entry.SequenceNumber)
	return expected == entry.Hash
}

// VerifyChain verifies an unordered batch of entries. It sorts by sequence
// number, skips legacy entries, and fails fast on the first broken entry:
// a single break invalidates trust in everything after it.
func VerifyChain(entries []*types.AuditEntry) *types.ChainVerificationResult {
	sorted := make([]*types.AuditEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})

	checked := 0
	var prevChained *types.AuditEntry

	for _, entry := range sorted {
		if !entry.HasChainFields() {
			// Legacy entry, not part of the chain.
			continue
		}
		checked++

		if !VerifyEntry(entry) {
			return &types.ChainVerificationResult{
				IsValid:          false,
				EntriesChecked:   checked,
				BrokenAtSequence: entry.SequenceNumber,
				Reason:           "entry hash does not match recomputed chained hash",
			}
		}

		if prevChained != nil && entry.PrevHash != prevChained.Hash {
			return &types.ChainVerificationResult{
				IsValid:          false,
				EntriesChecked:   checked,
				BrokenAtSequence: entry.SequenceNumber,
				Reason: fmt.Sprintf("previous hash does not link to entry %d",
					prevChained.SequenceNumber),
			}
		}

		if prevChained == nil && entry.SequenceNumber == 1 && entry.PrevHash != types.GenesisHash {
			return &types.ChainVerificationResult{
				IsValid:          false,
				EntriesChecked:   checked,
				BrokenAtSequence: entry.SequenceNumber,
				Reason:           "first entry does not carry the genesis sentinel",
			}
		}

		prevChained = entry
	}

	return &types.ChainVerificationResult{
		IsValid:        true,
		EntriesChecked: checked,
	}
}

// RecordAuditEvent builds, chains and persists one audit entry for an
// attempted action. Persistence failures are routed to the fallback sink so
// the event is never silently lost and the primary action is never blocked.
// The only error surfaced to callers is chain state corruption, which must
// not be swallowed.
func (e *ChainEngine) RecordAuditEvent(ctx context.Context, actor types.AccessContext, action string, req types.AccessRequest, success bool, metadata map[string]interface{}) (*types.AuditEntry, error) {
	entry := &types.AuditEntry{
		ID:           uuid.New().String(),
		ActorID:      actor.ActorID,
		ActorRole:    actor.ActorRole,
		Action:       action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		PatientID:    req.PatientID,
		Timestamp:    time.Now().UTC(),
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
		Metadata:     metadata,
		Success:      success,
	}

	chained, err := e.AppendToChain(ctx, entry)
	if err != nil {
		if auditErr, ok := err.(*types.AuditError); ok && auditErr.Type == types.ErrorTypeChainCorruption {
			return nil, err
		}
		// Store unreachable while seeding: the event still has to be visible
		// somewhere, so it goes to the fallback channel unchained.
		e.fallback.Record(entry, err)
		auditFallbackTotal.Inc()
		return entry, nil
	}

	if err := e.store.Insert(ctx, chained); err != nil {
		e.fallback.Record(chained, err)
		auditFallbackTotal.Inc()
		auditAppendsTotal.WithLabelValues("fallback").Inc()
		return chained, nil
	}

	auditAppendsTotal.WithLabelValues("persisted").Inc()
	return chained, nil
}
