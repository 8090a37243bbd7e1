package auditchain

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// emptyChainSentinel is hashed to produce the well-defined root of an
// empty batch.
const emptyChainSentinel = "EMPTY_AUDIT_CHAIN"

// ComputeMerkleRoot summarizes a batch of entries into a single digest by
// pairwise hashing adjacent elements level by level, duplicating the last
// element when a level has an odd count. The root depends on input order,
// so callers must sort by sequence number before calling.
func ComputeMerkleRoot(entries []*types.AuditEntry) string {
	if len(entries) == 0 {
		hash := sha256.Sum256([]byte(emptyChainSentinel))
		return hex.EncodeToString(hash[:])
	}

	level := make([]string, len(entries))
	for i, entry := range entries {
		if entry.Hash != "" {
			level[i] = entry.Hash
		} else {
			// Legacy entry without a stored hash still contributes a leaf.
			level[i] = ComputeEntryHash(entry)
		}
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			hash := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(hash[:]))
		}
		level = next
	}

	return level[0]
}
