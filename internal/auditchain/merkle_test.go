package auditchain

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

func merkleEntries(hashes ...string) []*types.AuditEntry {
	entries := make([]*types.AuditEntry, len(hashes))
	for i, h := range hashes {
		entries[i] = &types.AuditEntry{Hash: h, SequenceNumber: int64(i + 1)}
	}
	return entries
}

func TestComputeMerkleRootEmpty(t *testing.T) {
	expected := sha256.Sum256([]byte("EMPTY_AUDIT_CHAIN"))

	first := ComputeMerkleRoot(nil)
	second := ComputeMerkleRoot([]*types.AuditEntry{})

	assert.Equal(t, hex.EncodeToString(expected[:]), first)
	assert.Equal(t, first, second)
}

func TestComputeMerkleRootSingleEntry(t *testing.T) {
	entries := merkleEntries("aa")

	assert.Equal(t, "aa", ComputeMerkleRoot(entries))
}

func TestComputeMerkleRootDeterminism(t *testing.T) {
	entries := merkleEntries("aa", "bb", "cc", "dd")

	assert.Equal(t, ComputeMerkleRoot(entries), ComputeMerkleRoot(entries))
}

func TestComputeMerkleRootOrderSensitive(t *testing.T) {
	forward := merkleEntries("aa", "bb", "cc", "dd")
	reversed := merkleEntries("dd", "cc", "bb", "aa")

	assert.NotEqual(t, ComputeMerkleRoot(forward), ComputeMerkleRoot(reversed))
}

func TestComputeMerkleRootOddCountDuplicatesTail(t *testing.T) {
	odd := merkleEntries("aa", "bb", "cc")
	padded := merkleEntries("aa", "bb", "cc", "cc")

	assert.Equal(t, ComputeMerkleRoot(padded), ComputeMerkleRoot(odd))
}

func TestComputeMerkleRootLegacyLeaf(t *testing.T) {
	legacy := testEntry("read")
	entries := []*types.AuditEntry{legacy}

	// A legacy entry without a stored hash still yields a deterministic leaf.
	assert.Equal(t, ComputeEntryHash(legacy), ComputeMerkleRoot(entries))
}
