package rbac

import (
	"context"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// relationshipState is one pre-resolved relationship lookup
type relationshipState struct {
	active bool
	err    error
}

// CheckBatchAccess evaluates a list of requests for one actor, resolving
// each distinct (doctor, patient) relationship exactly once. It is a pure
// performance optimization: outcomes are identical to calling CheckAccess
// per request, and results preserve input order.
func (e *AccessEngine) CheckBatchAccess(ctx context.Context, actor types.AccessContext, requests []types.AccessRequest) ([]*types.AccessResult, error) {
	resolve := e.relationships.FindActiveRelationship

	// Relationship lookups only matter on the doctor branch.
	if actor.ActorRole == types.RoleDoctor {
		cache := make(map[string]relationshipState)
		for _, req := range requests {
			if req.PatientID == "" {
				continue
			}
			if _, seen := cache[req.PatientID]; seen {
				continue
			}
			active, err := e.relationships.FindActiveRelationship(ctx, actor.ActorID, req.PatientID)
			cache[req.PatientID] = relationshipState{active: active, err: err}
		}

		resolve = func(_ context.Context, _, patientID string) (bool, error) {
			state := cache[patientID]
			return state.active, state.err
		}
	}

	results := make([]*types.AccessResult, 0, len(requests))
	for _, req := range requests {
		result := e.evaluate(ctx, actor, req, resolve)
		audited, err := e.auditDecision(ctx, actor, req, result, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, audited)
	}

	return results, nil
}
