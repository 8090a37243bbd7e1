package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/internal/auditchain"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// actorFromContext retrieves the authenticated caller placed by authMiddleware
func actorFromContext(r *http.Request) (*types.AccessContext, bool) {
	actor, ok := r.Context().Value(actorContextKey).(*types.AccessContext)
	return actor, ok
}

// handleHealth reports service and persistence health
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.healthChecker.Health(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.logger.WithError(err).Warn("Health check failed")
	}

	s.writeJSONResponse(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleCheckAccess evaluates a single access request for the caller
func (s *Service) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "no authenticated caller")
		return
	}

	var req types.AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Action == "" || req.ResourceType == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "action and resource_type are required")
		return
	}

	result, err := s.accessEngine.CheckAccess(r.Context(), *actor, req)
	if err != nil {
		s.logger.WithError(err).Error("Access check failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "access check failed")
		return
	}

	recordDecisionMetric(string(actor.ActorRole), result.Granted)

	// Denial is a valid engine outcome; the HTTP boundary translates it.
	code := http.StatusOK
	if !result.Granted {
		code = http.StatusForbidden
	}
	s.writeJSONResponse(w, code, result)
}

// batchAccessRequest is the wire shape of a batch access check
type batchAccessRequest struct {
	Requests []types.AccessRequest `json:"requests"`
}

// handleCheckBatchAccess evaluates a list of access requests for the caller
func (s *Service) handleCheckBatchAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "no authenticated caller")
		return
	}

	var batch batchAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.accessEngine.CheckBatchAccess(r.Context(), *actor, batch.Requests)
	if err != nil {
		s.logger.WithError(err).Error("Batch access check failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "batch access check failed")
		return
	}

	for _, result := range results {
		recordDecisionMetric(string(actor.ActorRole), result.Granted)
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// emergencyAccessRequest is the wire shape of an emergency override
type emergencyAccessRequest struct {
	Request       types.AccessRequest `json:"request"`
	Justification string              `json:"justification"`
	Approver      string              `json:"approver,omitempty"`
}

// handleEmergencyAccess grants crisis-care access tagged for mandatory review
func (s *Service) handleEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "no authenticated caller")
		return
	}

	var req emergencyAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Justification == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "justification is required for emergency access")
		return
	}

	result, err := s.accessEngine.GrantEmergencyAccess(r.Context(), *actor, req.Request, req.Justification, req.Approver)
	if err != nil {
		s.logger.WithError(err).Error("Emergency access grant failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "emergency access failed")
		return
	}

	emergencyOverridesTotal.Inc()
	s.writeJSONResponse(w, http.StatusOK, result)
}

// verifyChainRequest is the wire shape of a chain verification run
type verifyChainRequest struct {
	Entries []*types.AuditEntry `json:"entries"`
}

// handleVerifyChain verifies the integrity of a batch of chain entries
func (s *Service) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	var req verifyChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if limit := s.config.Chain.VerifyBatchSize; limit > 0 && len(req.Entries) > limit {
		s.writeErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("verification batch exceeds limit of %d entries", limit))
		return
	}

	result := auditchain.VerifyChain(req.Entries)
	recordVerificationMetric(result.IsValid)

	if !result.IsValid {
		s.logger.Security("chain_verification_failed", "", map[string]interface{}{
			"broken_at_sequence": result.BrokenAtSequence,
			"reason":             result.Reason,
		})
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// handleMerkleRoot computes a batch integrity certificate
func (s *Service) handleMerkleRoot(w http.ResponseWriter, r *http.Request) {
	var req verifyChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Canonical ordering: pairing order changes the root.
	entries := make([]*types.AuditEntry, len(req.Entries))
	copy(entries, req.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequenceNumber < entries[j].SequenceNumber
	})

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"merkle_root":   auditchain.ComputeMerkleRoot(entries),
		"entries_count": len(entries),
	})
}

// handleAuditTrail returns filtered audit entries for compliance review
func (s *Service) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "no authenticated caller")
		return
	}

	// Trail reads are an administrative surface.
	if actor.ActorRole != types.RoleAdmin {
		s.writeErrorResponse(w, http.StatusForbidden, "audit trail access requires administrative privileges")
		return
	}

	filter := &types.AuditFilter{
		ActorID:      r.URL.Query().Get("actor_id"),
		PatientID:    r.URL.Query().Get("patient_id"),
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        s.config.Chain.TrailQueryLimit,
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if successParam := r.URL.Query().Get("success"); successParam != "" {
		if success, err := strconv.ParseBool(successParam); err == nil {
			filter.Success = &success
		}
	}

	entries, err := s.trailReader.Query(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Audit trail query failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "audit trail query failed")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// writeJSONResponse writes a JSON response with the given status code
func (s *Service) writeJSONResponse(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeErrorResponse writes a JSON error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, code int, message string) {
	s.writeJSONResponse(w, code, map[string]string{
		"error": message,
	})
}
