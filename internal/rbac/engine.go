package rbac

import (
	"context"
	"fmt"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// ConsentTreatment is the consent type consulted after a doctor's
// relationship is confirmed.
const ConsentTreatment = "treatment"

// RelationshipStore is the boundary to doctor-patient relationships and
// patient consent records. Queried, never mutated, by the decision engine.
type RelationshipStore interface {
	FindActiveRelationship(ctx context.Context, doctorID, patientID string) (bool, error)
	// FindActiveConsent returns nil when no consent record exists.
	FindActiveConsent(ctx context.Context, patientID, consentType string) (*types.ConsentRecord, error)
}

// AuditRecorder is the audit chain boundary. Every decision, granted or
// denied, is recorded through it.
type AuditRecorder interface {
	RecordAuditEvent(ctx context.Context, actor types.AccessContext, action string, req types.AccessRequest, success bool, metadata map[string]interface{}) (*types.AuditEntry, error)
}

// AccessEngine evaluates role- and relationship-based access decisions for
// protected health information. Decisions are computed per request; the
// evaluation order is a strict decision tree with early termination.
type AccessEngine struct {
	relationships RelationshipStore
	auditor       AuditRecorder
	logger        *logger.Logger
}

// NewAccessEngine creates a new access decision engine
func NewAccessEngine(relationships RelationshipStore, auditor AuditRecorder, log *logger.Logger) *AccessEngine {
	return &AccessEngine{
		relationships: relationships,
		auditor:       auditor,
		logger:        log,
	}
}

// relationshipResolver abstracts the relationship lookup so batch mode can
// substitute a pre-resolved cache without changing decision semantics.
type relationshipResolver func(ctx context.Context, doctorID, patientID string) (bool, error)

// CheckAccess evaluates one access request and records exactly one audit
// entry for the decision. Denial is a valid result, never an error; the
// only error surfaced is audit chain corruption.
func (e *AccessEngine) CheckAccess(ctx context.Context, actor types.AccessContext, req types.AccessRequest) (*types.AccessResult, error) {
	result := e.evaluate(ctx, actor, req, e.relationships.FindActiveRelationship)
	return e.auditDecision(ctx, actor, req, result, nil)
}

// evaluate walks the decision tree. It never skips the caller's audit
// emission because it only ever returns a result, not an error.
func (e *AccessEngine) evaluate(ctx context.Context, actor types.AccessContext, req types.AccessRequest, resolve relationshipResolver) *types.AccessResult {
	category := req.Category
	if category == "" {
		category = types.CategorizeResource(req.ResourceType)
	}

	// Hard domain invariant, independent of role: medical records are never
	// deleted by any actor.
	if req.Action == types.ActionDelete && category == types.CategoryMedicalRecord {
		return &types.AccessResult{
			Granted: false,
			Reason:  "medical records cannot be deleted by any actor",
		}
	}

	switch actor.ActorRole {
	case types.RoleAdmin:
		return &types.AccessResult{
			Granted: true,
			Reason:  "administrative privileges",
		}

	case types.RolePatient:
		return e.evaluatePatient(actor, req)

	case types.RoleDoctor:
		return e.evaluateDoctor(ctx, actor, req, category, resolve)

	case types.RoleCompany:
		return e.evaluateCompany(req, category)

	default:
		return &types.AccessResult{
			Granted: false,
			Reason:  fmt.Sprintf("unrecognized role %q", actor.ActorRole),
		}
	}
}

// evaluatePatient restricts patients to their own records
func (e *AccessEngine) evaluatePatient(actor types.AccessContext, req types.AccessRequest) *types.AccessResult {
	if req.PatientID == "" {
		return &types.AccessResult{
			Granted: false,
			Reason:  "resource is not patient-scoped: missing patient id",
		}
	}

	if req.PatientID != actor.ActorID {
		// The reason names the policy, never the other patient's data.
		return &types.AccessResult{
			Granted: false,
			Reason:  "patients may only access their own medical data",
		}
	}

	return &types.AccessResult{
		Granted: true,
		Reason:  "patient accessing own medical data",
	}
}

// evaluateDoctor requires an active treatment relationship plus
// resource-specific policy.
func (e *AccessEngine) evaluateDoctor(ctx context.Context, actor types.AccessContext, req types.AccessRequest, category types.ResourceCategory, resolve relationshipResolver) *types.AccessResult {
	if req.PatientID == "" {
		return &types.AccessResult{
			Granted: false,
			Reason:  "no patient associated with the requested resource",
		}
	}

	active, err := resolve(ctx, actor.ActorID, req.PatientID)
	if err != nil {
		// Fail closed: an unverifiable relationship is treated as absent.
		e.logger.WithComponent("rbac").WithError(err).
			Error("Relationship store lookup failed")
		return &types.AccessResult{
			Granted: false,
			Reason:  "doctor-patient relationship could not be verified",
		}
	}

	if !active {
		return &types.AccessResult{
			Granted: false,
			Reason:  "no active doctor-patient relationship",
		}
	}

	if denied := checkResourcePolicy(actor.ActorRole, req.Action, category); denied != nil {
		return denied
	}

	result := &types.AccessResult{
		Granted: true,
		Reason:  "active doctor-patient treatment relationship verified",
	}

	// Sensitive categories additionally consult patient consent. Missing or
	// expired consent does not revoke the treatment-relationship grant; it
	// flags the follow-up consent workflow with a distinct reason.
	if category == types.CategoryMedicalRecord || category == types.CategoryLabResult || category == types.CategoryPrescription {
		e.applyConsent(ctx, req.PatientID, result)
	}

	return result
}

// applyConsent annotates a granted result with the consent workflow state.
// "no consent on record" and "consent expired" are deliberately distinct so
// audit review can tell them apart.
func (e *AccessEngine) applyConsent(ctx context.Context, patientID string, result *types.AccessResult) {
	consent, err := e.relationships.FindActiveConsent(ctx, patientID, ConsentTreatment)
	if err != nil {
		e.logger.WithComponent("rbac").WithError(err).
			Warn("Consent lookup failed")
		result.RequiresConsent = true
		result.Reason += "; consent status unavailable"
		return
	}

	switch {
	case consent == nil:
		result.RequiresConsent = true
		result.Reason += "; no consent on record"
	case consent.Expired():
		result.RequiresConsent = true
		result.Reason += "; consent expired"
	case !consent.Granted || !consent.Active:
		result.RequiresConsent = true
		result.Reason += "; consent not active"
	}
}

// evaluateCompany grants companies read-only access to aggregate resources
func (e *AccessEngine) evaluateCompany(req types.AccessRequest, category types.ResourceCategory) *types.AccessResult {
	if req.Action != types.ActionRead {
		return &types.AccessResult{
			Granted: false,
			Reason:  "company access is read-only",
		}
	}

	if category != types.CategoryReport && category != types.CategoryAnalytics {
		return &types.AccessResult{
			Granted: false,
			Reason:  "companies may only read report or analytics resources",
		}
	}

	return &types.AccessResult{
		Granted: true,
		Reason:  "company read access to aggregate resources",
	}
}

// checkResourcePolicy applies resource-specific write restrictions. The
// doctor branch is currently the only caller, but the role check stays as a
// guard against future role-branch refactors.
func checkResourcePolicy(role types.UserRole, action string, category types.ResourceCategory) *types.AccessResult {
	writing := action == types.ActionCreate || action == types.ActionUpdate || action == types.ActionWrite

	if writing && (category == types.CategoryPrescription || category == types.CategoryLabResult) {
		if role != types.RoleDoctor {
			return &types.AccessResult{
				Granted: false,
				Reason:  fmt.Sprintf("only doctors may write %s resources", category),
			}
		}
	}

	return nil
}

// auditDecision records exactly one audit entry for a decision and attaches
// the entry ID to the result. No decision path skips it.
func (e *AccessEngine) auditDecision(ctx context.Context, actor types.AccessContext, req types.AccessRequest, result *types.AccessResult, extraMetadata map[string]interface{}) (*types.AccessResult, error) {
	metadata := map[string]interface{}{
		"decision_reason": result.Reason,
		"granted":         result.Granted,
	}
	if result.RequiresConsent {
		metadata["requires_consent"] = true
	}
	for k, v := range extraMetadata {
		metadata[k] = v
	}

	action := fmt.Sprintf("rbac_%s_%s", req.Action, req.ResourceType)

	entry, err := e.auditor.RecordAuditEvent(ctx, actor, action, req, result.Granted, metadata)
	if err != nil {
		// Chain corruption is the one condition that must propagate.
		return result, err
	}
	if entry != nil {
		result.AuditTrail = entry.ID
	}

	return result, nil
}

// GrantEmergencyAccess always grants access for crisis care, bypassing the
// relationship check, and records an audit entry tagged for mandatory human
// review.
func (e *AccessEngine) GrantEmergencyAccess(ctx context.Context, actor types.AccessContext, req types.AccessRequest, justification, approver string) (*types.AccessResult, error) {
	result := &types.AccessResult{
		Granted:         true,
		Reason:          "emergency override granted pending mandatory review",
		RequiresConsent: true,
	}

	e.logger.Security("emergency_override", actor.ActorID, map[string]interface{}{
		"patient_id":    req.PatientID,
		"resource_type": req.ResourceType,
		"justification": justification,
		"approver":      approver,
	})

	metadata := map[string]interface{}{
		"emergency_override": true,
		"requires_review":    true,
		"justification":      justification,
	}
	if approver != "" {
		metadata["approver"] = approver
	}

	return e.auditDecision(ctx, actor, req, result, metadata)
}
