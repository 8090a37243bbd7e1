package types

import (
	"strings"
	"time"
)

// UserRole represents a role in the access control model
type UserRole string

// Platform roles
const (
	RoleAdmin   UserRole = "admin"
	RoleDoctor  UserRole = "doctor"
	RolePatient UserRole = "patient"
	RoleCompany UserRole = "company"
)

// Action types
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionWrite  = "write"
)

// ResourceCategory is an explicit category tag attached to each access request,
// replacing substring matching on resource names for policy decisions.
type ResourceCategory string

// Resource categories
const (
	CategoryMedicalRecord ResourceCategory = "medical_record"
	CategoryPrescription  ResourceCategory = "prescription"
	CategoryLabResult     ResourceCategory = "lab_result"
	CategoryReport        ResourceCategory = "report"
	CategoryAnalytics     ResourceCategory = "analytics"
	CategoryAppointment   ResourceCategory = "appointment"
	CategoryGeneral       ResourceCategory = "general"
)

// CategorizeResource derives a resource category from a resource type name,
// for callers that only carry a name. Request builders should prefer setting
// the category explicitly.
func CategorizeResource(resourceType string) ResourceCategory {
	name := strings.ToLower(resourceType)
	switch {
	case strings.Contains(name, "prescription"):
		return CategoryPrescription
	case strings.Contains(name, "lab"):
		return CategoryLabResult
	case strings.Contains(name, "medical-record"), strings.Contains(name, "medical_record"):
		return CategoryMedicalRecord
	case strings.Contains(name, "report"):
		return CategoryReport
	case strings.Contains(name, "analytics"):
		return CategoryAnalytics
	case strings.Contains(name, "appointment"):
		return CategoryAppointment
	default:
		return CategoryGeneral
	}
}

// AccessContext carries the identity and provenance of the caller, supplied
// by the request middleware.
type AccessContext struct {
	ActorID   string   `json:"actor_id"`
	ActorRole UserRole `json:"actor_role"`
	IPAddress string   `json:"ip_address,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// AccessRequest describes one attempted action on a resource.
type AccessRequest struct {
	Action       string           `json:"action"`
	ResourceType string           `json:"resource_type"`
	ResourceID   string           `json:"resource_id"`
	PatientID    string           `json:"patient_id,omitempty"`
	Category     ResourceCategory `json:"category,omitempty"`
}

// AccessResult is the outcome of an access control decision. Denial is a
// valid result with a specific reason, never an error.
type AccessResult struct {
	Granted         bool   `json:"granted"`
	Reason          string `json:"reason"`
	RequiresConsent bool   `json:"requires_consent,omitempty"`
	AuditTrail      string `json:"audit_trail,omitempty"`
}

// RelationshipStatus values for doctor-patient treatment relationships
const (
	RelationshipActive   = "active"
	RelationshipInactive = "inactive"
)

// RelationshipRecord is a doctor-patient treatment relationship row.
type RelationshipRecord struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Status    string `json:"status"`
}

// ConsentRecord is a patient consent row queried by the decision engine.
type ConsentRecord struct {
	Granted   bool       `json:"granted"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the consent has an expiry in the past.
func (c *ConsentRecord) Expired() bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now())
}
