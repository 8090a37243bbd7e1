package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// MockRelationshipStore is a mock implementation of RelationshipStore
type MockRelationshipStore struct {
	mock.Mock
}

func (m *MockRelationshipStore) FindActiveRelationship(ctx context.Context, doctorID, patientID string) (bool, error) {
	args := m.Called(ctx, doctorID, patientID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRelationshipStore) FindActiveConsent(ctx context.Context, patientID, consentType string) (*types.ConsentRecord, error) {
	args := m.Called(ctx, patientID, consentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ConsentRecord), args.Error(1)
}

// MockAuditRecorder is a mock implementation of AuditRecorder
type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) RecordAuditEvent(ctx context.Context, actor types.AccessContext, action string, req types.AccessRequest, success bool, metadata map[string]interface{}) (*types.AuditEntry, error) {
	args := m.Called(ctx, actor, action, req, success, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AuditEntry), args.Error(1)
}

func setupAccessEngine(t *testing.T) (*AccessEngine, *MockRelationshipStore, *MockAuditRecorder) {
	t.Helper()
	relationships := &MockRelationshipStore{}
	auditor := &MockAuditRecorder{}
	engine := NewAccessEngine(relationships, auditor, logger.New("error"))
	return engine, relationships, auditor
}

func expectAudit(auditor *MockAuditRecorder) {
	auditor.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Return(&types.AuditEntry{ID: "audit-1"}, nil)
}

func activeConsent() *types.ConsentRecord {
	return &types.ConsentRecord{Granted: true, Active: true}
}

func TestCheckAccessAdminAlwaysGranted(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "adm-1", ActorRole: types.RoleAdmin}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "prescription", PatientID: "pat-9"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Contains(t, result.Reason, "administrative privileges")
	assert.Equal(t, "audit-1", result.AuditTrail)
}

func TestCheckAccessPatientOwnData(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "pat-1", ActorRole: types.RolePatient}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-1"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
}

func TestCheckAccessPatientCrossPatientDenied(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "pat-1", ActorRole: types.RolePatient}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-2"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "own medical data")
	// The denial reason must not leak the other patient's identity.
	assert.NotContains(t, result.Reason, "pat-2")
}

func TestCheckAccessPatientMissingPatientID(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "pat-1", ActorRole: types.RolePatient}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "report"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "missing patient id")
}

func TestCheckAccessDoctorNoRelationship(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)
	relationships.On("FindActiveRelationship", mock.Anything, "doc-a", "pat-x").
		Return(false, nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "no active doctor-patient relationship")
}

func TestCheckAccessDoctorActiveRelationship(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)
	relationships.On("FindActiveRelationship", mock.Anything, "doc-a", "pat-x").
		Return(true, nil)
	relationships.On("FindActiveConsent", mock.Anything, "pat-x", ConsentTreatment).
		Return(activeConsent(), nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.False(t, result.RequiresConsent)
}

func TestCheckAccessDoctorMissingPatientID(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "no patient associated")
}

func TestCheckAccessMedicalRecordDeletionInvariant(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionDelete, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "cannot be deleted")
	// The hard invariant is checked before the role branches ever run.
	relationships.AssertNotCalled(t, "FindActiveRelationship", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckAccessMedicalRecordDeletionDeniedForAdmin(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "adm-1", ActorRole: types.RoleAdmin}
	req := types.AccessRequest{Action: types.ActionDelete, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
}

func TestCheckAccessDoctorRelationshipLookupFailure(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)
	relationships.On("FindActiveRelationship", mock.Anything, mock.Anything, mock.Anything).
		Return(false, assert.AnError)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	// Fail closed, not error out.
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "could not be verified")
}

func TestCheckAccessDoctorConsentMissing(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)
	relationships.On("FindActiveRelationship", mock.Anything, "doc-a", "pat-x").
		Return(true, nil)
	relationships.On("FindActiveConsent", mock.Anything, "pat-x", ConsentTreatment).
		Return(nil, nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.True(t, result.RequiresConsent)
	assert.Contains(t, result.Reason, "no consent on record")
}

func TestCheckAccessDoctorConsentExpired(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)
	expectAudit(auditor)
	relationships.On("FindActiveRelationship", mock.Anything, "doc-a", "pat-x").
		Return(true, nil)

	expired := time.Now().Add(-24 * time.Hour)
	relationships.On("FindActiveConsent", mock.Anything, "pat-x", ConsentTreatment).
		Return(&types.ConsentRecord{Granted: true, Active: true, ExpiresAt: &expired}, nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.True(t, result.RequiresConsent)
	// Expired consent is audited distinctly from absent consent.
	assert.Contains(t, result.Reason, "consent expired")
}

func TestCheckAccessCompanyWriteDenied(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "comp-1", ActorRole: types.RoleCompany}
	req := types.AccessRequest{Action: types.ActionWrite, ResourceType: "usage-report"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "read-only")
}

func TestCheckAccessCompanyReadReportGranted(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "comp-1", ActorRole: types.RoleCompany}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "usage-report", Category: types.CategoryReport}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.True(t, result.Granted)
}

func TestCheckAccessCompanyReadClinicalDenied(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "comp-1", ActorRole: types.RoleCompany}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-1"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "report or analytics")
}

func TestCheckAccessUnknownRoleDenied(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "u-1", ActorRole: types.UserRole("intern")}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-1"}

	result, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "intern")
}

func TestCheckAccessAlwaysAuditsDenials(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)
	expectAudit(auditor)

	actor := types.AccessContext{ActorID: "pat-1", ActorRole: types.RolePatient}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-2"}

	_, err := engine.CheckAccess(context.Background(), actor, req)

	require.NoError(t, err)
	auditor.AssertNumberOfCalls(t, "RecordAuditEvent", 1)
}

func TestGrantEmergencyAccess(t *testing.T) {
	engine, relationships, auditor := setupAccessEngine(t)

	var capturedMetadata map[string]interface{}
	var capturedSuccess bool
	auditor.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			capturedSuccess = args.Bool(4)
			capturedMetadata = args.Get(5).(map[string]interface{})
		}).
		Return(&types.AuditEntry{ID: "audit-em-1"}, nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "medical-record", PatientID: "pat-x"}

	result, err := engine.GrantEmergencyAccess(context.Background(), actor, req, "unconscious patient in ER", "sup-1")

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.True(t, result.RequiresConsent)
	assert.Equal(t, "audit-em-1", result.AuditTrail)

	assert.True(t, capturedSuccess)
	assert.Equal(t, true, capturedMetadata["requires_review"])
	assert.Equal(t, true, capturedMetadata["emergency_override"])
	assert.Equal(t, "unconscious patient in ER", capturedMetadata["justification"])
	assert.Equal(t, "sup-1", capturedMetadata["approver"])

	// Emergency access bypasses the relationship check entirely.
	relationships.AssertNotCalled(t, "FindActiveRelationship", mock.Anything, mock.Anything, mock.Anything)
}

func TestGrantEmergencyAccessWithoutApprover(t *testing.T) {
	engine, _, auditor := setupAccessEngine(t)

	var capturedMetadata map[string]interface{}
	auditor.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			capturedMetadata = args.Get(5).(map[string]interface{})
		}).
		Return(&types.AuditEntry{ID: "audit-em-2"}, nil)

	actor := types.AccessContext{ActorID: "doc-a", ActorRole: types.RoleDoctor}
	req := types.AccessRequest{Action: types.ActionRead, ResourceType: "lab-result", PatientID: "pat-x"}

	result, err := engine.GrantEmergencyAccess(context.Background(), actor, req, "cardiac arrest", "")

	require.NoError(t, err)
	assert.True(t, result.Granted)
	_, hasApprover := capturedMetadata["approver"]
	assert.False(t, hasApprover)
}
