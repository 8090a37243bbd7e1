package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

func setupRelationshipStore(t *testing.T) (*PostgresRelationshipStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS doctor_patient_relationships").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresRelationshipStore(db, logger.New("error"))
	require.NoError(t, err)

	return store, mock
}

func TestFindActiveRelationshipExists(t *testing.T) {
	store, mock := setupRelationshipStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", "pat-1", types.RelationshipActive).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := store.FindActiveRelationship(context.Background(), "doc-1", "pat-1")

	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveRelationshipAbsent(t *testing.T) {
	store, mock := setupRelationshipStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", "pat-2", types.RelationshipActive).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	active, err := store.FindActiveRelationship(context.Background(), "doc-1", "pat-2")

	require.NoError(t, err)
	assert.False(t, active)
}

func TestFindActiveConsentFound(t *testing.T) {
	store, mock := setupRelationshipStore(t)

	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT granted, active, expires_at").
		WithArgs("pat-1", ConsentTreatment).
		WillReturnRows(sqlmock.NewRows([]string{"granted", "active", "expires_at"}).
			AddRow(true, true, expires))

	consent, err := store.FindActiveConsent(context.Background(), "pat-1", ConsentTreatment)

	require.NoError(t, err)
	require.NotNil(t, consent)
	assert.True(t, consent.Granted)
	assert.True(t, consent.Active)
	require.NotNil(t, consent.ExpiresAt)
	assert.Equal(t, expires, *consent.ExpiresAt)
	assert.False(t, consent.Expired())
}

func TestFindActiveConsentNoRecord(t *testing.T) {
	store, mock := setupRelationshipStore(t)

	mock.ExpectQuery("SELECT granted, active, expires_at").
		WithArgs("pat-9", ConsentTreatment).
		WillReturnRows(sqlmock.NewRows([]string{"granted", "active", "expires_at"}))

	consent, err := store.FindActiveConsent(context.Background(), "pat-9", ConsentTreatment)

	require.NoError(t, err)
	assert.Nil(t, consent)
}

func TestFindActiveConsentNullExpiry(t *testing.T) {
	store, mock := setupRelationshipStore(t)

	mock.ExpectQuery("SELECT granted, active, expires_at").
		WithArgs("pat-1", ConsentTreatment).
		WillReturnRows(sqlmock.NewRows([]string{"granted", "active", "expires_at"}).
			AddRow(true, true, nil))

	consent, err := store.FindActiveConsent(context.Background(), "pat-1", ConsentTreatment)

	require.NoError(t, err)
	require.NotNil(t, consent)
	assert.Nil(t, consent.ExpiresAt)
	assert.False(t, consent.Expired())
}
