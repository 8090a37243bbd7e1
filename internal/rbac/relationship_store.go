package rbac

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// PostgresRelationshipStore reads doctor-patient treatment relationships
// and patient consent records.
type PostgresRelationshipStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgresRelationshipStore creates a new Postgres-backed relationship store
func NewPostgresRelationshipStore(db *sql.DB, log *logger.Logger) (*PostgresRelationshipStore, error) {
	store := &PostgresRelationshipStore{
		db:     db,
		logger: log,
	}

	if err := store.initializeTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize relationship tables: %w", err)
	}

	return store, nil
}

// initializeTables creates the relationship and consent tables
func (s *PostgresRelationshipStore) initializeTables() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS doctor_patient_relationships (
			id SERIAL PRIMARY KEY,
			doctor_id VARCHAR(100) NOT NULL,
			patient_id VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (doctor_id, patient_id)
		);

		CREATE INDEX IF NOT EXISTS idx_relationships_doctor ON doctor_patient_relationships(doctor_id);
		CREATE INDEX IF NOT EXISTS idx_relationships_patient ON doctor_patient_relationships(patient_id);

		CREATE TABLE IF NOT EXISTS patient_consents (
			id SERIAL PRIMARY KEY,
			patient_id VARCHAR(100) NOT NULL,
			consent_type VARCHAR(50) NOT NULL,
			granted BOOLEAN NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_consents_patient ON patient_consents(patient_id, consent_type);
	`

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create relationship tables: %w", err)
	}

	return nil
}

// FindActiveRelationship reports whether an active treatment relationship
// exists between the doctor and the patient.
func (s *PostgresRelationshipStore) FindActiveRelationship(ctx context.Context, doctorID, patientID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM doctor_patient_relationships
			WHERE doctor_id = $1 AND patient_id = $2 AND status = $3
		)`

	var exists bool
	err := s.db.QueryRowContext(ctx, query, doctorID, patientID, types.RelationshipActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query doctor-patient relationship: %w", err)
	}

	return exists, nil
}

// FindActiveConsent returns the most recent consent record of the given
// type for the patient, or nil when none exists.
func (s *PostgresRelationshipStore) FindActiveConsent(ctx context.Context, patientID, consentType string) (*types.ConsentRecord, error) {
	query := `
		SELECT granted, active, expires_at
		FROM patient_consents
		WHERE patient_id = $1 AND consent_type = $2
		ORDER BY created_at DESC
		LIMIT 1`

	consent := &types.ConsentRecord{}
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, patientID, consentType).
		Scan(&consent.Granted, &consent.Active, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient consent: %w", err)
	}

	if expiresAt.Valid {
		consent.ExpiresAt = &expiresAt.Time
	}

	return consent, nil
}
