package auditchain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// PostgresStore is the durable append-only audit log store. The table has
// no UPDATE or DELETE path; retention is an external archival concern.
type PostgresStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgresStore creates a new Postgres-backed audit log store
func NewPostgresStore(db *sql.DB, log *logger.Logger) (*PostgresStore, error) {
	store := &PostgresStore{
		db:     db,
		logger: log,
	}

	if err := store.initializeTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit tables: %w", err)
	}

	return store, nil
}

// initializeTables creates the audit log table and its indexes
func (s *PostgresStore) initializeTables() error {
	auditTableSQL := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id VARCHAR(36) PRIMARY KEY,
			actor_id VARCHAR(100) NOT NULL,
			actor_role VARCHAR(50) NOT NULL,
			action VARCHAR(100) NOT NULL,
			resource_type VARCHAR(100) NOT NULL,
			resource_id VARCHAR(100),
			patient_id VARCHAR(100),
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			metadata JSONB,
			success BOOLEAN NOT NULL,
			hash VARCHAR(64),
			prev_hash VARCHAR(72),
			sequence_number BIGINT UNIQUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_actor_id ON audit_log(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_log_patient_id ON audit_log(patient_id);
		CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_log_sequence ON audit_log(sequence_number);
	`

	if _, err := s.db.Exec(auditTableSQL); err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}

	return nil
}

// Insert appends one audit entry. There is intentionally no corresponding
// update or delete operation.
func (s *PostgresStore) Insert(ctx context.Context, entry *types.AuditEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			id, actor_id, actor_role, action, resource_type, resource_id,
			patient_id, timestamp, ip_address, user_agent, metadata, success,
			hash, prev_hash, sequence_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.ActorRole),
		entry.Action,
		entry.ResourceType,
		nullableString(entry.ResourceID),
		nullableString(entry.PatientID),
		entry.Timestamp,
		nullableString(entry.IPAddress),
		nullableString(entry.UserAgent),
		metadataJSON,
		entry.Success,
		nullableString(entry.Hash),
		nullableString(entry.PrevHash),
		nullableSequence(entry.SequenceNumber),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// FindLatestBySequence returns the chained entry with the highest sequence
// number, or nil when no chained entries exist yet.
func (s *PostgresStore) FindLatestBySequence(ctx context.Context) (*types.AuditEntry, error) {
	query := selectColumns + `
		FROM audit_log
		WHERE sequence_number IS NOT NULL
		ORDER BY sequence_number DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest chained entry: %w", err)
	}

	return entry, nil
}

// FindMaxSequenceNumber returns the highest assigned sequence number, or 0
// when the chain is empty.
func (s *PostgresStore) FindMaxSequenceNumber(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	query := `SELECT MAX(sequence_number) FROM audit_log`

	if err := s.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to find max sequence number: %w", err)
	}

	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// Query retrieves audit entries matching the filter, newest first, for
// compliance reporting.
func (s *PostgresStore) Query(ctx context.Context, filter *types.AuditFilter) ([]*types.AuditEntry, error) {
	query := selectColumns + `
		FROM audit_log
		WHERE 1=1`

	args := []interface{}{}
	argIndex := 1

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argIndex)
		args = append(args, filter.ActorID)
		argIndex++
	}

	if filter.PatientID != "" {
		query += fmt.Sprintf(" AND patient_id = $%d", argIndex)
		args = append(args, filter.PatientID)
		argIndex++
	}

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIndex)
		args = append(args, filter.Action)
		argIndex++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argIndex)
		args = append(args, filter.ResourceType)
		argIndex++
	}

	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, filter.StartTime)
		argIndex++
	}

	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, filter.EndTime)
		argIndex++
	}

	if filter.Success != nil {
		query += fmt.Sprintf(" AND success = $%d", argIndex)
		args = append(args, *filter.Success)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}

const selectColumns = `
		SELECT id, actor_id, actor_role, action, resource_type, resource_id,
		       patient_id, timestamp, ip_address, user_agent, metadata, success,
		       hash, prev_hash, sequence_number`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans one audit log row into an AuditEntry
func scanEntry(row rowScanner) (*types.AuditEntry, error) {
	entry := &types.AuditEntry{}
	var actorRole string
	var resourceID, patientID, ipAddress, userAgent, hash, prevHash sql.NullString
	var sequenceNumber sql.NullInt64
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.ActorID,
		&actorRole,
		&entry.Action,
		&entry.ResourceType,
		&resourceID,
		&patientID,
		&entry.Timestamp,
		&ipAddress,
		&userAgent,
		&metadataJSON,
		&entry.Success,
		&hash,
		&prevHash,
		&sequenceNumber,
	)
	if err != nil {
		return nil, err
	}

	entry.ActorRole = types.UserRole(actorRole)
	entry.ResourceID = resourceID.String
	entry.PatientID = patientID.String
	entry.IPAddress = ipAddress.String
	entry.UserAgent = userAgent.String
	entry.Hash = hash.String
	entry.PrevHash = prevHash.String
	entry.SequenceNumber = sequenceNumber.Int64

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			entry.Metadata = make(map[string]interface{})
		}
	}

	return entry, nil
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullableSequence(value int64) interface{} {
	if value == 0 {
		return nil
	}
	return value
}
