package intent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresAuditStore persists misclassification records for review and
// model tuning. Records are immutable except for reviewer labeling.
type PostgresAuditStore struct {
	db *sql.DB
}

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	if db == nil {
		panic("intent: database handle cannot be nil")
	}
	return &PostgresAuditStore{db: db}
}

var _ MisclassificationStore = (*PostgresAuditStore)(nil)

func (s *PostgresAuditStore) Record(ctx context.Context, rec *MisclassificationRecord) error {
	if rec == nil {
		return errors.New("intent: record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO intent_misclassifications (
			id, tenant_id, conversation_id, query, actual_intent,
			expected_intent, confidence, fallback_level, successful,
			details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		nullString(rec.ConversationID),
		rec.Query,
		rec.ActualIntent,
		nullString(rec.ExpectedIntent),
		rec.Confidence,
		rec.Level,
		rec.Successful,
		nullString(rec.Details),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("intent: failed to record misclassification: %w", err)
	}
	return nil
}

// AuditFilter narrows ListRecords. TenantID is required.
type AuditFilter struct {
	TenantID       string
	ConversationID string
	Level          FallbackLevel
	Since          time.Time
	Unlabeled      bool
	Limit          int
}

// ListRecords returns misclassification records for a tenant, newest
// first.
func (s *PostgresAuditStore) ListRecords(ctx context.Context, filter AuditFilter) ([]MisclassificationRecord, error) {
	if filter.TenantID == "" {
		return nil, errors.New("intent: tenant id is required")
	}

	query := `
		SELECT id, tenant_id, conversation_id, query, actual_intent,
			   expected_intent, confidence, fallback_level, successful,
			   details, created_at
		FROM intent_misclassifications
		WHERE tenant_id = $1
	`
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.ConversationID != "" {
		query += fmt.Sprintf(" AND conversation_id = $%d", argIdx)
		args = append(args, filter.ConversationID)
		argIdx++
	}
	if filter.Level != "" {
		query += fmt.Sprintf(" AND fallback_level = $%d", argIdx)
		args = append(args, filter.Level)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	if filter.Unlabeled {
		query += " AND expected_intent IS NULL"
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("intent: failed to query misclassifications: %w", err)
	}
	defer rows.Close()

	var records []MisclassificationRecord
	for rows.Next() {
		var rec MisclassificationRecord
		var convID, expected, details sql.NullString
		err := rows.Scan(
			&rec.ID, &rec.TenantID, &convID, &rec.Query, &rec.ActualIntent,
			&expected, &rec.Confidence, &rec.Level, &rec.Successful,
			&details, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("intent: failed to scan misclassification: %w", err)
		}
		rec.ConversationID = convID.String
		rec.ExpectedIntent = expected.String
		rec.Details = details.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intent: failed to read misclassifications: %w", err)
	}
	return records, nil
}

// LabelExpected sets the reviewer-assigned expected intent on a
// record.
func (s *PostgresAuditStore) LabelExpected(ctx context.Context, tenantID, recordID, expectedIntent string) error {
	if tenantID == "" || recordID == "" {
		return errors.New("intent: tenant id and record id are required")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE intent_misclassifications SET expected_intent = $1 WHERE id = $2 AND tenant_id = $3`,
		nullString(expectedIntent), recordID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("intent: failed to label misclassification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("intent: failed to label misclassification: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
