package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct{ pool *pgxpool.Pool }

// NewPGStore returns a Store backed by the audit_log table. The table is
// insert-only; no update or delete statements exist in this package.
func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const auditCols = `id, tenant_id, intervention_id, action, actor_id,
	risk_level, compliance_category, details, old_values, new_values, created_at`

func (s *pgStore) Insert(ctx context.Context, e *Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	oldVals, err := json.Marshal(e.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newVals, err := json.Marshal(e.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, intervention_id, action, actor_id,
			risk_level, compliance_category, details, old_values, new_values, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.TenantID, e.InterventionID, e.Action, e.ActorID,
		e.RiskLevel, e.ComplianceCategory, details, oldVals, newVals, e.Timestamp)
	return err
}

func (s *pgStore) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var details, oldVals, newVals []byte
	err := row.Scan(&e.ID, &e.TenantID, &e.InterventionID, &e.Action, &e.ActorID,
		&e.RiskLevel, &e.ComplianceCategory, &details, &oldVals, &newVals, &e.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &e.Details)
	}
	if len(oldVals) > 0 {
		_ = json.Unmarshal(oldVals, &e.OldValues)
	}
	if len(newVals) > 0 {
		_ = json.Unmarshal(newVals, &e.NewValues)
	}
	return &e, nil
}

func (s *pgStore) ListByIntervention(ctx context.Context, tenantID, interventionID string, from, to *time.Time, limit, offset int) ([]*Entry, int, error) {
	where := `WHERE tenant_id = $1 AND intervention_id = $2`
	args := []interface{}{tenantID, interventionID}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditCols + ` FROM audit_log ` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *pgStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditCols+` FROM audit_log
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
