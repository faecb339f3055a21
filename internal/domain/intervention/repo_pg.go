package intervention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Repository backed by the intervention table.
func NewPGRepository(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

const ivCols = `id, tenant_id, intervention_number, patient_id, identified_by, category,
	priority, issue_description, implementation_notes, status,
	strategies, assignments, outcome, follow_up,
	identified_date, started_at, completed_at, estimated_minutes, actual_minutes,
	mtr_id, dtp_ids,
	created_by, updated_by, version_id, created_at, updated_at`

func scanIntervention(row pgx.Row) (*Intervention, error) {
	var iv Intervention
	var strategies, assignments, outcome, followUp, dtpIDs []byte
	err := row.Scan(
		&iv.ID, &iv.TenantID, &iv.InterventionNumber, &iv.PatientID, &iv.IdentifiedByID,
		&iv.Category, &iv.Priority, &iv.IssueDescription, &iv.ImplementationNotes, &iv.Status,
		&strategies, &assignments, &outcome, &followUp,
		&iv.IdentifiedDate, &iv.StartedAt, &iv.CompletedAt, &iv.EstimatedMinutes, &iv.ActualMinutes,
		&iv.MTRID, &dtpIDs,
		&iv.CreatedByID, &iv.UpdatedByID, &iv.VersionID, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(strategies, &iv.Strategies); err != nil {
		return nil, fmt.Errorf("decode strategies: %w", err)
	}
	if err := json.Unmarshal(assignments, &iv.Assignments); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	if outcome != nil {
		if err := json.Unmarshal(outcome, &iv.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
	}
	if followUp != nil {
		if err := json.Unmarshal(followUp, &iv.FollowUp); err != nil {
			return nil, fmt.Errorf("decode follow_up: %w", err)
		}
	}
	if dtpIDs != nil {
		if err := json.Unmarshal(dtpIDs, &iv.DTPIDs); err != nil {
			return nil, fmt.Errorf("decode dtp_ids: %w", err)
		}
	}
	return &iv, nil
}

func encodeCollections(iv *Intervention) (strategies, assignments, outcome, followUp, dtpIDs []byte, err error) {
	if iv.Strategies == nil {
		iv.Strategies = []Strategy{}
	}
	if iv.Assignments == nil {
		iv.Assignments = []Assignment{}
	}
	if strategies, err = json.Marshal(iv.Strategies); err != nil {
		return
	}
	if assignments, err = json.Marshal(iv.Assignments); err != nil {
		return
	}
	if iv.Outcome != nil {
		if outcome, err = json.Marshal(iv.Outcome); err != nil {
			return
		}
	}
	if iv.FollowUp != nil {
		if followUp, err = json.Marshal(iv.FollowUp); err != nil {
			return
		}
	}
	if iv.DTPIDs != nil {
		if dtpIDs, err = json.Marshal(iv.DTPIDs); err != nil {
			return
		}
	}
	return
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *pgRepo) Create(ctx context.Context, iv *Intervention) error {
	strategies, assignments, outcome, followUp, dtpIDs, err := encodeCollections(iv)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO intervention (
			id, tenant_id, intervention_number, patient_id, identified_by, category,
			priority, issue_description, implementation_notes, status,
			strategies, assignments, outcome, follow_up,
			identified_date, started_at, completed_at, estimated_minutes, actual_minutes,
			mtr_id, dtp_ids,
			created_by, updated_by, version_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26
		)`,
		iv.ID, iv.TenantID, iv.InterventionNumber, iv.PatientID, iv.IdentifiedByID, iv.Category,
		iv.Priority, iv.IssueDescription, iv.ImplementationNotes, iv.Status,
		strategies, assignments, outcome, followUp,
		iv.IdentifiedDate, iv.StartedAt, iv.CompletedAt, iv.EstimatedMinutes, iv.ActualMinutes,
		iv.MTRID, dtpIDs,
		iv.CreatedByID, iv.UpdatedByID, iv.VersionID, iv.CreatedAt, iv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateNumber
	}
	return err
}

func (r *pgRepo) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Intervention, error) {
	iv, err := scanIntervention(r.pool.QueryRow(ctx, `
		SELECT `+ivCols+` FROM intervention
		WHERE id = $1 AND tenant_id = $2 AND is_deleted = FALSE`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return iv, nil
}

func (r *pgRepo) Update(ctx context.Context, iv *Intervention) error {
	strategies, assignments, outcome, followUp, dtpIDs, err := encodeCollections(iv)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE intervention SET
			priority = $1, issue_description = $2, implementation_notes = $3, status = $4,
			strategies = $5, assignments = $6, outcome = $7, follow_up = $8,
			started_at = $9, completed_at = $10, estimated_minutes = $11, actual_minutes = $12,
			dtp_ids = $13, updated_by = $14,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $15 AND tenant_id = $16 AND version_id = $17 AND is_deleted = FALSE`,
		iv.Priority, iv.IssueDescription, iv.ImplementationNotes, iv.Status,
		strategies, assignments, outcome, followUp,
		iv.StartedAt, iv.CompletedAt, iv.EstimatedMinutes, iv.ActualMinutes,
		dtpIDs, iv.UpdatedByID,
		iv.ID, iv.TenantID, iv.VersionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	iv.VersionID++
	return nil
}

func (r *pgRepo) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actorID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE intervention
		SET is_deleted = TRUE, updated_by = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND is_deleted = FALSE`, actorID, id, tenantID)
	return err
}

func (r *pgRepo) MaxSequence(ctx context.Context, tenantID, prefix string) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(RIGHT(intervention_number, 4) AS INTEGER)), 0)
		FROM intervention
		WHERE tenant_id = $1 AND intervention_number LIKE $2 || '%'`, tenantID, prefix).Scan(&max)
	return max, err
}

func (r *pgRepo) FindDuplicates(ctx context.Context, tenantID string, patientID uuid.UUID, category Category, since time.Time, excludeID *uuid.UUID) ([]*Intervention, error) {
	statuses := make([]string, len(duplicateStatuses))
	for i, s := range duplicateStatuses {
		statuses[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+ivCols+` FROM intervention
		WHERE tenant_id = $1 AND patient_id = $2 AND category = $3
		  AND status = ANY($4)
		  AND identified_date >= $5
		  AND is_deleted = FALSE
		  AND ($6::uuid IS NULL OR id <> $6)
		ORDER BY identified_date DESC`,
		tenantID, patientID, category, statuses, since, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterventions(rows)
}

func collectInterventions(rows pgx.Rows) ([]*Intervention, error) {
	var out []*Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (r *pgRepo) Search(ctx context.Context, tenantID string, f SearchFilter) ([]*Intervention, int, error) {
	where := []string{"tenant_id = $1", "is_deleted = FALSE"}
	args := []any{tenantID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Priority != nil {
		add("priority = $%d", *f.Priority)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.IdentifiedBy != nil {
		add("identified_by = $%d", *f.IdentifiedBy)
	}
	if f.AssignedTo != nil {
		add("EXISTS (SELECT 1 FROM jsonb_array_elements(assignments) a WHERE a->>'user_id' = $%d)", f.AssignedTo.String())
	}
	if f.From != nil {
		add("identified_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("identified_date <= $%d", *f.To)
	}
	if f.Search != "" {
		args = append(args, f.Search)
		where = append(where, fmt.Sprintf(
			"(intervention_number ILIKE '%%' || $%d || '%%' OR issue_description ILIKE '%%' || $%d || '%%' OR COALESCE(implementation_notes, '') ILIKE '%%' || $%d || '%%')",
			len(args), len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM intervention WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "identified_date"
		f.SortDesc = true
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM intervention WHERE %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		ivCols, cond, col, dir, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectInterventions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *pgRepo) ListByAssignee(ctx context.Context, tenantID string, userID uuid.UUID) ([]*Intervention, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ivCols+` FROM intervention
		WHERE tenant_id = $1 AND is_deleted = FALSE
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(assignments) a
			WHERE a->>'user_id' = $2
		  )
		ORDER BY identified_date DESC`, tenantID, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterventions(rows)
}

func (r *pgRepo) ListByPatient(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Intervention, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ivCols+` FROM intervention
		WHERE tenant_id = $1 AND patient_id = $2 AND is_deleted = FALSE
		ORDER BY identified_date DESC`, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterventions(rows)
}

func (r *pgRepo) ListBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*Intervention, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ivCols+` FROM intervention
		WHERE tenant_id = $1 AND is_deleted = FALSE
		  AND identified_date >= $2 AND identified_date <= $3
		ORDER BY identified_date`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterventions(rows)
}
