package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientStorePG struct{ pool *pgxpool.Pool }

func NewPatientStorePG(pool *pgxpool.Pool) PatientStore {
	return &patientStorePG{pool: pool}
}

const patientCols = `id, tenant_id, first_name, last_name, mrn, date_of_birth, email, phone`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.MRN,
		&p.DateOfBirth, &p.Email, &p.Phone)
	return &p, err
}

func (s *patientStorePG) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(s.pool.QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE id = $1 AND tenant_id = $2 AND is_deleted = FALSE`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *patientStorePG) Search(ctx context.Context, tenantID, query string, limit int) ([]*Patient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE tenant_id = $1 AND is_deleted = FALSE
		  AND (first_name ILIKE '%' || $2 || '%'
		    OR last_name ILIKE '%' || $2 || '%'
		    OR mrn ILIKE '%' || $2 || '%')
		ORDER BY last_name, first_name
		LIMIT $3`, tenantID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

type userStorePG struct{ pool *pgxpool.Pool }

func NewUserStorePG(pool *pgxpool.Pool) UserStore {
	return &userStorePG{pool: pool}
}

func (s *userStorePG) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, role, sms_opt_in FROM app_user
		WHERE id = $1 AND is_active = TRUE`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.SMSOptIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
