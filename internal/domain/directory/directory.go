// Package directory exposes read access to the patient and user records the
// intervention workflow references. Patient demographics and user accounts
// are managed elsewhere; this package only resolves them by id and supports
// the patient search surface.
package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    string     `json:"tenant_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	MRN         string     `json:"mrn"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
}

// Age returns the patient's age in whole years at the given time, or -1 when
// the date of birth is unknown.
func (p *Patient) Age(at time.Time) int {
	if p.DateOfBirth == nil {
		return -1
	}
	years := at.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

type User struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Role     string    `json:"role"`
	SMSOptIn bool      `json:"sms_opt_in"`
}

// PatientStore resolves patients within a tenant. FindByID returns (nil, nil)
// when the patient does not exist or belongs to another tenant.
type PatientStore interface {
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	Search(ctx context.Context, tenantID, query string, limit int) ([]*Patient, error)
}

// UserStore resolves user accounts. FindByID returns (nil, nil) when absent.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}
