package intervention

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by Update when the stored version no longer
// matches the one the caller loaded.
var ErrVersionConflict = errors.New("intervention version conflict")

// ErrDuplicateNumber is returned by Create when the generated intervention
// number collided with a concurrent insert.
var ErrDuplicateNumber = errors.New("duplicate intervention number")

// duplicateWindow bounds how far back the duplicate detector looks.
const duplicateWindow = 30 * 24 * time.Hour

// duplicateStatuses are the open statuses considered by the duplicate
// detector.
var duplicateStatuses = []Status{StatusIdentified, StatusPlanning, StatusInProgress, StatusImplemented}

// SearchFilter narrows List queries. Zero values mean "no filter".
type SearchFilter struct {
	PatientID    *uuid.UUID
	Category     *Category
	Priority     *Priority
	Status       *Status
	IdentifiedBy *uuid.UUID
	AssignedTo   *uuid.UUID
	From         *time.Time
	To           *time.Time
	Search       string // matches intervention number, issue description or notes

	SortBy   string // identified_date, priority, status, category, intervention_number, completed_at
	SortDesc bool

	Limit  int
	Offset int
}

var sortColumns = map[string]string{
	"identified_date":     "identified_date",
	"priority":            "priority",
	"status":              "status",
	"category":            "category",
	"intervention_number": "intervention_number",
	"completed_at":        "completed_at",
	"created_at":          "created_at",
}

// Repository persists intervention aggregates. Every method is scoped to a
// tenant and excludes soft-deleted rows.
type Repository interface {
	Create(ctx context.Context, iv *Intervention) error
	// GetByID returns (nil, nil) when absent, deleted, or in another tenant.
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Intervention, error)
	// Update writes the aggregate if the stored version_id equals
	// iv.VersionID, then increments it. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, iv *Intervention) error
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actorID uuid.UUID) error

	// MaxSequence returns the highest NNNN suffix already issued for numbers
	// with the given prefix, 0 when none.
	MaxSequence(ctx context.Context, tenantID, prefix string) (int, error)

	FindDuplicates(ctx context.Context, tenantID string, patientID uuid.UUID, category Category, since time.Time, excludeID *uuid.UUID) ([]*Intervention, error)

	Search(ctx context.Context, tenantID string, f SearchFilter) ([]*Intervention, int, error)
	ListByAssignee(ctx context.Context, tenantID string, userID uuid.UUID) ([]*Intervention, error)
	ListByPatient(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Intervention, error)
	ListBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*Intervention, error)
}
