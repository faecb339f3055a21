package intervention

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pharmcare/pharmcare/internal/platform/apperr"
)

// Category classifies the drug-therapy problem an intervention addresses.
type Category string

const (
	CategoryDrugTherapyProblem     Category = "drug_therapy_problem"
	CategoryAdverseDrugReaction    Category = "adverse_drug_reaction"
	CategoryMedicationNonadherence Category = "medication_nonadherence"
	CategoryDrugInteraction        Category = "drug_interaction"
	CategoryDosingIssue            Category = "dosing_issue"
	CategoryContraindication       Category = "contraindication"
	CategoryOther                  Category = "other"
)

var validCategories = map[Category]bool{
	CategoryDrugTherapyProblem:     true,
	CategoryAdverseDrugReaction:    true,
	CategoryMedicationNonadherence: true,
	CategoryDrugInteraction:        true,
	CategoryDosingIssue:            true,
	CategoryContraindication:       true,
	CategoryOther:                  true,
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = map[Priority]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityCritical: true,
}

// Status is the intervention workflow state.
type Status string

const (
	StatusIdentified  Status = "identified"
	StatusPlanning    Status = "planning"
	StatusInProgress  Status = "in_progress"
	StatusImplemented Status = "implemented"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// statusTransitions is the single source of truth for the workflow state
// machine. It drives both transition validation and allowed-actions
// introspection.
var statusTransitions = map[Status][]Status{
	StatusIdentified:  {StatusPlanning, StatusCancelled},
	StatusPlanning:    {StatusInProgress, StatusCancelled},
	StatusInProgress:  {StatusImplemented, StatusCancelled},
	StatusImplemented: {StatusCompleted, StatusCancelled},
	StatusCompleted:   {},
	StatusCancelled:   {},
}

// CanTransition reports whether moving from one status to another is legal.
// A self-transition is not a transition and returns false; callers treat a
// same-status update as a plain field update.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal next statuses for UI introspection.
func AllowedTransitions(from Status) []Status {
	next := statusTransitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// completionByStatus approximates workflow progress for dashboards.
var completionByStatus = map[Status]int{
	StatusIdentified:  10,
	StatusPlanning:    30,
	StatusInProgress:  60,
	StatusImplemented: 85,
	StatusCompleted:   100,
	StatusCancelled:   0,
}

// Strategy is a remediation plan embedded in the intervention aggregate.
type Strategy struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	Description     string    `json:"description"`
	Rationale       string    `json:"rationale"`
	ExpectedOutcome string    `json:"expected_outcome"`
	Priority        string    `json:"priority"` // primary or secondary
	CreatedAt       time.Time `json:"created_at"`
}

// Validate enforces the strategy field rules, reporting every violation.
// Lengths are measured in runes so multibyte clinical text is not penalized.
func (s *Strategy) Validate() error {
	var fields []string
	if s.Type == "" {
		fields = append(fields, "type")
	}
	if n := utf8.RuneCountInString(s.Description); n < 10 || n > 500 {
		fields = append(fields, "description")
	}
	if n := utf8.RuneCountInString(s.Rationale); n < 10 || n > 500 {
		fields = append(fields, "rationale")
	}
	if n := utf8.RuneCountInString(s.ExpectedOutcome); n < 20 || n > 500 {
		fields = append(fields, "expectedOutcome")
	}
	if s.Priority != "" && s.Priority != "primary" && s.Priority != "secondary" {
		fields = append(fields, "priority")
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid strategy: description and rationale need 10-500 characters, expected outcome 20-500", fields...)
	}
	return nil
}

// AssignmentStatus tracks an individual team task.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentPending:    {AssignmentInProgress, AssignmentCancelled},
	AssignmentInProgress: {AssignmentCompleted, AssignmentCancelled},
	AssignmentCompleted:  {},
	AssignmentCancelled:  {},
}

func canTransitionAssignment(from, to AssignmentStatus) bool {
	for _, next := range assignmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var validAssignmentRoles = map[string]bool{
	"pharmacist": true, "physician": true, "nurse": true, "patient": true, "caregiver": true,
}

// Assignment is a team task embedded in the intervention aggregate, keyed by
// the assigned user.
type Assignment struct {
	UserID      uuid.UUID        `json:"user_id"`
	Role        string           `json:"role"`
	Task        string           `json:"task"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

func (a *Assignment) Validate() error {
	var fields []string
	if a.UserID == uuid.Nil {
		fields = append(fields, "userId")
	}
	if !validAssignmentRoles[a.Role] {
		fields = append(fields, "role")
	}
	if a.Task == "" {
		fields = append(fields, "task")
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid assignment: user, role and task are required", fields...)
	}
	return nil
}

// ClinicalParameter is one measured before/after value in an outcome.
type ClinicalParameter struct {
	Parameter      string   `json:"parameter"`
	BeforeValue    string   `json:"before_value,omitempty"`
	AfterValue     string   `json:"after_value,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	ImprovementPct *float64 `json:"improvement_pct,omitempty"`
}

// SuccessMetrics flags the clinical wins an outcome produced.
type SuccessMetrics struct {
	ProblemResolved     bool     `json:"problem_resolved"`
	MedicationOptimized bool     `json:"medication_optimized"`
	AdherenceImproved   bool     `json:"adherence_improved"`
	CostSavings         *float64 `json:"cost_savings,omitempty"`
	SatisfactionScore   *int     `json:"satisfaction_score,omitempty"`
}

var validPatientResponses = map[string]bool{
	"improved": true, "no_change": true, "worsened": true, "unknown": true,
}

// Outcome is the structured clinical result of an intervention.
type Outcome struct {
	PatientResponse    string              `json:"patient_response"`
	ClinicalParameters []ClinicalParameter `json:"clinical_parameters,omitempty"`
	AdverseEffects     string              `json:"adverse_effects,omitempty"`
	AdditionalIssues   string              `json:"additional_issues,omitempty"`
	SuccessMetrics     SuccessMetrics      `json:"success_metrics"`
	RecordedAt         time.Time           `json:"recorded_at"`
}

func (o *Outcome) Validate() error {
	if !validPatientResponses[o.PatientResponse] {
		return apperr.Validation("patient response must be improved, no_change, worsened or unknown", "patientResponse")
	}
	for _, p := range o.ClinicalParameters {
		if p.Parameter == "" {
			return apperr.Validation("clinical parameters require a name", "clinicalParameters")
		}
	}
	return nil
}

// FollowUp schedules post-intervention review.
type FollowUp struct {
	Required       bool       `json:"required"`
	ScheduledDate  *time.Time `json:"scheduled_date,omitempty"`
	CompletedDate  *time.Time `json:"completed_date,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	NextReviewDate *time.Time `json:"next_review_date,omitempty"`
}

var interventionNumberPattern = regexp.MustCompile(`^CI-\d{6}-\d{4}$`)

// Intervention is the aggregate root. Strategies, assignments, outcome and
// follow-up are embedded and persisted with the row; they are not separately
// addressable resources.
type Intervention struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            string    `json:"tenant_id"`
	InterventionNumber  string    `json:"intervention_number"`
	PatientID           uuid.UUID `json:"patient_id"`
	IdentifiedByID      uuid.UUID `json:"identified_by"`
	Category            Category  `json:"category"`
	Priority            Priority  `json:"priority"`
	IssueDescription    string    `json:"issue_description"`
	ImplementationNotes *string   `json:"implementation_notes,omitempty"`
	Status              Status    `json:"status"`

	Strategies  []Strategy   `json:"strategies"`
	Assignments []Assignment `json:"assignments"`
	Outcome     *Outcome     `json:"outcome,omitempty"`
	FollowUp    *FollowUp    `json:"follow_up,omitempty"`

	IdentifiedDate   time.Time  `json:"identified_date"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	ActualMinutes    *int       `json:"actual_minutes,omitempty"`

	MTRID  *uuid.UUID  `json:"mtr_id,omitempty"`
	DTPIDs []uuid.UUID `json:"dtp_ids,omitempty"`

	IsDeleted   bool       `json:"-"`
	CreatedByID uuid.UUID  `json:"created_by"`
	UpdatedByID *uuid.UUID `json:"updated_by,omitempty"`
	VersionID   int        `json:"version_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ValidNumber reports whether n matches the CI-YYYYMM-NNNN scheme.
func ValidNumber(n string) bool {
	return interventionNumberPattern.MatchString(n)
}

// ValidateNew checks the creation-time field rules.
func (iv *Intervention) ValidateNew() error {
	var fields []string
	if iv.PatientID == uuid.Nil {
		fields = append(fields, "patientId")
	}
	if iv.IdentifiedByID == uuid.Nil {
		fields = append(fields, "identifiedBy")
	}
	if !validCategories[iv.Category] {
		fields = append(fields, "category")
	}
	if !validPriorities[iv.Priority] {
		fields = append(fields, "priority")
	}
	if utf8.RuneCountInString(iv.IssueDescription) < 10 {
		fields = append(fields, "issueDescription")
	}
	if len(fields) > 0 {
		return apperr.Validation("missing or invalid intervention fields (issue description needs at least 10 characters)", fields...)
	}
	return nil
}

// CompletionPercentage reports workflow progress as 0-100.
func (iv *Intervention) CompletionPercentage() int {
	return completionByStatus[iv.Status]
}

// AssignmentFor returns the embedded assignment for a user, or nil.
func (iv *Intervention) AssignmentFor(userID uuid.UUID) *Assignment {
	for i := range iv.Assignments {
		if iv.Assignments[i].UserID == userID {
			return &iv.Assignments[i]
		}
	}
	return nil
}

// StrategyByID returns the embedded strategy with the given id, or nil.
func (iv *Intervention) StrategyByID(id uuid.UUID) *Strategy {
	for i := range iv.Strategies {
		if iv.Strategies[i].ID == id {
			return &iv.Strategies[i]
		}
	}
	return nil
}
