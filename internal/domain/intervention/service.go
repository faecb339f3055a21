package intervention

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmcare/pharmcare/internal/domain/directory"
	"github.com/pharmcare/pharmcare/internal/platform/apperr"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/notify"
)

// ActivityLogger records mutations in the audit ledger. Implementations never
// propagate failures.
type ActivityLogger interface {
	LogActivity(ctx context.Context, e audit.Entry)
}

// Notifier dispatches workflow notifications.
type Notifier interface {
	Notify(ctx context.Context, event string, recipients []notify.Recipient, msg notify.Message, urgency notify.Urgency) notify.Result
}

// Service implements the intervention workflow over a Repository.
type Service struct {
	repo     Repository
	patients directory.PatientStore
	users    directory.UserStore
	auditor  ActivityLogger
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, patients directory.PatientStore, users directory.UserStore,
	auditor ActivityLogger, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		users:    users,
		auditor:  auditor,
		notifier: notifier,
		log:      log,
	}
}

// urgencyFor maps intervention priority onto notification urgency.
func urgencyFor(p Priority) notify.Urgency {
	switch p {
	case PriorityCritical:
		return notify.UrgencyCritical
	case PriorityHigh:
		return notify.UrgencyHigh
	case PriorityMedium:
		return notify.UrgencyMedium
	default:
		return notify.UrgencyLow
	}
}

func toRecipient(u *directory.User) notify.Recipient {
	return notify.Recipient{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		SMSOptIn: u.SMSOptIn,
	}
}

// CreateParams carries the caller-supplied fields for a new intervention.
type CreateParams struct {
	PatientID        uuid.UUID
	IdentifiedByID   uuid.UUID // defaults to the actor
	Category         Category
	Priority         Priority
	IssueDescription string
	Strategies       []Strategy
	EstimatedMinutes *int
	IdentifiedDate   *time.Time
	MTRID            *uuid.UUID
	DTPIDs           []uuid.UUID
}

// numberRetries bounds how often Create retries on a numbering collision.
const numberRetries = 5

// Create validates and persists a new intervention. The initial status is
// identified, or planning when strategies are supplied. Numbering collisions
// under concurrency are retried with a freshly computed sequence.
func (s *Service) Create(ctx context.Context, tenantID string, actorID uuid.UUID, p CreateParams) (*Intervention, error) {
	now := time.Now().UTC()

	identifiedBy := p.IdentifiedByID
	if identifiedBy == uuid.Nil {
		identifiedBy = actorID
	}
	identifiedDate := now
	if p.IdentifiedDate != nil {
		identifiedDate = p.IdentifiedDate.UTC()
	}

	iv := &Intervention{
		ID:               uuid.New(),
		TenantID:         tenantID,
		PatientID:        p.PatientID,
		IdentifiedByID:   identifiedBy,
		Category:         p.Category,
		Priority:         p.Priority,
		IssueDescription: p.IssueDescription,
		Status:           StatusIdentified,
		Strategies:       []Strategy{},
		Assignments:      []Assignment{},
		IdentifiedDate:   identifiedDate,
		EstimatedMinutes: p.EstimatedMinutes,
		MTRID:            p.MTRID,
		DTPIDs:           p.DTPIDs,
		CreatedByID:      actorID,
		VersionID:        1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := iv.ValidateNew(); err != nil {
		return nil, err
	}

	for i := range p.Strategies {
		st := p.Strategies[i]
		if err := s.prepareStrategy(&st, now); err != nil {
			return nil, err
		}
		iv.Strategies = append(iv.Strategies, st)
	}
	if len(iv.Strategies) > 0 {
		iv.Status = StatusPlanning
	}

	patient, err := s.patients.FindByID(ctx, tenantID, iv.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, apperr.NotFound("patient")
	}
	user, err := s.users.FindByID(ctx, iv.IdentifiedByID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("identifying user")
	}

	for i := 0; i < numberRetries; i++ {
		number, err := s.NextNumber(ctx, tenantID, now)
		if err != nil {
			return nil, err
		}
		iv.InterventionNumber = number
		err = s.repo.Create(ctx, iv)
		if err == nil {
			break
		}
		if err != ErrDuplicateNumber {
			return nil, err
		}
		if i == numberRetries-1 {
			return nil, apperr.BusinessRule("could not allocate a unique intervention number, retry the request")
		}
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "INTERVENTION_CREATED",
		ActorID:        actorID,
		Details: map[string]interface{}{
			"intervention_number": iv.InterventionNumber,
			"category":            string(iv.Category),
			"priority":            string(iv.Priority),
			"patient_id":          iv.PatientID.String(),
		},
	})
	return iv, nil
}

// prepareStrategy normalizes and validates an incoming strategy.
func (s *Service) prepareStrategy(st *Strategy, now time.Time) error {
	if st.Type != "custom" && ByType(st.Type) == nil {
		return apperr.Validation(fmt.Sprintf("unknown strategy type %q", st.Type), "type")
	}
	if st.Priority == "" {
		st.Priority = "secondary"
	}
	if err := st.Validate(); err != nil {
		return err
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.CreatedAt = now
	return nil
}

// Get loads an intervention or returns a not-found error.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Intervention, error) {
	iv, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv == nil {
		return nil, apperr.NotFound("intervention")
	}
	return iv, nil
}

// UpdateParams lists the mutable fields; nil means "leave unchanged". An
// outcome may ride along with a transition to completed so callers need not
// record it in a separate request first.
type UpdateParams struct {
	Priority            *Priority
	IssueDescription    *string
	ImplementationNotes *string
	EstimatedMinutes    *int
	Status              *Status
	Outcome             *Outcome
}

// Update applies field changes and, when a status is supplied, drives the
// state machine. Completing an intervention requires a recorded outcome and
// at least one strategy, and stamps completion time and actual duration.
func (s *Service) Update(ctx context.Context, tenantID string, id, actorID uuid.UUID, p UpdateParams) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	old := map[string]interface{}{}
	changed := map[string]interface{}{}

	if p.Priority != nil && *p.Priority != iv.Priority {
		if !validPriorities[*p.Priority] {
			return nil, apperr.Validation("invalid priority", "priority")
		}
		old["priority"], changed["priority"] = string(iv.Priority), string(*p.Priority)
		iv.Priority = *p.Priority
	}
	if p.IssueDescription != nil && *p.IssueDescription != iv.IssueDescription {
		if utf8.RuneCountInString(*p.IssueDescription) < 10 {
			return nil, apperr.Validation("issue description needs at least 10 characters", "issueDescription")
		}
		old["issue_description"], changed["issue_description"] = iv.IssueDescription, *p.IssueDescription
		iv.IssueDescription = *p.IssueDescription
	}
	if p.ImplementationNotes != nil {
		iv.ImplementationNotes = p.ImplementationNotes
		changed["implementation_notes"] = *p.ImplementationNotes
	}
	if p.EstimatedMinutes != nil {
		iv.EstimatedMinutes = p.EstimatedMinutes
		changed["estimated_minutes"] = *p.EstimatedMinutes
	}

	if p.Outcome != nil {
		if err := p.Outcome.Validate(); err != nil {
			return nil, err
		}
		if iv.Status == StatusCancelled {
			return nil, apperr.BusinessRule("cannot record an outcome on a cancelled intervention")
		}
		merged := mergeOutcome(iv.Outcome, *p.Outcome)
		merged.RecordedAt = time.Now().UTC()
		iv.Outcome = &merged
		changed["outcome"] = merged.PatientResponse
	}

	statusChanged := false
	var oldStatus Status
	if p.Status != nil && *p.Status != iv.Status {
		oldStatus = iv.Status
		if err := s.applyTransition(iv, *p.Status); err != nil {
			return nil, err
		}
		statusChanged = true
		old["status"], changed["status"] = string(oldStatus), string(iv.Status)
	}

	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		action := "INTERVENTION_UPDATED"
		if statusChanged {
			action = "STATUS_CHANGED"
			if iv.Status == StatusCancelled {
				action = "INTERVENTION_CANCELLED"
			}
		}
		s.auditor.LogActivity(ctx, audit.Entry{
			TenantID:       tenantID,
			InterventionID: iv.ID.String(),
			Action:         action,
			ActorID:        actorID,
			OldValues:      old,
			NewValues:      changed,
		})
	}

	if statusChanged && iv.Status == StatusCompleted {
		s.notifyUser(ctx, "intervention.completed", iv.IdentifiedByID, notify.Message{
			Subject: fmt.Sprintf("Intervention %s completed", iv.InterventionNumber),
			Body:    fmt.Sprintf("Intervention %s for your identified issue has been completed.", iv.InterventionNumber),
		}, urgencyFor(iv.Priority))
	}
	return iv, nil
}

// applyTransition mutates iv for a legal status change, enforcing the
// completion preconditions and stamping timestamps.
func (s *Service) applyTransition(iv *Intervention, to Status) error {
	if !CanTransition(iv.Status, to) {
		return apperr.BusinessRule(fmt.Sprintf("invalid status transition from %s to %s", iv.Status, to))
	}
	now := time.Now().UTC()
	switch to {
	case StatusInProgress:
		if iv.StartedAt == nil {
			iv.StartedAt = &now
		}
	case StatusCompleted:
		if iv.Outcome == nil || iv.Outcome.PatientResponse == "" {
			return apperr.BusinessRule("an outcome must be recorded before completing an intervention")
		}
		if len(iv.Strategies) == 0 {
			return apperr.BusinessRule("at least one strategy is required before completing an intervention")
		}
		iv.CompletedAt = &now
		start := iv.IdentifiedDate
		if iv.StartedAt != nil {
			start = *iv.StartedAt
		}
		minutes := int(now.Sub(start) / time.Minute)
		iv.ActualMinutes = &minutes
	}
	iv.Status = to
	return nil
}

// save persists via CAS, translating version conflicts for the client.
func (s *Service) save(ctx context.Context, iv *Intervention, actorID uuid.UUID) error {
	iv.UpdatedByID = &actorID
	iv.UpdatedAt = time.Now().UTC()
	err := s.repo.Update(ctx, iv)
	if err == ErrVersionConflict {
		return apperr.BusinessRule("intervention was modified concurrently, reload and retry")
	}
	return err
}

// Delete soft-deletes an intervention. Completed interventions are kept for
// the clinical record and cannot be deleted.
func (s *Service) Delete(ctx context.Context, tenantID string, id, actorID uuid.UUID) error {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if iv.Status == StatusCompleted {
		return apperr.BusinessRule("completed interventions cannot be deleted")
	}
	if err := s.repo.SoftDelete(ctx, tenantID, id, actorID); err != nil {
		return err
	}
	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: id.String(),
		Action:         "INTERVENTION_DELETED",
		ActorID:        actorID,
		Details:        map[string]interface{}{"intervention_number": iv.InterventionNumber},
	})
	return nil
}

// FindDuplicates warns about recent open interventions for the same patient
// and category. Pure read; callers decide whether to proceed.
func (s *Service) FindDuplicates(ctx context.Context, tenantID string, patientID uuid.UUID, category Category, excludeID *uuid.UUID) ([]*Intervention, error) {
	since := time.Now().UTC().Add(-duplicateWindow)
	return s.repo.FindDuplicates(ctx, tenantID, patientID, category, since, excludeID)
}

// AddStrategy appends a strategy. An intervention still in identified moves
// to planning once it has a plan.
func (s *Service) AddStrategy(ctx context.Context, tenantID string, id, actorID uuid.UUID, st Strategy) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv.Status.IsTerminal() {
		return nil, apperr.BusinessRule(fmt.Sprintf("cannot add strategies to a %s intervention", iv.Status))
	}
	if err := s.prepareStrategy(&st, time.Now().UTC()); err != nil {
		return nil, err
	}
	iv.Strategies = append(iv.Strategies, st)
	if iv.Status == StatusIdentified {
		iv.Status = StatusPlanning
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}
	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "STRATEGY_ADDED",
		ActorID:        actorID,
		Details:        map[string]interface{}{"strategy_id": st.ID.String(), "type": st.Type},
	})
	return iv, nil
}

// StrategyUpdate lists the mutable strategy fields.
type StrategyUpdate struct {
	Description     *string
	Rationale       *string
	ExpectedOutcome *string
	Priority        *string
}

// UpdateStrategy edits an embedded strategy in place.
func (s *Service) UpdateStrategy(ctx context.Context, tenantID string, id, strategyID, actorID uuid.UUID, p StrategyUpdate) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	st := iv.StrategyByID(strategyID)
	if st == nil {
		return nil, apperr.NotFound("strategy")
	}
	if p.Description != nil {
		st.Description = *p.Description
	}
	if p.Rationale != nil {
		st.Rationale = *p.Rationale
	}
	if p.ExpectedOutcome != nil {
		st.ExpectedOutcome = *p.ExpectedOutcome
	}
	if p.Priority != nil {
		st.Priority = *p.Priority
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}
	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "STRATEGY_UPDATED",
		ActorID:        actorID,
		Details:        map[string]interface{}{"strategy_id": strategyID.String()},
	})
	return iv, nil
}

// Recommend ranks knowledge-base strategies for an existing intervention,
// biased by what is known about the patient.
func (s *Service) Recommend(ctx context.Context, tenantID string, id uuid.UUID) ([]Recommendation, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	var factors *PatientFactors
	patient, err := s.patients.FindByID(ctx, tenantID, iv.PatientID)
	if err != nil {
		return nil, err
	}
	if patient != nil {
		if age := patient.Age(time.Now().UTC()); age >= 0 {
			factors = &PatientFactors{Age: age}
		}
	}
	return Generate(iv.Category, iv.Priority, iv.IssueDescription, factors), nil
}

// notifyUser resolves a user and dispatches one notification. Directory or
// dispatch problems are logged, never surfaced to the caller.
func (s *Service) notifyUser(ctx context.Context, event string, userID uuid.UUID, msg notify.Message, urgency notify.Urgency) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Str("event", event).
			Msg("notification recipient unresolved")
		return
	}
	result := s.notifier.Notify(ctx, event, []notify.Recipient{toRecipient(user)}, msg, urgency)
	if result.Failed > 0 {
		s.log.Warn().Str("event", event).Int("failed", result.Failed).
			Msg("notification deliveries failed on first attempt")
	}
}
