package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmcare/pharmcare/internal/platform/apperr"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
)

// mergeOutcome folds a new outcome into the existing record. Clinical
// parameters are keyed by name: a re-measured parameter replaces its earlier
// reading, new ones are appended. Success booleans accumulate; scalar metrics
// and narrative fields take the latest supplied value.
func mergeOutcome(prev *Outcome, next Outcome) Outcome {
	if prev == nil {
		return next
	}
	merged := *prev
	merged.PatientResponse = next.PatientResponse
	if next.AdverseEffects != "" {
		merged.AdverseEffects = next.AdverseEffects
	}
	if next.AdditionalIssues != "" {
		merged.AdditionalIssues = next.AdditionalIssues
	}

	params := append([]ClinicalParameter{}, prev.ClinicalParameters...)
	for _, np := range next.ClinicalParameters {
		replaced := false
		for i := range params {
			if params[i].Parameter == np.Parameter {
				params[i] = np
				replaced = true
				break
			}
		}
		if !replaced {
			params = append(params, np)
		}
	}
	merged.ClinicalParameters = params

	m := prev.SuccessMetrics
	m.ProblemResolved = m.ProblemResolved || next.SuccessMetrics.ProblemResolved
	m.MedicationOptimized = m.MedicationOptimized || next.SuccessMetrics.MedicationOptimized
	m.AdherenceImproved = m.AdherenceImproved || next.SuccessMetrics.AdherenceImproved
	if next.SuccessMetrics.CostSavings != nil {
		m.CostSavings = next.SuccessMetrics.CostSavings
	}
	if next.SuccessMetrics.SatisfactionScore != nil {
		m.SatisfactionScore = next.SuccessMetrics.SatisfactionScore
	}
	merged.SuccessMetrics = m
	return merged
}

// RecordOutcome captures the clinical result. An intervention in in_progress
// is promoted to implemented; re-recording merges into the previous outcome
// (the change history lives in the audit ledger).
func (s *Service) RecordOutcome(ctx context.Context, tenantID string, id, actorID uuid.UUID, o Outcome) (*Intervention, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv.Status == StatusCancelled {
		return nil, apperr.BusinessRule("cannot record an outcome on a cancelled intervention")
	}

	merged := mergeOutcome(iv.Outcome, o)
	merged.RecordedAt = time.Now().UTC()
	iv.Outcome = &merged
	if iv.Status == StatusInProgress {
		iv.Status = StatusImplemented
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "OUTCOME_RECORDED",
		ActorID:        actorID,
		Details: map[string]interface{}{
			"patient_response": merged.PatientResponse,
			"problem_resolved": merged.SuccessMetrics.ProblemResolved,
		},
	})
	return iv, nil
}

// FollowUpParams carries a follow-up schedule request.
type FollowUpParams struct {
	Required       bool
	ScheduledDate  *time.Time
	Notes          string
	NextReviewDate *time.Time
}

// ScheduleFollowUp records the follow-up plan. A required follow-up must name
// a scheduled date.
func (s *Service) ScheduleFollowUp(ctx context.Context, tenantID string, id, actorID uuid.UUID, p FollowUpParams) (*Intervention, error) {
	if p.Required && p.ScheduledDate == nil {
		return nil, apperr.Validation("a required follow-up needs a scheduled date", "scheduledDate")
	}
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv.Status == StatusCancelled {
		return nil, apperr.BusinessRule("cannot schedule follow-up on a cancelled intervention")
	}

	iv.FollowUp = &FollowUp{
		Required:       p.Required,
		ScheduledDate:  p.ScheduledDate,
		Notes:          p.Notes,
		NextReviewDate: p.NextReviewDate,
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	details := map[string]interface{}{"required": p.Required}
	if p.ScheduledDate != nil {
		details["scheduled_date"] = p.ScheduledDate.Format(time.RFC3339)
	}
	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "FOLLOWUP_SCHEDULED",
		ActorID:        actorID,
		Details:        details,
	})
	return iv, nil
}

// CompleteFollowUp marks the scheduled follow-up done.
func (s *Service) CompleteFollowUp(ctx context.Context, tenantID string, id, actorID uuid.UUID, notes string) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv.FollowUp == nil {
		return nil, apperr.NotFound("scheduled follow-up")
	}
	if iv.FollowUp.CompletedDate != nil {
		return nil, apperr.BusinessRule("follow-up already completed")
	}

	now := time.Now().UTC()
	iv.FollowUp.CompletedDate = &now
	if notes != "" {
		if iv.FollowUp.Notes != "" {
			iv.FollowUp.Notes = fmt.Sprintf("%s\n%s", iv.FollowUp.Notes, notes)
		} else {
			iv.FollowUp.Notes = notes
		}
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "FOLLOWUP_COMPLETED",
		ActorID:        actorID,
	})
	return iv, nil
}
