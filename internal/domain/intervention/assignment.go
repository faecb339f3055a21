package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmcare/pharmcare/internal/platform/apperr"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/notify"
)

// Assign adds a team member task to the intervention. The assignment always
// starts pending; an intervention in planning is promoted to in_progress now
// that someone is working on it. The assignee is notified.
func (s *Service) Assign(ctx context.Context, tenantID string, id, actorID uuid.UUID, a Assignment) (*Intervention, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if iv.Status.IsTerminal() {
		return nil, apperr.BusinessRule(fmt.Sprintf("cannot assign team members to a %s intervention", iv.Status))
	}
	user, err := s.users.FindByID(ctx, a.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("assigned user")
	}
	if existing := iv.AssignmentFor(a.UserID); existing != nil && !isTerminalAssignment(existing.Status) {
		return nil, apperr.BusinessRule("user already has an open assignment on this intervention")
	}

	a.Status = AssignmentPending
	a.AssignedAt = time.Now().UTC()
	a.CompletedAt = nil
	iv.Assignments = append(iv.Assignments, a)

	if iv.Status == StatusPlanning {
		iv.Status = StatusInProgress
		if iv.StartedAt == nil {
			iv.StartedAt = &a.AssignedAt
		}
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "TEAM_MEMBER_ASSIGNED",
		ActorID:        actorID,
		Details: map[string]interface{}{
			"user_id": a.UserID.String(),
			"role":    a.Role,
			"task":    a.Task,
		},
	})
	s.notifyUser(ctx, "intervention.assigned", a.UserID, notify.Message{
		Subject: fmt.Sprintf("New task on intervention %s", iv.InterventionNumber),
		Body:    fmt.Sprintf("You have been assigned %q on intervention %s.", a.Task, iv.InterventionNumber),
	}, urgencyFor(iv.Priority))
	return iv, nil
}

func isTerminalAssignment(st AssignmentStatus) bool {
	return len(assignmentTransitions[st]) == 0
}

// UpdateAssignmentStatus drives an individual task through its own state
// machine: pending→{in_progress,cancelled}, in_progress→{completed,cancelled}.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, tenantID string, id, userID, actorID uuid.UUID, newStatus AssignmentStatus, notes string) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	a := iv.AssignmentFor(userID)
	if a == nil {
		return nil, apperr.NotFound("assignment")
	}
	if !canTransitionAssignment(a.Status, newStatus) {
		return nil, apperr.BusinessRule(fmt.Sprintf("invalid assignment transition from %s to %s", a.Status, newStatus))
	}

	oldStatus := a.Status
	a.Status = newStatus
	if notes != "" {
		a.Notes = notes
	}
	if newStatus == AssignmentCompleted {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "ASSIGNMENT_STATUS_CHANGED",
		ActorID:        actorID,
		OldValues:      map[string]interface{}{"status": string(oldStatus)},
		NewValues:      map[string]interface{}{"status": string(newStatus), "user_id": userID.String()},
	})
	return iv, nil
}

// RemoveAssignment drops a team member's task, recording why.
func (s *Service) RemoveAssignment(ctx context.Context, tenantID string, id, userID, actorID uuid.UUID, reason string) (*Intervention, error) {
	iv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	found := false
	kept := iv.Assignments[:0]
	for _, a := range iv.Assignments {
		if a.UserID == userID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil, apperr.NotFound("assignment")
	}
	iv.Assignments = kept
	if err := s.save(ctx, iv, actorID); err != nil {
		return nil, err
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID:       tenantID,
		InterventionID: iv.ID.String(),
		Action:         "ASSIGNMENT_REMOVED",
		ActorID:        actorID,
		Details: map[string]interface{}{
			"user_id": userID.String(),
			"reason":  reason,
		},
	})
	return iv, nil
}

// UserAssignment pairs an intervention with the caller's task on it.
type UserAssignment struct {
	Intervention *Intervention `json:"intervention"`
	Assignment   Assignment    `json:"assignment"`
}

// GetUserAssignments lists the interventions carrying a task for the user,
// optionally filtered by assignment status.
func (s *Service) GetUserAssignments(ctx context.Context, tenantID string, userID uuid.UUID, statusFilter AssignmentStatus) ([]UserAssignment, error) {
	ivs, err := s.repo.ListByAssignee(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	out := []UserAssignment{}
	for _, iv := range ivs {
		a := iv.AssignmentFor(userID)
		if a == nil {
			continue
		}
		if statusFilter != "" && a.Status != statusFilter {
			continue
		}
		out = append(out, UserAssignment{Intervention: iv, Assignment: *a})
	}
	return out, nil
}

// UserWorkload aggregates one user's assignment load.
type UserWorkload struct {
	UserID              uuid.UUID `json:"user_id"`
	Total               int       `json:"total"`
	Pending             int       `json:"pending"`
	InProgress          int       `json:"in_progress"`
	Completed           int       `json:"completed"`
	AvgCompletionMillis float64   `json:"avg_completion_ms"`
}

// WorkloadTotals rolls assignment counts up across the whole team.
type WorkloadTotals struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// WorkloadSummary pairs the team-wide totals with the per-user split.
type WorkloadSummary struct {
	Overall WorkloadTotals `json:"overall"`
	Users   []UserWorkload `json:"users"`
}

// WorkloadStats aggregates assignment counts, overall and per user, over
// interventions identified in the window.
func (s *Service) WorkloadStats(ctx context.Context, tenantID string, from, to time.Time) (*WorkloadSummary, error) {
	ivs, err := s.repo.ListBetween(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	summary := &WorkloadSummary{Users: []UserWorkload{}}
	byUser := make(map[uuid.UUID]*UserWorkload)
	totalMillis := make(map[uuid.UUID]float64)
	for _, iv := range ivs {
		for _, a := range iv.Assignments {
			w, ok := byUser[a.UserID]
			if !ok {
				w = &UserWorkload{UserID: a.UserID}
				byUser[a.UserID] = w
			}
			w.Total++
			summary.Overall.Total++
			switch a.Status {
			case AssignmentPending:
				w.Pending++
				summary.Overall.Pending++
			case AssignmentInProgress:
				w.InProgress++
				summary.Overall.InProgress++
			case AssignmentCompleted:
				w.Completed++
				summary.Overall.Completed++
				if a.CompletedAt != nil {
					totalMillis[a.UserID] += float64(a.CompletedAt.Sub(a.AssignedAt).Milliseconds())
				}
			}
		}
	}

	for id, w := range byUser {
		if w.Completed > 0 {
			w.AvgCompletionMillis = totalMillis[id] / float64(w.Completed)
		}
		summary.Users = append(summary.Users, *w)
	}
	return summary, nil
}
