package intervention

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmcare/pharmcare/internal/domain/directory"
	"github.com/pharmcare/pharmcare/internal/platform/apperr"
)

func TestAssignForcesPendingAndPromotes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)
	if _, err := env.svc.AddStrategy(ctx, tenantA, iv.ID, env.pharmacist.ID, validStrategy()); err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID,
		Role:   "pharmacist",
		Task:   "Review interaction profile",
		Status: AssignmentCompleted, // caller-supplied status is ignored
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	a := got.AssignmentFor(env.pharmacist.ID)
	if a == nil {
		t.Fatal("assignment missing")
	}
	if a.Status != AssignmentPending {
		t.Errorf("status = %s, want pending", a.Status)
	}
	if a.AssignedAt.IsZero() {
		t.Error("assignedAt not stamped")
	}
	if got.Status != StatusInProgress {
		t.Errorf("intervention status = %s, want in_progress after assigning in planning", got.Status)
	}
	if len(env.notifier.events) == 0 || env.notifier.events[0] != "intervention.assigned" {
		t.Errorf("assignee not notified, events = %v", env.notifier.events)
	}
}

func TestAssignValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)

	_, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "bartender", Task: "",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("bad role/task: got %v, want validation error", err)
	}

	_, err = env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: uuid.New(), Role: "nurse", Task: "check vitals",
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown user: got %v, want not found", err)
	}

	// Duplicate open assignment for the same user is refused.
	if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "pharmacist", Task: "first task",
	}); err != nil {
		t.Fatal(err)
	}
	_, err = env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "pharmacist", Task: "second task",
	})
	if !apperr.IsKind(err, apperr.KindBusinessRule) {
		t.Errorf("duplicate assignment: got %v, want business rule error", err)
	}
}

func TestAssignmentStatusTransitions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)
	if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "pharmacist", Task: "call prescriber",
	}); err != nil {
		t.Fatal(err)
	}

	// pending → completed skips in_progress.
	_, err := env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentCompleted, "")
	if !apperr.IsKind(err, apperr.KindBusinessRule) {
		t.Fatalf("skip transition: got %v, want business rule error", err)
	}

	got, err := env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentInProgress, "started")
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignmentFor(env.pharmacist.ID).Status != AssignmentInProgress {
		t.Error("assignment not in progress")
	}

	got, err = env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentCompleted, "done")
	if err != nil {
		t.Fatal(err)
	}
	a := got.AssignmentFor(env.pharmacist.ID)
	if a.CompletedAt == nil {
		t.Error("completedAt not stamped on completion")
	}

	// Terminal assignments admit no further transitions.
	_, err = env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentCancelled, "")
	if !apperr.IsKind(err, apperr.KindBusinessRule) {
		t.Errorf("transition from completed: got %v, want business rule error", err)
	}
}

func TestRemoveAssignmentAuditsReason(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)
	if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "pharmacist", Task: "follow up",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.RemoveAssignment(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID, "reassigned to on-call staff")
	if err != nil {
		t.Fatalf("RemoveAssignment: %v", err)
	}
	if got.AssignmentFor(env.pharmacist.ID) != nil {
		t.Error("assignment still present after removal")
	}

	found := false
	for _, e := range env.auditor.entries {
		if e.Action == "ASSIGNMENT_REMOVED" && e.Details["reason"] == "reassigned to on-call staff" {
			found = true
		}
	}
	if !found {
		t.Error("removal reason not in audit trail")
	}

	_, err = env.svc.RemoveAssignment(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID, "")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("removing absent assignment: got %v, want not found", err)
	}
}

func TestGetUserAssignmentsFilter(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	nurse := &directory.User{Name: "R. Nurse", Role: "nurse"}
	env.users.Add(nurse)

	iv1 := mustCreate(env, tenantA)
	iv2 := mustCreate(env, tenantA)
	for _, iv := range []*Intervention{iv1, iv2} {
		if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
			UserID: nurse.ID, Role: "nurse", Task: "monitor vitals",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.svc.UpdateAssignmentStatus(ctx, tenantA, iv1.ID, nurse.ID, env.pharmacist.ID,
		AssignmentInProgress, ""); err != nil {
		t.Fatal(err)
	}

	all, err := env.svc.GetUserAssignments(ctx, tenantA, nurse.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all assignments = %d, want 2", len(all))
	}
	pending, err := env.svc.GetUserAssignments(ctx, tenantA, nurse.ID, AssignmentPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Intervention.ID != iv2.ID {
		t.Errorf("pending filter returned %d entries", len(pending))
	}
}

func TestWorkloadStats(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)
	if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: env.pharmacist.ID, Role: "pharmacist", Task: "review",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentInProgress, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UpdateAssignmentStatus(ctx, tenantA, iv.ID, env.pharmacist.ID, env.pharmacist.ID,
		AssignmentCompleted, ""); err != nil {
		t.Fatal(err)
	}

	// A second assignee with an open task feeds the overall rollup.
	nurse := &directory.User{Name: "R. Nurse", Role: "nurse"}
	env.users.Add(nurse)
	if _, err := env.svc.Assign(ctx, tenantA, iv.ID, env.pharmacist.ID, Assignment{
		UserID: nurse.ID, Role: "nurse", Task: "monitor vitals",
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	stats, err := env.svc.WorkloadStats(ctx, tenantA, now.AddDate(0, 0, -7), now)
	if err != nil {
		t.Fatalf("WorkloadStats: %v", err)
	}
	if len(stats.Users) != 2 {
		t.Fatalf("stats = %d users, want 2", len(stats.Users))
	}
	var w *UserWorkload
	for i := range stats.Users {
		if stats.Users[i].UserID == env.pharmacist.ID {
			w = &stats.Users[i]
		}
	}
	if w == nil {
		t.Fatal("pharmacist missing from workload")
	}
	if w.Total != 1 || w.Completed != 1 {
		t.Errorf("workload = %+v", w)
	}
	if w.AvgCompletionMillis < 0 {
		t.Errorf("avg completion = %f, want >= 0", w.AvgCompletionMillis)
	}
	if stats.Overall.Total != 2 || stats.Overall.Completed != 1 || stats.Overall.Pending != 1 {
		t.Errorf("overall = %+v", stats.Overall)
	}
}
