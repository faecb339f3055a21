package intervention

import (
	"context"
	"testing"
	"time"

	"github.com/pharmcare/pharmcare/pkg/pagination"
)

func seedCompleted(t *testing.T, env *testEnv, savings float64) *Intervention {
	t.Helper()
	ctx := context.Background()
	iv := mustCreate(env, tenantA)
	if _, err := env.svc.AddStrategy(ctx, tenantA, iv.ID, env.pharmacist.ID, validStrategy()); err != nil {
		t.Fatal(err)
	}
	for _, st := range []Status{StatusInProgress, StatusImplemented} {
		s := st
		if _, err := env.svc.Update(ctx, tenantA, iv.ID, env.pharmacist.ID, UpdateParams{Status: &s}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.svc.RecordOutcome(ctx, tenantA, iv.ID, env.pharmacist.ID, Outcome{
		PatientResponse: "improved",
		SuccessMetrics:  SuccessMetrics{ProblemResolved: true, CostSavings: &savings},
	}); err != nil {
		t.Fatal(err)
	}
	s := StatusCompleted
	got, err := env.svc.Update(ctx, tenantA, iv.ID, env.pharmacist.ID, UpdateParams{Status: &s})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestListPaginationAndIsolation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreate(env, tenantA)
	}

	resp, err := env.svc.List(ctx, tenantA, SearchFilter{}, pagination.Params{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	data := resp.Data.([]*Intervention)
	if len(data) != 2 {
		t.Errorf("page 2 size = %d, want 2", len(data))
	}
	if resp.Pagination.Total != 5 || resp.Pagination.Pages != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
	if !resp.Pagination.HasNext || !resp.Pagination.HasPrev {
		t.Error("page 2 of 3 should have next and prev")
	}

	// Unknown tenant: empty page, not an error.
	resp, err = env.svc.List(ctx, "pharmacy-z", SearchFilter{}, pagination.Params{})
	if err != nil {
		t.Fatalf("List unknown tenant: %v", err)
	}
	if len(resp.Data.([]*Intervention)) != 0 || resp.Pagination.Total != 0 {
		t.Errorf("unknown tenant leaked data: %+v", resp.Pagination)
	}
}

func TestListFilters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	mustCreate(env, tenantA)

	p := validCreateParams(env)
	p.Category = CategoryDosingIssue
	p.Priority = PriorityCritical
	p.IssueDescription = "Metformin dose unchanged despite declining renal function"
	if _, err := env.svc.Create(ctx, tenantA, env.pharmacist.ID, p); err != nil {
		t.Fatal(err)
	}

	cat := CategoryDosingIssue
	resp, err := env.svc.List(ctx, tenantA, SearchFilter{Category: &cat}, pagination.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.([]*Intervention)) != 1 {
		t.Errorf("category filter matched %d, want 1", len(resp.Data.([]*Intervention)))
	}

	resp, err = env.svc.List(ctx, tenantA, SearchFilter{Search: "renal"}, pagination.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.([]*Intervention)) != 1 {
		t.Errorf("text search matched %d, want 1", len(resp.Data.([]*Intervention)))
	}
}

func TestPatientSummary(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCompleted(t, env, 50)
	mustCreate(env, tenantA) // active, same category

	summary, err := env.svc.GetPatientSummary(ctx, tenantA, env.patient.ID)
	if err != nil {
		t.Fatalf("GetPatientSummary: %v", err)
	}
	if summary.Total != 2 || summary.Active != 1 || summary.Completed != 1 || summary.Successful != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ByCategory[CategoryDrugInteraction] != 2 {
		t.Errorf("category breakdown = %v", summary.ByCategory)
	}
	if len(summary.Recent) != 2 {
		t.Errorf("recent = %d, want 2", len(summary.Recent))
	}

	// Unknown patient: all-zero summary, not an error.
	empty, err := env.svc.GetPatientSummary(ctx, tenantA, env.pharmacist.ID)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 0 || len(empty.Recent) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestDashboardMetrics(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCompleted(t, env, 150)
	seedCompleted(t, env, 100)
	mustCreate(env, tenantA)

	now := time.Now().UTC()
	m, err := env.svc.GetDashboardMetrics(ctx, tenantA, now.AddDate(0, 0, -30), now)
	if err != nil {
		t.Fatalf("GetDashboardMetrics: %v", err)
	}
	if m.Total != 3 || m.Active != 1 || m.Completed != 2 {
		t.Errorf("counts = %+v", m)
	}
	if m.SuccessRate != 100 {
		t.Errorf("success rate = %f, want 100", m.SuccessRate)
	}
	if m.TotalCostSavings != 250 {
		t.Errorf("cost savings = %f, want 250", m.TotalCostSavings)
	}
	if m.ByCategory[CategoryDrugInteraction] != 3 {
		t.Errorf("category distribution = %v", m.ByCategory)
	}
	if len(m.MonthlyTrend) == 0 {
		t.Error("monthly trend empty")
	}
	if len(m.Recent) != 3 {
		t.Errorf("recent = %d, want 3", len(m.Recent))
	}
}

func TestTrendAnalysis(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	mustCreate(env, tenantA)
	mustCreate(env, tenantA)

	now := time.Now().UTC()
	buckets, err := env.svc.TrendAnalysis(ctx, tenantA, TrendParams{
		From: now.AddDate(0, 0, -7), To: now, Period: "day",
	})
	if err != nil {
		t.Fatalf("TrendAnalysis: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("buckets = %d, want 1 (both created today)", len(buckets))
	}
	b := buckets[0]
	if b.Total != 2 || b.Counts[string(CategoryDrugInteraction)] != 2 {
		t.Errorf("bucket = %+v", b)
	}
	if b.Period != now.Format("2006-01-02") {
		t.Errorf("period = %q, want today's date", b.Period)
	}

	byStatus, err := env.svc.TrendAnalysis(ctx, tenantA, TrendParams{
		From: now.AddDate(0, 0, -7), To: now, GroupBy: "status",
	})
	if err != nil {
		t.Fatal(err)
	}
	if byStatus[0].Counts[string(StatusIdentified)] != 2 {
		t.Errorf("status grouping = %v", byStatus[0].Counts)
	}
}

func TestSearchPatientsAnnotations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	mustCreate(env, tenantA)
	seedCompleted(t, env, 10)

	matches, err := env.svc.SearchPatients(ctx, tenantA, "vasq", 10)
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.InterventionCount != 2 || m.ActiveCount != 1 {
		t.Errorf("annotations = %+v", m)
	}
	if m.LastIntervention == nil {
		t.Error("last intervention date missing")
	}
	if m.Age < 70 {
		t.Errorf("age = %d, want >= 70 for a 1955 birth date", m.Age)
	}
}

func TestBuildExportReport(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedCompleted(t, env, 75)
	mustCreate(env, tenantA)

	report, err := env.svc.BuildExportReport(ctx, tenantA, env.pharmacist.ID, SearchFilter{})
	if err != nil {
		t.Fatalf("BuildExportReport: %v", err)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(report.Rows))
	}
	if len(report.Headers) != len(report.Rows[0]) {
		t.Errorf("header/row width mismatch: %d vs %d", len(report.Headers), len(report.Rows[0]))
	}
	if !env.auditor.hasAction("DATA_EXPORTED") {
		t.Error("export not audited")
	}
}
