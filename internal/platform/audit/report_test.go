package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func seedEntries(rec *Recorder, ivID string, risks []RiskLevel) {
	ctx := context.Background()
	for i, risk := range risks {
		rec.LogActivity(ctx, Entry{
			TenantID:       "t1",
			InterventionID: ivID,
			Action:         "STEP",
			ActorID:        uuid.New(),
			RiskLevel:      risk,
			Timestamp:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
	}
}

func TestComplianceReportScoring(t *testing.T) {
	rec := NewRecorder(NewMemStore(), zerolog.Nop())

	compliant := uuid.New().String()
	warned := uuid.New().String()
	violating := uuid.New().String()
	seedEntries(rec, compliant, []RiskLevel{RiskLow, RiskLow, RiskMedium})
	seedEntries(rec, warned, []RiskLevel{RiskLow})
	seedEntries(rec, violating, []RiskLevel{RiskLow, RiskLow, RiskLow, RiskCritical})

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	report, err := rec.ComplianceReport(context.Background(), "t1", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := make(map[string]ComplianceStatus)
	for _, ic := range report.Interventions {
		statuses[ic.InterventionID] = ic.Status
	}
	if statuses[compliant] != StatusCompliant {
		t.Errorf("dense low-risk trail = %q, want compliant", statuses[compliant])
	}
	if statuses[warned] != StatusWarning {
		t.Errorf("thin trail = %q, want warning", statuses[warned])
	}
	if statuses[violating] != StatusNonCompliant {
		t.Errorf("critical trail = %q, want non_compliant", statuses[violating])
	}

	// 1 compliant (1.0) + 1 warning (0.5) + 1 non-compliant (0) over 3.
	want := (1.0 + 0.5) / 3 * 100
	if report.ComplianceScore < want-0.01 || report.ComplianceScore > want+0.01 {
		t.Errorf("score = %.2f, want %.2f", report.ComplianceScore, want)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected recommendations for warning/non-compliant findings")
	}
}

func TestComplianceReportEmptyRange(t *testing.T) {
	rec := NewRecorder(NewMemStore(), zerolog.Nop())
	report, err := rec.ComplianceReport(context.Background(), "t1",
		time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ComplianceScore != 100 {
		t.Errorf("empty range score = %.1f, want 100", report.ComplianceScore)
	}
	if len(report.Interventions) != 0 {
		t.Error("expected no interventions")
	}
}

func TestComplianceReportSkipsSystemEntries(t *testing.T) {
	rec := NewRecorder(NewMemStore(), zerolog.Nop())
	rec.LogActivity(context.Background(), Entry{TenantID: "t1", Action: "DATA_EXPORTED", ActorID: uuid.New()})

	report, err := rec.ComplianceReport(context.Background(), "t1",
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Interventions) != 0 {
		t.Error("system-target entries must not create intervention rows")
	}
	if report.TotalActions != 1 {
		t.Errorf("total actions = %d, want 1", report.TotalActions)
	}
}
