package intervention

import (
	"strings"
	"testing"
)

func TestRecommendedForOrdersPrimaryFirst(t *testing.T) {
	got := RecommendedFor(CategoryMedicationNonadherence)
	if len(got) == 0 {
		t.Fatal("no templates for medication_nonadherence")
	}
	seenSecondary := false
	for _, tpl := range got {
		if tpl.Priority == "secondary" {
			seenSecondary = true
		} else if seenSecondary {
			t.Fatalf("primary template %q after a secondary one", tpl.Type)
		}
	}
}

func TestRecommendedForUnknownCategory(t *testing.T) {
	got := RecommendedFor(Category("astrology"))
	if len(got) != 1 || got[0].Type != "custom" {
		t.Errorf("unknown category = %+v, want single custom template", got)
	}
}

func TestAllStrategiesSortedAndDeduplicated(t *testing.T) {
	got := AllStrategies()
	seen := make(map[string]bool)
	for i, tpl := range got {
		if seen[tpl.Type] {
			t.Errorf("duplicate type %q", tpl.Type)
		}
		seen[tpl.Type] = true
		if i > 0 && got[i-1].Label > tpl.Label {
			t.Errorf("labels out of order: %q before %q", got[i-1].Label, tpl.Label)
		}
	}
}

func TestForCategories(t *testing.T) {
	if got := ForCategories(nil); len(got) != 0 {
		t.Errorf("empty input should give empty output, got %d", len(got))
	}
	got := ForCategories([]Category{CategoryDrugInteraction, CategoryDosingIssue})
	seen := make(map[string]bool)
	for _, tpl := range got {
		if seen[tpl.Type] {
			t.Errorf("duplicate type %q in union", tpl.Type)
		}
		seen[tpl.Type] = true
	}
	if !seen["timing_separation"] || !seen["dose_adjustment"] {
		t.Errorf("union missing expected templates: %v", seen)
	}
}

func TestByType(t *testing.T) {
	if tpl := ByType("dose_adjustment"); tpl == nil || tpl.Label != "Dose Adjustment" {
		t.Errorf("ByType(dose_adjustment) = %+v", tpl)
	}
	if tpl := ByType("custom"); tpl == nil {
		t.Error("ByType(custom) should return the custom template")
	}
	if tpl := ByType("leeches"); tpl != nil {
		t.Errorf("ByType(leeches) = %+v, want nil", tpl)
	}
}

func TestValidateCustomStrategyReportsAllViolations(t *testing.T) {
	v := ValidateCustomStrategy(Strategy{
		Type:            "dose_adjustment",
		Description:     "short",
		Rationale:       strings.Repeat("r", 501),
		ExpectedOutcome: "brief",
	})
	if v.IsValid {
		t.Fatal("expected invalid")
	}
	if len(v.Errors) != 4 {
		t.Errorf("errors = %v, want 4 entries", v.Errors)
	}

	ok := ValidateCustomStrategy(Strategy{
		Type:            "custom",
		Description:     "Coordinate a home visit with the community nurse",
		Rationale:       "Patient cannot travel and telephone follow-up has failed twice",
		ExpectedOutcome: "Medication reconciliation completed at home within two weeks",
	})
	if !ok.IsValid || len(ok.Errors) != 0 {
		t.Errorf("valid custom strategy rejected: %v", ok.Errors)
	}
}

func TestGenerateCapsAtFour(t *testing.T) {
	got := Generate(CategoryDrugTherapyProblem, PriorityLow, "therapy issue", nil)
	if len(got) > 4 {
		t.Errorf("got %d recommendations, cap is 4", len(got))
	}
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("recommendations not ranked: %d before %d", got[i-1].Score, got[i].Score)
		}
	}
}

func TestGenerateUrgentOnlyPrimary(t *testing.T) {
	for _, p := range []Priority{PriorityHigh, PriorityCritical} {
		for _, rec := range Generate(CategoryDrugInteraction, p, "severe interaction", nil) {
			if rec.Template.Priority != "primary" {
				t.Errorf("priority %s offered secondary template %q", p, rec.Template.Type)
			}
		}
	}
}

func TestGenerateNonadherenceIncludesCounseling(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		got := Generate(CategoryMedicationNonadherence, p, "patient misses evening doses", nil)
		found := false
		for _, rec := range got {
			if rec.Template.Type == "patient_counseling" {
				found = true
			}
		}
		if !found {
			t.Errorf("priority %s: patient_counseling missing from %d recommendations", p, len(got))
		}
	}
}

func TestGeneratePatientFactorsBiasRanking(t *testing.T) {
	factors := &PatientFactors{MedicationCount: 8}
	got := Generate(CategoryMedicationNonadherence, PriorityLow, "complex regimen", factors)
	var simplification, aid int
	for _, rec := range got {
		switch rec.Template.Type {
		case "regimen_simplification":
			simplification = rec.Score
		case "adherence_aid":
			aid = rec.Score
		}
	}
	if simplification == 0 {
		t.Fatal("regimen_simplification not recommended for polypharmacy")
	}
	if aid != 0 && simplification <= aid {
		t.Errorf("polypharmacy should favor simplification (%d) over adherence aid (%d)", simplification, aid)
	}
}
