package intervention

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Template is one entry of the static strategy knowledge base.
type Template struct {
	Type            string
	Label           string
	Description     string
	Rationale       string
	ExpectedOutcome string
	Priority        string // primary or secondary
	Categories      []Category
}

func (t Template) appliesTo(c Category) bool {
	for _, cat := range t.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// templates is the knowledge base: remediation strategies keyed by type,
// each declaring the problem categories it applies to.
var templates = []Template{
	{
		Type:            "dose_adjustment",
		Label:           "Dose Adjustment",
		Description:     "Adjust the medication dose to reach the therapeutic range",
		Rationale:       "Current dosing is outside the range expected to achieve the treatment goal",
		ExpectedOutcome: "Therapeutic drug levels achieved with symptoms controlled and no dose-related toxicity",
		Priority:        "primary",
		Categories:      []Category{CategoryDosingIssue, CategoryDrugTherapyProblem, CategoryAdverseDrugReaction},
	},
	{
		Type:            "medication_switch",
		Label:           "Medication Switch",
		Description:     "Replace the current agent with a safer or more effective alternative",
		Rationale:       "An alternative agent offers a better benefit-risk profile for this patient",
		ExpectedOutcome: "Equivalent or better disease control with the interacting or poorly tolerated agent removed",
		Priority:        "primary",
		Categories:      []Category{CategoryDrugInteraction, CategoryContraindication, CategoryAdverseDrugReaction},
	},
	{
		Type:            "discontinuation",
		Label:           "Medication Discontinuation",
		Description:     "Stop a medication that is no longer indicated or is causing harm",
		Rationale:       "The medication's risks outweigh its benefit in the current clinical picture",
		ExpectedOutcome: "Adverse effects resolve after withdrawal without loss of necessary disease control",
		Priority:        "primary",
		Categories:      []Category{CategoryContraindication, CategoryAdverseDrugReaction, CategoryDrugTherapyProblem},
	},
	{
		Type:            "patient_counseling",
		Label:           "Patient Counseling",
		Description:     "Educate the patient on proper medication use, timing and importance of adherence",
		Rationale:       "Understanding the regimen and its purpose is the strongest adherence lever",
		ExpectedOutcome: "Patient demonstrates correct use and adherence improves over the next refill cycle",
		Priority:        "primary",
		Categories:      []Category{CategoryMedicationNonadherence, CategoryDrugTherapyProblem, CategoryOther},
	},
	{
		Type:            "adherence_aid",
		Label:           "Adherence Aid",
		Description:     "Provide pill organizers, blister packing or reminder tooling for the regimen",
		Rationale:       "Practical barriers rather than intent are driving the missed doses",
		ExpectedOutcome: "Refill records and pill counts show sustained improvement in adherence",
		Priority:        "secondary",
		Categories:      []Category{CategoryMedicationNonadherence},
	},
	{
		Type:            "regimen_simplification",
		Label:           "Regimen Simplification",
		Description:     "Consolidate the regimen with combination products or once-daily dosing",
		Rationale:       "Regimen complexity correlates directly with nonadherence and dosing errors",
		ExpectedOutcome: "Fewer daily administrations with equivalent therapeutic coverage and better adherence",
		Priority:        "secondary",
		Categories:      []Category{CategoryMedicationNonadherence, CategoryDosingIssue},
	},
	{
		Type:            "monitoring_plan",
		Label:           "Enhanced Monitoring",
		Description:     "Establish a lab and symptom monitoring schedule for the suspect therapy",
		Rationale:       "Early detection of drift or toxicity prevents escalation of the problem",
		ExpectedOutcome: "Monitoring data confirms the therapy stays within safe and effective limits",
		Priority:        "secondary",
		Categories: []Category{
			CategoryDosingIssue, CategoryDrugInteraction, CategoryAdverseDrugReaction,
			CategoryDrugTherapyProblem, CategoryOther,
		},
	},
	{
		Type:            "prescriber_consultation",
		Label:           "Prescriber Consultation",
		Description:     "Contact the prescriber with a documented recommendation for therapy change",
		Rationale:       "The identified problem requires a prescribing decision outside pharmacy authority",
		ExpectedOutcome: "Prescriber responds and the therapy plan is adjusted or the current plan is affirmed",
		Priority:        "primary",
		Categories: []Category{
			CategoryDrugInteraction, CategoryContraindication, CategoryDosingIssue,
			CategoryDrugTherapyProblem, CategoryOther,
		},
	},
	{
		Type:            "timing_separation",
		Label:           "Administration Timing Separation",
		Description:     "Separate administration times of the interacting medications",
		Rationale:       "The interaction is absorption-based and avoidable by spacing the doses",
		ExpectedOutcome: "Both therapies retain effect with the interaction window eliminated",
		Priority:        "secondary",
		Categories:      []Category{CategoryDrugInteraction},
	},
}

// customTemplate is returned for unknown categories and validated by
// ValidateCustomStrategy for hand-written strategies.
var customTemplate = Template{
	Type:            "custom",
	Label:           "Custom Strategy",
	Description:     "Pharmacist-defined strategy tailored to the specific clinical situation",
	Rationale:       "No knowledge-base template fits the identified problem",
	ExpectedOutcome: "Outcome defined by the pharmacist for the specific intervention",
	Priority:        "secondary",
}

// RecommendedFor returns the templates for a category, primary before
// secondary. An unknown category gets the custom template.
func RecommendedFor(c Category) []Template {
	var out []Template
	for _, t := range templates {
		if t.appliesTo(c) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []Template{customTemplate}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority == "primary" && out[j].Priority != "primary"
	})
	return out
}

// AllStrategies returns every template, deduplicated by type and sorted by
// label.
func AllStrategies() []Template {
	seen := make(map[string]bool, len(templates))
	var out []Template
	for _, t := range templates {
		if !seen[t.Type] {
			seen[t.Type] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// ForCategories returns the union of templates applicable to any of the given
// categories, deduplicated by type. Empty input yields empty output.
func ForCategories(cats []Category) []Template {
	seen := make(map[string]bool)
	var out []Template
	for _, t := range templates {
		for _, c := range cats {
			if t.appliesTo(c) && !seen[t.Type] {
				seen[t.Type] = true
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// ByType looks up a single template, including "custom"; nil when unknown.
func ByType(typ string) *Template {
	if typ == customTemplate.Type {
		t := customTemplate
		return &t
	}
	for _, t := range templates {
		if t.Type == typ {
			out := t
			return &out
		}
	}
	return nil
}

// CustomValidation reports every rule a custom strategy violates.
type CustomValidation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateCustomStrategy checks a hand-written strategy against the custom
// strategy rules, reporting all violations rather than the first.
func ValidateCustomStrategy(s Strategy) CustomValidation {
	var errs []string
	if s.Type != "custom" {
		errs = append(errs, "type must be custom")
	}
	if n := utf8.RuneCountInString(s.Description); n < 10 || n > 500 {
		errs = append(errs, "description must be between 10 and 500 characters")
	}
	if n := utf8.RuneCountInString(s.Rationale); n < 10 || n > 500 {
		errs = append(errs, "rationale must be between 10 and 500 characters")
	}
	if n := utf8.RuneCountInString(s.ExpectedOutcome); n < 20 || n > 500 {
		errs = append(errs, "expected outcome must be between 20 and 500 characters")
	}
	return CustomValidation{IsValid: len(errs) == 0, Errors: errs}
}

// PatientFactors optionally bias recommendation ranking.
type PatientFactors struct {
	Age             int      `json:"age,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
	Allergies       []string `json:"allergies,omitempty"`
	MedicationCount int      `json:"medication_count,omitempty"`
}

// Recommendation is a scored template produced by Generate.
type Recommendation struct {
	Template Template `json:"template"`
	Score    int      `json:"score"`
	Reason   string   `json:"reason,omitempty"`
}

const maxRecommendations = 4

// Generate ranks the knowledge base for a concrete problem. High and critical
// priorities restrict the list to primary templates; the nonadherence
// category always includes patient counseling. Returns at most four entries.
func Generate(c Category, p Priority, issueDescription string, factors *PatientFactors) []Recommendation {
	urgent := p == PriorityHigh || p == PriorityCritical
	text := strings.ToLower(issueDescription)

	var recs []Recommendation
	for _, t := range RecommendedFor(c) {
		if urgent && t.Priority != "primary" {
			continue
		}
		score := 50
		if t.Priority == "primary" {
			score += 20
		}
		if strings.Contains(text, strings.ToLower(t.Label)) ||
			strings.Contains(text, strings.ReplaceAll(t.Type, "_", " ")) {
			score += 15
		}
		if factors != nil {
			// Polypharmacy favors simplification and monitoring; age favors
			// lower-risk approaches over switches.
			if factors.MedicationCount >= 5 &&
				(t.Type == "regimen_simplification" || t.Type == "monitoring_plan") {
				score += 10
			}
			if factors.Age >= 65 && t.Type == "medication_switch" {
				score -= 5
			}
		}
		recs = append(recs, Recommendation{Template: t, Score: score})
	}

	if c == CategoryMedicationNonadherence && !urgent {
		found := false
		for _, r := range recs {
			if r.Template.Type == "patient_counseling" {
				found = true
				break
			}
		}
		if !found {
			recs = append(recs, Recommendation{Template: *ByType("patient_counseling"), Score: 70})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	// Counseling is non-negotiable for nonadherence even after capping.
	if c == CategoryMedicationNonadherence {
		present := false
		for _, r := range recs {
			if r.Template.Type == "patient_counseling" {
				present = true
				break
			}
		}
		if !present {
			recs[len(recs)-1] = Recommendation{Template: *ByType("patient_counseling"), Score: 70}
		}
	}
	return recs
}
