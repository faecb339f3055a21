package intervention

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pharmcare/pharmcare/internal/domain/directory"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/export"
	"github.com/pharmcare/pharmcare/pkg/pagination"
)

// List returns a filtered, sorted page of interventions. Zero matches or an
// unknown tenant yield an empty page, not an error.
func (s *Service) List(ctx context.Context, tenantID string, f SearchFilter, pp pagination.Params) (*pagination.Response, error) {
	pp = pp.Normalize()
	f.Limit = pp.Limit
	f.Offset = pp.Offset()

	ivs, total, err := s.repo.Search(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	if ivs == nil {
		ivs = []*Intervention{}
	}
	return &pagination.Response{
		Data:       ivs,
		Pagination: pagination.NewMeta(pp, total),
	}, nil
}

const recentSummaryLimit = 5

// PatientSummary aggregates one patient's intervention history. Successful
// means completed with the problem marked resolved.
type PatientSummary struct {
	PatientID   uuid.UUID        `json:"patient_id"`
	Total       int              `json:"total"`
	Active      int              `json:"active"`
	Completed   int              `json:"completed"`
	Successful  int              `json:"successful"`
	ByCategory  map[Category]int `json:"by_category"`
	Recent      []*Intervention  `json:"recent"`
}

func isActive(st Status) bool { return !st.IsTerminal() }

// GetPatientSummary computes the per-patient rollup. A patient with no
// interventions gets an all-zero summary.
func (s *Service) GetPatientSummary(ctx context.Context, tenantID string, patientID uuid.UUID) (*PatientSummary, error) {
	ivs, err := s.repo.ListByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}

	summary := &PatientSummary{
		PatientID:  patientID,
		ByCategory: make(map[Category]int),
		Recent:     []*Intervention{},
	}
	for _, iv := range ivs {
		summary.Total++
		summary.ByCategory[iv.Category]++
		if isActive(iv.Status) {
			summary.Active++
		}
		if iv.Status == StatusCompleted {
			summary.Completed++
			if iv.Outcome != nil && iv.Outcome.SuccessMetrics.ProblemResolved {
				summary.Successful++
			}
		}
	}
	if len(ivs) > recentSummaryLimit {
		ivs = ivs[:recentSummaryLimit]
	}
	summary.Recent = ivs
	return summary, nil
}

// TrendPoint is one month's intervention count.
type TrendPoint struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// DashboardMetrics is the tenant-wide rollup for a date range.
type DashboardMetrics struct {
	Total             int              `json:"total"`
	Active            int              `json:"active"`
	Completed         int              `json:"completed"`
	SuccessRate       float64          `json:"success_rate_pct"`
	AvgResolutionDays float64          `json:"avg_resolution_days"`
	TotalCostSavings  float64          `json:"total_cost_savings"`
	ByCategory        map[Category]int `json:"by_category"`
	ByPriority        map[Priority]int `json:"by_priority"`
	MonthlyTrend      []TrendPoint     `json:"monthly_trend"`
	Recent            []*Intervention  `json:"recent"`
}

const recentDashboardLimit = 10

// GetDashboardMetrics aggregates interventions identified in [from, to].
func (s *Service) GetDashboardMetrics(ctx context.Context, tenantID string, from, to time.Time) (*DashboardMetrics, error) {
	ivs, err := s.repo.ListBetween(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	m := &DashboardMetrics{
		ByCategory:   make(map[Category]int),
		ByPriority:   make(map[Priority]int),
		MonthlyTrend: []TrendPoint{},
		Recent:       []*Intervention{},
	}
	monthly := make(map[string]int)
	var successful int
	var resolutionDays float64
	var resolved int
	for _, iv := range ivs {
		m.Total++
		m.ByCategory[iv.Category]++
		m.ByPriority[iv.Priority]++
		monthly[iv.IdentifiedDate.UTC().Format("2006-01")]++
		if isActive(iv.Status) {
			m.Active++
		}
		if iv.Status == StatusCompleted {
			m.Completed++
			if iv.Outcome != nil {
				if iv.Outcome.SuccessMetrics.ProblemResolved {
					successful++
				}
				if iv.Outcome.SuccessMetrics.CostSavings != nil {
					m.TotalCostSavings += *iv.Outcome.SuccessMetrics.CostSavings
				}
			}
			if iv.CompletedAt != nil {
				start := iv.IdentifiedDate
				if iv.StartedAt != nil {
					start = *iv.StartedAt
				}
				resolutionDays += iv.CompletedAt.Sub(start).Hours() / 24
				resolved++
			}
		}
	}
	if m.Completed > 0 {
		m.SuccessRate = float64(successful) / float64(m.Completed) * 100
	}
	if resolved > 0 {
		m.AvgResolutionDays = resolutionDays / float64(resolved)
	}

	months := make([]string, 0, len(monthly))
	for month := range monthly {
		months = append(months, month)
	}
	sort.Strings(months)
	for _, month := range months {
		m.MonthlyTrend = append(m.MonthlyTrend, TrendPoint{Month: month, Count: monthly[month]})
	}

	// ListBetween returns oldest first; recents are the tail, newest first.
	for i := len(ivs) - 1; i >= 0 && len(m.Recent) < recentDashboardLimit; i-- {
		m.Recent = append(m.Recent, ivs[i])
	}
	return m, nil
}

// TrendParams selects the bucketing of a trend query.
type TrendParams struct {
	From    time.Time
	To      time.Time
	Period  string // day, week or month (default month)
	GroupBy string // category, priority or status (default category)
}

// TrendBucket is one time bucket's counts per group value.
type TrendBucket struct {
	Period string         `json:"period"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

func bucketKey(t time.Time, period string) string {
	t = t.UTC()
	switch period {
	case "day":
		return t.Format("2006-01-02")
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return t.Format("2006-01")
	}
}

// TrendAnalysis buckets interventions over time, grouped by the requested
// dimension.
func (s *Service) TrendAnalysis(ctx context.Context, tenantID string, p TrendParams) ([]TrendBucket, error) {
	if p.GroupBy == "" {
		p.GroupBy = "category"
	}
	ivs, err := s.repo.ListBetween(ctx, tenantID, p.From, p.To)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*TrendBucket)
	for _, iv := range ivs {
		key := bucketKey(iv.IdentifiedDate, p.Period)
		b, ok := buckets[key]
		if !ok {
			b = &TrendBucket{Period: key, Counts: make(map[string]int)}
			buckets[key] = b
		}
		var group string
		switch p.GroupBy {
		case "priority":
			group = string(iv.Priority)
		case "status":
			group = string(iv.Status)
		default:
			group = string(iv.Category)
		}
		b.Counts[group]++
		b.Total++
	}

	out := make([]TrendBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// PatientMatch annotates a patient search hit with intervention activity.
type PatientMatch struct {
	Patient          *directory.Patient `json:"patient"`
	Age              int                `json:"age"`
	InterventionCount int               `json:"intervention_count"`
	ActiveCount      int                `json:"active_count"`
	LastIntervention *time.Time         `json:"last_intervention,omitempty"`
}

// SearchPatients matches patients by name or MRN substring and annotates each
// hit with intervention counts.
func (s *Service) SearchPatients(ctx context.Context, tenantID, query string, limit int) ([]PatientMatch, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	patients, err := s.patients.Search(ctx, tenantID, query, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]PatientMatch, 0, len(patients))
	for _, p := range patients {
		match := PatientMatch{Patient: p, Age: p.Age(now)}
		ivs, err := s.repo.ListByPatient(ctx, tenantID, p.ID)
		if err != nil {
			return nil, err
		}
		for _, iv := range ivs {
			match.InterventionCount++
			if isActive(iv.Status) {
				match.ActiveCount++
			}
			if match.LastIntervention == nil || iv.IdentifiedDate.After(*match.LastIntervention) {
				d := iv.IdentifiedDate
				match.LastIntervention = &d
			}
		}
		out = append(out, match)
	}
	return out, nil
}

var exportHeaders = []string{
	"Number", "Patient ID", "Category", "Priority", "Status",
	"Issue", "Identified", "Completed", "Strategies", "Assignments", "Problem Resolved",
}

// BuildExportReport flattens the matching interventions for file export and
// records the export in the audit ledger.
func (s *Service) BuildExportReport(ctx context.Context, tenantID string, actorID uuid.UUID, f SearchFilter) (*export.Report, error) {
	f.Limit = 10000
	f.Offset = 0
	ivs, _, err := s.repo.Search(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(ivs))
	for _, iv := range ivs {
		completed := ""
		if iv.CompletedAt != nil {
			completed = iv.CompletedAt.UTC().Format("2006-01-02")
		}
		resolved := ""
		if iv.Outcome != nil {
			resolved = fmt.Sprintf("%t", iv.Outcome.SuccessMetrics.ProblemResolved)
		}
		rows = append(rows, []string{
			iv.InterventionNumber,
			iv.PatientID.String(),
			string(iv.Category),
			string(iv.Priority),
			string(iv.Status),
			iv.IssueDescription,
			iv.IdentifiedDate.UTC().Format("2006-01-02"),
			completed,
			fmt.Sprintf("%d", len(iv.Strategies)),
			fmt.Sprintf("%d", len(iv.Assignments)),
			resolved,
		})
	}

	s.auditor.LogActivity(ctx, audit.Entry{
		TenantID: tenantID,
		Action:   "DATA_EXPORTED",
		ActorID:  actorID,
		Details:  map[string]interface{}{"rows": len(rows)},
	})
	return &export.Report{
		Title:   "Clinical Interventions",
		Headers: exportHeaders,
		Rows:    rows,
	}, nil
}
