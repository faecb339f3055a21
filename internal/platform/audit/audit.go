// Package audit records every mutating action against the intervention
// workflow as an append-only ledger entry. Entries are never updated or
// deleted; compliance reporting reads the ledger as-is.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SystemTarget is the intervention id used for entries not tied to a single
// intervention (exports, report generation).
const SystemTarget = "system"

// Entry is one immutable audit record.
type Entry struct {
	ID                 uuid.UUID              `json:"id"`
	TenantID           string                 `json:"tenant_id"`
	InterventionID     string                 `json:"intervention_id"`
	Action             string                 `json:"action"`
	ActorID            uuid.UUID              `json:"actor_id"`
	RiskLevel          RiskLevel              `json:"risk_level"`
	ComplianceCategory string                 `json:"compliance_category"`
	Details            map[string]interface{} `json:"details,omitempty"`
	OldValues          map[string]interface{} `json:"old_values,omitempty"`
	NewValues          map[string]interface{} `json:"new_values,omitempty"`
	Timestamp          time.Time              `json:"timestamp"`
}

// Store is the append-only persistence surface for audit entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	ListByIntervention(ctx context.Context, tenantID, interventionID string, from, to *time.Time, limit, offset int) ([]*Entry, int, error)
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error)
}

// actionRisk classifies actions whose risk level the caller did not set.
var actionRisk = map[string]RiskLevel{
	"INTERVENTION_DELETED":    RiskHigh,
	"INTERVENTION_CANCELLED":  RiskMedium,
	"ASSIGNMENT_REMOVED":      RiskMedium,
	"STATUS_CHANGED":          RiskMedium,
	"DATA_EXPORTED":           RiskHigh,
	"COMPLIANCE_REPORT_VIEWED": RiskMedium,
}

// Recorder writes audit entries and reads them back for trail and compliance
// views. Write failures are logged and swallowed so that audit problems never
// roll back the business mutation that triggered them.
type Recorder struct {
	store Store
	log   zerolog.Logger
}

func NewRecorder(store Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// LogActivity appends an entry, filling defaults. It never returns an error.
func (r *Recorder) LogActivity(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.InterventionID == "" {
		e.InterventionID = SystemTarget
	}
	if e.RiskLevel == "" {
		if level, ok := actionRisk[e.Action]; ok {
			e.RiskLevel = level
		} else {
			e.RiskLevel = RiskLow
		}
	}
	if e.ComplianceCategory == "" {
		e.ComplianceCategory = "clinical_documentation"
	}

	if err := r.store.Insert(ctx, &e); err != nil {
		r.log.Error().
			Err(err).
			Str("action", e.Action).
			Str("tenant_id", e.TenantID).
			Str("intervention_id", e.InterventionID).
			Str("actor_id", e.ActorID.String()).
			Msg("audit write failed")
	}
}

// TrailParams selects a window of an intervention's audit history.
type TrailParams struct {
	Page      int
	Limit     int
	StartDate *time.Time
	EndDate   *time.Time
}

// TrailSummary aggregates an intervention's full audit history.
type TrailSummary struct {
	TotalActions    int        `json:"total_actions"`
	UniqueUsers     int        `json:"unique_users"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	HighRiskActions int        `json:"high_risk_actions"`
}

// Trail is one page of audit history plus its summary.
type Trail struct {
	Entries []*Entry     `json:"entries"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
	Summary TrailSummary `json:"summary"`
}

// AuditTrail returns a page of the intervention's history, newest first,
// together with a summary computed over the full (unfiltered) history.
func (r *Recorder) AuditTrail(ctx context.Context, tenantID, interventionID string, p TrailParams) (*Trail, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}

	entries, total, err := r.store.ListByIntervention(ctx, tenantID, interventionID,
		p.StartDate, p.EndDate, p.Limit, (p.Page-1)*p.Limit)
	if err != nil {
		return nil, err
	}

	all, _, err := r.store.ListByIntervention(ctx, tenantID, interventionID, nil, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	summary := TrailSummary{TotalActions: len(all)}
	actors := make(map[uuid.UUID]struct{})
	for _, e := range all {
		actors[e.ActorID] = struct{}{}
		if e.RiskLevel == RiskHigh || e.RiskLevel == RiskCritical {
			summary.HighRiskActions++
		}
		if summary.LastActivity == nil || e.Timestamp.After(*summary.LastActivity) {
			ts := e.Timestamp
			summary.LastActivity = &ts
		}
	}
	summary.UniqueUsers = len(actors)

	return &Trail{Entries: entries, Total: total, Page: p.Page, Limit: p.Limit, Summary: summary}, nil
}
