package intervention

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pharmcare/pharmcare/internal/platform/apperr"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/auth"
	"github.com/pharmcare/pharmcare/internal/platform/db"
	"github.com/pharmcare/pharmcare/internal/platform/export"
	"github.com/pharmcare/pharmcare/pkg/pagination"
)

// Handler exposes the intervention workflow over HTTP.
type Handler struct {
	svc      *Service
	recorder *audit.Recorder
	authz    auth.Authorizer
}

func NewHandler(svc *Service, recorder *audit.Recorder, authz auth.Authorizer) *Handler {
	return &Handler{svc: svc, recorder: recorder, authz: authz}
}

// Register wires the routes under the given (already authenticated and
// tenant-scoped) group.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/interventions", h.list)
	g.POST("/interventions", h.create)
	g.GET("/interventions/export", h.export)
	g.GET("/interventions/strategies", h.strategies)
	g.POST("/interventions/strategies/validate", h.validateStrategy)
	g.GET("/interventions/assigned/:userId", h.userAssignments)
	g.GET("/interventions/workload", h.workload)
	g.GET("/interventions/dashboard", h.dashboard)
	g.GET("/interventions/trends", h.trends)
	g.GET("/interventions/patients/search", h.searchPatients)
	g.GET("/interventions/patients/:patientId/summary", h.patientSummary)
	g.GET("/interventions/compliance", h.compliance)

	g.GET("/interventions/:id", h.get)
	g.PUT("/interventions/:id", h.update)
	g.DELETE("/interventions/:id", h.remove)
	g.GET("/interventions/:id/duplicates", h.duplicates)
	g.GET("/interventions/:id/transitions", h.transitions)
	g.GET("/interventions/:id/recommendations", h.recommendations)
	g.POST("/interventions/:id/strategies", h.addStrategy)
	g.PUT("/interventions/:id/strategies/:strategyId", h.updateStrategy)
	g.POST("/interventions/:id/assignments", h.assign)
	g.PUT("/interventions/:id/assignments/:userId", h.updateAssignment)
	g.DELETE("/interventions/:id/assignments/:userId", h.removeAssignment)
	g.POST("/interventions/:id/outcome", h.recordOutcome)
	g.POST("/interventions/:id/followup", h.scheduleFollowUp)
	g.PUT("/interventions/:id/followup/complete", h.completeFollowUp)
	g.GET("/interventions/:id/audit", h.auditTrail)
}

// authorize gates the request on the named action.
func (h *Handler) authorize(c echo.Context, action string) error {
	roles := auth.RolesFromContext(c.Request().Context())
	if !h.authz.IsAllowed(roles, action) {
		return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
	}
	return nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validationf("invalid %s: not a uuid", name)
	}
	return id, nil
}

func tenantAndActor(c echo.Context) (string, uuid.UUID) {
	ctx := c.Request().Context()
	return db.TenantFromContext(ctx), auth.ActorIDFromContext(ctx)
}

type strategyRequest struct {
	Type            string `json:"type"`
	Description     string `json:"description"`
	Rationale       string `json:"rationale"`
	ExpectedOutcome string `json:"expectedOutcome"`
	Priority        string `json:"priority,omitempty"`
}

func (r strategyRequest) toStrategy() Strategy {
	return Strategy{
		Type:            r.Type,
		Description:     r.Description,
		Rationale:       r.Rationale,
		ExpectedOutcome: r.ExpectedOutcome,
		Priority:        r.Priority,
	}
}

type createRequest struct {
	PatientID        string            `json:"patientId"`
	IdentifiedBy     string            `json:"identifiedBy,omitempty"`
	Category         string            `json:"category"`
	Priority         string            `json:"priority"`
	IssueDescription string            `json:"issueDescription"`
	Strategies       []strategyRequest `json:"strategies,omitempty"`
	EstimatedMinutes *int              `json:"estimatedMinutes,omitempty"`
	IdentifiedDate   *time.Time        `json:"identifiedDate,omitempty"`
	MTRID            string            `json:"mtrId,omitempty"`
	DTPIDs           []string          `json:"dtpIds,omitempty"`
}

func (h *Handler) create(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionCreate); err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return apperr.HTTP(apperr.Validation("invalid patientId", "patientId"))
	}
	params := CreateParams{
		PatientID:        patientID,
		Category:         Category(req.Category),
		Priority:         Priority(req.Priority),
		IssueDescription: req.IssueDescription,
		EstimatedMinutes: req.EstimatedMinutes,
		IdentifiedDate:   req.IdentifiedDate,
	}
	if req.IdentifiedBy != "" {
		id, err := uuid.Parse(req.IdentifiedBy)
		if err != nil {
			return apperr.HTTP(apperr.Validation("invalid identifiedBy", "identifiedBy"))
		}
		params.IdentifiedByID = id
	}
	if req.MTRID != "" {
		id, err := uuid.Parse(req.MTRID)
		if err != nil {
			return apperr.HTTP(apperr.Validation("invalid mtrId", "mtrId"))
		}
		params.MTRID = &id
	}
	for _, raw := range req.DTPIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.HTTP(apperr.Validation("invalid dtpIds entry", "dtpIds"))
		}
		params.DTPIDs = append(params.DTPIDs, id)
	}
	for _, sr := range req.Strategies {
		params.Strategies = append(params.Strategies, sr.toStrategy())
	}

	tenantID, actorID := tenantAndActor(c)
	ctx := c.Request().Context()

	// Duplicates warn, they never block.
	dups, err := h.svc.FindDuplicates(ctx, tenantID, patientID, params.Category, nil)
	if err != nil {
		return apperr.HTTP(err)
	}

	iv, err := h.svc.Create(ctx, tenantID, actorID, params)
	if err != nil {
		return apperr.HTTP(err)
	}
	body := map[string]interface{}{"data": iv}
	if len(dups) > 0 {
		numbers := make([]string, len(dups))
		for i, d := range dups {
			numbers[i] = d.InterventionNumber
		}
		body["duplicateWarning"] = map[string]interface{}{
			"count":   len(dups),
			"numbers": numbers,
		}
	}
	return c.JSON(http.StatusCreated, body)
}

func (h *Handler) get(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	iv, err := h.svc.Get(c.Request().Context(), tenantID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

type updateRequest struct {
	Priority            *string         `json:"priority,omitempty"`
	IssueDescription    *string         `json:"issueDescription,omitempty"`
	ImplementationNotes *string         `json:"implementationNotes,omitempty"`
	EstimatedMinutes    *int            `json:"estimatedMinutes,omitempty"`
	Status              *string         `json:"status,omitempty"`
	Outcome             *outcomeRequest `json:"outcome,omitempty"`
}

func (h *Handler) update(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionUpdate); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}

	params := UpdateParams{
		IssueDescription:    req.IssueDescription,
		ImplementationNotes: req.ImplementationNotes,
		EstimatedMinutes:    req.EstimatedMinutes,
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		params.Priority = &p
	}
	if req.Status != nil {
		st := Status(*req.Status)
		params.Status = &st
	}
	if req.Outcome != nil {
		o := req.Outcome.toOutcome()
		params.Outcome = &o
	}

	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.Update(c.Request().Context(), tenantID, id, actorID, params)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

func (h *Handler) remove(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionDelete); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, actorID := tenantAndActor(c)
	if err := h.svc.Delete(c.Request().Context(), tenantID, id, actorID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) list(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	resp, err := h.svc.List(c.Request().Context(), tenantID, f, pagination.FromContext(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func filterFromQuery(c echo.Context) (SearchFilter, error) {
	var f SearchFilter
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("invalid patientId", "patientId")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("identifiedBy"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("invalid identifiedBy", "identifiedBy")
		}
		f.IdentifiedBy = &id
	}
	if v := c.QueryParam("assignedTo"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("invalid assignedTo", "assignedTo")
		}
		f.AssignedTo = &id
	}
	if v := c.QueryParam("category"); v != "" {
		cat := Category(v)
		f.Category = &cat
	}
	if v := c.QueryParam("priority"); v != "" {
		p := Priority(v)
		f.Priority = &p
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, apperr.Validation("invalid from date", "from")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, apperr.Validation("invalid to date", "to")
		}
		f.To = &t
	}
	f.Search = c.QueryParam("search")
	f.SortBy = c.QueryParam("sortBy")
	f.SortDesc = c.QueryParam("order") != "asc"
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (h *Handler) duplicates(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	ctx := c.Request().Context()
	iv, err := h.svc.Get(ctx, tenantID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	dups, err := h.svc.FindDuplicates(ctx, tenantID, iv.PatientID, iv.Category, &id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if dups == nil {
		dups = []*Intervention{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": dups})
}

func (h *Handler) transitions(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	iv, err := h.svc.Get(c.Request().Context(), tenantID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             iv.Status,
		"allowedTransitions": AllowedTransitions(iv.Status),
		"completionPct":      iv.CompletionPercentage(),
	})
}

func (h *Handler) strategies(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	if v := c.QueryParam("category"); v != "" {
		return c.JSON(http.StatusOK, map[string]interface{}{"data": RecommendedFor(Category(v))})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": AllStrategies()})
}

func (h *Handler) validateStrategy(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	var req strategyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	return c.JSON(http.StatusOK, ValidateCustomStrategy(req.toStrategy()))
}

func (h *Handler) recommendations(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	recs, err := h.svc.Recommend(c.Request().Context(), tenantID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": recs})
}

func (h *Handler) addStrategy(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionUpdate); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req strategyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.AddStrategy(c.Request().Context(), tenantID, id, actorID, req.toStrategy())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": iv})
}

type strategyUpdateRequest struct {
	Description     *string `json:"description,omitempty"`
	Rationale       *string `json:"rationale,omitempty"`
	ExpectedOutcome *string `json:"expectedOutcome,omitempty"`
	Priority        *string `json:"priority,omitempty"`
}

func (h *Handler) updateStrategy(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionUpdate); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	strategyID, err := pathUUID(c, "strategyId")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req strategyUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.UpdateStrategy(c.Request().Context(), tenantID, id, strategyID, actorID, StrategyUpdate{
		Description:     req.Description,
		Rationale:       req.Rationale,
		ExpectedOutcome: req.ExpectedOutcome,
		Priority:        req.Priority,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

type assignRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Task   string `json:"task"`
	Notes  string `json:"notes,omitempty"`
}

func (h *Handler) assign(c echo.Context) error {
	if err := h.authorize(c, auth.ActionAssignmentManage); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return apperr.HTTP(apperr.Validation("invalid userId", "userId"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.Assign(c.Request().Context(), tenantID, id, actorID, Assignment{
		UserID: userID,
		Role:   req.Role,
		Task:   req.Task,
		Notes:  req.Notes,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": iv})
}

type assignmentStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (h *Handler) updateAssignment(c echo.Context) error {
	if err := h.authorize(c, auth.ActionAssignmentManage); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	userID, err := pathUUID(c, "userId")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req assignmentStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.UpdateAssignmentStatus(c.Request().Context(), tenantID, id, userID, actorID,
		AssignmentStatus(req.Status), req.Notes)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

func (h *Handler) removeAssignment(c echo.Context) error {
	if err := h.authorize(c, auth.ActionAssignmentManage); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	userID, err := pathUUID(c, "userId")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.RemoveAssignment(c.Request().Context(), tenantID, id, userID, actorID,
		c.QueryParam("reason"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

func (h *Handler) userAssignments(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	userID, err := pathUUID(c, "userId")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	list, err := h.svc.GetUserAssignments(c.Request().Context(), tenantID, userID,
		AssignmentStatus(c.QueryParam("status")))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": list})
}

// dateRange reads from/to query params, defaulting to the trailing N days.
func dateRange(c echo.Context, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -defaultDays)
	to := now
	if v := c.QueryParam("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return from, to, apperr.Validation("invalid from date", "from")
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return from, to, apperr.Validation("invalid to date", "to")
		}
		to = t
	}
	return from, to, nil
}

func (h *Handler) workload(c echo.Context) error {
	if err := h.authorize(c, auth.ActionReportsView); err != nil {
		return err
	}
	from, to, err := dateRange(c, 90)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	stats, err := h.svc.WorkloadStats(c.Request().Context(), tenantID, from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": stats})
}

func (h *Handler) dashboard(c echo.Context) error {
	if err := h.authorize(c, auth.ActionReportsView); err != nil {
		return err
	}
	from, to, err := dateRange(c, 90)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	metrics, err := h.svc.GetDashboardMetrics(c.Request().Context(), tenantID, from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": metrics})
}

func (h *Handler) trends(c echo.Context) error {
	if err := h.authorize(c, auth.ActionReportsView); err != nil {
		return err
	}
	from, to, err := dateRange(c, 180)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	buckets, err := h.svc.TrendAnalysis(c.Request().Context(), tenantID, TrendParams{
		From:    from,
		To:      to,
		Period:  c.QueryParam("period"),
		GroupBy: c.QueryParam("groupBy"),
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": buckets})
}

func (h *Handler) searchPatients(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	query := c.QueryParam("q")
	if query == "" {
		return apperr.HTTP(apperr.Validation("query parameter q is required", "q"))
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	tenantID, _ := tenantAndActor(c)
	matches, err := h.svc.SearchPatients(c.Request().Context(), tenantID, query, limit)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": matches})
}

func (h *Handler) patientSummary(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionRead); err != nil {
		return err
	}
	patientID, err := pathUUID(c, "patientId")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	summary, err := h.svc.GetPatientSummary(c.Request().Context(), tenantID, patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": summary})
}

type outcomeRequest struct {
	PatientResponse    string              `json:"patientResponse"`
	ClinicalParameters []ClinicalParameter `json:"clinicalParameters,omitempty"`
	AdverseEffects     string              `json:"adverseEffects,omitempty"`
	AdditionalIssues   string              `json:"additionalIssues,omitempty"`
	SuccessMetrics     SuccessMetrics      `json:"successMetrics"`
}

func (r outcomeRequest) toOutcome() Outcome {
	return Outcome{
		PatientResponse:    r.PatientResponse,
		ClinicalParameters: r.ClinicalParameters,
		AdverseEffects:     r.AdverseEffects,
		AdditionalIssues:   r.AdditionalIssues,
		SuccessMetrics:     r.SuccessMetrics,
	}
}

func (h *Handler) recordOutcome(c echo.Context) error {
	if err := h.authorize(c, auth.ActionOutcomeRecord); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req outcomeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.RecordOutcome(c.Request().Context(), tenantID, id, actorID, req.toOutcome())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

type followUpRequest struct {
	Required       bool   `json:"required"`
	ScheduledDate  string `json:"scheduledDate,omitempty"`
	Notes          string `json:"notes,omitempty"`
	NextReviewDate string `json:"nextReviewDate,omitempty"`
}

func (h *Handler) scheduleFollowUp(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionUpdate); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}

	params := FollowUpParams{Required: req.Required, Notes: req.Notes}
	if req.ScheduledDate != "" {
		t, err := parseDate(req.ScheduledDate)
		if err != nil {
			return apperr.HTTP(apperr.Validation("scheduledDate must be a valid date", "scheduledDate"))
		}
		params.ScheduledDate = &t
	}
	if req.NextReviewDate != "" {
		t, err := parseDate(req.NextReviewDate)
		if err != nil {
			return apperr.HTTP(apperr.Validation("nextReviewDate must be a valid date", "nextReviewDate"))
		}
		params.NextReviewDate = &t
	}

	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.ScheduleFollowUp(c.Request().Context(), tenantID, id, actorID, params)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

func (h *Handler) completeFollowUp(c echo.Context) error {
	if err := h.authorize(c, auth.ActionInterventionUpdate); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req struct {
		Notes string `json:"notes,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Validation("malformed request body"))
	}
	tenantID, actorID := tenantAndActor(c)
	iv, err := h.svc.CompleteFollowUp(c.Request().Context(), tenantID, id, actorID, req.Notes)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": iv})
}

func (h *Handler) auditTrail(c echo.Context) error {
	if err := h.authorize(c, auth.ActionAuditView); err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, _ := tenantAndActor(c)
	ctx := c.Request().Context()
	if _, err := h.svc.Get(ctx, tenantID, id); err != nil {
		return apperr.HTTP(err)
	}

	pp := pagination.FromContext(c)
	params := audit.TrailParams{Page: pp.Page, Limit: pp.Limit}
	if v := c.QueryParam("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return apperr.HTTP(apperr.Validation("invalid startDate", "startDate"))
		}
		params.StartDate = &t
	}
	if v := c.QueryParam("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return apperr.HTTP(apperr.Validation("invalid endDate", "endDate"))
		}
		params.EndDate = &t
	}
	trail, err := h.recorder.AuditTrail(ctx, tenantID, id.String(), params)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, trail)
}

func (h *Handler) compliance(c echo.Context) error {
	if err := h.authorize(c, auth.ActionAuditView); err != nil {
		return err
	}
	from, to, err := dateRange(c, 30)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, actorID := tenantAndActor(c)
	ctx := c.Request().Context()
	report, err := h.recorder.ComplianceReport(ctx, tenantID, from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	h.recorder.LogActivity(ctx, audit.Entry{
		TenantID: tenantID,
		Action:   "COMPLIANCE_REPORT_VIEWED",
		ActorID:  actorID,
	})
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) export(c echo.Context) error {
	if err := h.authorize(c, auth.ActionReportsExport); err != nil {
		return err
	}
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return apperr.HTTP(err)
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	tenantID, actorID := tenantAndActor(c)
	report, err := h.svc.BuildExportReport(c.Request().Context(), tenantID, actorID, f)
	if err != nil {
		return apperr.HTTP(err)
	}

	c.Response().Header().Set(echo.HeaderContentType, format.ContentType())
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="interventions-%s.%s"`, time.Now().UTC().Format("20060102"), format))
	c.Response().WriteHeader(http.StatusOK)
	return export.Write(c.Response(), format, *report)
}
